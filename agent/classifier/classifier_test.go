package classifier

import (
	"testing"

	contractx "github.com/hubenschmidt/pina-colada-sub000/agent/contract"
)

func TestNormalizeKnownIntents(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   classifierOutput
		want contractx.ClassificationResult
	}{
		{
			name: "lookup with mixed case",
			in:   classifierOutput{FastPathIntent: " Lookup ", LookupEntityType: "Contact", LookupQuery: " Jennifer "},
			want: contractx.ClassificationResult{
				FastPathIntent:   contractx.IntentLookup,
				LookupEntityType: "contact",
				LookupQuery:      "Jennifer",
			},
		},
		{
			name: "count",
			in:   classifierOutput{FastPathIntent: "count", LookupEntityType: "company"},
			want: contractx.ClassificationResult{
				FastPathIntent:   contractx.IntentCount,
				LookupEntityType: "company",
			},
		},
		{
			name: "list",
			in:   classifierOutput{FastPathIntent: "LIST", LookupEntityType: "job"},
			want: contractx.ClassificationResult{
				FastPathIntent:   contractx.IntentList,
				LookupEntityType: "job",
			},
		},
		{
			name: "garbage intent defaults to other",
			in:   classifierOutput{FastPathIntent: "chitchat"},
			want: contractx.ClassificationResult{FastPathIntent: contractx.IntentOther},
		},
		{
			name: "empty intent defaults to other",
			in:   classifierOutput{},
			want: contractx.ClassificationResult{FastPathIntent: contractx.IntentOther},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := normalize(tt.in); got != tt.want {
				t.Fatalf("normalize() = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestNewRequiresCollaborators(t *testing.T) {
	t.Parallel()

	if _, err := New(nil, "model", "prompt"); err == nil {
		t.Fatal("expected error for nil client")
	}
}
