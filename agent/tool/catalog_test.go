package tool

import (
	"context"
	"errors"
	"strings"
	"testing"

	contractx "github.com/hubenschmidt/pina-colada-sub000/agent/contract"
)

type fakeDirectory struct {
	entity *contractx.Entity
	err    error
}

func (d *fakeDirectory) Lookup(ctx context.Context, entityType, query string) (*contractx.Entity, error) {
	return d.entity, d.err
}

func (d *fakeDirectory) Count(ctx context.Context, entityType string) (int, error) {
	return 0, d.err
}

func (d *fakeDirectory) List(ctx context.Context, entityType string, limit int) ([]contractx.Entity, error) {
	if d.err != nil {
		return nil, d.err
	}
	if d.entity == nil {
		return nil, nil
	}
	return []contractx.Entity{*d.entity}, nil
}

type fakeJobBoard struct {
	postings []contractx.JobPosting
	err      error
}

func (j *fakeJobBoard) SearchJobs(ctx context.Context, query string, limit int) ([]contractx.JobPosting, error) {
	return j.postings, j.err
}

type fakeVault struct {
	text string
	err  error
}

func (v *fakeVault) FetchDocument(ctx context.Context, name string) (string, error) {
	return v.text, v.err
}

type fakeMailer struct {
	sent []string
	err  error
}

func (m *fakeMailer) SendEmail(ctx context.Context, to, subject, body string) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, to)
	return nil
}

func TestInfosForWorkerSubsets(t *testing.T) {
	t.Parallel()

	names := func(worker contractx.WorkerType) []string {
		var out []string
		for _, info := range InfosForWorker(worker) {
			out = append(out, info.Name)
		}
		return out
	}

	crm := names(contractx.WorkerTypeCRM)
	if len(crm) != 3 || crm[0] != ToolCRMLookup || crm[1] != ToolCRMSearch || crm[2] != ToolEmailSend {
		t.Fatalf("unexpected crm tools: %v", crm)
	}

	jobs := names(contractx.WorkerTypeJobSearch)
	if len(jobs) != 2 || jobs[0] != ToolJobsSearch {
		t.Fatalf("unexpected jobsearch tools: %v", jobs)
	}

	for _, worker := range contractx.AllWorkerTypes {
		if len(InfosForWorker(worker)) == 0 {
			t.Fatalf("worker %s has no tools", worker)
		}
	}
}

func TestExecuteRejectsToolOutsideWorkerSubset(t *testing.T) {
	t.Parallel()

	g := NewGateway(&fakeDirectory{}, &fakeJobBoard{}, &fakeVault{}, &fakeMailer{})

	results := g.Execute(context.Background(), contractx.WorkerTypeGeneral, []contractx.ToolRequest{
		{ID: "c1", Tool: ToolCRMLookup, Args: map[string]any{"entity_type": "contact", "query": "x"}},
	})
	if len(results) != 1 {
		t.Fatalf("results = %d, want 1", len(results))
	}
	if results[0].Error == "" || !strings.Contains(results[0].Error, "unavailable") {
		t.Fatalf("expected unavailable error, got %#v", results[0])
	}
}

func TestExecuteMathEvaluate(t *testing.T) {
	t.Parallel()

	g := NewGateway(nil, nil, nil, nil)

	results := g.Execute(context.Background(), contractx.WorkerTypeGeneral, []contractx.ToolRequest{
		{ID: "c1", Tool: ToolMathEvaluate, Args: map[string]any{"expression": "2 + 3 * (4 - 1)"}},
	})
	if results[0].Error != "" {
		t.Fatalf("unexpected error: %s", results[0].Error)
	}
	if !strings.HasSuffix(results[0].Result, "= 11") {
		t.Fatalf("unexpected result: %q", results[0].Result)
	}
}

func TestExecuteMathRejectsLetters(t *testing.T) {
	t.Parallel()

	g := NewGateway(nil, nil, nil, nil)

	results := g.Execute(context.Background(), contractx.WorkerTypeGeneral, []contractx.ToolRequest{
		{Tool: ToolMathEvaluate, Args: map[string]any{"expression": "rm -rf"}},
	})
	if results[0].Error == "" {
		t.Fatal("expected validation error for non-numeric expression")
	}
}

func TestExecuteCRMLookupReturnsEntityJSON(t *testing.T) {
	t.Parallel()

	g := NewGateway(
		&fakeDirectory{entity: &contractx.Entity{ID: 7, Type: "contact", Name: "Jennifer Smith"}},
		nil, nil, nil,
	)

	results := g.Execute(context.Background(), contractx.WorkerTypeCRM, []contractx.ToolRequest{
		{Tool: ToolCRMLookup, Args: map[string]any{"entity_type": "contact", "query": "Jennifer"}},
	})
	if results[0].Error != "" {
		t.Fatalf("unexpected error: %s", results[0].Error)
	}
	if !strings.Contains(results[0].Result, "Jennifer Smith") {
		t.Fatalf("entity missing from result: %q", results[0].Result)
	}
}

func TestExecuteCRMLookupMissingArgs(t *testing.T) {
	t.Parallel()

	g := NewGateway(&fakeDirectory{}, nil, nil, nil)

	results := g.Execute(context.Background(), contractx.WorkerTypeCRM, []contractx.ToolRequest{
		{Tool: ToolCRMLookup, Args: map[string]any{"entity_type": "contact"}},
	})
	if results[0].Error == "" {
		t.Fatal("expected error for missing query")
	}
}

func TestExecuteFailureBecomesResultNotError(t *testing.T) {
	t.Parallel()

	g := NewGateway(nil, &fakeJobBoard{err: errors.New("board offline")}, nil, nil)

	results := g.Execute(context.Background(), contractx.WorkerTypeJobSearch, []contractx.ToolRequest{
		{Tool: ToolJobsSearch, Args: map[string]any{"query": "golang"}},
	})
	if len(results) != 1 {
		t.Fatalf("results = %d, want 1", len(results))
	}
	if !strings.Contains(results[0].Error, "board offline") {
		t.Fatalf("failure not surfaced in result: %#v", results[0])
	}
}

func TestExecuteEmailSend(t *testing.T) {
	t.Parallel()

	mail := &fakeMailer{}
	g := NewGateway(nil, nil, nil, mail)

	results := g.Execute(context.Background(), contractx.WorkerTypeContent, []contractx.ToolRequest{
		{Tool: ToolEmailSend, Args: map[string]any{
			"to":      "recruiter@example.com",
			"subject": "Application",
			"body":    "Hello",
		}},
	})
	if results[0].Error != "" {
		t.Fatalf("unexpected error: %s", results[0].Error)
	}
	if len(mail.sent) != 1 || mail.sent[0] != "recruiter@example.com" {
		t.Fatalf("email not delivered: %#v", mail.sent)
	}
}

func TestExecuteDocsFetch(t *testing.T) {
	t.Parallel()

	g := NewGateway(nil, nil, &fakeVault{text: "resume body"}, nil)

	results := g.Execute(context.Background(), contractx.WorkerTypeGeneral, []contractx.ToolRequest{
		{Tool: ToolDocsFetch, Args: map[string]any{"name": "resume"}},
	})
	if results[0].Result != "resume body" {
		t.Fatalf("unexpected result: %q", results[0].Result)
	}
}

func TestEvaluateMathExpressionPrecedence(t *testing.T) {
	t.Parallel()

	tests := []struct {
		expr string
		want float64
	}{
		{"1 + 2 * 3", 7},
		{"(1 + 2) * 3", 9},
		{"2 ^ 3 ^ 2", 512},
		{"10 % 3", 1},
		{"-4 + 2", -2},
	}
	for _, tt := range tests {
		got, err := evaluateMathExpression(tt.expr)
		if err != nil {
			t.Fatalf("evaluate %q: %v", tt.expr, err)
		}
		if got != tt.want {
			t.Fatalf("evaluate %q = %v, want %v", tt.expr, got, tt.want)
		}
	}

	if _, err := evaluateMathExpression("1 / 0"); err == nil {
		t.Fatal("expected division by zero error")
	}
}
