package prompt

import (
	_ "embed"
	"strings"

	contractx "github.com/hubenschmidt/pina-colada-sub000/agent/contract"
)

var (
	//go:embed template/classifier.txt
	classifierRaw string

	//go:embed template/triage.txt
	triageRaw string

	//go:embed template/evaluator.txt
	evaluatorRaw string

	//go:embed template/general.txt
	generalRaw string

	//go:embed template/jobsearch.txt
	jobsearchRaw string

	//go:embed template/content.txt
	contentRaw string

	//go:embed template/crm.txt
	crmRaw string
)

// PromptSet holds loaded prompt content.
type PromptSet struct {
	Classifier string
	Triage     string
	Evaluator  string
	Workers    map[contractx.WorkerType]string
}

// LoadPromptSet returns a PromptSet with trimmed prompt strings.
// This is safe to call concurrently; the embed is compile-time, and trimming is cheap.
func LoadPromptSet() PromptSet {
	return PromptSet{
		Classifier: strings.TrimSpace(classifierRaw),
		Triage:     strings.TrimSpace(triageRaw),
		Evaluator:  strings.TrimSpace(evaluatorRaw),
		Workers: map[contractx.WorkerType]string{
			contractx.WorkerTypeGeneral:   strings.TrimSpace(generalRaw),
			contractx.WorkerTypeJobSearch: strings.TrimSpace(jobsearchRaw),
			contractx.WorkerTypeContent:   strings.TrimSpace(contentRaw),
			contractx.WorkerTypeCRM:       strings.TrimSpace(crmRaw),
		},
	}
}
