package contract

import "context"

// Classifier labels an incoming message and extracts the optional
// entity/query pair consumed by the fast path.
type Classifier interface {
	Classify(ctx context.Context, message string) (ClassificationResult, TokenUsage, error)
}

// Triage picks exactly one worker for a message that did not qualify for
// the fast path.
type Triage interface {
	SelectWorker(ctx context.Context, message string, history []Message) (WorkerType, TokenUsage, error)
}

// Worker produces one generation step: a final answer or tool requests.
type Worker interface {
	Type() WorkerType
	Generate(ctx context.Context, req WorkerRequest) (WorkerStep, error)
}

type WorkerRequest struct {
	History         []Message
	SuccessCriteria string
	FeedbackOnWork  string
	ResumeContext   string
}

// Evaluator judges a worker's final answer against the success criteria.
type Evaluator interface {
	Evaluate(ctx context.Context, req EvaluationRequest) (EvaluationResult, TokenUsage, error)
}

type EvaluationRequest struct {
	History         []Message
	FinalAnswer     string
	SuccessCriteria string
	PriorFeedback   string
	// PriorAnswerCount is the number of assistant answers the current
	// turn produced before the one under judgment. Earlier turns in
	// History do not count toward it.
	PriorAnswerCount int
}

// Registry resolves every inference-backed collaborator.
type Registry interface {
	Classifier() Classifier
	Triage() Triage
	Worker(t WorkerType) Worker
	Evaluator() Evaluator
}

// ToolGateway executes the tool calls a worker requested, returning one
// result per request. Individual tool failures come back as results, never
// as an error.
type ToolGateway interface {
	Execute(ctx context.Context, worker WorkerType, reqs []ToolRequest) []ToolResult
}

// Directory is the narrow CRM read surface consumed by fast-path handlers
// and CRM tools.
type Directory interface {
	Lookup(ctx context.Context, entityType, query string) (*Entity, error)
	Count(ctx context.Context, entityType string) (int, error)
	List(ctx context.Context, entityType string, limit int) ([]Entity, error)
}

// JobBoard searches job postings for the jobsearch worker.
type JobBoard interface {
	SearchJobs(ctx context.Context, query string, limit int) ([]JobPosting, error)
}

// DocumentVault fetches stored document text for the docs tool.
type DocumentVault interface {
	FetchDocument(ctx context.Context, name string) (string, error)
}

// EmailSender delivers a drafted email on the user's behalf.
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

// UsageSink receives one record per completed turn.
type UsageSink interface {
	Publish(ctx context.Context, rec UsageRecord) error
}
