package contract

type WorkerType string

const (
	WorkerTypeGeneral   WorkerType = "general"
	WorkerTypeJobSearch WorkerType = "jobsearch"
	WorkerTypeContent   WorkerType = "content"
	WorkerTypeCRM       WorkerType = "crm"
)

// AllWorkerTypes is the closed set the triage router selects from.
var AllWorkerTypes = []WorkerType{
	WorkerTypeGeneral,
	WorkerTypeJobSearch,
	WorkerTypeContent,
	WorkerTypeCRM,
}

func IsWorkerType(s string) bool {
	for _, w := range AllWorkerTypes {
		if string(w) == s {
			return true
		}
	}
	return false
}

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one entry in a turn's append-only history.
type Message struct {
	Role     Role   `json:"role"`
	Content  string `json:"content"`
	ToolName string `json:"tool_name,omitempty"`
}

type FastPathIntent string

const (
	IntentLookup FastPathIntent = "lookup"
	IntentCount  FastPathIntent = "count"
	IntentList   FastPathIntent = "list"
	IntentOther  FastPathIntent = "other"
)

// ClassificationResult is produced fresh per incoming message and never
// persisted beyond the turn.
type ClassificationResult struct {
	FastPathIntent   FastPathIntent `json:"fast_path_intent"`
	LookupEntityType string         `json:"lookup_entity_type,omitempty"`
	LookupQuery      string         `json:"lookup_query,omitempty"`
}

type EvaluationResult struct {
	Feedback           string `json:"feedback"`
	SuccessCriteriaMet bool   `json:"success_criteria_met"`
	UserInputNeeded    bool   `json:"user_input_needed"`
}

// TokenUsage accumulates monotonically; Add never subtracts.
type TokenUsage struct {
	Input  int `json:"input"`
	Output int `json:"output"`
	Total  int `json:"total"`
}

func (u *TokenUsage) Add(other TokenUsage) {
	u.Input += other.Input
	u.Output += other.Output
	u.Total += other.Total
}

// UsageRecord is emitted once per completed turn to the telemetry sink.
type UsageRecord struct {
	TenantID  string `json:"tenant_id"`
	UserID    string `json:"user_id"`
	ModelName string `json:"model_name"`
	NodeName  string `json:"node_name"`
	Input     int    `json:"input"`
	Output    int    `json:"output"`
	Total     int    `json:"total"`
}

type ToolRequest struct {
	ID   string         `json:"id,omitempty"`
	Tool string         `json:"tool"`
	Args map[string]any `json:"args,omitempty"`
}

type ToolResult struct {
	ID     string `json:"id,omitempty"`
	Tool   string `json:"tool"`
	Result string `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Entity is a directory row surfaced to fast-path handlers and CRM tools.
type Entity struct {
	ID      int64  `json:"id"`
	Type    string `json:"type"`
	Name    string `json:"name"`
	Summary string `json:"summary,omitempty"`
}

type JobPosting struct {
	ID       int64  `json:"id"`
	Title    string `json:"title"`
	Company  string `json:"company"`
	Location string `json:"location,omitempty"`
	URL      string `json:"url,omitempty"`
}

// WorkerStep is one worker generation: either a final answer or a set of
// requested tool invocations, plus the usage of the underlying call.
type WorkerStep struct {
	Content      string
	ToolRequests []ToolRequest
	Usage        TokenUsage
}
