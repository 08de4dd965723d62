package workers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	contractx "github.com/hubenschmidt/pina-colada-sub000/agent/contract"
)

type fakeToolCallingModel struct {
	responses []*schema.Message
	err       error
	idx       int
	lastInput []*schema.Message
}

func (f *fakeToolCallingModel) Generate(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.Message, error) {
	f.lastInput = input
	if f.err != nil {
		return nil, f.err
	}
	if f.idx >= len(f.responses) {
		return nil, errors.New("no fake response left")
	}
	msg := f.responses[f.idx]
	f.idx++
	return msg, nil
}

func (f *fakeToolCallingModel) Stream(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("stream not implemented in fake model")
}

func (f *fakeToolCallingModel) WithTools(tools []*schema.ToolInfo) (einomodel.ToolCallingChatModel, error) {
	return f, nil
}

func withUsage(msg *schema.Message, in, out int) *schema.Message {
	msg.ResponseMeta = &schema.ResponseMeta{
		Usage: &schema.TokenUsage{
			PromptTokens:     in,
			CompletionTokens: out,
			TotalTokens:      in + out,
		},
	}
	return msg
}

/* ------------------------------- evaluator ------------------------------- */

func TestEvaluatorApproval(t *testing.T) {
	t.Parallel()

	fake := &fakeToolCallingModel{
		responses: []*schema.Message{
			withUsage(&schema.Message{
				Role:    schema.Assistant,
				Content: `{"feedback":"Looks good.","success_criteria_met":true,"user_input_needed":false}`,
			}, 20, 10),
		},
	}

	eval, err := newEvaluator(context.Background(), fake, "evaluator prompt")
	if err != nil {
		t.Fatalf("newEvaluator() error = %v", err)
	}

	result, usage, err := eval.Evaluate(context.Background(), contractx.EvaluationRequest{
		History:         []contractx.Message{{Role: contractx.RoleUser, Content: "do the thing"}},
		FinalAnswer:     "the thing is done",
		SuccessCriteria: "thing is done",
	})
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if !result.SuccessCriteriaMet {
		t.Fatal("expected approval")
	}
	if usage.Total != 30 {
		t.Fatalf("usage total = %d, want 30", usage.Total)
	}
}

func TestEvaluatorRejectionPassesThroughBelowThreshold(t *testing.T) {
	t.Parallel()

	fake := &fakeToolCallingModel{
		responses: []*schema.Message{
			{Role: schema.Assistant, Content: `{"feedback":"Missing the deadline.","success_criteria_met":false}`},
		},
	}

	eval, err := newEvaluator(context.Background(), fake, "evaluator prompt")
	if err != nil {
		t.Fatalf("newEvaluator() error = %v", err)
	}

	result, _, err := eval.Evaluate(context.Background(), contractx.EvaluationRequest{
		History: []contractx.Message{
			{Role: contractx.RoleUser, Content: "draft it"},
			{Role: contractx.RoleAssistant, Content: "first draft"},
		},
		FinalAnswer:     "first draft",
		SuccessCriteria: "include the deadline",
		PriorFeedback:   "",
	})
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if result.SuccessCriteriaMet {
		t.Fatal("first rejection must stand")
	}
	if result.Feedback != "Missing the deadline." {
		t.Fatalf("unexpected feedback: %q", result.Feedback)
	}
}

func TestEvaluatorRetryLoopForcesApproval(t *testing.T) {
	t.Parallel()

	fake := &fakeToolCallingModel{
		responses: []*schema.Message{
			{Role: schema.Assistant, Content: `{"feedback":"Still not right.","success_criteria_met":false}`},
		},
	}

	eval, err := newEvaluator(context.Background(), fake, "evaluator prompt")
	if err != nil {
		t.Fatalf("newEvaluator() error = %v", err)
	}

	result, _, err := eval.Evaluate(context.Background(), contractx.EvaluationRequest{
		History: []contractx.Message{
			{Role: contractx.RoleUser, Content: "draft it"},
			{Role: contractx.RoleAssistant, Content: "draft one"},
			{Role: contractx.RoleAssistant, Content: "draft two"},
			{Role: contractx.RoleAssistant, Content: "draft three"},
			{Role: contractx.RoleAssistant, Content: "draft four"},
		},
		FinalAnswer:      "draft four",
		SuccessCriteria:  "be perfect",
		PriorFeedback:    "not good enough",
		PriorAnswerCount: 3,
	})
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if !result.SuccessCriteriaMet {
		t.Fatal("retry loop must force approval")
	}
	if !strings.Contains(result.Feedback, "Accepted after 3 retries") {
		t.Fatalf("forced-approval feedback missing retry count: %q", result.Feedback)
	}
	if !strings.Contains(result.Feedback, "Still not right.") {
		t.Fatalf("forced-approval feedback missing last judgment: %q", result.Feedback)
	}
}

// Simulates the engine's calling convention on a fresh thread with a model
// that never approves: the third judgment must still stand as a rejection
// and only the fourth gets force-approved.
func TestEvaluatorFourthRejectionIsForced(t *testing.T) {
	t.Parallel()

	rejection := &schema.Message{
		Role:    schema.Assistant,
		Content: `{"feedback":"Not good enough.","success_criteria_met":false}`,
	}
	fake := &fakeToolCallingModel{
		responses: []*schema.Message{rejection, rejection, rejection, rejection},
	}

	eval, err := newEvaluator(context.Background(), fake, "evaluator prompt")
	if err != nil {
		t.Fatalf("newEvaluator() error = %v", err)
	}

	history := []contractx.Message{{Role: contractx.RoleUser, Content: "draft it"}}
	feedback := ""
	for call := 1; call <= 4; call++ {
		answer := fmt.Sprintf("draft %d", call)
		history = append(history, contractx.Message{Role: contractx.RoleAssistant, Content: answer})

		result, _, err := eval.Evaluate(context.Background(), contractx.EvaluationRequest{
			History:          history,
			FinalAnswer:      answer,
			SuccessCriteria:  "be perfect",
			PriorFeedback:    feedback,
			PriorAnswerCount: call - 1,
		})
		if err != nil {
			t.Fatalf("Evaluate() call %d error = %v", call, err)
		}

		if call < 4 {
			if result.SuccessCriteriaMet {
				t.Fatalf("call %d approved; only the fourth may be forced", call)
			}
			feedback = result.Feedback
			continue
		}
		if !result.SuccessCriteriaMet {
			t.Fatal("fourth rejection must be force-approved")
		}
		if !strings.Contains(result.Feedback, "Accepted after 3 retries") {
			t.Fatalf("forced-approval feedback missing retry count: %q", result.Feedback)
		}
	}
}

func TestDetectRetryLoop(t *testing.T) {
	t.Parallel()

	if loop, _ := detectRetryLoop(contractx.EvaluationRequest{PriorAnswerCount: 3}); loop {
		t.Fatal("no prior feedback must never count as a loop")
	}

	loop, count := detectRetryLoop(contractx.EvaluationRequest{
		PriorAnswerCount: 3,
		PriorFeedback:    "fix it",
	})
	if !loop || count != 3 {
		t.Fatalf("detectRetryLoop() = %v, %d; want true, 3", loop, count)
	}

	loop, _ = detectRetryLoop(contractx.EvaluationRequest{
		PriorAnswerCount: 2,
		PriorFeedback:    "fix it",
	})
	if loop {
		t.Fatal("two prior answers are below the loop threshold")
	}
}

func TestEvaluatorUserInputNeededSkipsRetryBreak(t *testing.T) {
	t.Parallel()

	result := applyRetryBreak(
		contractx.EvaluationResult{UserInputNeeded: true, Feedback: "Which account?"},
		contractx.EvaluationRequest{
			PriorAnswerCount: 3,
			PriorFeedback:    "fix it",
		},
	)
	if result.SuccessCriteriaMet {
		t.Fatal("user-input-needed must pass through untouched")
	}
	if result.Feedback != "Which account?" {
		t.Fatalf("feedback mutated: %q", result.Feedback)
	}
}

func TestEvaluatorFailureDefaultsToApproval(t *testing.T) {
	t.Parallel()

	fake := &fakeToolCallingModel{err: errors.New("upstream down")}

	eval, err := newEvaluator(context.Background(), fake, "evaluator prompt")
	if err != nil {
		t.Fatalf("newEvaluator() error = %v", err)
	}

	result, _, err := eval.Evaluate(context.Background(), contractx.EvaluationRequest{
		FinalAnswer: "whatever we had",
	})
	if err != nil {
		t.Fatalf("Evaluate() must not propagate inference errors, got %v", err)
	}
	if !result.SuccessCriteriaMet {
		t.Fatal("inference failure must default to approval")
	}
}

/* -------------------------------- triage --------------------------------- */

func TestTriageSelectsWorker(t *testing.T) {
	t.Parallel()

	fake := &fakeToolCallingModel{
		responses: []*schema.Message{
			{Role: schema.Assistant, Content: `{"worker":"jobsearch"}`},
		},
	}

	tr, err := newTriage(context.Background(), fake, "triage prompt")
	if err != nil {
		t.Fatalf("newTriage() error = %v", err)
	}

	worker, _, err := tr.SelectWorker(context.Background(), "find me golang jobs", nil)
	if err != nil {
		t.Fatalf("SelectWorker() error = %v", err)
	}
	if worker != contractx.WorkerTypeJobSearch {
		t.Fatalf("worker = %q, want jobsearch", worker)
	}
}

func TestTriageUnknownWorkerFallsBackToGeneral(t *testing.T) {
	t.Parallel()

	fake := &fakeToolCallingModel{
		responses: []*schema.Message{
			{Role: schema.Assistant, Content: `{"worker":"barista"}`},
		},
	}

	tr, err := newTriage(context.Background(), fake, "triage prompt")
	if err != nil {
		t.Fatalf("newTriage() error = %v", err)
	}

	worker, _, err := tr.SelectWorker(context.Background(), "make me a latte", nil)
	if err != nil {
		t.Fatalf("SelectWorker() error = %v", err)
	}
	if worker != contractx.WorkerTypeGeneral {
		t.Fatalf("worker = %q, want general", worker)
	}
}

func TestTriageFailureFallsBackToGeneral(t *testing.T) {
	t.Parallel()

	fake := &fakeToolCallingModel{err: errors.New("router down")}

	tr, err := newTriage(context.Background(), fake, "triage prompt")
	if err != nil {
		t.Fatalf("newTriage() error = %v", err)
	}

	worker, _, err := tr.SelectWorker(context.Background(), "anything", nil)
	if err != nil {
		t.Fatalf("SelectWorker() must not propagate errors, got %v", err)
	}
	if worker != contractx.WorkerTypeGeneral {
		t.Fatalf("worker = %q, want general", worker)
	}
}

/* -------------------------------- worker --------------------------------- */

func TestWorkerGenerateFinalAnswer(t *testing.T) {
	t.Parallel()

	fake := &fakeToolCallingModel{
		responses: []*schema.Message{
			withUsage(&schema.Message{Role: schema.Assistant, Content: "Here you go."}, 50, 12),
		},
	}

	w, err := newWorker(context.Background(), contractx.WorkerTypeGeneral, fake, "general prompt")
	if err != nil {
		t.Fatalf("newWorker() error = %v", err)
	}

	step, err := w.Generate(context.Background(), contractx.WorkerRequest{
		History: []contractx.Message{{Role: contractx.RoleUser, Content: "help"}},
	})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if step.Content != "Here you go." {
		t.Fatalf("content = %q", step.Content)
	}
	if len(step.ToolRequests) != 0 {
		t.Fatalf("unexpected tool requests: %#v", step.ToolRequests)
	}
	if step.Usage.Total != 62 {
		t.Fatalf("usage total = %d, want 62", step.Usage.Total)
	}
}

func TestWorkerGenerateToolCalls(t *testing.T) {
	t.Parallel()

	fake := &fakeToolCallingModel{
		responses: []*schema.Message{
			{
				Role: schema.Assistant,
				ToolCalls: []schema.ToolCall{
					{
						ID: "call-1",
						Function: schema.FunctionCall{
							Name:      "jobs.search",
							Arguments: `{"query":"golang remote"}`,
						},
					},
				},
			},
		},
	}

	w, err := newWorker(context.Background(), contractx.WorkerTypeJobSearch, fake, "jobsearch prompt")
	if err != nil {
		t.Fatalf("newWorker() error = %v", err)
	}

	step, err := w.Generate(context.Background(), contractx.WorkerRequest{
		History: []contractx.Message{{Role: contractx.RoleUser, Content: "find golang jobs"}},
	})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if len(step.ToolRequests) != 1 {
		t.Fatalf("tool requests = %d, want 1", len(step.ToolRequests))
	}
	req := step.ToolRequests[0]
	if req.Tool != "jobs.search" || req.ID != "call-1" {
		t.Fatalf("unexpected tool request: %#v", req)
	}
	if req.Args["query"] != "golang remote" {
		t.Fatalf("unexpected args: %#v", req.Args)
	}
}

func TestWorkerGenerateEmptyResponseFails(t *testing.T) {
	t.Parallel()

	fake := &fakeToolCallingModel{
		responses: []*schema.Message{
			{Role: schema.Assistant, Content: "   "},
		},
	}

	w, err := newWorker(context.Background(), contractx.WorkerTypeGeneral, fake, "general prompt")
	if err != nil {
		t.Fatalf("newWorker() error = %v", err)
	}

	_, err = w.Generate(context.Background(), contractx.WorkerRequest{
		History: []contractx.Message{{Role: contractx.RoleUser, Content: "help"}},
	})
	if !errors.Is(err, contractx.ErrSchemaViolation) {
		t.Fatalf("error = %v, want ErrSchemaViolation", err)
	}
}

func TestWorkerSystemPromptIncludesFeedbackAndTruncatesContext(t *testing.T) {
	t.Parallel()

	w := &workerImpl{workerType: contractx.WorkerTypeContent, basePrompt: "base"}

	long := strings.Repeat("r", retryContextLimit+500)
	prompt := w.systemPrompt(contractx.WorkerRequest{
		SuccessCriteria: "cover everything",
		FeedbackOnWork:  "add the salary range",
		ResumeContext:   long,
	})

	if !strings.Contains(prompt, "add the salary range") {
		t.Fatal("feedback missing from prompt")
	}
	if !strings.Contains(prompt, "[reference context truncated]") {
		t.Fatal("long context not truncated on retry")
	}
	if strings.Contains(prompt, long) {
		t.Fatal("full context leaked into retry prompt")
	}

	// First pass keeps the full context.
	first := w.systemPrompt(contractx.WorkerRequest{ResumeContext: long})
	if !strings.Contains(first, long) {
		t.Fatal("first pass must carry the full context")
	}
}

func TestToSchemaMessagesReplaysToolResultsAsTaggedUser(t *testing.T) {
	t.Parallel()

	msgs := toSchemaMessages([]contractx.Message{
		{Role: contractx.RoleUser, Content: "hi"},
		{Role: contractx.RoleAssistant, Content: ""},
		{Role: contractx.RoleTool, Content: "42 results", ToolName: "jobs.search"},
		{Role: contractx.RoleAssistant, Content: "done"},
	})

	if len(msgs) != 3 {
		t.Fatalf("messages = %d, want 3 (empty assistant dropped)", len(msgs))
	}
	if msgs[1].Role != schema.User || !strings.Contains(msgs[1].Content, "[tool jobs.search]") {
		t.Fatalf("tool replay not tagged: %#v", msgs[1])
	}
	if msgs[2].Role != schema.Assistant {
		t.Fatalf("assistant message lost: %#v", msgs[2])
	}
}
