package workers

import (
	"context"
	"fmt"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	contractx "github.com/hubenschmidt/pina-colada-sub000/agent/contract"
	toolx "github.com/hubenschmidt/pina-colada-sub000/agent/tool"
)

// retryContextLimit truncates the resume context on retry passes: the
// worker already saw the full text once, and retries should spend tokens
// on the correction, not the reference material.
const retryContextLimit = 1500

type workerImpl struct {
	workerType contractx.WorkerType
	runner     compose.Runnable[map[string]any, *schema.Message]
	basePrompt string
}

func newWorker(
	ctx context.Context,
	workerType contractx.WorkerType,
	chatModel einomodel.ToolCallingChatModel,
	basePrompt string,
) (*workerImpl, error) {
	if strings.TrimSpace(basePrompt) == "" {
		return nil, fmt.Errorf("%w: prompt for worker=%s", contractx.ErrPromptMissing, workerType)
	}

	toolModel, err := chatModel.WithTools(toolx.InfosForWorker(workerType))
	if err != nil {
		return nil, fmt.Errorf("%w: bind tools for worker=%s: %v", contractx.ErrModelInvoke, workerType, err)
	}

	runner, err := compileChatGraph(ctx, toolModel, fmt.Sprintf("worker.%s", workerType))
	if err != nil {
		return nil, fmt.Errorf("%w: compile worker=%s graph: %v", contractx.ErrModelInvoke, workerType, err)
	}

	return &workerImpl{
		workerType: workerType,
		runner:     runner,
		basePrompt: strings.TrimSpace(basePrompt),
	}, nil
}

func (w *workerImpl) Type() contractx.WorkerType {
	return w.workerType
}

func (w *workerImpl) Generate(ctx context.Context, req contractx.WorkerRequest) (contractx.WorkerStep, error) {
	msg, err := w.runner.Invoke(ctx, map[string]any{
		"system_prompt": w.systemPrompt(req),
		"history":       toSchemaMessages(req.History),
	})
	if err != nil {
		return contractx.WorkerStep{}, fmt.Errorf("%w: worker=%s generate: %v", contractx.ErrModelInvoke, w.workerType, err)
	}
	if msg == nil {
		return contractx.WorkerStep{}, fmt.Errorf("%w: worker=%s returned nil message", contractx.ErrSchemaViolation, w.workerType)
	}

	step := contractx.WorkerStep{
		Content: strings.TrimSpace(msg.Content),
		Usage:   usageFromMessage(msg),
	}

	toolReqs, err := toToolRequests(msg.ToolCalls)
	if err != nil {
		return contractx.WorkerStep{}, err
	}
	step.ToolRequests = toolReqs

	if step.Content == "" && len(step.ToolRequests) == 0 {
		return contractx.WorkerStep{}, fmt.Errorf("%w: worker=%s produced neither content nor tool calls", contractx.ErrSchemaViolation, w.workerType)
	}
	return step, nil
}

// systemPrompt assembles role framing, the success criteria, evaluator
// feedback when present, and the full or truncated reference context.
func (w *workerImpl) systemPrompt(req contractx.WorkerRequest) string {
	var b strings.Builder
	b.WriteString(w.basePrompt)

	criteria := strings.TrimSpace(req.SuccessCriteria)
	if criteria != "" {
		b.WriteString("\n\nSuccess criteria for this turn:\n")
		b.WriteString(criteria)
	}

	feedback := strings.TrimSpace(req.FeedbackOnWork)
	if feedback != "" {
		b.WriteString("\n\nYour previous answer was rejected. Correct it using this feedback:\n")
		b.WriteString(feedback)
	}

	resume := strings.TrimSpace(req.ResumeContext)
	if resume != "" {
		if feedback != "" && len(resume) > retryContextLimit {
			resume = resume[:retryContextLimit] + "\n[reference context truncated]"
		}
		b.WriteString("\n\nReference context about the user:\n")
		b.WriteString(resume)
	}

	return b.String()
}
