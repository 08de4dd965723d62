package workers

import (
	"context"
	"fmt"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog/log"

	contractx "github.com/hubenschmidt/pina-colada-sub000/agent/contract"
	llmx "github.com/hubenschmidt/pina-colada-sub000/agent/llm"
	statex "github.com/hubenschmidt/pina-colada-sub000/agent/state"
)

// triageHistoryWindow bounds how much conversation the router sees; it
// only needs enough to disambiguate the current message.
const triageHistoryWindow = 4

type triageImpl struct {
	runner       compose.Runnable[map[string]any, *schema.Message]
	systemPrompt string
}

type triageOutput struct {
	Worker string `json:"worker"`
}

func newTriage(ctx context.Context, chatModel einomodel.BaseChatModel, systemPrompt string) (*triageImpl, error) {
	if strings.TrimSpace(systemPrompt) == "" {
		return nil, fmt.Errorf("%w: triage prompt", contractx.ErrPromptMissing)
	}
	runner, err := compileChatGraph(ctx, chatModel, "triage.select_worker")
	if err != nil {
		return nil, fmt.Errorf("%w: compile triage graph: %v", contractx.ErrModelInvoke, err)
	}
	return &triageImpl{
		runner:       runner,
		systemPrompt: strings.TrimSpace(systemPrompt),
	}, nil
}

// SelectWorker always resolves to a worker: a misroute is correctable by
// the evaluator loop, so any failure here degrades to the general worker
// rather than surfacing an error.
func (t *triageImpl) SelectWorker(
	ctx context.Context,
	message string,
	history []contractx.Message,
) (contractx.WorkerType, contractx.TokenUsage, error) {
	window := statex.Window(history, triageHistoryWindow)
	wire := toSchemaMessages(window)
	wire = append(wire, schema.UserMessage(fmt.Sprintf("Route this message: %s", message)))

	msg, err := t.runner.Invoke(ctx, map[string]any{
		"system_prompt": t.systemPrompt,
		"history":       wire,
	})
	if err != nil {
		log.Warn().Err(err).Msg("triage failed, defaulting to general worker")
		return contractx.WorkerTypeGeneral, contractx.TokenUsage{}, nil
	}

	usage := usageFromMessage(msg)

	var out triageOutput
	if err := llmx.DecodeModelJSON(msg.Content, &out); err != nil {
		log.Warn().Err(err).Str("content", msg.Content).Msg("triage output unreadable, defaulting to general worker")
		return contractx.WorkerTypeGeneral, usage, nil
	}

	selected := strings.ToLower(strings.TrimSpace(out.Worker))
	if !contractx.IsWorkerType(selected) {
		log.Warn().Str("worker", selected).Msg("triage picked an unknown worker, defaulting to general")
		return contractx.WorkerTypeGeneral, usage, nil
	}
	return contractx.WorkerType(selected), usage, nil
}
