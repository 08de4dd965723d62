// Package engine is the orchestration core: it turns one user message into
// a routed, tool-augmented, evaluated response, streaming assistant content
// to the caller as it appears.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/compose"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	contractx "github.com/hubenschmidt/pina-colada-sub000/agent/contract"
	fastpathx "github.com/hubenschmidt/pina-colada-sub000/agent/fastpath"
	statex "github.com/hubenschmidt/pina-colada-sub000/agent/state"
	streamx "github.com/hubenschmidt/pina-colada-sub000/agent/stream"
)

const (
	defaultHistoryBudget = 6000
	// defaultMaxToolRounds is the hard ceiling on worker tool rounds per
	// invocation. The evaluator's retry breaking only activates once the
	// worker has produced a non-tool answer, so the loop needs its own cap.
	defaultMaxToolRounds = 8
)

type Config struct {
	// ModelName and NodeName label usage records for billing/telemetry.
	ModelName string
	NodeName  string

	HistoryBudget int
	MaxToolRounds int
}

type TurnRequest struct {
	ThreadID        string
	TenantID        string
	UserID          string
	UUID            string
	Text            string
	SuccessCriteria string
}

type TurnInput struct {
	ThreadID        string
	TenantID        string
	UserID          string
	UUID            string
	Text            string
	SuccessCriteria string
	Sink            streamx.Sink
}

type TurnOutput struct {
	ThreadID        string
	Reply           string
	TurnUsage       contractx.TokenUsage
	CumulativeUsage contractx.TokenUsage
}

// turnState is the graph-internal working state for one turn.
type turnState struct {
	in  TurnInput
	now time.Time

	st             *statex.TurnState
	turnStart      int
	classification contractx.ClassificationResult
	route          Route

	reply        string
	turnUsage    contractx.TokenUsage
	lastStreamed string
}

func (tc *turnState) addUsage(u contractx.TokenUsage) {
	tc.turnUsage.Add(u)
}

type Engine struct {
	store      statex.Store
	registry   contractx.Registry
	tools      contractx.ToolGateway
	fast       *fastpathx.Handlers
	usageSink  contractx.UsageSink
	controller *Controller

	runner compose.Runnable[TurnInput, TurnOutput]

	cfg Config
	now func() time.Time
}

func New(
	store statex.Store,
	registry contractx.Registry,
	tools contractx.ToolGateway,
	fast *fastpathx.Handlers,
	usageSink contractx.UsageSink,
	cfg Config,
) (*Engine, error) {
	if store == nil {
		return nil, errors.New("state store is required")
	}
	if registry == nil {
		return nil, errors.New("model registry is required")
	}
	if tools == nil {
		return nil, errors.New("tool gateway is required")
	}
	if fast == nil {
		return nil, errors.New("fast-path handlers are required")
	}
	if usageSink == nil {
		usageSink = noopUsageSink{}
	}
	if cfg.HistoryBudget <= 0 {
		cfg.HistoryBudget = defaultHistoryBudget
	}
	if cfg.MaxToolRounds <= 0 {
		cfg.MaxToolRounds = defaultMaxToolRounds
	}

	e := &Engine{
		store:      store,
		registry:   registry,
		tools:      tools,
		fast:       fast,
		usageSink:  usageSink,
		controller: NewController(),
		cfg:        cfg,
		now:        time.Now,
	}

	runner, err := e.compileTurnGraph(context.Background())
	if err != nil {
		return nil, err
	}
	e.runner = runner

	return e, nil
}

// HandleTurn runs one turn to termination, emitting stream events along
// the way. Within a thread turns are strictly sequential; starting a new
// turn first cancels and drains any previous one.
func (e *Engine) HandleTurn(ctx context.Context, req TurnRequest, sink streamx.Sink) (TurnOutput, error) {
	if sink == nil {
		sink = noopSink{}
	}

	threadID := strings.TrimSpace(req.ThreadID)
	if threadID == "" {
		threadID = uuid.NewString()
	}

	taskCtx, task, err := e.controller.Begin(ctx, threadID)
	if err != nil {
		return TurnOutput{}, err
	}
	defer e.controller.Finish(task)

	send(sink, streamx.Event{Type: streamx.EventStart, UUID: req.UUID})

	out, err := e.runner.Invoke(taskCtx, TurnInput{
		ThreadID:        threadID,
		TenantID:        req.TenantID,
		UserID:          req.UserID,
		UUID:            req.UUID,
		Text:            req.Text,
		SuccessCriteria: req.SuccessCriteria,
		Sink:            sink,
	})
	if err != nil {
		if taskCtx.Err() != nil || errors.Is(err, context.Canceled) {
			send(sink, streamx.Event{Type: streamx.EventCancelled, UUID: req.UUID})
			return TurnOutput{}, contractx.ErrTurnCancelled
		}
		log.Error().Err(err).Str("thread_id", threadID).Msg("turn failed")
		send(sink, streamx.Event{Type: streamx.EventError, UUID: req.UUID, Error: err.Error()})
		return TurnOutput{}, err
	}

	send(sink, streamx.Event{
		Type:    streamx.EventContent,
		UUID:    req.UUID,
		Content: out.Reply,
		IsFinal: true,
	})
	send(sink, streamx.Event{
		Type:            streamx.EventComplete,
		UUID:            req.UUID,
		FinalTokenUsage: &out.CumulativeUsage,
	})
	return out, nil
}

// Cancel requests cooperative cancellation of the thread's active turn.
// Cancelling a thread with no running turn is a no-op.
func (e *Engine) Cancel(threadID string) bool {
	return e.controller.Cancel(threadID)
}

/* ------------------------------ graph nodes ------------------------------ */

func (e *Engine) validateTurn(in TurnInput) (*turnState, error) {
	if strings.TrimSpace(in.ThreadID) == "" {
		return nil, statex.ErrInvalidThread
	}
	text := strings.TrimSpace(in.Text)
	if text == "" {
		return nil, fmt.Errorf("%w: message is empty", contractx.ErrValidation)
	}
	in.Text = text
	return &turnState{in: in, now: e.now().UTC()}, nil
}

func (e *Engine) loadState(ctx context.Context, tc *turnState) (*turnState, error) {
	st, err := e.store.Load(ctx, tc.in.ThreadID)
	switch {
	case err == nil:
	case errors.Is(err, statex.ErrStateNotFound):
		st = statex.NewTurnState(tc.in.ThreadID, tc.in.TenantID, tc.in.UserID, tc.now)
	default:
		// Degraded mode: history may not be durable, but persistence
		// trouble never blocks response delivery.
		log.Error().Err(err).Str("thread_id", tc.in.ThreadID).Msg("load state failed, starting fresh")
		st = statex.NewTurnState(tc.in.ThreadID, tc.in.TenantID, tc.in.UserID, tc.now)
	}

	// Messages from this index on belong to the current turn; the
	// evaluator's retry accounting must not see earlier turns.
	tc.turnStart = len(st.Messages)
	st.BeginTurn(tc.in.Text, tc.in.SuccessCriteria, tc.now)
	tc.st = st
	return tc, nil
}

// priorAnswerCount is the number of assistant messages this turn produced
// before the final answer currently awaiting judgment.
func (tc *turnState) priorAnswerCount() int {
	n := 0
	for _, m := range tc.st.Messages[tc.turnStart:] {
		if m.Role == contractx.RoleAssistant {
			n++
		}
	}
	if n > 0 {
		n--
	}
	return n
}

func (e *Engine) classify(ctx context.Context, tc *turnState) (*turnState, error) {
	result, usage, err := e.registry.Classifier().Classify(ctx, tc.in.Text)
	tc.addUsage(usage)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		// Classifier failure fails safe into the full flow.
		log.Warn().Err(err).Msg("classification failed, routing to full flow")
		tc.route = RouteTriage
		return tc, nil
	}

	tc.classification = result
	tc.route = RouteFromClassification(result)
	log.Debug().
		Str("intent", string(result.FastPathIntent)).
		Str("entity_type", result.LookupEntityType).
		Str("route", string(tc.route)).
		Msg("message classified")
	return tc, nil
}

func (e *Engine) runFastLookup(ctx context.Context, tc *turnState) (*turnState, error) {
	reply := e.fast.Lookup(ctx, tc.classification.LookupEntityType, tc.classification.LookupQuery)
	return tc.finishFast(reply), nil
}

func (e *Engine) runFastCount(ctx context.Context, tc *turnState) (*turnState, error) {
	reply := e.fast.Count(ctx, tc.classification.LookupEntityType)
	return tc.finishFast(reply), nil
}

func (e *Engine) runFastList(ctx context.Context, tc *turnState) (*turnState, error) {
	reply := e.fast.List(ctx, tc.classification.LookupEntityType)
	return tc.finishFast(reply), nil
}

func (tc *turnState) finishFast(reply string) *turnState {
	tc.reply = reply
	tc.st.Append(contractx.Message{Role: contractx.RoleAssistant, Content: reply})
	tc.st.SuccessCriteriaMet = true
	return tc
}

// runFullFlow is the triage -> worker <-> tools -> evaluator pipeline. The
// worker/tool loop and the evaluator retry cycle both run here; the
// evaluator's forced approval bounds the retry cycle, and MaxToolRounds
// bounds the tool loop.
func (e *Engine) runFullFlow(ctx context.Context, tc *turnState) (*turnState, error) {
	workerType, usage, err := e.registry.Triage().SelectWorker(ctx, tc.in.Text, tc.st.Messages)
	tc.addUsage(usage)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		workerType = contractx.WorkerTypeGeneral
	}
	tc.st.RouteToAgent = string(workerType)
	log.Debug().Str("worker", string(workerType)).Str("thread_id", tc.in.ThreadID).Msg("worker selected")

	for {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		final, err := e.runWorkerLoop(ctx, tc, workerType)
		if err != nil {
			return nil, err
		}

		priorFeedback := tc.st.FeedbackOnWork
		result, evalUsage, err := e.registry.Evaluator().Evaluate(ctx, contractx.EvaluationRequest{
			History:          tc.st.Messages,
			FinalAnswer:      final,
			SuccessCriteria:  tc.st.SuccessCriteria,
			PriorFeedback:    priorFeedback,
			PriorAnswerCount: tc.priorAnswerCount(),
		})
		tc.addUsage(evalUsage)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			// The evaluator implementation already defaults to approval;
			// a hard error here still must not block the turn.
			result = contractx.EvaluationResult{SuccessCriteriaMet: true, Feedback: "Evaluation unavailable."}
		}

		tc.st.SuccessCriteriaMet = result.SuccessCriteriaMet
		tc.st.UserInputNeeded = result.UserInputNeeded
		if feedback := strings.TrimSpace(result.Feedback); feedback != "" {
			tc.st.FeedbackOnWork = feedback
		} else if !result.SuccessCriteriaMet {
			tc.st.FeedbackOnWork = "The answer did not meet the success criteria."
		}

		next, end := RouteFromEvaluation(result, tc.st)
		if end {
			tc.reply = final
			return tc, nil
		}
		workerType = next
		log.Debug().Str("worker", string(workerType)).Msg("evaluator rejected answer, re-entering worker")
	}
}

// runWorkerLoop drives one worker invocation: generate, execute requested
// tools, feed results back, repeat until the worker answers without tool
// calls or the round ceiling is hit.
func (e *Engine) runWorkerLoop(ctx context.Context, tc *turnState, workerType contractx.WorkerType) (string, error) {
	worker := e.registry.Worker(workerType)

	for round := 0; round < e.cfg.MaxToolRounds; round++ {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}

		step, err := worker.Generate(ctx, contractx.WorkerRequest{
			History:         statex.Trim(tc.st.Messages, e.cfg.HistoryBudget),
			SuccessCriteria: tc.st.SuccessCriteria,
			FeedbackOnWork:  tc.st.FeedbackOnWork,
			ResumeContext:   tc.st.ResumeContext,
		})
		if err != nil {
			// Worker inference failure is fatal to the turn.
			return "", err
		}
		tc.addUsage(step.Usage)

		tc.st.Append(contractx.Message{Role: contractx.RoleAssistant, Content: step.Content})
		tc.streamContent(step.Content)

		if len(step.ToolRequests) == 0 {
			return step.Content, nil
		}

		results := e.tools.Execute(ctx, workerType, step.ToolRequests)
		for _, res := range results {
			content := res.Result
			if res.Error != "" {
				content = "error: " + res.Error
			}
			tc.st.Append(contractx.Message{
				Role:     contractx.RoleTool,
				Content:  content,
				ToolName: res.Tool,
			})
		}
	}

	// Round ceiling hit: surface what we have instead of looping forever.
	final := tc.st.LastAssistantContent()
	if strings.TrimSpace(final) == "" {
		final = "I wasn't able to finish the tool calls needed to answer this. Could you narrow the request?"
		tc.st.Append(contractx.Message{Role: contractx.RoleAssistant, Content: final})
		tc.streamContent(final)
	}
	log.Warn().
		Str("worker", string(workerType)).
		Int("max_rounds", e.cfg.MaxToolRounds).
		Msg("worker hit tool round ceiling")
	return final, nil
}

func (e *Engine) finishTurn(ctx context.Context, tc *turnState) (TurnOutput, error) {
	tc.st.CumulativeUsage.Add(tc.turnUsage)
	tc.st.Touch(e.now())

	if err := e.store.Save(ctx, tc.st); err != nil {
		// Degraded mode: the response is still delivered.
		log.Error().Err(err).Str("thread_id", tc.in.ThreadID).Msg("save state failed")
	}

	if err := e.usageSink.Publish(ctx, contractx.UsageRecord{
		TenantID:  tc.st.TenantID,
		UserID:    tc.st.UserID,
		ModelName: e.cfg.ModelName,
		NodeName:  e.cfg.NodeName,
		Input:     tc.turnUsage.Input,
		Output:    tc.turnUsage.Output,
		Total:     tc.turnUsage.Total,
	}); err != nil {
		log.Warn().Err(err).Msg("usage publish failed")
	}

	return TurnOutput{
		ThreadID:        tc.in.ThreadID,
		Reply:           tc.reply,
		TurnUsage:       tc.turnUsage,
		CumulativeUsage: tc.st.CumulativeUsage,
	}, nil
}

/* ------------------------------- streaming ------------------------------- */

// streamContent forwards distinct, non-empty, changed assistant content.
func (tc *turnState) streamContent(content string) {
	if content == "" || content == tc.lastStreamed {
		return
	}
	tc.lastStreamed = content
	send(tc.in.Sink, streamx.Event{
		Type:    streamx.EventContent,
		UUID:    tc.in.UUID,
		Content: content,
	})
}

func send(sink streamx.Sink, event streamx.Event) {
	if sink == nil {
		return
	}
	if err := sink.Send(event); err != nil {
		log.Warn().Err(err).Str("event", string(event.Type)).Msg("stream send failed")
	}
}

type noopSink struct{}

func (noopSink) Send(streamx.Event) error { return nil }

type noopUsageSink struct{}

func (noopUsageSink) Publish(context.Context, contractx.UsageRecord) error { return nil }
