package engine

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/compose"
)

func (e *Engine) compileTurnGraph(ctx context.Context) (compose.Runnable[TurnInput, TurnOutput], error) {
	graph := compose.NewGraph[TurnInput, TurnOutput]()

	if err := graph.AddLambdaNode("validate_request",
		compose.InvokableLambda(func(ctx context.Context, in TurnInput) (*turnState, error) {
			return e.validateTurn(in)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node validate_request: %w", err)
	}

	if err := graph.AddLambdaNode("load_state",
		compose.InvokableLambda(func(ctx context.Context, tc *turnState) (*turnState, error) {
			return e.loadState(ctx, tc)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node load_state: %w", err)
	}

	if err := graph.AddLambdaNode("classify",
		compose.InvokableLambda(func(ctx context.Context, tc *turnState) (*turnState, error) {
			return e.classify(ctx, tc)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node classify: %w", err)
	}

	if err := graph.AddLambdaNode("fast_lookup",
		compose.InvokableLambda(func(ctx context.Context, tc *turnState) (*turnState, error) {
			return e.runFastLookup(ctx, tc)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node fast_lookup: %w", err)
	}

	if err := graph.AddLambdaNode("fast_count",
		compose.InvokableLambda(func(ctx context.Context, tc *turnState) (*turnState, error) {
			return e.runFastCount(ctx, tc)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node fast_count: %w", err)
	}

	if err := graph.AddLambdaNode("fast_list",
		compose.InvokableLambda(func(ctx context.Context, tc *turnState) (*turnState, error) {
			return e.runFastList(ctx, tc)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node fast_list: %w", err)
	}

	if err := graph.AddLambdaNode("full_flow",
		compose.InvokableLambda(func(ctx context.Context, tc *turnState) (*turnState, error) {
			return e.runFullFlow(ctx, tc)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node full_flow: %w", err)
	}

	if err := graph.AddLambdaNode("finish_turn",
		compose.InvokableLambda(func(ctx context.Context, tc *turnState) (TurnOutput, error) {
			return e.finishTurn(ctx, tc)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node finish_turn: %w", err)
	}

	branch := compose.NewGraphBranch(
		func(ctx context.Context, tc *turnState) (string, error) {
			switch tc.route {
			case RouteFastLookup:
				return "fast_lookup", nil
			case RouteFastCount:
				return "fast_count", nil
			case RouteFastList:
				return "fast_list", nil
			default:
				return "full_flow", nil
			}
		},
		map[string]bool{
			"fast_lookup": true,
			"fast_count":  true,
			"fast_list":   true,
			"full_flow":   true,
		},
	)

	edges := [][2]string{
		{compose.START, "validate_request"},
		{"validate_request", "load_state"},
		{"load_state", "classify"},
		{"fast_lookup", "finish_turn"},
		{"fast_count", "finish_turn"},
		{"fast_list", "finish_turn"},
		{"full_flow", "finish_turn"},
		{"finish_turn", compose.END},
	}

	for _, edge := range edges {
		if err := graph.AddEdge(edge[0], edge[1]); err != nil {
			return nil, fmt.Errorf("add edge %s->%s: %w", edge[0], edge[1], err)
		}
	}

	if err := graph.AddBranch("classify", branch); err != nil {
		return nil, fmt.Errorf("add classify branch: %w", err)
	}

	runner, err := graph.Compile(ctx, compose.WithGraphName("engine.handle_turn"))
	if err != nil {
		return nil, fmt.Errorf("compile turn graph: %w", err)
	}
	return runner, nil
}
