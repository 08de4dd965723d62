package workers

import (
	"context"
	"fmt"

	classifierx "github.com/hubenschmidt/pina-colada-sub000/agent/classifier"
	contractx "github.com/hubenschmidt/pina-colada-sub000/agent/contract"
	llmx "github.com/hubenschmidt/pina-colada-sub000/agent/llm"
	promptx "github.com/hubenschmidt/pina-colada-sub000/agent/prompt"
	openrouterx "github.com/hubenschmidt/pina-colada-sub000/pkg/openrouter"
)

type registryImpl struct {
	classifier contractx.Classifier
	triage     contractx.Triage
	evaluator  contractx.Evaluator
	workers    map[contractx.WorkerType]contractx.Worker
}

func (r *registryImpl) Classifier() contractx.Classifier {
	return r.classifier
}

func (r *registryImpl) Triage() contractx.Triage {
	return r.triage
}

func (r *registryImpl) Evaluator() contractx.Evaluator {
	return r.evaluator
}

// Worker falls back to the general worker for unknown ids so the engine
// never dereferences a nil worker mid-turn.
func (r *registryImpl) Worker(t contractx.WorkerType) contractx.Worker {
	if w, ok := r.workers[t]; ok {
		return w
	}
	return r.workers[contractx.WorkerTypeGeneral]
}

func NewRegistry(ctx context.Context, cfg llmx.Config) (contractx.Registry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	prompts := promptx.LoadPromptSet()

	fastCfg := cfg.OpenRouterForRole(llmx.RoleClassifier)
	classifierClient := openrouterx.NewClient(fastCfg)
	if classifierClient == nil {
		return nil, fmt.Errorf("%w: create classifier client", contractx.ErrModelInvoke)
	}
	classifier, err := classifierx.New(classifierClient, fastCfg.Model, prompts.Classifier)
	if err != nil {
		return nil, err
	}

	triageModelCfg := cfg.OpenRouterForRole(llmx.RoleTriage)
	triageModel, err := triageModelCfg.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: create triage model: %v", contractx.ErrModelInvoke, err)
	}
	triage, err := newTriage(ctx, triageModel, prompts.Triage)
	if err != nil {
		return nil, err
	}

	evaluatorModelCfg := cfg.OpenRouterForRole(llmx.RoleEvaluator)
	evaluatorModel, err := evaluatorModelCfg.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: create evaluator model: %v", contractx.ErrModelInvoke, err)
	}
	evaluator, err := newEvaluator(ctx, evaluatorModel, prompts.Evaluator)
	if err != nil {
		return nil, err
	}

	workerMap := make(map[contractx.WorkerType]contractx.Worker, len(contractx.AllWorkerTypes))
	for _, workerType := range contractx.AllWorkerTypes {
		modelCfg := cfg.OpenRouterForWorker(workerType)
		chatModel, err := modelCfg.New(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: create model for worker=%s: %v", contractx.ErrModelInvoke, workerType, err)
		}
		worker, err := newWorker(ctx, workerType, chatModel, prompts.Workers[workerType])
		if err != nil {
			return nil, err
		}
		workerMap[workerType] = worker
	}

	return &registryImpl{
		classifier: classifier,
		triage:     triage,
		evaluator:  evaluator,
		workers:    workerMap,
	}, nil
}
