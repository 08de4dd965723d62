package llm

import (
	"fmt"
	"strings"
	"time"

	contractx "github.com/hubenschmidt/pina-colada-sub000/agent/contract"
	openrouterx "github.com/hubenschmidt/pina-colada-sub000/pkg/openrouter"
)

// Role names the inference node a model is built for. The classifier,
// triage, and evaluator ride the fast model; workers get their own.
type Role string

const (
	RoleClassifier Role = "classifier"
	RoleTriage     Role = "triage"
	RoleEvaluator  Role = "evaluator"
	RoleWorker     Role = "worker"
)

type Config struct {
	BaseURL            string        `envconfig:"BASE_URL" split_words:"true" default:"https://openrouter.ai/api/v1"`
	APIKey             string        `envconfig:"API_KEY" split_words:"true" required:"true"`
	Model              string        `envconfig:"MODEL" split_words:"true" required:"true"`
	FastModel          string        `envconfig:"FAST_MODEL" split_words:"true"`
	MaxCompletionToken int           `envconfig:"MAX_COMPLETION_TOKEN" split_words:"true" default:"2000"`
	Temperature        float32       `envconfig:"TEMPERATURE" split_words:"true" default:"0.5"`
	Timeout            time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"60s"`
	SiteURL            string        `envconfig:"SITE_URL" split_words:"true"`
	SiteName           string        `envconfig:"SITE_NAME" split_words:"true"`

	GeneralModel   string `envconfig:"GENERAL_MODEL" split_words:"true"`
	JobSearchModel string `envconfig:"JOB_SEARCH_MODEL" split_words:"true"`
	ContentModel   string `envconfig:"CONTENT_MODEL" split_words:"true"`
	CRMModel       string `envconfig:"CRM_MODEL" split_words:"true"`

	FastTemperature   float32 `envconfig:"FAST_TEMPERATURE" split_words:"true" default:"0"`
	WorkerTemperature float32 `envconfig:"WORKER_TEMPERATURE" split_words:"true" default:"-1"`
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return fmt.Errorf("%w: openrouter api key is required", contractx.ErrValidation)
	}
	if strings.TrimSpace(c.Model) == "" {
		return fmt.Errorf("%w: default model is required", contractx.ErrValidation)
	}
	return nil
}

// fastModel falls back to the default model when no dedicated fast model
// is configured.
func (c Config) fastModel() string {
	if v := strings.TrimSpace(c.FastModel); v != "" {
		return v
	}
	return strings.TrimSpace(c.Model)
}

// OpenRouterForRole yields the client config for a non-worker inference
// node.
func (c Config) OpenRouterForRole(role Role) openrouterx.Config {
	modelName := strings.TrimSpace(c.Model)
	temp := c.Temperature

	switch role {
	case RoleClassifier, RoleTriage, RoleEvaluator:
		modelName = c.fastModel()
		if c.FastTemperature >= 0 {
			temp = c.FastTemperature
		}
	}

	return c.build(modelName, temp)
}

// OpenRouterForWorker yields the client config for a worker, honoring the
// per-worker model override.
func (c Config) OpenRouterForWorker(worker contractx.WorkerType) openrouterx.Config {
	modelName := strings.TrimSpace(c.Model)
	temp := c.Temperature
	if c.WorkerTemperature >= 0 {
		temp = c.WorkerTemperature
	}

	switch worker {
	case contractx.WorkerTypeGeneral:
		if v := strings.TrimSpace(c.GeneralModel); v != "" {
			modelName = v
		}
	case contractx.WorkerTypeJobSearch:
		if v := strings.TrimSpace(c.JobSearchModel); v != "" {
			modelName = v
		}
	case contractx.WorkerTypeContent:
		if v := strings.TrimSpace(c.ContentModel); v != "" {
			modelName = v
		}
	case contractx.WorkerTypeCRM:
		if v := strings.TrimSpace(c.CRMModel); v != "" {
			modelName = v
		}
	}

	return c.build(modelName, temp)
}

func (c Config) build(modelName string, temp float32) openrouterx.Config {
	maxCompletionToken := c.MaxCompletionToken
	return openrouterx.Config{
		BaseURL:            strings.TrimSpace(c.BaseURL),
		APIKey:             strings.TrimSpace(c.APIKey),
		Model:              modelName,
		MaxCompletionToken: &maxCompletionToken,
		Temperature:        temp,
		Timeout:            c.Timeout,
		SiteURL:            strings.TrimSpace(c.SiteURL),
		SiteName:           strings.TrimSpace(c.SiteName),
	}
}
