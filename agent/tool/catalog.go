package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog/log"

	contractx "github.com/hubenschmidt/pina-colada-sub000/agent/contract"
)

const (
	ToolCRMLookup  = "crm.lookup_entity"
	ToolCRMSearch  = "crm.search_entities"
	ToolJobsSearch = "jobs.search"
	ToolDocsFetch  = "docs.fetch"
	ToolEmailSend  = "email.send"
)

const defaultSearchLimit = 10

// InfosForWorker returns the curated tool subset a worker is bound to.
func InfosForWorker(worker contractx.WorkerType) []*schema.ToolInfo {
	switch worker {
	case contractx.WorkerTypeGeneral:
		return []*schema.ToolInfo{docsFetchInfo(), mathEvaluateInfo()}
	case contractx.WorkerTypeJobSearch:
		return []*schema.ToolInfo{jobsSearchInfo(), docsFetchInfo()}
	case contractx.WorkerTypeContent:
		return []*schema.ToolInfo{docsFetchInfo(), emailSendInfo(), mathEvaluateInfo()}
	case contractx.WorkerTypeCRM:
		return []*schema.ToolInfo{crmLookupInfo(), crmSearchInfo(), emailSendInfo()}
	default:
		return nil
	}
}

// Gateway executes requested tool calls against the domain collaborators.
// Every failure is captured as a result so the worker can recover.
type Gateway struct {
	directory contractx.Directory
	jobs      contractx.JobBoard
	docs      contractx.DocumentVault
	email     contractx.EmailSender
}

func NewGateway(
	directory contractx.Directory,
	jobs contractx.JobBoard,
	docs contractx.DocumentVault,
	email contractx.EmailSender,
) *Gateway {
	return &Gateway{
		directory: directory,
		jobs:      jobs,
		docs:      docs,
		email:     email,
	}
}

func (g *Gateway) Execute(ctx context.Context, worker contractx.WorkerType, reqs []contractx.ToolRequest) []contractx.ToolResult {
	allowed := make(map[string]struct{})
	for _, info := range InfosForWorker(worker) {
		allowed[info.Name] = struct{}{}
	}

	results := make([]contractx.ToolResult, 0, len(reqs))
	for _, req := range reqs {
		if _, ok := allowed[req.Tool]; !ok {
			results = append(results, contractx.ToolResult{
				ID:    req.ID,
				Tool:  req.Tool,
				Error: fmt.Sprintf("tool=%s is unavailable for worker=%s", req.Tool, worker),
			})
			continue
		}
		res := g.invoke(ctx, req)
		if res.Error != "" {
			log.Debug().Str("tool", req.Tool).Str("error", res.Error).Msg("tool call failed")
		}
		results = append(results, res)
	}
	return results
}

func (g *Gateway) invoke(ctx context.Context, req contractx.ToolRequest) contractx.ToolResult {
	switch req.Tool {
	case ToolMathEvaluate:
		return executeMathTool(req)
	case ToolCRMLookup:
		return g.executeCRMLookup(ctx, req)
	case ToolCRMSearch:
		return g.executeCRMSearch(ctx, req)
	case ToolJobsSearch:
		return g.executeJobsSearch(ctx, req)
	case ToolDocsFetch:
		return g.executeDocsFetch(ctx, req)
	case ToolEmailSend:
		return g.executeEmailSend(ctx, req)
	default:
		return contractx.ToolResult{
			ID:    req.ID,
			Tool:  req.Tool,
			Error: fmt.Sprintf("tool=%s is not registered", req.Tool),
		}
	}
}

func (g *Gateway) executeCRMLookup(ctx context.Context, req contractx.ToolRequest) contractx.ToolResult {
	entityType := stringArg(req.Args, "entity_type")
	query := stringArg(req.Args, "query")
	if entityType == "" || query == "" {
		return errResult(req, "entity_type and query are required")
	}
	if g.directory == nil {
		return errResult(req, "directory is not configured")
	}

	entity, err := g.directory.Lookup(ctx, entityType, query)
	if err != nil {
		return errResult(req, fmt.Sprintf("lookup failed: %v", err))
	}
	if entity == nil {
		return okResult(req, fmt.Sprintf("no %s matched %q", entityType, query))
	}
	return jsonResult(req, entity)
}

func (g *Gateway) executeCRMSearch(ctx context.Context, req contractx.ToolRequest) contractx.ToolResult {
	entityType := stringArg(req.Args, "entity_type")
	if entityType == "" {
		return errResult(req, "entity_type is required")
	}
	if g.directory == nil {
		return errResult(req, "directory is not configured")
	}

	entities, err := g.directory.List(ctx, entityType, defaultSearchLimit)
	if err != nil {
		return errResult(req, fmt.Sprintf("search failed: %v", err))
	}
	return jsonResult(req, entities)
}

func (g *Gateway) executeJobsSearch(ctx context.Context, req contractx.ToolRequest) contractx.ToolResult {
	query := stringArg(req.Args, "query")
	if query == "" {
		return errResult(req, "query is required")
	}
	if g.jobs == nil {
		return errResult(req, "job board is not configured")
	}

	postings, err := g.jobs.SearchJobs(ctx, query, defaultSearchLimit)
	if err != nil {
		return errResult(req, fmt.Sprintf("job search failed: %v", err))
	}
	return jsonResult(req, postings)
}

func (g *Gateway) executeDocsFetch(ctx context.Context, req contractx.ToolRequest) contractx.ToolResult {
	name := stringArg(req.Args, "name")
	if name == "" {
		return errResult(req, "name is required")
	}
	if g.docs == nil {
		return errResult(req, "document vault is not configured")
	}

	text, err := g.docs.FetchDocument(ctx, name)
	if err != nil {
		return errResult(req, fmt.Sprintf("document fetch failed: %v", err))
	}
	return okResult(req, text)
}

func (g *Gateway) executeEmailSend(ctx context.Context, req contractx.ToolRequest) contractx.ToolResult {
	to := stringArg(req.Args, "to")
	subject := stringArg(req.Args, "subject")
	body := stringArg(req.Args, "body")
	if to == "" || subject == "" {
		return errResult(req, "to and subject are required")
	}
	if g.email == nil {
		return errResult(req, "email sender is not configured")
	}

	if err := g.email.SendEmail(ctx, to, subject, body); err != nil {
		return errResult(req, fmt.Sprintf("email send failed: %v", err))
	}
	return okResult(req, fmt.Sprintf("email sent to %s", to))
}

func stringArg(args map[string]any, key string) string {
	if args == nil {
		return ""
	}
	v, ok := args[key].(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(v)
}

func okResult(req contractx.ToolRequest, text string) contractx.ToolResult {
	return contractx.ToolResult{ID: req.ID, Tool: req.Tool, Result: text}
}

func errResult(req contractx.ToolRequest, msg string) contractx.ToolResult {
	return contractx.ToolResult{ID: req.ID, Tool: req.Tool, Error: msg}
}

func jsonResult(req contractx.ToolRequest, v any) contractx.ToolResult {
	raw, err := json.Marshal(v)
	if err != nil {
		return errResult(req, fmt.Sprintf("encode result: %v", err))
	}
	return okResult(req, string(raw))
}

func crmLookupInfo() *schema.ToolInfo {
	return &schema.ToolInfo{
		Name: ToolCRMLookup,
		Desc: "Look up a single CRM entity (contact, company, job) by name.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"entity_type": {Type: schema.String, Desc: "Entity type to look up", Required: true},
			"query":       {Type: schema.String, Desc: "Name or fragment to match", Required: true},
		}),
	}
}

func crmSearchInfo() *schema.ToolInfo {
	return &schema.ToolInfo{
		Name: ToolCRMSearch,
		Desc: "List CRM entities of a given type.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"entity_type": {Type: schema.String, Desc: "Entity type to list", Required: true},
		}),
	}
}

func jobsSearchInfo() *schema.ToolInfo {
	return &schema.ToolInfo{
		Name: ToolJobsSearch,
		Desc: "Search job postings matching a free-text query.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"query": {Type: schema.String, Desc: "Job search query", Required: true},
		}),
	}
}

func docsFetchInfo() *schema.ToolInfo {
	return &schema.ToolInfo{
		Name: ToolDocsFetch,
		Desc: "Fetch the text of a stored document (resume, cover letter, notes) by name.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"name": {Type: schema.String, Desc: "Document name", Required: true},
		}),
	}
}

func emailSendInfo() *schema.ToolInfo {
	return &schema.ToolInfo{
		Name: ToolEmailSend,
		Desc: "Send an email on the user's behalf.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"to":      {Type: schema.String, Desc: "Recipient address", Required: true},
			"subject": {Type: schema.String, Desc: "Subject line", Required: true},
			"body":    {Type: schema.String, Desc: "Email body", Required: false},
		}),
	}
}

func mathEvaluateInfo() *schema.ToolInfo {
	return &schema.ToolInfo{
		Name: ToolMathEvaluate,
		Desc: "Evaluate a mathematical expression.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"expression": {Type: schema.String, Desc: "Expression to evaluate", Required: true},
		}),
	}
}
