// Package fastpath answers trivially structured queries with a single data
// call, bypassing the triage/worker/evaluator pipeline entirely. Data-layer
// failures become user-visible text; the turn still completes normally.
package fastpath

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	contractx "github.com/hubenschmidt/pina-colada-sub000/agent/contract"
)

const listLimit = 10

type Handlers struct {
	directory contractx.Directory
}

func New(directory contractx.Directory) *Handlers {
	return &Handlers{directory: directory}
}

// Lookup answers a single-entity question.
func (h *Handlers) Lookup(ctx context.Context, entityType, query string) string {
	if h.directory == nil {
		return dataUnavailable(entityType)
	}

	entity, err := h.directory.Lookup(ctx, entityType, query)
	if err != nil {
		log.Warn().Err(err).Str("entity_type", entityType).Msg("fast-path lookup failed")
		return dataUnavailable(entityType)
	}
	if entity == nil {
		return fmt.Sprintf("I couldn't find a %s matching %q.", entityType, query)
	}

	if entity.Summary != "" {
		return fmt.Sprintf("%s: %s", entity.Name, entity.Summary)
	}
	return fmt.Sprintf("Found %s: %s.", entityType, entity.Name)
}

// Count answers a how-many question.
func (h *Handlers) Count(ctx context.Context, entityType string) string {
	if h.directory == nil {
		return dataUnavailable(entityType)
	}

	n, err := h.directory.Count(ctx, entityType)
	if err != nil {
		log.Warn().Err(err).Str("entity_type", entityType).Msg("fast-path count failed")
		return dataUnavailable(entityType)
	}

	noun := pluralize(entityType, n)
	return fmt.Sprintf("You have %d %s.", n, noun)
}

// List answers a show-me question.
func (h *Handlers) List(ctx context.Context, entityType string) string {
	if h.directory == nil {
		return dataUnavailable(entityType)
	}

	entities, err := h.directory.List(ctx, entityType, listLimit)
	if err != nil {
		log.Warn().Err(err).Str("entity_type", entityType).Msg("fast-path list failed")
		return dataUnavailable(entityType)
	}
	if len(entities) == 0 {
		return fmt.Sprintf("No %s found.", pluralize(entityType, 0))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Here are your %s:\n", pluralize(entityType, len(entities)))
	for _, e := range entities {
		if e.Summary != "" {
			fmt.Fprintf(&b, "- %s (%s)\n", e.Name, e.Summary)
		} else {
			fmt.Fprintf(&b, "- %s\n", e.Name)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func dataUnavailable(entityType string) string {
	return fmt.Sprintf("Sorry, %s data is unavailable right now.", entityType)
}

func pluralize(entityType string, n int) string {
	if n == 1 {
		return entityType
	}
	if strings.HasSuffix(entityType, "y") {
		return strings.TrimSuffix(entityType, "y") + "ies"
	}
	return entityType + "s"
}
