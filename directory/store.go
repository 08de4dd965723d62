package directory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	contractx "github.com/hubenschmidt/pina-colada-sub000/agent/contract"
)

type Config struct {
	DSN          string        `envconfig:"DSN" split_words:"true" required:"true"`
	QueryTimeout time.Duration `envconfig:"QUERY_TIMEOUT" split_words:"true" default:"5s"`
}

// Entity type names accepted by Lookup, Count, and List.
const (
	EntityContact = "contact"
	EntityCompany = "company"
	EntityJob     = "job"
)

var ErrUnknownEntityType = errors.New("unknown entity type")

type Store struct {
	db           *bun.DB
	queryTimeout time.Duration
}

var (
	_ contractx.Directory     = (*Store)(nil)
	_ contractx.JobBoard      = (*Store)(nil)
	_ contractx.DocumentVault = (*Store)(nil)
)

func New(cfg Config) (*Store, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("directory: dsn is required")
	}

	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())

	timeout := cfg.QueryTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Store{db: db, queryTimeout: timeout}, nil
}

// NewWithDB wraps an existing connection; used by tests.
func NewWithDB(db *bun.DB, queryTimeout time.Duration) *Store {
	if queryTimeout <= 0 {
		queryTimeout = 5 * time.Second
	}
	return &Store{db: db, queryTimeout: queryTimeout}
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Lookup(ctx context.Context, entityType, query string) (*contractx.Entity, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	pattern := "%" + strings.TrimSpace(query) + "%"

	switch entityType {
	case EntityContact:
		var c Contact
		err := s.db.NewSelect().Model(&c).
			Where("c.name ILIKE ?", pattern).
			Order("c.name ASC").
			Limit(1).
			Scan(ctx)
		if err != nil {
			return nil, lookupErr(err, entityType, query)
		}
		return &contractx.Entity{
			ID:      c.ID,
			Type:    EntityContact,
			Name:    c.Name,
			Summary: contactSummary(c),
		}, nil
	case EntityCompany:
		var co Company
		err := s.db.NewSelect().Model(&co).
			Where("co.name ILIKE ?", pattern).
			Order("co.name ASC").
			Limit(1).
			Scan(ctx)
		if err != nil {
			return nil, lookupErr(err, entityType, query)
		}
		return &contractx.Entity{
			ID:      co.ID,
			Type:    EntityCompany,
			Name:    co.Name,
			Summary: companySummary(co),
		}, nil
	case EntityJob:
		var p Posting
		err := s.db.NewSelect().Model(&p).
			Where("jp.title ILIKE ? OR jp.company ILIKE ?", pattern, pattern).
			Order("jp.created_at DESC").
			Limit(1).
			Scan(ctx)
		if err != nil {
			return nil, lookupErr(err, entityType, query)
		}
		return &contractx.Entity{
			ID:      p.ID,
			Type:    EntityJob,
			Name:    p.Title,
			Summary: postingSummary(p),
		}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEntityType, entityType)
	}
}

func (s *Store) Count(ctx context.Context, entityType string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	switch entityType {
	case EntityContact:
		return s.db.NewSelect().Model((*Contact)(nil)).Count(ctx)
	case EntityCompany:
		return s.db.NewSelect().Model((*Company)(nil)).Count(ctx)
	case EntityJob:
		return s.db.NewSelect().Model((*Posting)(nil)).Count(ctx)
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownEntityType, entityType)
	}
}

func (s *Store) List(ctx context.Context, entityType string, limit int) ([]contractx.Entity, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	if limit <= 0 {
		limit = 25
	}

	switch entityType {
	case EntityContact:
		var rows []Contact
		if err := s.db.NewSelect().Model(&rows).
			Order("c.name ASC").
			Limit(limit).
			Scan(ctx); err != nil {
			return nil, fmt.Errorf("directory: list contacts: %w", err)
		}
		out := make([]contractx.Entity, 0, len(rows))
		for _, c := range rows {
			out = append(out, contractx.Entity{ID: c.ID, Type: EntityContact, Name: c.Name, Summary: contactSummary(c)})
		}
		return out, nil
	case EntityCompany:
		var rows []Company
		if err := s.db.NewSelect().Model(&rows).
			Order("co.name ASC").
			Limit(limit).
			Scan(ctx); err != nil {
			return nil, fmt.Errorf("directory: list companies: %w", err)
		}
		out := make([]contractx.Entity, 0, len(rows))
		for _, co := range rows {
			out = append(out, contractx.Entity{ID: co.ID, Type: EntityCompany, Name: co.Name, Summary: companySummary(co)})
		}
		return out, nil
	case EntityJob:
		var rows []Posting
		if err := s.db.NewSelect().Model(&rows).
			Order("jp.created_at DESC").
			Limit(limit).
			Scan(ctx); err != nil {
			return nil, fmt.Errorf("directory: list jobs: %w", err)
		}
		out := make([]contractx.Entity, 0, len(rows))
		for _, p := range rows {
			out = append(out, contractx.Entity{ID: p.ID, Type: EntityJob, Name: p.Title, Summary: postingSummary(p)})
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEntityType, entityType)
	}
}

func (s *Store) SearchJobs(ctx context.Context, query string, limit int) ([]contractx.JobPosting, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	if limit <= 0 {
		limit = 10
	}
	pattern := "%" + strings.TrimSpace(query) + "%"

	var rows []Posting
	err := s.db.NewSelect().Model(&rows).
		Where("jp.title ILIKE ? OR jp.company ILIKE ? OR jp.location ILIKE ?", pattern, pattern, pattern).
		Order("jp.created_at DESC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("directory: search jobs: %w", err)
	}

	out := make([]contractx.JobPosting, 0, len(rows))
	for _, p := range rows {
		out = append(out, contractx.JobPosting{
			ID:       p.ID,
			Title:    p.Title,
			Company:  p.Company,
			Location: p.Location,
			URL:      p.URL,
		})
	}
	return out, nil
}

func (s *Store) FetchDocument(ctx context.Context, name string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	var doc Document
	err := s.db.NewSelect().Model(&doc).
		Where("d.name = ?", strings.TrimSpace(name)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("directory: document %q not found", name)
		}
		return "", fmt.Errorf("directory: fetch document %q: %w", name, err)
	}
	return doc.Body, nil
}

// lookupErr keeps a miss distinct from a failure: no rows yields a nil
// error so Lookup returns (nil, nil) and the caller renders "not found".
func lookupErr(err error, entityType, query string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	return fmt.Errorf("directory: lookup %s %q: %w", entityType, query, err)
}

func contactSummary(c Contact) string {
	parts := make([]string, 0, 2)
	if c.Title != "" {
		parts = append(parts, c.Title)
	}
	if c.Company != "" {
		parts = append(parts, "at "+c.Company)
	}
	return strings.Join(parts, " ")
}

func companySummary(co Company) string {
	return co.Industry
}

func postingSummary(p Posting) string {
	parts := make([]string, 0, 2)
	if p.Company != "" {
		parts = append(parts, p.Company)
	}
	if p.Location != "" {
		parts = append(parts, p.Location)
	}
	return strings.Join(parts, ", ")
}
