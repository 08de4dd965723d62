// Package directory is the Postgres-backed read surface behind the fast
// path and the CRM, job search, and document tools.
package directory

import (
	"time"

	"github.com/uptrace/bun"
)

// Contact is a CRM person record.
type Contact struct {
	bun.BaseModel `bun:"table:contacts,alias:c"`

	ID        int64     `bun:"id,pk,autoincrement"`
	Name      string    `bun:"name,notnull"`
	Title     string    `bun:"title"`
	Company   string    `bun:"company"`
	Email     string    `bun:"email"`
	Notes     string    `bun:"notes"`
	CreatedAt time.Time `bun:"created_at,nullzero,default:now()"`
}

// Company is a CRM organization record.
type Company struct {
	bun.BaseModel `bun:"table:companies,alias:co"`

	ID        int64     `bun:"id,pk,autoincrement"`
	Name      string    `bun:"name,notnull"`
	Industry  string    `bun:"industry"`
	Website   string    `bun:"website"`
	Notes     string    `bun:"notes"`
	CreatedAt time.Time `bun:"created_at,nullzero,default:now()"`
}

// Posting is a stored job posting row.
type Posting struct {
	bun.BaseModel `bun:"table:job_postings,alias:jp"`

	ID        int64     `bun:"id,pk,autoincrement"`
	Title     string    `bun:"title,notnull"`
	Company   string    `bun:"company,notnull"`
	Location  string    `bun:"location"`
	URL       string    `bun:"url"`
	CreatedAt time.Time `bun:"created_at,nullzero,default:now()"`
}

// Document is stored user content (resumes, cover letters, notes) fetched
// by name.
type Document struct {
	bun.BaseModel `bun:"table:documents,alias:d"`

	ID        int64     `bun:"id,pk,autoincrement"`
	Name      string    `bun:"name,notnull,unique"`
	Body      string    `bun:"body,notnull"`
	UpdatedAt time.Time `bun:"updated_at,nullzero,default:now()"`
}
