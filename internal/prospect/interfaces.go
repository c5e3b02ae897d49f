package prospect

import (
	"context"
	"errors"
	"time"
)

// ErrPrecondition marks failures detected before any side effect.
var ErrPrecondition = errors.New("precondition failed")

// ErrNotPending is returned when a status transition targets a contact that
// is no longer pending.
var ErrNotPending = errors.New("contact is not pending")

// ErrCompanyNotFound is returned when a company lookup misses.
var ErrCompanyNotFound = errors.New("company not found")

// Store persists companies and contacts and exposes the send queue.
type Store interface {
	EnsureSchema(ctx context.Context) error
	UpsertCompany(ctx context.Context, in CompanyInput) (int64, error)
	UpdateCompany(ctx context.Context, in CompanyInput) (int64, error)
	GetCompany(ctx context.Context, domain string) (Company, error)
	TouchCompany(ctx context.Context, id int64) error
	UpsertContact(ctx context.Context, companyID int64, contact Contact) (bool, error)
	FetchPending(ctx context.Context, limit int) ([]PendingContact, error)
	MarkSent(ctx context.Context, id int64) error
	MarkFailed(ctx context.Context, id int64, reason string) error
	Counts(ctx context.Context) (StatusCounts, error)
	ResetStatus(ctx context.Context, failedOnly bool) (int64, error)
	Ping(ctx context.Context) error
	Close() error
}

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run identifiers.
type IDGenerator interface {
	NewID() (string, error)
}

// Hasher computes digests for integrity logging.
type Hasher interface {
	Hash(data []byte) (string, error)
}
