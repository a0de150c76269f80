package domain

import (
	"context"
	"time"
)

// AssignmentStatus is the lifecycle state of a ledger row.
type AssignmentStatus string

const (
	StatusActive  AssignmentStatus = "active"
	StatusExpired AssignmentStatus = "expired" // reconciliation found it no longer valid
	StatusRevoked AssignmentStatus = "revoked" // removed out-of-band
)

// RoleAssignment is a durable record that a user holds (or once held) a role
// because of a specific rule. At most one active row may exist per
// (UserID, RoleID); different roles stack freely for the same user.
// Expired and revoked rows are never reactivated; a fresh verification
// inserts a brand-new active row instead.
type RoleAssignment struct {
	ID            string           `json:"id"`
	UserID        string           `json:"user_id"`
	ServerID      string           `json:"server_id"`
	RoleID        string           `json:"role_id"`
	RuleID        string           `json:"rule_id,omitempty"`
	Address       string           `json:"address"`
	Status        AssignmentStatus `json:"status"`
	VerifiedAt    time.Time        `json:"verified_at"`
	LastCheckedAt time.Time        `json:"last_checked"`
	ExpiresAt     *time.Time       `json:"expires_at,omitempty"`
}

// AssignmentLedger persists role assignments. All mutations are single-row
// writes keyed by id or (user_id, role_id); concurrent writers resolve via
// idempotent upsert plus last-writer-wins on status fields.
type AssignmentLedger interface {
	// UpsertActive records an active assignment. A unique-constraint
	// collision on the active (user_id, role_id) pair is success, not error:
	// created reports whether a new row was inserted (false = already held).
	UpsertActive(ctx context.Context, a *RoleAssignment) (created bool, err error)

	// MarkExpired transitions an active row to expired and stamps last_checked.
	MarkExpired(ctx context.Context, id string) error

	// MarkRevoked transitions a row to revoked (out-of-band removal).
	MarkRevoked(ctx context.Context, id string) error

	// Touch refreshes last_checked only, for rows that are still valid.
	Touch(ctx context.Context, id string, at time.Time) error

	// ListActiveCheckedBefore pages through active rows whose last_checked is
	// older than cutoff, oldest first, so staleness is bounded fairly.
	// Offset lets a sweep step past rows that stayed active with an old
	// last_checked (failed checks).
	ListActiveCheckedBefore(ctx context.Context, cutoff time.Time, limit, offset int) ([]*RoleAssignment, error)

	// ListActiveByUser returns the user's active rows in one server.
	ListActiveByUser(ctx context.Context, userID, serverID string) ([]*RoleAssignment, error)
}

// RuleRepository is the read-mostly store of admin-managed rules.
type RuleRepository interface {
	Create(ctx context.Context, rule *Rule) error
	GetByID(ctx context.Context, id string) (*Rule, error)
	GetByIDs(ctx context.Context, ids []string) ([]*Rule, error)
	ListByServer(ctx context.Context, serverID string) ([]*Rule, error)
	Delete(ctx context.Context, id string) error
}
