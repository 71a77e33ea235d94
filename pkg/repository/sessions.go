package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/payattn/payattn/pkg/perrors"
)

// Assessment records the outcome of a single policy-oracle evaluation
// (budget check plus zero-knowledge proof verification) performed while
// accepting or auditing an offer.
type Assessment struct {
	SessionID string
	OfferID   string
	CircuitID string
	Verified  bool
	BudgetOK  bool
	Reason    string
	CreatedAt time.Time
}

// SessionRepository persists Assessment rows.
type SessionRepository struct {
	db *DB
}

// NewSessionRepository builds a session repository backed by db.
func NewSessionRepository(db *DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Create inserts a new assessment record.
func (r *SessionRepository) Create(ctx context.Context, a *Assessment) error {
	q := `INSERT INTO ` + r.db.table("assessment_sessions") + `
		(session_id, offer_id, circuit_id, verified, budget_ok, reason, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`
	_, err := r.db.sql.ExecContext(ctx, q, a.SessionID, a.OfferID, a.CircuitID, a.Verified, a.BudgetOK, a.Reason, a.CreatedAt)
	if err != nil {
		return perrors.Wrap("creating assessment session", err)
	}
	return nil
}

// Get loads an assessment by id.
func (r *SessionRepository) Get(ctx context.Context, sessionID string) (*Assessment, error) {
	q := `SELECT session_id, offer_id, circuit_id, verified, budget_ok, reason, created_at
		FROM ` + r.db.table("assessment_sessions") + ` WHERE session_id = $1`
	var a Assessment
	err := r.db.sql.QueryRowContext(ctx, q, sessionID).Scan(
		&a.SessionID, &a.OfferID, &a.CircuitID, &a.Verified, &a.BudgetOK, &a.Reason, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, perrors.ErrPartyNotFound
	}
	if err != nil {
		return nil, perrors.Wrap("scanning assessment session", err)
	}
	return &a, nil
}
