// Package reasonstore persists the visit reasons collected during intake
// calls so practice staff can triage them after the call ends.
package reasonstore

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// VisitReason is one recorded reason for a patient call.
type VisitReason struct {
	ID         uuid.UUID
	CallID     string
	Reason     string
	Emergency  bool
	RecordedAt time.Time
}

// Store persists visit reasons.
type Store interface {
	Save(ctx context.Context, reason VisitReason) error
}

// LogStore writes visit reasons to the structured log instead of a database.
// It is the fallback when no database is configured.
type LogStore struct {
	log *slog.Logger
}

func NewLogStore(log *slog.Logger) *LogStore {
	if log == nil {
		log = slog.Default()
	}
	return &LogStore{log: log}
}

var _ Store = (*LogStore)(nil)

func (s *LogStore) Save(_ context.Context, reason VisitReason) error {
	s.log.Info("visit reason recorded",
		"id", reason.ID,
		"call_id", reason.CallID,
		"reason", reason.Reason,
		"emergency", reason.Emergency,
		"recorded_at", reason.RecordedAt,
	)
	return nil
}
