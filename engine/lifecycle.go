/*
lifecycle.go - Recommendation lifecycle manager

PURPOSE:
  Owns every state transition a recommendation can make:

    Pending ──▶ Approved ──▶ Exported (terminal)
       │
       └─────▶ Rejected (terminal)

  Approval sets approved_rate (defaulting to the recommended rate unless
  the user overrides) and approved_at. Export is confirmed by the export
  collaborator after a successful write and sets exported_at.

BULK APPROVAL:
  Each row's transition is validated independently. Rows that fail (e.g.
  already transitioned) are reported individually while valid rows still
  commit - partial success is explicit, never hidden.

SERIALIZATION:
  Every transition runs inside the store's transaction boundary so
  concurrent writers to the same key cannot violate the state machine.
*/
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Lifecycle validates and applies recommendation state transitions.
type Lifecycle struct {
	store TxStore
	log   *zap.Logger
	now   func() time.Time
}

func NewLifecycle(store TxStore, log *zap.Logger) *Lifecycle {
	if log == nil {
		log = zap.NewNop()
	}
	return &Lifecycle{store: store, log: log, now: time.Now}
}

// =============================================================================
// SINGLE TRANSITIONS
// =============================================================================

// Approve moves a Pending recommendation to Approved. override, when
// non-nil, replaces the recommended rate as the approved rate.
func (l *Lifecycle) Approve(ctx context.Context, id RecommendationID, override *decimal.Decimal) (*Recommendation, error) {
	var out *Recommendation
	err := l.store.WithTx(ctx, func(tx Store) error {
		rec, err := l.load(ctx, tx, id)
		if err != nil {
			return err
		}
		if rec.State != StatePending {
			return &ConflictError{Key: rec.Key(), ID: rec.ID, State: rec.State, Op: "approve"}
		}

		rate := rec.RecommendedRate
		if override != nil {
			rate = RoundRate(*override)
		}
		at := l.now().UTC()
		rec.State = StateApproved
		rec.ApprovedRate = &rate
		rec.ApprovedAt = &at

		if err := tx.SaveRecommendation(ctx, *rec); err != nil {
			return err
		}
		out = rec
		return nil
	})
	return out, err
}

// Reject moves a Pending recommendation to Rejected. Terminal: rejected
// rates are never exported.
func (l *Lifecycle) Reject(ctx context.Context, id RecommendationID, reason string) (*Recommendation, error) {
	var out *Recommendation
	err := l.store.WithTx(ctx, func(tx Store) error {
		rec, err := l.load(ctx, tx, id)
		if err != nil {
			return err
		}
		if rec.State != StatePending {
			return &ConflictError{Key: rec.Key(), ID: rec.ID, State: rec.State, Op: "reject"}
		}

		rec.State = StateRejected
		rec.RejectedFor = reason
		if err := tx.SaveRecommendation(ctx, *rec); err != nil {
			return err
		}
		out = rec
		return nil
	})
	return out, err
}

// MarkExported confirms the export collaborator wrote an Approved row.
func (l *Lifecycle) MarkExported(ctx context.Context, id RecommendationID) (*Recommendation, error) {
	var out *Recommendation
	err := l.store.WithTx(ctx, func(tx Store) error {
		rec, err := l.load(ctx, tx, id)
		if err != nil {
			return err
		}
		if rec.State != StateApproved {
			return &ConflictError{Key: rec.Key(), ID: rec.ID, State: rec.State, Op: "export"}
		}

		at := l.now().UTC()
		rec.State = StateExported
		rec.ExportedAt = &at
		if err := tx.SaveRecommendation(ctx, *rec); err != nil {
			return err
		}
		out = rec
		return nil
	})
	return out, err
}

func (l *Lifecycle) load(ctx context.Context, tx Store, id RecommendationID) (*Recommendation, error) {
	rec, err := tx.GetRecommendation(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("%w: recommendation %s", ErrNotFound, id)
	}
	return rec, nil
}

// =============================================================================
// BULK OPERATIONS
// =============================================================================

// BulkItem reports one row's outcome within a bulk call.
type BulkItem struct {
	ID  RecommendationID
	Err error
}

// BulkResult reports a bulk transition. Failed rows do not block the rest.
type BulkResult struct {
	Transitioned int
	Failed       []BulkItem
}

// ApproveBulk approves each Pending row independently. Rows that fail
// validation are reported; valid rows still commit.
func (l *Lifecycle) ApproveBulk(ctx context.Context, ids []RecommendationID) *BulkResult {
	result := &BulkResult{}
	for _, id := range ids {
		if _, err := l.Approve(ctx, id, nil); err != nil {
			result.Failed = append(result.Failed, BulkItem{ID: id, Err: err})
			l.log.Warn("bulk approval item failed",
				zap.String("recommendation", string(id)), zap.Error(err))
			continue
		}
		result.Transitioned++
	}
	return result
}

// ConfirmExport marks every Approved row in the period Exported, after the
// export collaborator confirms its write. Per-row validation as in bulk
// approval.
func (l *Lifecycle) ConfirmExport(ctx context.Context, period Period) (*BulkResult, error) {
	approved := StateApproved
	rows, err := l.store.Recommendations(ctx, RecommendationFilter{Period: period, State: &approved})
	if err != nil {
		return nil, err
	}

	result := &BulkResult{}
	for _, rec := range rows {
		if _, err := l.MarkExported(ctx, rec.ID); err != nil {
			result.Failed = append(result.Failed, BulkItem{ID: rec.ID, Err: err})
			continue
		}
		result.Transitioned++
	}
	return result, nil
}

// =============================================================================
// EXPORT VIEW - What the export collaborator reads
// =============================================================================

// ApprovedForExport returns the Approved rows for a period, each carrying
// its final approved rate. Formatting is the export collaborator's concern.
func (l *Lifecycle) ApprovedForExport(ctx context.Context, period Period) ([]Recommendation, error) {
	approved := StateApproved
	return l.store.Recommendations(ctx, RecommendationFilter{Period: period, State: &approved})
}
