/*
expand.go - Night Expander

PURPOSE:
  Turns a reservation span (check-in, check-out, gross value) into one
  ExpandedNight per occupied night, apportioning the stay's gross value
  across the nights. The check-out night itself is not occupied.

POLICY:
  Cancelled and no-show stays emit zero nights. Historical demand must
  reflect realized occupancy, not intent.

APPORTIONMENT:
  Each night gets gross/nights rounded to cents; the final night absorbs
  the rounding remainder so the nights always sum exactly to the stay's
  gross value.

IDEMPOTENCY:
  ExpandStay is a pure function of its input. Re-running an import batch
  produces identical output.

SEE ALSO:
  - aggregate.go: Consumes the expanded nights
*/
package engine

import (
	"go.uber.org/zap"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SINGLE-STAY EXPANSION
// =============================================================================

// ExpandStay produces one ExpandedNight per occupied night of the stay,
// dated check-in .. check-out-1, each carrying an apportioned share of the
// gross value. Cancelled/no-show stays produce zero nights and no error.
// Fails with InvalidDateRangeError when check-out is not after check-in.
func ExpandStay(stay RawStayRecord) ([]ExpandedNight, error) {
	if stay.Status == StayCancelled || stay.Status == StayNoShow {
		return nil, nil
	}

	nights := stay.Nights()
	if nights <= 0 {
		return nil, &InvalidDateRangeError{
			StayRef:  stay.RegistryID,
			CheckIn:  stay.CheckIn,
			CheckOut: stay.CheckOut,
		}
	}

	perNight := RoundRate(stay.GrossValue.Div(decimal.NewFromInt(int64(nights))))

	out := make([]ExpandedNight, 0, nights)
	for i := 0; i < nights; i++ {
		rate := perNight
		if i == nights-1 {
			// Last night absorbs the rounding remainder: sum == gross value.
			rate = stay.GrossValue.Sub(perNight.Mul(decimal.NewFromInt(int64(nights - 1))))
		}
		out = append(out, ExpandedNight{
			Date:         stay.CheckIn.AddDays(i),
			RoomTypeCode: stay.RoomTypeCode,
			ChannelName:  stay.ChannelName,
			Rate:         rate,
			StayRef:      stay.RegistryID,
		})
	}
	return out, nil
}

// =============================================================================
// BATCH EXPANSION
// =============================================================================

// Expander runs whole import batches, rejecting bad records individually.
type Expander struct {
	log *zap.Logger
}

func NewExpander(log *zap.Logger) *Expander {
	if log == nil {
		log = zap.NewNop()
	}
	return &Expander{log: log}
}

// ExpandBatch expands every stay in the batch. Records that fail validation
// are rejected and counted in the summary; the batch never aborts.
func (e *Expander) ExpandBatch(stays []RawStayRecord) ([]ExpandedNight, BatchSummary) {
	var nights []ExpandedNight
	var summary BatchSummary

	for _, stay := range stays {
		if stay.GrossValue.IsNegative() {
			err := &ValidationError{StayRef: stay.RegistryID, Field: "gross_value", Reason: "negative"}
			summary.Reject(err)
			e.log.Warn("stay rejected", zap.String("stay", stay.RegistryID), zap.Error(err))
			continue
		}

		expanded, err := ExpandStay(stay)
		if err != nil {
			summary.Reject(err)
			e.log.Warn("stay rejected", zap.String("stay", stay.RegistryID), zap.Error(err))
			continue
		}
		summary.Succeeded++
		nights = append(nights, expanded...)
	}
	return nights, summary
}
