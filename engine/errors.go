/*
errors.go - Error taxonomy for the pricing engine

PURPOSE:
  All error types in one place. Per-record failures never abort a batch:
  each batch operation rejects bad records individually and returns a
  BatchSummary with counts. Nothing in this package is process-fatal.

ERROR CATEGORIES:
  1. Validation errors - Malformed input records (rejected, batch continues)
  2. Date-range errors - Night Expander precondition violations
  3. Conflict errors   - Recommendation state-machine violations
  4. Configuration errors - Missing/malformed rule parameters (rule skipped)
  5. Data-quality warnings - Overbooking, forecast clamps (non-fatal, attached)

USAGE:
  if errors.Is(err, engine.ErrConflict) {
      // surface to caller for manual resolution
  }
*/
package engine

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidDateRange is returned when a stay's check-out is not after
	// its check-in, or a period's end precedes its start.
	ErrInvalidDateRange = errors.New("invalid date range")

	// ErrValidation is returned for a malformed input record. The record is
	// rejected and the batch continues.
	ErrValidation = errors.New("validation failed")

	// ErrConflict is returned on a recommendation lifecycle violation, e.g.
	// regenerating over an Approved row without force. Surfaced to the
	// caller for manual resolution.
	ErrConflict = errors.New("lifecycle conflict")

	// ErrConfiguration is returned for a missing or malformed rule
	// parameter. The rule is skipped with a warning, never fatal.
	ErrConfiguration = errors.New("configuration error")

	// ErrNotFound is returned when a referenced entity does not exist.
	ErrNotFound = errors.New("not found")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InvalidDateRangeError reports a stay whose check-out precedes check-in.
type InvalidDateRangeError struct {
	StayRef  string
	CheckIn  DateKey
	CheckOut DateKey
}

func (e *InvalidDateRangeError) Error() string {
	return fmt.Sprintf("stay %s: check-out %s not after check-in %s",
		e.StayRef, e.CheckOut, e.CheckIn)
}

func (e *InvalidDateRangeError) Unwrap() error { return ErrInvalidDateRange }

// ValidationError reports a single rejected record.
type ValidationError struct {
	StayRef string
	Field   string
	Reason  string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("record %s: %s: %s", e.StayRef, e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// ConflictError reports a recommendation whose state forbids the attempted
// transition or replacement.
type ConflictError struct {
	Key   Key
	ID    RecommendationID
	State RecommendationState
	Op    string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("recommendation %s (%s %s/%s) is %s: cannot %s",
		e.ID, e.Key.Date, e.Key.RoomTypeID, e.Key.ChannelID, e.State, e.Op)
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// ConfigurationError reports a rule that could not be evaluated.
type ConfigurationError struct {
	RuleID   RuleID
	RuleName string
	Param    string
	Reason   string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("rule %s (%s): param %q: %s", e.RuleID, e.RuleName, e.Param, e.Reason)
}

func (e *ConfigurationError) Unwrap() error { return ErrConfiguration }

// =============================================================================
// DATA QUALITY WARNINGS - Non-fatal, attached to records
// =============================================================================

// WarningCode enumerates recognized data-quality conditions.
type WarningCode string

const (
	WarnOverbooked     WarningCode = "overbooked"
	WarnForecastClamp  WarningCode = "forecast_clamped"
	WarnMissingHistory WarningCode = "missing_history"
	WarnRateClamp      WarningCode = "rate_clamped"
)

// DataQualityWarning flags a tolerated anomaly so reporting can surface it.
// It is not an error: the affected record is still produced.
type DataQualityWarning struct {
	Code       WarningCode
	Date       DateKey
	RoomTypeID RoomTypeID
	Detail     string
}

func (w DataQualityWarning) String() string {
	return fmt.Sprintf("%s %s/%s: %s", w.Code, w.Date, w.RoomTypeID, w.Detail)
}

// =============================================================================
// BATCH SUMMARY - Returned by every batch operation
// =============================================================================

// BatchSummary counts the outcome of a batch run. Rejected records carry
// their individual errors; warnings are the tolerated anomalies.
type BatchSummary struct {
	Succeeded int
	Rejected  int
	Errors    []error
	Warnings  []DataQualityWarning
}

// Reject records one rejected record.
func (s *BatchSummary) Reject(err error) {
	s.Rejected++
	s.Errors = append(s.Errors, err)
}

// Warn attaches a data-quality warning.
func (s *BatchSummary) Warn(w DataQualityWarning) {
	s.Warnings = append(s.Warnings, w)
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError reports whether the error is due to invalid caller input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidDateRange) ||
		errors.Is(err, ErrConfiguration)
}

// IsConflict reports a lifecycle conflict needing manual resolution.
func IsConflict(err error) bool { return errors.Is(err, ErrConflict) }
