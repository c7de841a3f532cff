/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  JSON structures for API communication, decoupling the internal domain
  model from the external contract. Rates travel as strings to preserve
  decimal precision across clients.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Validation happens in handlers; DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"github.com/shopspring/decimal"

	"github.com/brisamar/pricing-engine/engine"
)

// =============================================================================
// INGESTION
// =============================================================================

// StayRecordDTO is one reservation/stay row from the ingestion collaborator.
type StayRecordDTO struct {
	RegistryID string `json:"registry_id"`
	CheckIn    string `json:"check_in"`
	CheckOut   string `json:"check_out"`
	RoomType   string `json:"room_type"`
	Channel    string `json:"channel"`
	GrossValue string `json:"gross_value"`
	Status     string `json:"status"`
}

// IngestRequest is an import batch plus the fact range it covers.
type IngestRequest struct {
	From  string          `json:"from"`
	To    string          `json:"to"`
	Stays []StayRecordDTO `json:"stays"`
}

// BatchSummaryDTO reports a batch outcome.
type BatchSummaryDTO struct {
	Succeeded int      `json:"succeeded"`
	Rejected  int      `json:"rejected"`
	Errors    []string `json:"errors,omitempty"`
	Warnings  []string `json:"warnings,omitempty"`
}

func toBatchSummaryDTO(s engine.BatchSummary) BatchSummaryDTO {
	dto := BatchSummaryDTO{Succeeded: s.Succeeded, Rejected: s.Rejected}
	for _, err := range s.Errors {
		dto.Errors = append(dto.Errors, err.Error())
	}
	for _, w := range s.Warnings {
		dto.Warnings = append(dto.Warnings, w.String())
	}
	return dto
}

// =============================================================================
// FACTS AND TRAINING VIEW
// =============================================================================

type DailyFactDTO struct {
	Date           string `json:"date"`
	RoomTypeID     string `json:"room_type_id"`
	RoomsAvailable int    `json:"rooms_available"`
	RoomsOccupied  int    `json:"rooms_occupied"`
	Revenue        string `json:"revenue"`
	ADR            string `json:"adr"`
	RevPAR         string `json:"revpar"`
	Overbooked     bool   `json:"overbooked,omitempty"`
}

func toDailyFactDTO(f engine.DailyFact) DailyFactDTO {
	return DailyFactDTO{
		Date:           f.Date.String(),
		RoomTypeID:     string(f.RoomTypeID),
		RoomsAvailable: f.RoomsAvailable,
		RoomsOccupied:  f.RoomsOccupied,
		Revenue:        f.Revenue.String(),
		ADR:            f.ADR.String(),
		RevPAR:         f.RevPAR.String(),
		Overbooked:     f.Overbooked,
	}
}

type TrainingRowDTO struct {
	Date       string `json:"date"`
	RoomTypeID string `json:"room_type_id"`
	Occupancy  string `json:"occupancy"`
	ADR        string `json:"adr"`
}

// =============================================================================
// FORECAST
// =============================================================================

// ForecastPointRequest is one raw model prediction pushed to the bridge.
type ForecastPointRequest struct {
	Date       string `json:"date"`
	RoomTypeID string `json:"room_type_id"`
	Occupancy  string `json:"occupancy"`
	ADR        string `json:"adr"`
}

// ForecastRequest is one forecast run's output.
type ForecastRequest struct {
	From   string                 `json:"from"`
	To     string                 `json:"to"`
	Points []ForecastPointRequest `json:"points"`
	Force  bool                   `json:"force,omitempty"`
}

// AdjustForecastRequest is a manual adjustment of one point.
type AdjustForecastRequest struct {
	Date       string `json:"date"`
	RoomTypeID string `json:"room_type_id"`
	Occupancy  string `json:"occupancy"`
	ADR        string `json:"adr"`
}

type ForecastPointDTO struct {
	Date             string `json:"date"`
	RoomTypeID       string `json:"room_type_id"`
	Occupancy        string `json:"occupancy"`
	ADR              string `json:"adr"`
	RevPAR           string `json:"revpar"`
	ManuallyAdjusted bool   `json:"manually_adjusted,omitempty"`
}

func toForecastPointDTO(p engine.ForecastPoint) ForecastPointDTO {
	return ForecastPointDTO{
		Date:             p.Date.String(),
		RoomTypeID:       string(p.RoomTypeID),
		Occupancy:        p.Occupancy.String(),
		ADR:              p.ADR.String(),
		RevPAR:           p.RevPAR.String(),
		ManuallyAdjusted: p.ManuallyAdjusted,
	}
}

// =============================================================================
// RECOMMENDATIONS
// =============================================================================

// GenerateRequest triggers a recommendation generation run.
type GenerateRequest struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Force bool   `json:"force,omitempty"`
}

type GenerationResultDTO struct {
	Created   int      `json:"created"`
	Replaced  int      `json:"replaced"`
	Conflicts []string `json:"conflicts,omitempty"`
	Skipped   []string `json:"skipped_rules,omitempty"`
	Warnings  []string `json:"warnings,omitempty"`
}

type RecommendationDTO struct {
	ID              string `json:"id"`
	Date            string `json:"date"`
	RoomTypeID      string `json:"room_type_id"`
	ChannelID       string `json:"channel_id"`
	BaseRate        string `json:"base_rate"`
	RecommendedRate string `json:"recommended_rate"`
	ApprovedRate    string `json:"approved_rate,omitempty"`
	State           string `json:"state"`
	ApprovedAt      string `json:"approved_at,omitempty"`
	ExportedAt      string `json:"exported_at,omitempty"`
	Superseded      bool   `json:"superseded,omitempty"`
	RejectedFor     string `json:"rejected_for,omitempty"`
}

func toRecommendationDTO(r engine.Recommendation) RecommendationDTO {
	dto := RecommendationDTO{
		ID:              string(r.ID),
		Date:            r.Date.String(),
		RoomTypeID:      string(r.RoomTypeID),
		ChannelID:       string(r.ChannelID),
		BaseRate:        r.BaseRate.String(),
		RecommendedRate: r.RecommendedRate.String(),
		State:           string(r.State),
		Superseded:      r.Superseded,
		RejectedFor:     r.RejectedFor,
	}
	if r.ApprovedRate != nil {
		dto.ApprovedRate = r.ApprovedRate.String()
	}
	if r.ApprovedAt != nil {
		dto.ApprovedAt = r.ApprovedAt.UTC().Format("2006-01-02T15:04:05Z07:00")
	}
	if r.ExportedAt != nil {
		dto.ExportedAt = r.ExportedAt.UTC().Format("2006-01-02T15:04:05Z07:00")
	}
	return dto
}

// ApproveRequest approves a batch of pending recommendations. Override
// applies only to single-id calls.
type ApproveRequest struct {
	IDs      []string `json:"ids"`
	Override string   `json:"override,omitempty"`
}

// RejectRequest rejects one pending recommendation.
type RejectRequest struct {
	Reason string `json:"reason"`
}

type BulkResultDTO struct {
	Transitioned int               `json:"transitioned"`
	Failed       map[string]string `json:"failed,omitempty"`
}

func toBulkResultDTO(r *engine.BulkResult) BulkResultDTO {
	dto := BulkResultDTO{Transitioned: r.Transitioned}
	if len(r.Failed) > 0 {
		dto.Failed = make(map[string]string, len(r.Failed))
		for _, item := range r.Failed {
			dto.Failed[string(item.ID)] = item.Err.Error()
		}
	}
	return dto
}

// ExportRowDTO is one approved rate handed to the export collaborator.
type ExportRowDTO struct {
	Date         string `json:"date"`
	RoomTypeID   string `json:"room_type_id"`
	ChannelID    string `json:"channel_id"`
	ApprovedRate string `json:"approved_rate"`
}

// =============================================================================
// ERROR RESPONSES
// =============================================================================

type errorResponse struct {
	Error string `json:"error"`
}

func parseRate(s string) (*decimal.Decimal, error) {
	if s == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
