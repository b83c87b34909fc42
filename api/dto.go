/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal ledger model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

TYPES:
  Stock events:
    StockEventRequest, StockEventLineDTO, StockEventAcceptedDTO

  Stock cards:
    StockCardDTO, LineItemDTO, StockOnHandDTO, RangeSummaryDTO

  Reasons:
    ReasonDTO, CreateReasonRequest

VALIDATION:
  Request types carry go-playground/validator struct tags; handlers run the
  validator before touching the ledger so malformed payloads never reach it.

SEE ALSO:
  - handlers.go: Uses these types
  - server.go: Route wiring
*/
package api

// =============================================================================
// STOCK EVENT REQUESTS
// =============================================================================

// StockEventLineDTO is one movement line in a submitted stock event.
// Quantity is a non-negative magnitude; the reason's type (or the presence of
// a source/destination) determines the direction.
type StockEventLineDTO struct {
	FacilityID  string `json:"facility_id" validate:"required"`
	ProgramID   string `json:"program_id" validate:"required"`
	OrderableID string `json:"orderable_id" validate:"required"`
	LotID       string `json:"lot_id,omitempty"`

	Quantity int64 `json:"quantity" validate:"gte=0"`

	ReasonID      string `json:"reason_id,omitempty"`
	SourceID      string `json:"source_id,omitempty"`
	DestinationID string `json:"destination_id,omitempty"`

	OccurredDate string `json:"occurred_date" validate:"required"`
	DocumentRef  string `json:"document_ref,omitempty"`
}

// StockEventRequest is an atomic batch of movement lines.
type StockEventRequest struct {
	DocumentRef string              `json:"document_ref,omitempty"`
	Items       []StockEventLineDTO `json:"items" validate:"required,min=1,dive"`
}

// StockEventAcceptedDTO confirms an accepted event batch.
type StockEventAcceptedDTO struct {
	EventID string   `json:"event_id"`
	Items   int      `json:"items"`
	CardIDs []string `json:"card_ids"`
}

// =============================================================================
// STOCK CARD RESPONSES
// =============================================================================

// StockCardDTO represents a stock card in API responses.
type StockCardDTO struct {
	ID          string `json:"id"`
	FacilityID  string `json:"facility_id"`
	ProgramID   string `json:"program_id"`
	OrderableID string `json:"orderable_id"`
	LotID       string `json:"lot_id,omitempty"`
	CreatedAt   string `json:"created_at,omitempty"`

	StockOnHand int64  `json:"stock_on_hand"`
	AsOf        string `json:"as_of"`
}

// LineItemDTO represents one movement with its reason expanded.
type LineItemDTO struct {
	ID            string     `json:"id"`
	EventID       string     `json:"event_id"`
	Quantity      int64      `json:"quantity"`
	Reason        *ReasonDTO `json:"reason,omitempty"`
	SourceID      string     `json:"source_id,omitempty"`
	DestinationID string     `json:"destination_id,omitempty"`
	OccurredDate  string     `json:"occurred_date"`
	RecordedAt    string     `json:"recorded_at"`
	DocumentRef   string     `json:"document_ref,omitempty"`
}

// StockCardDetailDTO is a card with its full movement history.
type StockCardDetailDTO struct {
	StockCardDTO
	LineItems []LineItemDTO `json:"line_items"`
}

// StockOnHandDTO is a point-in-time balance answer.
type StockOnHandDTO struct {
	CardID      string `json:"card_id"`
	AsOf        string `json:"as_of"`
	StockOnHand int64  `json:"stock_on_hand"`
}

// RangeSummaryDTO bundles the range aggregate answers for one card.
type RangeSummaryDTO struct {
	CardID       string           `json:"card_id"`
	Start        string           `json:"start"`
	End          string           `json:"end"`
	StockoutDays int              `json:"stockout_days"`
	NegativeDays int              `json:"negative_days"`
	TagAmounts   map[string]int64 `json:"tag_amounts"`
}

// =============================================================================
// REASON CATALOG
// =============================================================================

// ReasonDTO represents a reason catalog entry.
type ReasonDTO struct {
	ID   string   `json:"id"`
	Name string   `json:"name"`
	Type string   `json:"type"`
	Tags []string `json:"tags,omitempty"`
}

// CreateReasonRequest is the request to create or update a reason.
type CreateReasonRequest struct {
	ID   string   `json:"id,omitempty"`
	Name string   `json:"name" validate:"required"`
	Type string   `json:"type" validate:"required,oneof=credit debit balance_adjustment"`
	Tags []string `json:"tags,omitempty"`
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrorResponse is the standard error payload.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
