/*
handlers.go - HTTP API handlers for the stock ledger engine

PURPOSE:
  Exposes the ledger engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Stock events:
    POST   /api/stock-events                         Submit a movement batch

  Stock cards:
    GET    /api/stock-cards                          List cards with balances
    GET    /api/stock-cards/{id}                     Card detail with history
    GET    /api/stock-cards/{id}/stock-on-hand       Balance as of a date
    GET    /api/stock-cards/{id}/range-summary       Stockouts + tagged amounts
    POST   /api/stock-cards/{id}/rebuild             Re-derive all snapshots

  Reasons:
    GET    /api/reasons                              List catalog entries
    POST   /api/reasons                              Create/update an entry

REQUEST FLOW:
  1. Parse HTTP request
  2. Validate input (go-playground/validator on the DTO)
  3. Call domain logic (ledger service, catalog)
  4. Serialize response
  5. Handle errors

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Resource not found
  - 409: Conflict (card identity race)
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/meridian/stockledger/catalog"
	"github.com/meridian/stockledger/ledger"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Ledger  *ledger.Service
	Catalog *catalog.Cached
	Log     logrus.FieldLogger

	validate *validator.Validate
}

// NewHandler creates a new handler around the ledger service and catalog.
func NewHandler(svc *ledger.Service, cat *catalog.Cached, log logrus.FieldLogger) *Handler {
	return &Handler{
		Ledger:   svc,
		Catalog:  cat,
		Log:      log,
		validate: validator.New(),
	}
}

// =============================================================================
// STOCK EVENT HANDLERS
// =============================================================================

// CreateStockEvent accepts a movement batch. The batch is all-or-nothing:
// one invalid line rejects the whole request before anything is persisted.
// POST /api/stock-events
func (h *Handler) CreateStockEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req StockEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid stock event", err)
		return
	}

	batch := ledger.EventBatch{
		ID:          ledger.NewEventID(),
		DocumentRef: req.DocumentRef,
		Items:       make([]ledger.LineItem, len(req.Items)),
	}

	cardIDs := make([]string, 0, len(req.Items))
	seen := make(map[ledger.CardID]bool)

	for i, line := range req.Items {
		occurred, err := ledger.ParseDate(line.OccurredDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid occurred_date", err)
			return
		}

		// Cards are created lazily on the first movement for their identity.
		card, err := h.Ledger.GetOrCreateCard(ctx, ledger.CardIdentity{
			FacilityID:  line.FacilityID,
			ProgramID:   line.ProgramID,
			OrderableID: line.OrderableID,
			LotID:       line.LotID,
		})
		if err != nil {
			h.writeLedgerError(w, "Failed to resolve stock card", err)
			return
		}
		if !seen[card.ID] {
			seen[card.ID] = true
			cardIDs = append(cardIDs, string(card.ID))
		}

		batch.Items[i] = ledger.LineItem{
			CardID:        card.ID,
			Quantity:      line.Quantity,
			ReasonID:      ledger.ReasonID(line.ReasonID),
			SourceID:      line.SourceID,
			DestinationID: line.DestinationID,
			OccurredDate:  occurred,
			DocumentRef:   line.DocumentRef,
		}
	}

	if err := h.Ledger.Ingest(ctx, batch); err != nil {
		h.writeLedgerError(w, "Failed to ingest stock event", err)
		return
	}

	writeJSON(w, http.StatusCreated, StockEventAcceptedDTO{
		EventID: string(batch.ID),
		Items:   len(batch.Items),
		CardIDs: cardIDs,
	})
}

// =============================================================================
// STOCK CARD HANDLERS
// =============================================================================

// ListStockCards returns all cards with their balance as of today.
// GET /api/stock-cards
func (h *Handler) ListStockCards(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	cards, err := h.Ledger.Cards(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list stock cards", err)
		return
	}

	today := ledger.Today()
	dtos := make([]StockCardDTO, len(cards))
	for i, card := range cards {
		soh, err := h.Ledger.StockOnHandAsOf(ctx, card.ID, today)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to read stock on hand", err)
			return
		}
		dtos[i] = toCardDTO(card, soh, today)
	}

	writeJSON(w, http.StatusOK, dtos)
}

// GetStockCard returns a card with its full movement history, reasons
// expanded from the catalog in one batched lookup.
// GET /api/stock-cards/{id}
func (h *Handler) GetStockCard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cardID := ledger.CardID(chi.URLParam(r, "id"))

	card, err := h.Ledger.Card(ctx, cardID)
	if err != nil {
		h.writeLedgerError(w, "Failed to get stock card", err)
		return
	}

	items, err := h.Ledger.LineItems(ctx, cardID)
	if err != nil {
		h.writeLedgerError(w, "Failed to load line items", err)
		return
	}

	// Two-phase reason resolution: register everything, then one batch fetch.
	resolver := catalog.NewBatchResolver(h.Catalog)
	for _, item := range items {
		resolver.Register(ctx, item.ReasonID)
	}
	reasons, err := resolver.Resolve(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to resolve reasons", err)
		return
	}

	today := ledger.Today()
	soh, err := h.Ledger.StockOnHandAsOf(ctx, cardID, today)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to read stock on hand", err)
		return
	}

	detail := StockCardDetailDTO{
		StockCardDTO: toCardDTO(*card, soh, today),
		LineItems:    make([]LineItemDTO, len(items)),
	}
	for i, item := range items {
		dto := LineItemDTO{
			ID:            string(item.ID),
			EventID:       string(item.EventID),
			Quantity:      item.Quantity,
			SourceID:      item.SourceID,
			DestinationID: item.DestinationID,
			OccurredDate:  item.OccurredDate.String(),
			RecordedAt:    item.RecordedAt.Format(time.RFC3339Nano),
			DocumentRef:   item.DocumentRef,
		}
		if reason, ok := reasons[item.ReasonID]; ok {
			dto.Reason = toReasonDTO(*reason)
		}
		detail.LineItems[i] = dto
	}

	writeJSON(w, http.StatusOK, detail)
}

// GetStockOnHand returns the balance as of a date (default today).
// GET /api/stock-cards/{id}/stock-on-hand?as_of=2020-01-03
func (h *Handler) GetStockOnHand(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cardID := ledger.CardID(chi.URLParam(r, "id"))

	asOf := ledger.Today()
	if raw := r.URL.Query().Get("as_of"); raw != "" {
		parsed, err := ledger.ParseDate(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid as_of date", err)
			return
		}
		asOf = parsed
	}

	soh, err := h.Ledger.StockOnHandAsOf(ctx, cardID, asOf)
	if err != nil {
		h.writeLedgerError(w, "Failed to read stock on hand", err)
		return
	}

	writeJSON(w, http.StatusOK, StockOnHandDTO{
		CardID:      string(cardID),
		AsOf:        asOf.String(),
		StockOnHand: soh,
	})
}

// GetRangeSummary returns stockout days and tagged amounts over a range.
// GET /api/stock-cards/{id}/range-summary?start=...&end=...&tag=...
func (h *Handler) GetRangeSummary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cardID := ledger.CardID(chi.URLParam(r, "id"))

	start, err := ledger.ParseDate(r.URL.Query().Get("start"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid start date", err)
		return
	}
	end, err := ledger.ParseDate(r.URL.Query().Get("end"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid end date", err)
		return
	}
	tag := r.URL.Query().Get("tag")

	summary, err := h.Ledger.RangeSummaryFor(ctx, cardID, start, end, tag)
	if err != nil {
		h.writeLedgerError(w, "Failed to compute range summary", err)
		return
	}

	writeJSON(w, http.StatusOK, RangeSummaryDTO{
		CardID:       string(summary.CardID),
		Start:        summary.Start.String(),
		End:          summary.End.String(),
		StockoutDays: summary.StockoutDays,
		NegativeDays: summary.NegativeDays,
		TagAmounts:   summary.TagAmounts,
	})
}

// RebuildStockCard re-derives every snapshot of a card from scratch.
// Maintenance operation.
// POST /api/stock-cards/{id}/rebuild
func (h *Handler) RebuildStockCard(w http.ResponseWriter, r *http.Request) {
	cardID := ledger.CardID(chi.URLParam(r, "id"))

	if err := h.Ledger.Rebuild(r.Context(), cardID); err != nil {
		h.writeLedgerError(w, "Failed to rebuild stock card", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "rebuilt"})
}

// =============================================================================
// REASON HANDLERS
// =============================================================================

// ListReasons returns the reason catalog.
// GET /api/reasons
func (h *Handler) ListReasons(w http.ResponseWriter, r *http.Request) {
	reasons, err := h.Catalog.All(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list reasons", err)
		return
	}

	dtos := make([]ReasonDTO, len(reasons))
	for i, reason := range reasons {
		dtos[i] = *toReasonDTO(reason)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateReason creates or updates a reason catalog entry.
// POST /api/reasons
func (h *Handler) CreateReason(w http.ResponseWriter, r *http.Request) {
	var req CreateReasonRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid reason", err)
		return
	}

	reason := ledger.Reason{
		ID:   ledger.ReasonID(req.ID),
		Name: req.Name,
		Type: ledger.ReasonType(req.Type),
		Tags: req.Tags,
	}
	if reason.ID == "" {
		reason.ID = ledger.NewReasonID()
	}

	if err := h.Catalog.Save(r.Context(), reason); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save reason", err)
		return
	}
	writeJSON(w, http.StatusCreated, toReasonDTO(reason))
}

// =============================================================================
// HELPERS
// =============================================================================

func toCardDTO(card ledger.StockCard, soh int64, asOf ledger.Date) StockCardDTO {
	return StockCardDTO{
		ID:          string(card.ID),
		FacilityID:  card.Identity.FacilityID,
		ProgramID:   card.Identity.ProgramID,
		OrderableID: card.Identity.OrderableID,
		LotID:       card.Identity.LotID,
		CreatedAt:   card.CreatedAt.Format(time.RFC3339),
		StockOnHand: soh,
		AsOf:        asOf.String(),
	}
}

func toReasonDTO(reason ledger.Reason) *ReasonDTO {
	return &ReasonDTO{
		ID:   string(reason.ID),
		Name: reason.Name,
		Type: string(reason.Type),
		Tags: reason.Tags,
	}
}

// writeLedgerError maps domain errors onto HTTP statuses.
func (h *Handler) writeLedgerError(w http.ResponseWriter, message string, err error) {
	switch {
	case ledger.IsValidation(err):
		writeError(w, http.StatusBadRequest, message, err)
	case ledger.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case ledger.IsConflict(err):
		writeError(w, http.StatusConflict, message, err)
	default:
		if h.Log != nil {
			h.Log.WithError(err).Error(message)
		}
		writeError(w, http.StatusInternalServerError, message, err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
