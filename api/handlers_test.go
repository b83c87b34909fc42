package api_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian/stockledger/api"
	"github.com/meridian/stockledger/catalog"
	"github.com/meridian/stockledger/ledger"
	"github.com/meridian/stockledger/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()

	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	log := logrus.New()
	log.SetOutput(io.Discard)

	cat := catalog.NewCached(store)
	svc := ledger.NewService(store.Stores(), store, cat, log)
	return api.NewRouter(api.NewHandler(svc, cat, log))
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	return out
}

func createReason(t *testing.T, router http.Handler, id, name, typ string, tags ...string) {
	t.Helper()
	rec := doJSON(t, router, http.MethodPost, "/api/reasons", api.CreateReasonRequest{
		ID: id, Name: name, Type: typ, Tags: tags,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func eventLine(orderable, reasonID string, qty int64, date string) api.StockEventLineDTO {
	return api.StockEventLineDTO{
		FacilityID:   "facility-1",
		ProgramID:    "program-1",
		OrderableID:  orderable,
		Quantity:     qty,
		ReasonID:     reasonID,
		OccurredDate: date,
	}
}

// =============================================================================
// END-TO-END FLOW
// =============================================================================

func TestAPI_IngestAndQueryFlow(t *testing.T) {
	// GIVEN: A configured reason catalog
	// WHEN: Receiving stock, issuing it, and querying the card
	// THEN: Balances, history, and range summaries all line up

	router := newTestRouter(t)
	createReason(t, router, "receipt", "Receipt", "credit", "receipt")
	createReason(t, router, "issue", "Issue", "debit", "issue")

	rec := doJSON(t, router, http.MethodPost, "/api/stock-events", api.StockEventRequest{
		Items: []api.StockEventLineDTO{
			eventLine("orderable-1", "receipt", 10, "2020-01-01"),
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	accepted := decode[api.StockEventAcceptedDTO](t, rec)
	require.Len(t, accepted.CardIDs, 1)
	cardID := accepted.CardIDs[0]

	rec = doJSON(t, router, http.MethodPost, "/api/stock-events", api.StockEventRequest{
		Items: []api.StockEventLineDTO{
			eventLine("orderable-1", "issue", 10, "2020-01-05"),
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// Point-in-time balance between the two movements
	rec = doJSON(t, router, http.MethodGet,
		"/api/stock-cards/"+cardID+"/stock-on-hand?as_of=2020-01-03", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	soh := decode[api.StockOnHandDTO](t, rec)
	assert.Equal(t, int64(10), soh.StockOnHand)
	assert.Equal(t, "2020-01-03", soh.AsOf)

	// Card detail with expanded reasons
	rec = doJSON(t, router, http.MethodGet, "/api/stock-cards/"+cardID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	detail := decode[api.StockCardDetailDTO](t, rec)
	require.Len(t, detail.LineItems, 2)
	require.NotNil(t, detail.LineItems[0].Reason)
	assert.Equal(t, "Receipt", detail.LineItems[0].Reason.Name)
	assert.Equal(t, "2020-01-01", detail.LineItems[0].OccurredDate)

	// Range summary
	rec = doJSON(t, router, http.MethodGet,
		"/api/stock-cards/"+cardID+"/range-summary?start=2020-01-01&end=2020-01-06", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	summary := decode[api.RangeSummaryDTO](t, rec)
	assert.Equal(t, 2, summary.StockoutDays, "Jan 5 and Jan 6 carry a zero balance")
	assert.Equal(t, int64(10), summary.TagAmounts["receipt"])
	assert.Equal(t, int64(10), summary.TagAmounts["issue"], "tag amounts sum magnitudes")
}

func TestAPI_ListStockCards(t *testing.T) {
	router := newTestRouter(t)
	createReason(t, router, "receipt", "Receipt", "credit", "receipt")

	rec := doJSON(t, router, http.MethodPost, "/api/stock-events", api.StockEventRequest{
		Items: []api.StockEventLineDTO{
			eventLine("orderable-1", "receipt", 5, "2020-01-01"),
			eventLine("orderable-2", "receipt", 7, "2020-01-01"),
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = doJSON(t, router, http.MethodGet, "/api/stock-cards", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	cards := decode[[]api.StockCardDTO](t, rec)
	assert.Len(t, cards, 2)
}

func TestAPI_Rebuild(t *testing.T) {
	router := newTestRouter(t)
	createReason(t, router, "receipt", "Receipt", "credit", "receipt")

	rec := doJSON(t, router, http.MethodPost, "/api/stock-events", api.StockEventRequest{
		Items: []api.StockEventLineDTO{eventLine("orderable-1", "receipt", 5, "2020-01-01")},
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	cardID := decode[api.StockEventAcceptedDTO](t, rec).CardIDs[0]

	rec = doJSON(t, router, http.MethodPost, "/api/stock-cards/"+cardID+"/rebuild", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodGet,
		"/api/stock-cards/"+cardID+"/stock-on-hand?as_of=2020-01-02", nil)
	assert.Equal(t, int64(5), decode[api.StockOnHandDTO](t, rec).StockOnHand)
}

// =============================================================================
// ERROR MAPPING
// =============================================================================

func TestAPI_EmptyEvent_BadRequest(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/stock-events", api.StockEventRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_UnknownReason_BadRequest(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/stock-events", api.StockEventRequest{
		Items: []api.StockEventLineDTO{eventLine("orderable-1", "ghost", 5, "2020-01-01")},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	resp := decode[api.ErrorResponse](t, rec)
	assert.NotEmpty(t, resp.Error)
}

func TestAPI_BadOccurredDate_BadRequest(t *testing.T) {
	router := newTestRouter(t)
	createReason(t, router, "receipt", "Receipt", "credit")

	rec := doJSON(t, router, http.MethodPost, "/api/stock-events", api.StockEventRequest{
		Items: []api.StockEventLineDTO{eventLine("orderable-1", "receipt", 5, "01/05/2020")},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_UnknownCard_NotFound(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/api/stock-cards/nope/stock-on-hand", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPI_InvalidRange_BadRequest(t *testing.T) {
	router := newTestRouter(t)
	createReason(t, router, "receipt", "Receipt", "credit")

	rec := doJSON(t, router, http.MethodPost, "/api/stock-events", api.StockEventRequest{
		Items: []api.StockEventLineDTO{eventLine("orderable-1", "receipt", 5, "2020-01-01")},
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	cardID := decode[api.StockEventAcceptedDTO](t, rec).CardIDs[0]

	rec = doJSON(t, router, http.MethodGet,
		"/api/stock-cards/"+cardID+"/range-summary?start=2020-01-09&end=2020-01-01", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_InvalidReasonType_BadRequest(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/reasons", api.CreateReasonRequest{
		Name: "Broken", Type: "sideways",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_ListReasons(t *testing.T) {
	router := newTestRouter(t)
	createReason(t, router, "receipt", "Receipt", "credit", "receipt")
	createReason(t, router, "issue", "Issue", "debit", "issue")

	rec := doJSON(t, router, http.MethodGet, "/api/reasons", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	reasons := decode[[]api.ReasonDTO](t, rec)
	assert.Len(t, reasons, 2)
}
