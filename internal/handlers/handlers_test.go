package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"emlak-aggregator/internal/broker"
	"emlak-aggregator/internal/config"
	"emlak-aggregator/internal/database"
	"emlak-aggregator/internal/normalize"
	"emlak-aggregator/internal/parser"
	"emlak-aggregator/internal/ratelimit"
	"emlak-aggregator/internal/search"
	"emlak-aggregator/internal/tasks"
)

var istanbul = url.QueryEscape("İstanbul")

func init() {
	gin.SetMode(gin.TestMode)
}

type fixture struct {
	router *gin.Engine
	store  *database.Store
	status *broker.StatusStore
}

func newFixture(t *testing.T, limiter *ratelimit.RateLimiter, searcher Searcher) *fixture {
	t.Helper()
	store, err := database.OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	status := broker.NewStatusStore(broker.NewMemoryBroker(), time.Hour)
	h := New(Options{
		Dispatcher: tasks.NewDispatcher(tasks.NewMemoryQueue(), status, nil),
		Store:      store,
		Limiter:    limiter,
		Search:     searcher,
	})
	return &fixture{
		router: NewRouter(h, config.DefaultConfig().API),
		store:  store,
		status: status,
	}
}

func (f *fixture) do(t *testing.T, method, path, body string) (int, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	var out map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("%s %s: body %q is not a JSON object", method, path, w.Body.String())
	}
	return w.Code, out
}

func (f *fixture) seed(t *testing.T, prices ...float64) {
	t.Helper()
	ctx := context.Background()
	session, _, err := f.store.StartSession(ctx, database.SessionParams{
		TaskID:      "seed",
		Platform:    string(parser.PortalPrimary),
		Category:    string(parser.CategoryResidence),
		ListingType: string(parser.ListingForSale),
		Cities:      []string{"istanbul"},
	})
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	records := make([]parser.Record, len(prices))
	for i, price := range prices {
		p := price
		records[i] = parser.Record{
			Title:        "Kadıköy 2+1",
			PriceText:    normalize.FormatPrice(p),
			Price:        &p,
			Platform:     parser.PortalPrimary,
			Category:     parser.CategoryResidence,
			ListingType:  parser.ListingForSale,
			Province:     "İstanbul",
			District:     "Kadıköy",
			Neighborhood: "Moda",
			URL:          "https://www.hepsiemlak.com/ilan/" + string(rune('a'+i)),
		}
	}
	if _, err := f.store.CommitPage(ctx, session.ID, records); err != nil {
		t.Fatalf("CommitPage: %v", err)
	}
}

func TestHealth(t *testing.T) {
	f := newFixture(t, nil, nil)
	code, body := f.do(t, http.MethodGet, "/health", "")
	if code != http.StatusOK || body["status"] != "ok" {
		t.Errorf("health = %d %v", code, body)
	}
}

func TestSubmitStatusStop(t *testing.T) {
	f := newFixture(t, nil, nil)

	code, _ := f.do(t, http.MethodGet, "/api/scrape/status", "")
	if code != http.StatusNotFound {
		t.Errorf("status with no task = %d; want 404", code)
	}
	code, _ = f.do(t, http.MethodPost, "/api/scrape/stop", "")
	if code != http.StatusNotFound {
		t.Errorf("stop with no task = %d; want 404", code)
	}

	code, body := f.do(t, http.MethodPost, "/api/scrape", `{"listing_type":"for-sale","category":"residence","cities":[]}`)
	if code != http.StatusBadRequest {
		t.Fatalf("invalid submit = %d; want 400", code)
	}
	details, _ := body["details"].([]interface{})
	if len(details) == 0 {
		t.Fatalf("400 body has no details: %v", body)
	}
	if first, _ := details[0].(map[string]interface{}); first["field"] != "cities" {
		t.Errorf("details[0] = %v; want field cities", details[0])
	}

	code, body = f.do(t, http.MethodPost, "/api/scrape", `{"listing_type":"satilik","category":"residence","cities":["Ankara"]}`)
	if code != http.StatusAccepted {
		t.Fatalf("submit = %d %v; want 202", code, body)
	}
	id, _ := body["task_id"].(string)
	if id == "" {
		t.Fatalf("no task_id in %v", body)
	}

	code, body = f.do(t, http.MethodGet, "/api/scrape/status?task_id="+id, "")
	if code != http.StatusOK || body["status"] != string(broker.TaskPending) {
		t.Errorf("status = %d %v", code, body)
	}
	code, _ = f.do(t, http.MethodGet, "/api/scrape/status?task_id=missing", "")
	if code != http.StatusNotFound {
		t.Errorf("unknown task status = %d; want 404", code)
	}

	code, body = f.do(t, http.MethodPost, "/api/scrape/stop", "")
	if code != http.StatusOK || body["task_id"] != id {
		t.Errorf("stop = %d %v", code, body)
	}
	if stop, _ := f.status.StopRequested(context.Background(), id); !stop {
		t.Errorf("stop flag not set")
	}
}

func TestSubmitRateLimited(t *testing.T) {
	f := newFixture(t, ratelimit.NewRateLimiter(1, 0), nil)
	body := `{"listing_type":"for-rent","category":"residence","cities":["İzmir"]}`

	if code, _ := f.do(t, http.MethodPost, "/api/scrape", body); code != http.StatusAccepted {
		t.Fatalf("first submit = %d", code)
	}
	if code, _ := f.do(t, http.MethodPost, "/api/scrape", body); code != http.StatusTooManyRequests {
		t.Errorf("second submit = %d; want 429", code)
	}
}

func TestListingsAndAnalytics(t *testing.T) {
	f := newFixture(t, nil, nil)

	if code, body := f.do(t, http.MethodGet, "/api/analytics/summary", ""); code != http.StatusNotFound || body["error"] != "no data" {
		t.Errorf("empty summary = %d %v", code, body)
	}

	f.seed(t, 1000000, 2000000, 3000000, 4000000)

	code, body := f.do(t, http.MethodGet, "/api/listings?limit=2&city="+istanbul, "")
	if code != http.StatusOK || body["total"] != float64(4) || body["count"] != float64(2) {
		t.Errorf("listings = %d total %v count %v", code, body["total"], body["count"])
	}
	code, body = f.do(t, http.MethodGet, "/api/listings?city=Ankara", "")
	if code != http.StatusOK || body["total"] != float64(0) {
		t.Errorf("filtered listings = %d %v", code, body["total"])
	}

	code, body = f.do(t, http.MethodGet, "/api/analytics/summary?platform=hepsiemlak", "")
	if code != http.StatusOK {
		t.Fatalf("summary = %d %v", code, body)
	}
	summary, _ := body["summary"].(map[string]interface{})
	if summary["count"] != float64(4) || summary["median"] != float64(2500000) {
		t.Errorf("summary = %v", summary)
	}

	code, body = f.do(t, http.MethodGet, "/api/analytics/distribution?buckets=2", "")
	if code != http.StatusOK {
		t.Fatalf("distribution = %d %v", code, body)
	}
	if buckets, _ := body["buckets"].([]interface{}); len(buckets) != 2 {
		t.Errorf("buckets = %v", body["buckets"])
	}
	if code, _ := f.do(t, http.MethodGet, "/api/analytics/distribution?buckets=0", ""); code != http.StatusBadRequest {
		t.Errorf("buckets=0 = %d; want 400", code)
	}

	code, body = f.do(t, http.MethodGet, "/api/sessions", "")
	if code != http.StatusOK || body["count"] != float64(1) {
		t.Errorf("sessions = %d %v", code, body)
	}
}

func TestPriceHistory(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.seed(t, 1500000)

	listing, err := f.store.GetListingByURL(context.Background(), "https://www.hepsiemlak.com/ilan/a")
	if err != nil {
		t.Fatalf("GetListingByURL: %v", err)
	}
	code, body := f.do(t, http.MethodGet, "/api/listings/"+itoa(listing.ID)+"/history", "")
	if code != http.StatusOK || body["count"] != float64(0) {
		t.Errorf("history = %d %v", code, body)
	}
	if code, _ := f.do(t, http.MethodGet, "/api/listings/999/history", ""); code != http.StatusNotFound {
		t.Errorf("missing listing = %d; want 404", code)
	}
	if code, _ := f.do(t, http.MethodGet, "/api/listings/abc/history", ""); code != http.StatusBadRequest {
		t.Errorf("bad id = %d; want 400", code)
	}
}

type stubSearcher struct {
	got search.Params
}

func (s *stubSearcher) Search(_ context.Context, p search.Params) (*search.Result, error) {
	s.got = p
	return &search.Result{Hits: []search.Document{{ID: 1, Title: "Moda"}}, TotalHits: 1}, nil
}

func TestSearch(t *testing.T) {
	if code, _ := newFixture(t, nil, nil).do(t, http.MethodGet, "/api/search?q=moda", ""); code != http.StatusServiceUnavailable {
		t.Errorf("disabled search = %d; want 503", code)
	}

	s := &stubSearcher{}
	f := newFixture(t, nil, s)
	code, body := f.do(t, http.MethodGet, "/api/search?q=moda&min_price=1000000&sort=price_asc&city="+istanbul, "")
	if code != http.StatusOK || body["total_hits"] != float64(1) {
		t.Errorf("search = %d %v", code, body)
	}
	if s.got.Query != "moda" || s.got.City != "İstanbul" || s.got.MinPrice == nil || *s.got.MinPrice != 1000000 || s.got.SortBy != "price_asc" {
		t.Errorf("params = %+v", s.got)
	}
}

func itoa(n uint) string {
	b, _ := json.Marshal(n)
	return string(b)
}
