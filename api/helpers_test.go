package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/villacare/planning-engine/counter"
	"github.com/villacare/planning-engine/planning"
	"github.com/villacare/planning-engine/planning/store"
	"github.com/villacare/planning-engine/timeoff"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type testServer struct {
	t      *testing.T
	ctx    context.Context
	store  *store.Memory
	ledger *counter.Ledger
	svc    *planning.Service
	router *chi.Mux
	now    time.Time
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ts := &testServer{
		t:     t,
		ctx:   context.Background(),
		store: store.NewMemory(),
		now:   time.Date(2026, time.January, 20, 9, 0, 0, 0, time.UTC),
	}
	clock := func() time.Time { return ts.now }
	alloc := counter.Allocation{
		AnnualDays:   decimal.NewFromInt(218),
		PeriodicDays: decimal.NewFromInt(25),
	}
	ts.ledger = counter.NewLedger(ts.store, counter.DefaultPeriods(), alloc, counter.WithClock(clock))
	ts.svc = planning.NewService(ts.store, ts.ledger, planning.WithClock(clock))
	absences := timeoff.NewService(ts.store, ts.ledger, timeoff.WithClock(clock))

	h := NewHandler(ts.svc, absences, nil)
	h.now = clock
	ts.router = NewRouter(h, RouterOptions{CORSOrigins: []string{"http://localhost:5173"}})
	return ts
}

// do sends a JSON request and returns the recorder.
func (ts *testServer) do(method, path string, body any) *httptest.ResponseRecorder {
	ts.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(ts.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

// doRaw sends a raw body with an explicit content type.
func (ts *testServer) doRaw(method, path, contentType, body string) *httptest.ResponseRecorder {
	ts.t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

// mustDo sends a request, checks the status and decodes the body into out.
func (ts *testServer) mustDo(method, path string, body any, status int, out any) {
	ts.t.Helper()
	rec := ts.do(method, path, body)
	require.Equal(ts.t, status, rec.Code, rec.Body.String())
	if out != nil {
		require.NoError(ts.t, json.Unmarshal(rec.Body.Bytes(), out))
	}
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func (ts *testServer) villa(name string) VillaDTO {
	var v VillaDTO
	ts.mustDo(http.MethodPost, "/villas", CreateVillaRequest{Name: name, Color: "#10B981"}, http.StatusCreated, &v)
	return v
}

func (ts *testServer) user(name string) UserDTO {
	var u UserDTO
	ts.mustDo(http.MethodPost, "/users", CreateUserRequest{Name: name, Roles: []string{"educator"}}, http.StatusCreated, &u)
	return u
}

const weekdayTemplateYAML = `
name: Semaine standard
isDefault: true
slots:
  - label: Jour
    days: [MO, TU, WE, TH, FR]
    start: "08:00"
    end: "18:00"
`

func (ts *testServer) weekdayTemplate() TemplateDTO {
	ts.t.Helper()
	rec := ts.doRaw(http.MethodPost, "/templates", "application/yaml", weekdayTemplateYAML)
	require.Equal(ts.t, http.StatusCreated, rec.Code, rec.Body.String())
	var out TemplateDTO
	require.NoError(ts.t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

// januaryPlanning generates January 2026 for a villa and returns its view.
func (ts *testServer) januaryPlanning(villaID string) (string, MonthPlanningResponse) {
	ts.t.Helper()
	var gen GenerateMonthResponse
	ts.mustDo(http.MethodPost, "/planning/villas/"+villaID+"/generate", GenerateMonthRequest{Year: 2026, Month: 1}, http.StatusOK, &gen)

	var view MonthPlanningResponse
	ts.mustDo(http.MethodGet, "/planning/villas/"+villaID+"?year=2026&month=1", nil, http.StatusOK, &view)
	return gen.ID, view
}

func affectationOn(t *testing.T, view MonthPlanningResponse, y int, m time.Month, d int) AffectationDTO {
	t.Helper()
	for _, a := range view.Affectations {
		ay, am, ad := a.Start.Date()
		if ay == y && am == m && ad == d {
			return a
		}
	}
	t.Fatalf("no affectation on %04d-%02d-%02d", y, m, d)
	return AffectationDTO{}
}

func warningTypes(ws []WarningDTO) []string {
	out := make([]string, 0, len(ws))
	for _, w := range ws {
		out = append(out, w.Type)
	}
	return out
}
