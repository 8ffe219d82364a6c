// Package backendtest runs an in-process fake of the metrics backend for
// tests. It speaks the same wire format as the real service and counts calls
// per route so tests can assert on refresh and export behavior.
package backendtest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
)

// Route names accepted by Calls.
const (
	RouteLogin   = "login"
	RouteLogout  = "logout"
	RouteRefresh = "refresh"
	RouteCard    = "card"
	RoutePreview = "preview"
	RouteExport  = "export"
	RoutePeriods = "periods"
)

// Export is a canned export response.
type Export struct {
	Data        []byte
	Disposition string
	Status      int
	ErrorBody   string
}

// Backend is the fake server.
type Backend struct {
	server *httptest.Server

	mu            sync.Mutex
	users         map[string]string
	valid         map[string]bool
	refreshTokens map[string]bool
	issued        int
	cards         map[string]map[string]any
	previews      map[string]string
	exports       map[string]Export
	periods       []string
	calls         map[string]int
	lastQuery     map[string]string
	failRefresh   bool
	rejectAll     bool
	failLogout    bool
	exportGate    chan struct{}
}

// New starts a Backend that is shut down when the test ends.
func New(t testing.TB) *Backend {
	t.Helper()
	b := &Backend{
		users:         map[string]string{"ana@example.com": "secret"},
		valid:         map[string]bool{},
		refreshTokens: map[string]bool{},
		cards:         map[string]map[string]any{},
		previews:      map[string]string{},
		exports:       map[string]Export{},
		calls:         map[string]int{},
		lastQuery:     map[string]string{},
	}
	b.server = httptest.NewServer(b.routes())
	t.Cleanup(b.server.Close)
	return b
}

// URL is the API base URL, including the /api prefix.
func (b *Backend) URL() string {
	return b.server.URL + "/api"
}

// Calls reports how many times route was hit.
func (b *Backend) Calls(route string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[route]
}

// LastQuery returns the raw query string of the last call to route.
func (b *Backend) LastQuery(route string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastQuery[route]
}

// ExpireAccessTokens invalidates every issued access token.
func (b *Backend) ExpireAccessTokens() {
	b.mu.Lock()
	b.valid = map[string]bool{}
	b.mu.Unlock()
}

// FailRefresh makes /auth/refresh answer 401.
func (b *Backend) FailRefresh(fail bool) {
	b.mu.Lock()
	b.failRefresh = fail
	b.mu.Unlock()
}

// RejectAll makes every authenticated route answer 401.
func (b *Backend) RejectAll(reject bool) {
	b.mu.Lock()
	b.rejectAll = reject
	b.mu.Unlock()
}

// FailLogout makes /auth/logout answer 500.
func (b *Backend) FailLogout(fail bool) {
	b.mu.Lock()
	b.failLogout = fail
	b.mu.Unlock()
}

// GateExports blocks export handlers until the returned release func is called.
func (b *Backend) GateExports() (release func()) {
	gate := make(chan struct{})
	b.mu.Lock()
	b.exportGate = gate
	b.mu.Unlock()
	var once sync.Once
	return func() { once.Do(func() { close(gate) }) }
}

// SetCard registers the JSON value served for card at period.
func (b *Backend) SetCard(card, period string, payload any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cards[card] == nil {
		b.cards[card] = map[string]any{}
	}
	b.cards[card][period] = payload
}

// SetPreview registers the raw JSON preview body for card.
func (b *Backend) SetPreview(card, body string) {
	b.mu.Lock()
	b.previews[card] = body
	b.mu.Unlock()
}

// SetExport registers the export response for card.
func (b *Backend) SetExport(card string, export Export) {
	b.mu.Lock()
	b.exports[card] = export
	b.mu.Unlock()
}

// SetPeriods registers the available periods, most recent first.
func (b *Backend) SetPeriods(periods ...string) {
	b.mu.Lock()
	b.periods = periods
	b.mu.Unlock()
}

func (b *Backend) routes() http.Handler {
	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/login", b.handleLogin)
		r.Post("/auth/refresh", b.handleRefresh)
		r.Group(func(r chi.Router) {
			r.Use(b.requireBearer)
			r.Post("/auth/logout", b.handleLogout)
			r.Get("/dashboard/card/{card}", b.handleCard)
			r.Get("/dashboard/export/{card}", b.handleExport)
			r.Get("/dashboard/available-dates", b.handlePeriods)
		})
	})
	return r
}

func (b *Backend) count(route string, r *http.Request) {
	b.mu.Lock()
	b.calls[route]++
	b.lastQuery[route] = r.URL.RawQuery
	b.mu.Unlock()
}

func (b *Backend) requireBearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		b.mu.Lock()
		ok := !b.rejectAll && b.valid[token]
		b.mu.Unlock()
		if !ok {
			if strings.HasSuffix(r.URL.Path, "/auth/logout") {
				b.count(RouteLogout, r)
			} else {
				b.count(routeFor(r), r)
			}
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "token expired"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func routeFor(r *http.Request) string {
	switch {
	case strings.Contains(r.URL.Path, "/dashboard/card/"):
		return RouteCard
	case strings.Contains(r.URL.Path, "/dashboard/export/"):
		if r.URL.Query().Get("preview") == "true" {
			return RoutePreview
		}
		return RouteExport
	case strings.HasSuffix(r.URL.Path, "/available-dates"):
		return RoutePeriods
	}
	return "other"
}

func (b *Backend) issue() (string, string) {
	b.issued++
	access := fmt.Sprintf("access-%d", b.issued)
	refresh := fmt.Sprintf("refresh-%d", b.issued)
	b.valid[access] = true
	b.refreshTokens[refresh] = true
	return access, refresh
}

func (b *Backend) handleLogin(w http.ResponseWriter, r *http.Request) {
	b.count(RouteLogin, r)
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Email == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "email and password are required"})
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if pw, ok := b.users[body.Email]; !ok || pw != body.Password {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Credenciais inválidas"})
		return
	}
	access, refresh := b.issue()
	writeJSON(w, http.StatusOK, map[string]any{
		"access_token":  access,
		"refresh_token": refresh,
		"user": map[string]any{
			"id":    1,
			"name":  "Ana",
			"email": body.Email,
			"role":  "admin",
		},
	})
}

func (b *Backend) handleRefresh(w http.ResponseWriter, r *http.Request) {
	b.count(RouteRefresh, r)
	var body struct {
		RefreshToken string `json:"refresh_token"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failRefresh || !b.refreshTokens[body.RefreshToken] {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "refresh token invalid"})
		return
	}
	b.issued++
	access := fmt.Sprintf("access-%d", b.issued)
	b.valid[access] = true
	writeJSON(w, http.StatusOK, map[string]string{"access_token": access})
}

func (b *Backend) handleLogout(w http.ResponseWriter, r *http.Request) {
	b.count(RouteLogout, r)
	b.mu.Lock()
	fail := b.failLogout
	b.mu.Unlock()
	if fail {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "logout failed"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "ok"})
}

func (b *Backend) handleCard(w http.ResponseWriter, r *http.Request) {
	b.count(RouteCard, r)
	card := chi.URLParam(r, "card")
	period := periodOf(r)
	b.mu.Lock()
	payload, ok := b.cards[card][period]
	b.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Card não encontrado: " + card})
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

func (b *Backend) handleExport(w http.ResponseWriter, r *http.Request) {
	card := chi.URLParam(r, "card")
	if r.URL.Query().Get("preview") == "true" {
		b.count(RoutePreview, r)
		b.mu.Lock()
		body, ok := b.previews[card]
		b.mu.Unlock()
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "preview indisponível"})
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
		return
	}

	b.count(RouteExport, r)
	b.mu.Lock()
	gate := b.exportGate
	b.mu.Unlock()
	if gate != nil {
		<-gate
	}
	b.mu.Lock()
	export, ok := b.exports[card]
	b.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "export indisponível"})
		return
	}
	if export.Status >= 400 {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(export.Status)
		_, _ = w.Write([]byte(export.ErrorBody))
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	if export.Disposition != "" {
		w.Header().Set("Content-Disposition", export.Disposition)
	}
	_, _ = w.Write(export.Data)
}

func (b *Backend) handlePeriods(w http.ResponseWriter, r *http.Request) {
	b.count(RoutePeriods, r)
	b.mu.Lock()
	periods := append([]string{}, b.periods...)
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, periods)
}

func periodOf(r *http.Request) string {
	if r.URL.Query().Get("consolidated") == "true" {
		return "consolidated"
	}
	return r.URL.Query().Get("date")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
