package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"dacgov.org/internal/engine"
	"dacgov.org/internal/obs"
	"dacgov.org/internal/stream"
)

const serviceName = "dacgov"

type readinessChecker interface {
	Check(ctx context.Context) error
}

// ReadyProbe — простая проверка готовности (например, ping БД).
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// API — HTTP слой.
type API struct {
	mux        *http.ServeMux
	readiness  readinessChecker
	version    string
	engine     *engine.Engine
	stream     *stream.Stream
	text       *bluemonday.Policy
	rateBurst  int
	ratePerSec int
	maxBody    int64
}

// Option tunes the API.
type Option func(*API)

// WithRateLimit sets the per-IP token bucket.
func WithRateLimit(burst, perSecond int) Option {
	return func(a *API) {
		if burst > 0 {
			a.rateBurst = burst
		}
		if perSecond > 0 {
			a.ratePerSec = perSecond
		}
	}
}

func New(rp readinessChecker, version string, eng *engine.Engine, st *stream.Stream, opts ...Option) *API {
	a := &API{
		mux:        http.NewServeMux(),
		readiness:  rp,
		version:    version,
		engine:     eng,
		stream:     st,
		text:       bluemonday.StrictPolicy(),
		rateBurst:  20,
		ratePerSec: 10,
		maxBody:    1 << 20,
	}
	for _, opt := range opts {
		opt(a)
	}

	// health/ready/info
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)

	// Prometheus metrics
	a.mux.Handle("/metrics", obs.Handler())

	// tokens and actions
	a.mux.Handle("/v1/auth/token", RequireRole("admin")(http.HandlerFunc(a.handleAuthToken)))
	a.mux.HandleFunc("/v1/actions", a.handleActionList)
	a.mux.HandleFunc("/v1/actions/{name}", a.handleAction)

	// state
	a.mux.HandleFunc("/v1/supply/{symbol}", a.getSupply)
	a.mux.HandleFunc("/v1/stats/{symbol}", a.getStats)
	a.mux.HandleFunc("/v1/balances/{owner}", a.listBalances)
	a.mux.HandleFunc("/v1/balances/{owner}/{symbol}", a.getBalance)
	a.mux.HandleFunc("/v1/config", a.getConfig)
	a.mux.HandleFunc("/v1/members", a.listMembers)
	a.mux.HandleFunc("/v1/members/{account}", a.getMember)
	a.mux.HandleFunc("/v1/proposals", a.listProposals)
	a.mux.HandleFunc("/v1/proposals/{id}", a.getProposal)
	a.mux.HandleFunc("/v1/votes/{voter}", a.listVotes)
	a.mux.HandleFunc("/v1/votes/{voter}/{id}", a.getVote)
	a.mux.HandleFunc("/v1/announcements", a.listAnnouncements)
	a.mux.HandleFunc("/v1/usage/{payer}", a.getUsage)

	// SSE
	a.mux.HandleFunc("/v1/events", a.Stream)

	// (опционально) корень — 404
	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "resource not found")
	})

	return a
}

// Handler возвращает http.Handler для сервера с полной цепочкой middleware.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = a.withAuth(h)
	h = MaxBodyBytes(h, a.maxBody)
	h = RateLimit(h, a.rateBurst, a.ratePerSec)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	h = RequestID(h)
	// оборачиваем всё метриками
	return obs.Instrument(h)
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readiness.Check(r.Context()); err != nil {
		obs.SetReady(false)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	obs.SetReady(true)
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	info := map[string]any{
		"name":    serviceName,
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	}
	if a.engine != nil {
		info["contract"] = a.engine.Contract()
	}
	writeJSON(w, http.StatusOK, info)
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

func parsePositiveInt(raw string, def, min, max int) (int, error) {
	if strings.TrimSpace(raw) == "" {
		return def, nil
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New("limit must be an integer")
	}
	if val < min || val > max {
		return 0, errors.New("limit must be between " + strconv.Itoa(min) + " and " + strconv.Itoa(max))
	}
	return val, nil
}

func parseID(raw string) (uint64, error) {
	id, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
	if err != nil || id == 0 {
		return 0, errors.New("id must be a positive integer")
	}
	return id, nil
}
