package httpserver

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/rucnyz/vulscan-plugin/internal/application/analyzer"
	"github.com/rucnyz/vulscan-plugin/internal/application/viewsync"
	"github.com/rucnyz/vulscan-plugin/internal/domain/analysis"
	"github.com/rucnyz/vulscan-plugin/internal/domain/history"
	"github.com/rucnyz/vulscan-plugin/internal/infra/highlights"
	"github.com/rucnyz/vulscan-plugin/internal/infra/notify"
	"github.com/rucnyz/vulscan-plugin/internal/middleware"
)

type Router struct {
	analyzerSvc *analyzer.Service
	views       *viewsync.Service
	highlights  *highlights.State
	notices     *notify.Center
	history     history.Repository
	failures    history.FailureRepository
}

// NewRouter wires the daemon's HTTP surface. The history and failures
// repositories may be nil when the daemon runs without a database.
func NewRouter(
	analyzerSvc *analyzer.Service,
	views *viewsync.Service,
	hl *highlights.State,
	notices *notify.Center,
	hist history.Repository,
	failures history.FailureRepository,
	health http.HandlerFunc,
) http.Handler {
	r := &Router{
		analyzerSvc: analyzerSvc,
		views:       views,
		highlights:  hl,
		notices:     notices,
		history:     hist,
		failures:    failures,
	}
	mux := chi.NewRouter()

	mux.Get("/health", health)
	mux.Get("/metrics", middleware.MetricsHandler)

	mux.Route("/v1", func(rt chi.Router) {
		rt.Post("/documents/analyze", r.wrap(r.handleAnalyzeDocument))
		rt.Post("/documents/clear", r.wrap(r.handleClearDocument))
		rt.Get("/documents/results", r.wrap(r.handleResults))
		rt.Get("/documents/highlights", r.wrap(r.handleHighlights))

		rt.Post("/selection/analyze", r.wrap(r.handleAnalyzeSelection))

		rt.Get("/runs", r.wrap(r.handleListRuns))
		rt.Get("/runs/{id}", r.wrap(r.handleGetRun))
		rt.Post("/runs/{id}/cancel", r.wrap(r.handleCancelRun))

		rt.Post("/focus", r.wrap(r.handleFocus))
		rt.Get("/token-usage", r.wrap(r.handleTokenUsage))
		rt.Get("/notifications", r.wrap(r.handleNotifications))

		rt.Get("/history", r.wrap(r.handleHistory))
		rt.Get("/history/failures", r.wrap(r.handleFailures))
	})

	return mux
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

// statusError carries an explicit HTTP status through the wrap() funnel.
type statusError struct {
	code int
	err  error
}

func (e statusError) Error() string { return e.err.Error() }
func (e statusError) Unwrap() error { return e.err }

func badRequest(err error) error { return statusError{code: http.StatusBadRequest, err: err} }

func notFound(what string) error {
	return statusError{code: http.StatusNotFound, err: fmt.Errorf("%s not found", what)}
}

func (r *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if err := h(w, req); err != nil {
			var se statusError
			if errors.As(err, &se) {
				http.Error(w, se.Error(), se.code)
				return
			}
			if errors.Is(err, sql.ErrNoRows) {
				http.Error(w, "not found", http.StatusNotFound)
				return
			}
			if errors.Is(err, analysis.ErrQuotaExceeded) {
				http.Error(w, "analysis quota exceeded", http.StatusTooManyRequests)
				return
			}
			if errors.Is(err, analysis.ErrRateLimited) {
				w.Header().Set("Retry-After", "60")
				http.Error(w, "analysis service rate limited", http.StatusTooManyRequests)
				return
			}
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	}
}

// POST /v1/documents/analyze
// Body: {"uri": "...", "language": "...", "text": "...", "track": "security", "model": "...", "file_path": "..."}
// The run continues in background; poll /v1/runs/{id} for progress.
func (r *Router) handleAnalyzeDocument(w http.ResponseWriter, req *http.Request) error {
	var body struct {
		URI      string `json:"uri"`
		Language string `json:"language"`
		Text     string `json:"text"`
		Track    string `json:"track"`
		Model    string `json:"model"`
		FilePath string `json:"file_path"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		return badRequest(err)
	}
	if err := middleware.ValidateURI(body.URI); err != nil {
		return badRequest(err)
	}
	if err := middleware.ValidateLanguage(body.Language); err != nil {
		return badRequest(err)
	}
	if err := middleware.ValidateTrack(body.Track); err != nil {
		return badRequest(err)
	}
	if err := middleware.ValidateModel(body.Model); err != nil {
		return badRequest(err)
	}

	runID, err := r.analyzerSvc.StartDocumentAnalysis(req.Context(), analyzer.AnalyzeDocumentCommand{
		Doc: analysis.Document{
			URI:      body.URI,
			Language: body.Language,
			Text:     body.Text,
		},
		Track:    analysis.Track(body.Track),
		Model:    body.Model,
		FilePath: middleware.SanitizeString(body.FilePath),
	})
	if err != nil {
		return err
	}
	middleware.IncrementRuns()

	resp := map[string]any{
		"run_id":   runID,
		"status":   "queued",
		"uri":      body.URI,
		"track":    body.Track,
		"queuedAt": time.Now(),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	return json.NewEncoder(w).Encode(resp)
}

// POST /v1/selection/analyze
// Runs synchronously: extraction rounds plus one deep analysis call.
func (r *Router) handleAnalyzeSelection(w http.ResponseWriter, req *http.Request) error {
	var body struct {
		URI       string `json:"uri"`
		Language  string `json:"language"`
		Code      string `json:"code"`
		StartLine int    `json:"start_line"`
		EndLine   int    `json:"end_line"`
		Track     string `json:"track"`
		Model     string `json:"model"`
		FilePath  string `json:"file_path"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		return badRequest(err)
	}
	if err := middleware.ValidateURI(body.URI); err != nil {
		return badRequest(err)
	}
	if err := middleware.ValidateTrack(body.Track); err != nil {
		return badRequest(err)
	}
	if err := middleware.ValidateModel(body.Model); err != nil {
		return badRequest(err)
	}
	if body.Code == "" {
		return badRequest(fmt.Errorf("code is required"))
	}

	rec, err := r.analyzerSvc.AnalyzeSelection(req.Context(), analyzer.AnalyzeSelectionCommand{
		Doc: analysis.Document{
			URI:      body.URI,
			Language: body.Language,
		},
		Code:      body.Code,
		StartLine: body.StartLine,
		EndLine:   body.EndLine,
		Track:     analysis.Track(body.Track),
		Model:     body.Model,
		FilePath:  middleware.SanitizeString(body.FilePath),
	})
	if err != nil {
		return err
	}

	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(rec)
}

// GET /v1/runs
func (r *Router) handleListRuns(w http.ResponseWriter, req *http.Request) error {
	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(r.analyzerSvc.Runs.List())
}

// GET /v1/runs/{id}
func (r *Router) handleGetRun(w http.ResponseWriter, req *http.Request) error {
	id := chi.URLParam(req, "id")
	status, ok := r.analyzerSvc.Runs.Get(id)
	if !ok {
		return notFound("run")
	}
	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(status)
}

// POST /v1/runs/{id}/cancel
func (r *Router) handleCancelRun(w http.ResponseWriter, req *http.Request) error {
	id := chi.URLParam(req, "id")
	if !r.analyzerSvc.CancelRun(id) {
		return notFound("running run")
	}
	middleware.IncrementRunsCanceled()
	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(map[string]any{"run_id": id, "status": "canceling"})
}

// GET /v1/documents/results?uri=&track=
func (r *Router) handleResults(w http.ResponseWriter, req *http.Request) error {
	uri := req.URL.Query().Get("uri")
	track := req.URL.Query().Get("track")
	if err := middleware.ValidateURI(uri); err != nil {
		return badRequest(err)
	}
	if err := middleware.ValidateTrack(track); err != nil {
		return badRequest(err)
	}

	records := r.analyzerSvc.Results(uri, analysis.Track(track))
	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(records)
}

// GET /v1/documents/highlights?uri=
func (r *Router) handleHighlights(w http.ResponseWriter, req *http.Request) error {
	uri := req.URL.Query().Get("uri")
	if err := middleware.ValidateURI(uri); err != nil {
		return badRequest(err)
	}
	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(r.highlights.Get(uri))
}

// POST /v1/documents/clear
func (r *Router) handleClearDocument(w http.ResponseWriter, req *http.Request) error {
	var body struct {
		URI string `json:"uri"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		return badRequest(err)
	}
	if err := middleware.ValidateURI(body.URI); err != nil {
		return badRequest(err)
	}

	r.analyzerSvc.ClearDocument(body.URI)
	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(map[string]any{"uri": body.URI, "status": "cleared"})
}

// POST /v1/focus
// The extension reports the active editor; highlights follow focus.
func (r *Router) handleFocus(w http.ResponseWriter, req *http.Request) error {
	var body struct {
		URI string `json:"uri"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		return badRequest(err)
	}
	if err := middleware.ValidateURI(body.URI); err != nil {
		return badRequest(err)
	}

	r.views.SetFocus(body.URI)
	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(map[string]any{
		"focused":    body.URI,
		"highlights": r.highlights.Get(body.URI),
	})
}

// GET /v1/token-usage
func (r *Router) handleTokenUsage(w http.ResponseWriter, req *http.Request) error {
	usage, err := r.analyzerSvc.TokenUsage(req.Context())
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(usage)
}

// GET /v1/notifications?after=<id>
func (r *Router) handleNotifications(w http.ResponseWriter, req *http.Request) error {
	after, _ := strconv.ParseInt(req.URL.Query().Get("after"), 10, 64)
	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(r.notices.Since(after))
}

// GET /v1/history?uri=&limit= or ?page=&page_size=
func (r *Router) handleHistory(w http.ResponseWriter, req *http.Request) error {
	if r.history == nil {
		return notFound("run history (no database configured)")
	}

	q := req.URL.Query()
	var (
		runs []*history.Run
		err  error
	)
	if uri := q.Get("uri"); uri != "" {
		limit := middleware.ValidateLimit(atoiDefault(q.Get("limit"), 0))
		runs, err = r.history.LatestByDocument(req.Context(), uri, limit)
	} else {
		page := atoiDefault(q.Get("page"), 1)
		size := middleware.ValidateLimit(atoiDefault(q.Get("page_size"), 0))
		runs, err = r.history.Paginate(req.Context(), page, size)
	}
	if err != nil {
		return err
	}

	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(runs)
}

// GET /v1/history/failures?run_id=&limit=
func (r *Router) handleFailures(w http.ResponseWriter, req *http.Request) error {
	if r.failures == nil {
		return notFound("failure history (no database configured)")
	}

	runID := req.URL.Query().Get("run_id")
	if runID == "" {
		return badRequest(fmt.Errorf("run_id is required"))
	}
	limit := middleware.ValidateLimit(atoiDefault(req.URL.Query().Get("limit"), 0))

	list, err := r.failures.ListByRun(req.Context(), runID, limit)
	if err != nil {
		return err
	}

	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(list)
}

func atoiDefault(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
