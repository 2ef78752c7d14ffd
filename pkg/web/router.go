// Package web exposes the dispatcher over HTTP.
package web

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/morezero/action-dispatcher/pkg/dispatcher"
	"github.com/morezero/action-dispatcher/pkg/registry"
	"github.com/morezero/action-dispatcher/pkg/request"
	"github.com/morezero/action-dispatcher/pkg/result"
)

const logPrefix = "web:router"

// Request headers mapped onto request meta and tag.
const (
	HeaderAPIKey = "X-Api-Key"
	HeaderTag    = "X-Request-Tag"
)

// DefaultMaxBodyBytes bounds request bodies.
const DefaultMaxBodyBytes = 1 << 20

// Lister lists the actions callable over the web.
type Lister interface {
	ListVisible(protocol string) []registry.ActionInfo
}

type api struct {
	dispatcher   *dispatcher.Dispatcher
	lister       Lister
	decoder      *request.Decoder
	ready        func(ctx context.Context) error
	readyTimeout time.Duration
	maxBody      int64
}

// NewRouterParams holds parameters for NewRouter.
type NewRouterParams struct {
	Dispatcher *dispatcher.Dispatcher
	Lister     Lister
	Decoder    *request.Decoder
	// Ready reports whether backing services are reachable; nil is always ready.
	Ready        func(ctx context.Context) error
	ReadyTimeout time.Duration
	// Metrics is mounted at /metrics when set.
	Metrics      http.Handler
	MaxBodyBytes int64
	// Title and Version label the HTML pages and /openapi.json, which are
	// served only when Lister is set.
	Title   string
	Version string
}

// NewRouter builds the HTTP handler.
func NewRouter(params NewRouterParams) (http.Handler, error) {
	if params.Dispatcher == nil {
		return nil, fmt.Errorf("%s - dispatcher is required", logPrefix)
	}
	dec := params.Decoder
	if dec == nil {
		var err error
		if dec, err = request.NewDecoder(""); err != nil {
			return nil, fmt.Errorf("%s - failed to create decoder: %w", logPrefix, err)
		}
	}
	a := &api{
		dispatcher:   params.Dispatcher,
		lister:       params.Lister,
		decoder:      dec,
		ready:        params.Ready,
		readyTimeout: params.ReadyTimeout,
		maxBody:      params.MaxBodyBytes,
	}
	if a.readyTimeout <= 0 {
		a.readyTimeout = 5 * time.Second
	}
	if a.maxBody <= 0 {
		a.maxBody = DefaultMaxBodyBytes
	}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", a.health)
	r.Get("/ready", a.readiness)
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics)
	}

	if params.Lister != nil {
		p := &pages{dispatcher: params.Dispatcher, lister: params.Lister, title: params.Title, version: params.Version}
		p.mount(r)
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/", a.list)
		r.Post("/", a.envelope)
		r.HandleFunc("/{area}/{name}/{action}", a.dispatchPath)
	})
	return r, nil
}

func (a *api) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "healthy",
		"stats":  a.dispatcher.Stats(),
	})
}

func (a *api) readiness(w http.ResponseWriter, r *http.Request) {
	if a.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), a.readyTimeout)
		defer cancel()
		if err := a.ready(ctx); err != nil {
			slog.Warn(fmt.Sprintf("%s - readiness check failed: %v", logPrefix, err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (a *api) list(w http.ResponseWriter, _ *http.Request) {
	var actions []registry.ActionInfo
	if a.lister != nil {
		actions = a.lister.ListVisible(request.SourceWeb.String())
	}
	if actions == nil {
		actions = []registry.ActionInfo{}
	}
	writeJSON(w, http.StatusOK, actions)
}

func (a *api) envelope(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, a.maxBody))
	if err != nil {
		writeResult(w, result.BadRequest(result.MsgInvalidRequest).WithDetails(err.Error()).ToResult(r.Header.Get(HeaderTag)))
		return
	}
	writeResult(w, a.dispatcher.DispatchEnvelope(r.Context(), a.decoder, body, request.SourceWeb))
}

func (a *api) dispatchPath(w http.ResponseWriter, r *http.Request) {
	tag := r.Header.Get(HeaderTag)
	data, err := requestData(r, a.maxBody)
	if err != nil {
		writeResult(w, result.BadRequest(result.MsgInvalidRequest).WithDetails(err.Error()).ToResult(tag))
		return
	}
	path := strings.Join([]string{chi.URLParam(r, "area"), chi.URLParam(r, "name"), chi.URLParam(r, "action")}, ".")
	req, err := request.New(request.Params{
		Path:   path,
		Source: request.SourceWeb,
		Verb:   r.Method,
		Data:   data,
		Meta:   requestMeta(r),
		Tag:    tag,
	})
	if err != nil {
		writeResult(w, result.BadRequest(result.MsgInvalidRequest).WithDetails(err.Error()).ToResult(tag))
		return
	}
	writeResult(w, a.dispatcher.Dispatch(r.Context(), req))
}

// writeResult writes res with the HTTP status equal to its code.
func writeResult(w http.ResponseWriter, res *result.Result) {
	if res.Tag != "" {
		w.Header().Set(HeaderTag, res.Tag)
	}
	status := res.Code
	if status < 100 || status > 599 {
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, res)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error(fmt.Sprintf("%s - failed to encode response: %v", logPrefix, err))
		status = http.StatusInternalServerError
		data, _ = json.Marshal(result.Unexpected(result.MsgUnexpected).ToResult(""))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		slog.Debug(fmt.Sprintf("%s - failed to write response: %v", logPrefix, err))
	}
}
