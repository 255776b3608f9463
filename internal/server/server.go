// Package server exposes a registry over HTTP and tails stores over
// WebSocket.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Geun-Oh/lxring/internal/buffer"
	"github.com/Geun-Oh/lxring/internal/entry"
	"github.com/Geun-Oh/lxring/internal/registry"
	"github.com/Geun-Oh/lxring/internal/sink"
)

// Options configures a Server.
type Options struct {
	// DefaultCapacity is used by POST /stores requests without a capacity.
	DefaultCapacity int
	// TailVersion is the header version of tails that do not ask for one.
	TailVersion entry.Version
	// RequestTimeout bounds every request except tails.
	RequestTimeout time.Duration
	Logger         *slog.Logger
}

// Server is the HTTP front of a registry.
type Server struct {
	reg    *registry.Registry
	opts   Options
	log    *slog.Logger
	router chi.Router
}

// New builds the router.
func New(reg *registry.Registry, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.DefaultCapacity == 0 {
		opts.DefaultCapacity = reg.Limits().MinCapacity
	}
	if opts.TailVersion == 0 {
		opts.TailVersion = entry.V2
	}
	if opts.RequestTimeout == 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	s := &Server{reg: reg, opts: opts, log: opts.Logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/stores/{name}/tail", s.tail)
	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(opts.RequestTimeout))
		r.Get("/stores", s.listStores)
		r.Post("/stores", s.createStore)
		r.Get("/stores/{name}", s.getStore)
		r.Get("/stores/{name}/entries", s.listEntries)
		r.Post("/stores/{name}/entries", s.appendEntries)
	})
	s.router = r
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusOf(err), errorResponse{Error: err.Error()})
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, registry.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, registry.ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, registry.ErrTooManyStores):
		return http.StatusInsufficientStorage
	case errors.Is(err, buffer.ErrEntryTooLarge),
		errors.Is(err, errBodyTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, registry.ErrInvalidName),
		errors.Is(err, registry.ErrInvalidCapacity),
		errors.Is(err, buffer.ErrInvalidTag),
		errors.Is(err, buffer.ErrInvalidTimestamp),
		errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

var (
	errBadRequest   = errors.New("bad request")
	errBodyTooLarge = errors.New("request body too large")
)

// Request bodies are capped. A create request is a small JSON object. An
// append batch may carry twice the store's capacity plus framing.
const (
	maxCreateBody = 4 << 10
	bodySlack     = 4 << 10
)

func appendBodyLimit(st *buffer.Store) int64 {
	return 2*int64(st.Capacity()) + bodySlack
}

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

// bodyError reports a failed body read, keeping a size cap hit apart from a
// malformed body.
func bodyError(what string, err error) error {
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		return fmt.Errorf("%w: limit is %d bytes", errBodyTooLarge, mbe.Limit)
	}
	return badRequest("%s: %v", what, err)
}

func (s *Server) listStores(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.reg.Stats())
}

type createRequest struct {
	Name     string `json:"name"`
	Capacity int    `json:"capacity"`
}

func (s *Server) createStore(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	body := http.MaxBytesReader(w, r.Body, maxCreateBody)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		writeError(w, bodyError("invalid JSON body", err))
		return
	}
	if req.Capacity == 0 {
		req.Capacity = s.opts.DefaultCapacity
	}
	st, err := s.reg.Create(req.Name, req.Capacity)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, st.Stats())
}

func (s *Server) store(w http.ResponseWriter, r *http.Request) (*buffer.Store, bool) {
	st, err := s.reg.Lookup(chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, err)
		return nil, false
	}
	return st, true
}

func (s *Server) getStore(w http.ResponseWriter, r *http.Request) {
	st, ok := s.store(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, st.Stats())
}

func (s *Server) listEntries(w http.ResponseWriter, r *http.Request) {
	st, ok := s.store(w, r)
	if !ok {
		return
	}
	v, err := entry.ParseVersion(r.URL.Query().Get("version"))
	if err != nil {
		writeError(w, badRequest("%v", err))
		return
	}
	entries, err := st.Entries(v)
	if err != nil {
		writeError(w, err)
		return
	}
	lines := make([]sink.Line, len(entries))
	for i, e := range entries {
		lines[i] = sink.LineOf(e)
	}
	writeJSON(w, http.StatusOK, lines)
}

// AppendRequest is one entry in a POST /stores/{name}/entries body.
type AppendRequest struct {
	Tag     string `json:"tag"`
	PID     int32  `json:"pid"`
	TID     int32  `json:"tid"`
	UID     uint32 `json:"uid"`
	Message string `json:"message"`
	// Time defaults to the time the request is handled.
	Time *time.Time `json:"time,omitempty"`
}

type appendResponse struct {
	Appended int `json:"appended"`
}

// appendEntries takes a JSON array of AppendRequest, or with a text/plain
// body one entry per line tagged by the "tag" query parameter.
func (s *Server) appendEntries(w http.ResponseWriter, r *http.Request) {
	st, ok := s.store(w, r)
	if !ok {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, appendBodyLimit(st))
	recs, err := decodeRecords(r)
	if err != nil {
		writeError(w, err)
		return
	}
	n := 0
	for i := range recs {
		if err := st.Write(&recs[i]); err != nil {
			writeError(w, fmt.Errorf("entry %d (%d appended): %w", i, n, err))
			return
		}
		n++
	}
	writeJSON(w, http.StatusOK, appendResponse{Appended: n})
}

func decodeRecords(r *http.Request) ([]entry.Record, error) {
	now := entry.TimestampOf(time.Now())
	if strings.HasPrefix(r.Header.Get("Content-Type"), "text/plain") {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, bodyError("read body", err)
		}
		tag := r.URL.Query().Get("tag")
		var recs []entry.Record
		for _, line := range strings.Split(strings.TrimRight(string(body), "\n"), "\n") {
			recs = append(recs, entry.Record{Tag: tag, Time: now, Payload: []byte(line)})
		}
		return recs, nil
	}

	var reqs []AppendRequest
	if err := json.NewDecoder(r.Body).Decode(&reqs); err != nil {
		return nil, bodyError("invalid JSON body", err)
	}
	recs := make([]entry.Record, len(reqs))
	for i, req := range reqs {
		ts := now
		if req.Time != nil {
			ts = entry.TimestampOf(*req.Time)
		}
		recs[i] = entry.Record{
			Owner:   entry.Owner{PID: req.PID, TID: req.TID, UID: req.UID},
			Tag:     req.Tag,
			Time:    ts,
			Payload: []byte(req.Message),
		}
	}
	return recs, nil
}
