// Package web serves the try-on service over HTTP for the browser tool.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"tryon-studio/internal/imaging"
	"tryon-studio/internal/metrics"
	"tryon-studio/internal/session"
	"tryon-studio/internal/storage"
	"tryon-studio/internal/style"
	"tryon-studio/internal/tryon"
)

const defaultMaxUpload = 20 << 20

type Options struct {
	Service  *tryon.Service
	Registry *prometheus.Registry
	Logger   *slog.Logger

	MaxUploadBytes int64
	// RequestTimeout bounds generation and waits.
	RequestTimeout time.Duration
}

type Server struct {
	svc            *tryon.Service
	registry       *prometheus.Registry
	logger         *slog.Logger
	maxUpload      int64
	requestTimeout time.Duration
}

type apiError struct {
	Error string `json:"error"`
}

func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	maxUpload := opts.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = defaultMaxUpload
	}
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = 3 * time.Minute
	}
	return &Server{
		svc:            opts.Service,
		registry:       opts.Registry,
		logger:         logger,
		maxUpload:      maxUpload,
		requestTimeout: timeout,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "sessions": s.svc.Sessions().Len()})
	})
	if s.registry != nil {
		r.Handle("/metrics", metrics.Handler(s.registry))
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/catalog", s.handleCatalog)
		r.Get("/looks/{lookID}", s.handleLook)

		r.Post("/sessions", s.handleCreateSession)
		r.Route("/sessions/{id}", func(r chi.Router) {
			r.Get("/", s.handleState)
			r.Delete("/", s.handleDeleteSession)
			r.Post("/reset", s.handleReset)
			r.Get("/wait", s.handleWait)

			r.Post("/images/{slot}", s.handleUpload)
			r.Delete("/images/{slot}", s.handleClearImage)
			r.Get("/crop", s.handleDefaultCrop)
			r.Post("/crop", s.handleCrop)
			r.Delete("/crop", s.handleCancelCrop)

			r.Patch("/options", s.handlePatchOptions)
			r.Put("/options/{field}", s.handleSetOption)
			r.Post("/undo", s.handleUndo)
			r.Post("/redo", s.handleRedo)
			r.Put("/keywords", s.handleKeywords)
			r.Put("/background", s.handleBackground)

			r.Get("/prompt", s.handlePrompt)
			r.Post("/generate", s.handleGenerate)
			r.Get("/result", s.handleResult)
			r.Get("/export", s.handleExport)
			r.Get("/looks", s.handleLooks)
		})
	})
	return r
}

func (s *Server) handleCatalog(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"options":  style.Catalog(),
		"defaults": style.Default(),
	})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusCreated, newStateView(s.svc.CreateSession()))
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	st, err := s.svc.State(chi.URLParam(r, "id"))
	s.respondState(w, st, err)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.DeleteSession(chi.URLParam(r, "id")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.svc.Reset(id); err != nil {
		s.writeError(w, err)
		return
	}
	st, err := s.svc.State(id)
	s.respondState(w, st, err)
}

// handleWait blocks until background removal and analysis have settled.
func (s *Server) handleWait(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx, cancel := context.WithTimeout(r.Context(), s.requestTimeout)
	defer cancel()

	if err := s.svc.WaitIdle(ctx, id); err != nil {
		s.writeError(w, err)
		return
	}
	st, err := s.svc.State(id)
	s.respondState(w, st, err)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	slot, err := session.ParseSlot(chi.URLParam(r, "slot"))
	if err != nil {
		s.writeError(w, err)
		return
	}

	img, err := s.readUpload(w, r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, apiError{Error: fmt.Sprintf("image exceeds %d bytes", s.maxUpload)})
			return
		}
		writeJSON(w, http.StatusBadRequest, apiError{Error: err.Error()})
		return
	}

	pending, err := s.svc.Upload(id, slot, img)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if pending != nil {
		rect, err := s.svc.DefaultCrop(id)
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, newCropView(*pending, rect))
		return
	}
	st, err := s.svc.State(id)
	s.respondState(w, st, err)
}

func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) (imaging.Image, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	if err := r.ParseMultipartForm(s.maxUpload); err != nil {
		return imaging.Image{}, fmt.Errorf("invalid multipart form: %w", err)
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		return imaging.Image{}, errors.New("missing image")
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return imaging.Image{}, fmt.Errorf("read image: %w", err)
	}
	return imaging.New(header.Filename, header.Header.Get("Content-Type"), data), nil
}

func (s *Server) handleClearImage(w http.ResponseWriter, r *http.Request) {
	slot, err := session.ParseSlot(chi.URLParam(r, "slot"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	st, err := s.svc.ClearImage(chi.URLParam(r, "id"), slot)
	s.respondState(w, st, err)
}

func (s *Server) handleDefaultCrop(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	st, err := s.svc.State(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if st.PendingCrop == nil {
		s.writeError(w, tryon.ErrNoPendingCrop)
		return
	}
	rect, err := s.svc.DefaultCrop(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newCropView(*st.PendingCrop, rect))
}

type cropRequest struct {
	// Rect in source pixels; omitted means the centered default.
	Rect     *rectView `json:"rect,omitempty"`
	Original bool      `json:"original,omitempty"`
}

func (s *Server) handleCrop(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req cropRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: err.Error()})
		return
	}

	var (
		st  session.State
		err error
	)
	switch {
	case req.Original:
		st, err = s.svc.UseOriginal(id)
	case req.Rect != nil:
		rect := req.Rect.rectangle()
		st, err = s.svc.ApplyCrop(id, &rect)
	default:
		st, err = s.svc.ApplyCrop(id, nil)
	}
	s.respondState(w, st, err)
}

func (s *Server) handleCancelCrop(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.svc.CancelCrop(id); err != nil {
		s.writeError(w, err)
		return
	}
	st, err := s.svc.State(id)
	s.respondState(w, st, err)
}

func (s *Server) handlePatchOptions(w http.ResponseWriter, r *http.Request) {
	var patch style.Patch
	if err := decodeJSON(r, &patch); err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: err.Error()})
		return
	}
	st, err := s.svc.UpdateOptions(chi.URLParam(r, "id"), patch)
	s.respondState(w, st, err)
}

func (s *Server) handleSetOption(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Value string `json:"value"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: err.Error()})
		return
	}
	st, err := s.svc.SetOption(chi.URLParam(r, "id"), chi.URLParam(r, "field"), req.Value)
	s.respondState(w, st, err)
}

func (s *Server) handleUndo(w http.ResponseWriter, r *http.Request) {
	st, err := s.svc.Undo(chi.URLParam(r, "id"))
	s.respondState(w, st, err)
}

func (s *Server) handleRedo(w http.ResponseWriter, r *http.Request) {
	st, err := s.svc.Redo(chi.URLParam(r, "id"))
	s.respondState(w, st, err)
}

func (s *Server) handleKeywords(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Keywords string `json:"keywords"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: err.Error()})
		return
	}
	st, err := s.svc.SetKeywords(chi.URLParam(r, "id"), req.Keywords)
	s.respondState(w, st, err)
}

func (s *Server) handleBackground(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Enabled bool `json:"enabled"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: err.Error()})
		return
	}
	st, err := s.svc.SetRemoveBackground(chi.URLParam(r, "id"), req.Enabled)
	s.respondState(w, st, err)
}

func (s *Server) handlePrompt(w http.ResponseWriter, r *http.Request) {
	p, err := s.svc.Prompt(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"prompt": p})
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.requestTimeout)
	defer cancel()

	img, err := s.svc.Generate(ctx, chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeImage(w, img, false)
}

func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	img, err := s.svc.Result(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeImage(w, img, false)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	img, err := s.svc.Export(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeImage(w, img, true)
}

func (s *Server) handleLooks(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	looks, err := s.svc.Looks(r.Context(), chi.URLParam(r, "id"), limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if looks == nil {
		looks = []storage.Look{}
	}
	writeJSON(w, http.StatusOK, looks)
}

func (s *Server) handleLook(w http.ResponseWriter, r *http.Request) {
	look, err := s.svc.Look(r.Context(), chi.URLParam(r, "lookID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeImage(w, imaging.New(look.ID+".png", look.MIMEType, look.Data), false)
}

func (s *Server) respondState(w http.ResponseWriter, st session.State, err error) {
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newStateView(st))
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "status", status, "err", err)
	}
	writeJSON(w, status, apiError{Error: err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, tryon.ErrUnknownSession), errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, tryon.ErrNoResult):
		return http.StatusNotFound
	case errors.Is(err, tryon.ErrBusy), errors.Is(err, tryon.ErrSuperseded):
		return http.StatusConflict
	case tryon.IsValidation(err):
		return http.StatusBadRequest
	case tryon.IsProvider(err):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("http",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"request_id", middleware.GetReqID(r.Context()),
			"dur_ms", time.Since(start).Milliseconds(),
		)
	})
}

func decodeJSON(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("content-type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeImage(w http.ResponseWriter, img imaging.Image, download bool) {
	w.Header().Set("content-type", img.MIMEType)
	w.Header().Set("content-length", strconv.Itoa(len(img.Data)))
	if download {
		w.Header().Set("content-disposition", fmt.Sprintf("attachment; filename=%q", img.Name))
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(img.Data)
}
