// Package api exposes the download manager over a loopback HTTP control
// surface, used by the CLI subcommands and any local automation.
package api

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"offliner/internal/download"
	apperr "offliner/internal/errors"
	"offliner/internal/logger"
	"offliner/internal/requirements"
)

// Server is the control server over a manager.
type Server struct {
	manager *download.Manager
	router  *chi.Mux
	httpSrv *http.Server
}

// NewServer builds the control server.
func NewServer(manager *download.Manager) *Server {
	s := &Server{
		manager: manager,
		router:  chi.NewRouter(),
	}
	s.setupRoutes()
	return s
}

// Start binds addr and serves in the background. Non-loopback addresses
// are rejected: the control surface is local-only.
func (s *Server) Start(addr string) error {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return apperr.Wrap("api.Start", err)
	}
	if ip := net.ParseIP(host); ip == nil || !ip.IsLoopback() {
		return apperr.NewWithMessage("api.Start", apperr.ErrInvalidRequest, "control API must bind a loopback address")
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return apperr.Wrap("api.Start", err)
	}

	s.httpSrv = &http.Server{Handler: s.router}
	go func() {
		if err := s.httpSrv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log.Error().Err(err).Msg("control server failed")
		}
	}()

	logger.Log.Info().Str("addr", addr).Msg("control server listening")
	return nil
}

// Close stops the listener.
func (s *Server) Close() error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Close()
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.Recoverer)

	s.router.Route("/v1", func(r chi.Router) {
		r.Post("/downloads", s.handleAdd)
		r.Get("/downloads", s.handleList)
		r.Get("/downloads/{id}", s.handleGet)
		r.Delete("/downloads/{id}", s.handleRemove)
		r.Post("/downloads/{id}/stop", s.handleStopOne)
		r.Post("/downloads/{id}/start", s.handleStartOne)
		r.Post("/stop", s.handleStopAll)
		r.Post("/start", s.handleStartAll)
		r.Put("/requirements", s.handleSetRequirements)
		r.Get("/status", s.handleStatus)
	})
}

type stopBody struct {
	Reason *int `json:"reason"`
}

type requirementsBody struct {
	Flags []string `json:"flags"`
}

// StatusResponse is the /v1/status payload.
type StatusResponse struct {
	Initialized        bool     `json:"initialized"`
	Idle               bool     `json:"idle"`
	DownloadCount      int      `json:"downloadCount"`
	Requirements       []string `json:"requirements"`
	NotMetRequirements []string `json:"notMetRequirements"`
}

func (s *Server) handleAdd(w http.ResponseWriter, r *http.Request) {
	var req download.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := s.manager.AddDownload(req); err != nil {
		writeManagerError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"id": req.ID})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.manager.DownloadStates())
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rec, ok := s.manager.DownloadState(id)
	if !ok {
		writeError(w, http.StatusNotFound, "download not found")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleRemove(w http.ResponseWriter, r *http.Request) {
	if err := s.manager.RemoveDownload(chi.URLParam(r, "id")); err != nil {
		writeManagerError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleStopOne(w http.ResponseWriter, r *http.Request) {
	reason, ok := decodeStopReason(w, r)
	if !ok {
		return
	}
	var err error
	if reason != nil {
		err = s.manager.StopDownload(chi.URLParam(r, "id"), *reason)
	} else {
		err = s.manager.StopDownload(chi.URLParam(r, "id"))
	}
	if err != nil {
		writeManagerError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleStartOne(w http.ResponseWriter, r *http.Request) {
	if err := s.manager.StartDownload(chi.URLParam(r, "id")); err != nil {
		writeManagerError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleStopAll(w http.ResponseWriter, r *http.Request) {
	reason, ok := decodeStopReason(w, r)
	if !ok {
		return
	}
	var err error
	if reason != nil {
		err = s.manager.StopDownloads(*reason)
	} else {
		err = s.manager.StopDownloads()
	}
	if err != nil {
		writeManagerError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleStartAll(w http.ResponseWriter, r *http.Request) {
	if err := s.manager.StartDownloads(); err != nil {
		writeManagerError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleSetRequirements(w http.ResponseWriter, r *http.Request) {
	var body requirementsBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	flags, ok := requirements.FromNames(body.Flags)
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown requirement flag")
		return
	}
	if err := s.manager.SetRequirements(flags); err != nil {
		writeManagerError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, StatusResponse{
		Initialized:        s.manager.IsInitialized(),
		Idle:               s.manager.IsIdle(),
		DownloadCount:      s.manager.DownloadCount(),
		Requirements:       s.manager.Requirements().Names(),
		NotMetRequirements: s.manager.NotMetRequirements().Names(),
	})
}

// decodeStopReason reads an optional {"reason": n} body. An empty body
// means "use the default reason".
func decodeStopReason(w http.ResponseWriter, r *http.Request) (*int, bool) {
	var body stopBody
	if r.Body == nil || r.ContentLength == 0 {
		return nil, true
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return nil, false
	}
	return body.Reason, true
}

func writeManagerError(w http.ResponseWriter, err error) {
	switch {
	case apperr.IsReleased(err):
		writeError(w, http.StatusConflict, err.Error())
	case apperr.IsNotFound(err):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		writeError(w, http.StatusBadRequest, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Log.Error().Err(err).Msg("response encoding failed")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
