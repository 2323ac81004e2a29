/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package server exposes a presentation over HTTP: a browser view fed by a
// websocket and a small JSON API for remote control.
package server

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"gochatpresenter/internal/branch"
	"gochatpresenter/internal/clock"
	"gochatpresenter/internal/export"
	"gochatpresenter/internal/playback"
	"gochatpresenter/internal/presenter"
	"gochatpresenter/internal/version"

	"github.com/gorilla/mux"
)

//go:embed web/index.html
var indexHTML []byte

const maxBody = 1 << 20

// Options configure a Server.
type Options struct {
	Addr    string
	TLSCert string
	TLSKey  string
	// Token protects /api and /ws; empty leaves them open.
	Token string
	// Estimated is the planned talk length used for the remaining time.
	Estimated time.Duration
	Clock     clock.Clock
	Logger    *slog.Logger
}

// Server serves one presenter.
type Server struct {
	p         *presenter.Presenter
	surface   *WebSurface
	token     string
	estimated time.Duration
	clk       clock.Clock
	log       *slog.Logger
	opts      Options
	router    *mux.Router
}

// New builds the router. surface must be the Surface p renders to.
func New(p *presenter.Presenter, surface *WebSurface, opts Options) *Server {
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	s := &Server{
		p:         p,
		surface:   surface,
		token:     opts.Token,
		estimated: opts.Estimated,
		clk:       opts.Clock,
		log:       opts.Logger.With(slog.String("component", "server")),
		opts:      opts,
	}
	s.router = s.routes()
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
	r.HandleFunc("/version", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(version.String()))
	}).Methods(http.MethodGet)
	r.HandleFunc("/", s.handleIndex).Methods(http.MethodGet)
	r.Handle("/ws", s.requireAuth(s.surface)).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(s.requireAuth)
	api.HandleFunc("/auth/token", s.handleIssueToken).Methods(http.MethodPost)
	api.HandleFunc("/state", s.handleState).Methods(http.MethodGet)
	api.HandleFunc("/begin", s.handleBegin).Methods(http.MethodPost)
	api.HandleFunc("/next", s.handleNext).Methods(http.MethodPost)
	api.HandleFunc("/skip", s.handleSkip).Methods(http.MethodPost)
	api.HandleFunc("/back", s.handleBack).Methods(http.MethodPost)
	api.HandleFunc("/reset", s.handleReset).Methods(http.MethodPost)
	api.HandleFunc("/presenter", s.handlePresenter).Methods(http.MethodPost)
	api.HandleFunc("/choose/{position:[0-9]+}", s.handleChoose).Methods(http.MethodPost)
	api.HandleFunc("/bookmarks", s.handleListBookmarks).Methods(http.MethodGet)
	api.HandleFunc("/bookmarks", s.handleAddBookmark).Methods(http.MethodPost)
	api.HandleFunc("/bookmarks/{index:[0-9]+}", s.handleDeleteBookmark).Methods(http.MethodDelete)
	api.HandleFunc("/bookmarks/{index:[0-9]+}/goto", s.handleGotoBookmark).Methods(http.MethodPost)
	api.HandleFunc("/export/{format}", s.handleExport).Methods(http.MethodGet)
	api.HandleFunc("/state/import", s.handleImport).Methods(http.MethodPost)
	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		var err error
		if s.opts.TLSCert != "" && s.opts.TLSKey != "" {
			s.log.Info("listening", slog.String("addr", s.opts.Addr), slog.Bool("tls", true))
			err = srv.ListenAndServeTLS(s.opts.TLSCert, s.opts.TLSKey)
		} else {
			s.log.Info("listening", slog.String("addr", s.opts.Addr), slog.Bool("tls", false))
			err = srv.ListenAndServe()
		}
		errCh <- err
	}()
	if s.token == "" {
		s.log.Warn("no remote token set; the control API is open to anyone who can reach it")
	}

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.surface.Hub().Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(indexHTML)
}

// StateResponse is returned by GET /api/state and most control endpoints.
type StateResponse struct {
	presenter.Status
	Bookmarks   []playback.Bookmark `json:"bookmarks"`
	RemainingMs int64               `json:"remainingMs"`
}

func (s *Server) state() StateResponse {
	m := s.p.Machine()
	return StateResponse{
		Status:      s.p.Status(),
		Bookmarks:   m.State().Bookmarks,
		RemainingMs: m.EstimatedTimeRemaining(s.estimated).Milliseconds(),
	}
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.state())
}

func (s *Server) handleBegin(w http.ResponseWriter, r *http.Request) {
	resume, _ := strconv.ParseBool(r.URL.Query().Get("resume"))
	s.p.Begin(resume)
	writeJSON(w, http.StatusOK, s.state())
}

func (s *Server) handleNext(w http.ResponseWriter, _ *http.Request) {
	s.p.Play()
	writeJSON(w, http.StatusOK, s.state())
}

func (s *Server) handleSkip(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"skipped": s.p.Skip()})
}

func (s *Server) handleBack(w http.ResponseWriter, _ *http.Request) {
	moved := s.p.Back()
	writeJSON(w, http.StatusOK, map[string]any{"moved": moved, "state": s.state()})
}

func (s *Server) handleReset(w http.ResponseWriter, _ *http.Request) {
	s.p.Reset()
	writeJSON(w, http.StatusOK, s.state())
}

func (s *Server) handlePresenter(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"presenterMode": s.p.TogglePresenterMode()})
}

func (s *Server) handleChoose(w http.ResponseWriter, r *http.Request) {
	pos, err := strconv.Atoi(mux.Vars(r)["position"])
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid position"))
		return
	}
	b, err := s.p.Choose(pos)
	switch {
	case errors.Is(err, presenter.ErrBusy):
		writeError(w, http.StatusConflict, err)
		return
	case errors.Is(err, branch.ErrNoChoicePending):
		writeError(w, http.StatusConflict, err)
		return
	case err != nil:
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"chosen": b})
}

func (s *Server) handleListBookmarks(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.p.Machine().State().Bookmarks)
}

func (s *Server) handleAddBookmark(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Label string `json:"label"`
	}
	if err := decodeOptional(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusCreated, s.p.AddBookmark(req.Label))
}

func bookmarkIndex(r *http.Request) (int, error) {
	return strconv.Atoi(mux.Vars(r)["index"])
}

func (s *Server) handleDeleteBookmark(w http.ResponseWriter, r *http.Request) {
	i, err := bookmarkIndex(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if !s.p.Machine().RemoveBookmark(i) {
		writeError(w, http.StatusNotFound, fmt.Errorf("no bookmark %d", i))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGotoBookmark(w http.ResponseWriter, r *http.Request) {
	i, err := bookmarkIndex(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if !s.p.GoToBookmark(i) {
		writeError(w, http.StatusNotFound, fmt.Errorf("no bookmark %d", i))
		return
	}
	writeJSON(w, http.StatusOK, s.state())
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	f, err := export.ParseFormat(mux.Vars(r)["format"])
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	doc := export.NewDocument(s.p.Script(), s.p.Transcript(), s.clk.Now())
	var buf bytes.Buffer
	if err := export.Write(&buf, f, doc, s.p.Machine()); err != nil {
		s.log.Error("export failed", slog.String("format", string(f)), slog.Any("err", err))
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", f.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", f.Filename()))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	_ = r.Body.Close()
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.p.ImportState(data); err != nil {
		s.log.Warn("state import rejected", slog.Any("err", err))
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, s.state())
}

// decodeOptional decodes a JSON body into v; an empty body leaves v alone.
func decodeOptional(r *http.Request, v any) error {
	b, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	_ = r.Body.Close()
	if err != nil {
		return err
	}
	if len(bytes.TrimSpace(b)) == 0 {
		return nil
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]any{"error": err.Error()})
}
