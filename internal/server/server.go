// Package server exposes job management over HTTP: multipart upload to create
// jobs, lifecycle endpoints, report downloads, and a WebSocket feed of live
// status updates.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/santopaul/dicomweb/pkg/batch"
	"github.com/santopaul/dicomweb/pkg/batch/anonymize"
	"github.com/santopaul/dicomweb/pkg/batch/report"
)

// maxUploadBytes caps one job-creation request.
const maxUploadBytes = 256 << 20

// Config holds the dependencies for a Server.
type Config struct {
	Logger       slog.Handler        // required
	Orchestrator *batch.Orchestrator // required
	Hub          *Hub                // required
	StagingDir   string              // required; uploads are staged here before processing
}

// Server is the HTTP surface over an orchestrator.
type Server struct {
	logger     *slog.Logger
	orch       *batch.Orchestrator
	hub        *Hub
	stagingDir string
	upgrader   websocket.Upgrader
	router     chi.Router
}

// New builds a Server and its route table.
func New(cfg Config) (*Server, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("%w: logger handler cannot be nil", batch.ErrValidation)
	}
	if cfg.Orchestrator == nil {
		return nil, fmt.Errorf("%w: orchestrator cannot be nil", batch.ErrValidation)
	}
	if cfg.Hub == nil {
		return nil, fmt.Errorf("%w: hub cannot be nil", batch.ErrValidation)
	}
	if cfg.StagingDir == "" {
		return nil, fmt.Errorf("%w: staging directory cannot be empty", batch.ErrValidation)
	}
	if err := os.MkdirAll(cfg.StagingDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating staging directory: %w", err)
	}

	s := &Server{
		logger:     slog.New(cfg.Logger).With(slog.String("component", "server")),
		orch:       cfg.Orchestrator,
		hub:        cfg.Hub,
		stagingDir: cfg.StagingDir,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Route("/api/jobs", func(r chi.Router) {
		r.Post("/", s.handleCreateJob)
		r.Get("/", s.handleListJobs)
		r.Route("/{jobID}", func(r chi.Router) {
			r.Get("/", s.handleGetJob)
			r.Delete("/", s.handleDeleteJob)
			r.Post("/start", s.handleStartJob)
			r.Post("/pause", s.handlePauseJob)
			r.Get("/report", s.handleGetReport)
		})
	})
	r.Get("/ws", s.handleWebSocket)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	s.router = r
	return s, nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// handleCreateJob accepts a multipart form with one or more "files" parts and
// optional option fields, stages the uploads, and registers a new job.
func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "malformed multipart request: "+err.Error())
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	uploads := r.MultipartForm.File["files"]
	if len(uploads) == 0 {
		writeError(w, http.StatusBadRequest, "no files provided")
		return
	}

	opts, err := optionsFromForm(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	specs := make([]batch.FileSpec, 0, len(uploads))
	staged := make([]string, 0, len(uploads))
	cleanup := func() {
		for _, p := range staged {
			_ = os.Remove(p)
		}
	}
	for _, fh := range uploads {
		path, stageErr := s.stageUpload(fh)
		if stageErr != nil {
			cleanup()
			writeError(w, http.StatusInternalServerError, "staging upload: "+stageErr.Error())
			return
		}
		staged = append(staged, path)
		specs = append(specs, batch.FileSpec{Name: fh.Filename, Path: path})
	}

	jobID, err := s.orch.CreateJob(r.FormValue("name"), specs, opts)
	if err != nil {
		cleanup()
		writeBatchError(w, err)
		return
	}

	view, err := s.orch.Job(jobID)
	if err != nil {
		writeBatchError(w, err)
		return
	}
	s.logger.Info("job created via api", slog.String("jobID", jobID), slog.Int("files", len(specs)))
	writeJSON(w, http.StatusCreated, view)
}

// stageUpload copies one multipart part into the staging directory under a
// collision-free name.
func (s *Server) stageUpload(fh *multipart.FileHeader) (string, error) {
	src, err := fh.Open()
	if err != nil {
		return "", err
	}
	defer func() { _ = src.Close() }()

	path := filepath.Join(s.stagingDir, uuid.NewString()+"_"+filepath.Base(fh.Filename))
	dst, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		_ = os.Remove(path)
		return "", err
	}
	if err := dst.Close(); err != nil {
		_ = os.Remove(path)
		return "", err
	}
	return path, nil
}

func optionsFromForm(r *http.Request) (batch.ProcessingOptions, error) {
	var opts batch.ProcessingOptions
	if v := r.FormValue("anonymize"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return opts, fmt.Errorf("invalid anonymize value %q", v)
		}
		opts.Anonymize = b
	}
	switch mode := r.FormValue("anonymize_mode"); mode {
	case "":
	case string(anonymize.ModePseudonymize), string(anonymize.ModeRemove):
		opts.AnonymizeMode = anonymize.Mode(mode)
	default:
		return opts, fmt.Errorf("invalid anonymize_mode %q", mode)
	}
	if v := r.FormValue("anonymize_tags"); v != "" {
		opts.AnonymizeTags = splitList(v)
	}
	opts.AnonymizeSalt = r.FormValue("anonymize_salt")
	if v := r.FormValue("remove_private_tags"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return opts, fmt.Errorf("invalid remove_private_tags value %q", v)
		}
		opts.RemovePrivateTags = b
	}
	if v := r.FormValue("output_formats"); v != "" {
		formats := splitList(v)
		for _, f := range formats {
			if _, err := report.ParseFormat(f); err != nil {
				return opts, err
			}
		}
		opts.OutputFormats = formats
	}
	return opts, nil
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (s *Server) handleListJobs(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.orch.Jobs())
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	view, err := s.orch.Job(chi.URLParam(r, "jobID"))
	if err != nil {
		writeBatchError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleStartJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	if err := s.orch.Start(jobID); err != nil {
		writeBatchError(w, err)
		return
	}
	view, err := s.orch.Job(jobID)
	if err != nil {
		writeBatchError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, view)
}

func (s *Server) handlePauseJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	if err := s.orch.Pause(jobID); err != nil {
		writeBatchError(w, err)
		return
	}
	view, err := s.orch.Job(jobID)
	if err != nil {
		writeBatchError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleDeleteJob(w http.ResponseWriter, r *http.Request) {
	if err := s.orch.Delete(chi.URLParam(r, "jobID")); err != nil {
		writeBatchError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleGetReport renders the job's report in the requested format, default
// JSON. Reports over partial jobs are allowed; every file appears with its
// current status.
func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	view, err := s.orch.Job(chi.URLParam(r, "jobID"))
	if err != nil {
		writeBatchError(w, err)
		return
	}

	formatParam := r.URL.Query().Get("format")
	if formatParam == "" {
		formatParam = string(report.FormatJSON)
	}
	format, err := report.ParseFormat(formatParam)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	data := view.BuildReport(report.DefaultSections())
	body, mime, err := report.Render(data, format)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", mime)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// handleWebSocket upgrades the connection and parks it in the hub. The read
// loop exists only to notice the peer going away.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	s.hub.Register(conn)
	go func() {
		defer s.hub.Unregister(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeBatchError maps the processing sentinel errors onto HTTP statuses.
func writeBatchError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, batch.ErrJobNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, batch.ErrJobActive), errors.Is(err, batch.ErrJobNotRunning):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, batch.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
