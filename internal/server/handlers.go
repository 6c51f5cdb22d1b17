package server

import (
	"embed"
	"errors"
	"fmt"
	"html/template"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"coursedrop/internal/classify"
	"coursedrop/internal/failure"
	"coursedrop/internal/history"
	"coursedrop/internal/logging"
	"coursedrop/internal/receiver"
	"coursedrop/internal/staging"
)

//go:embed templates/index.html
var templateFS embed.FS

var indexTemplate = template.Must(template.New("index.html").
	Funcs(template.FuncMap{"join": strings.Join}).
	ParseFS(templateFS, "templates/index.html"))

const (
	formFieldFile   = "file"
	multipartMemory = 8 << 20
	recentOnIndex   = 10
	maxListLimit    = 500
)

// UploadResponse is the JSON body of POST /api/upload.
type UploadResponse struct {
	Success     bool   `json:"success"`
	Message     string `json:"message"`
	Destination string `json:"destination,omitempty"`
	RequestID   string `json:"request_id"`
	Reason      string `json:"reason,omitempty"`
}

// UploadsResponse is the JSON body of GET /api/uploads.
type UploadsResponse struct {
	Uploads []history.Entry `json:"uploads"`
}

// StatusResponse is the JSON body of GET /api/status.
type StatusResponse struct {
	StagingDir  string            `json:"staging_dir"`
	Roots       map[string]string `json:"roots"`
	Years       []string          `json:"years"`
	StagedFiles int               `json:"staged_files"`
	Watching    bool              `json:"watching"`
	Mirroring   bool              `json:"mirroring"`
	History     *history.Stats    `json:"history,omitempty"`
}

type indexData struct {
	Flashes    []Flash
	Years      []string
	Categories []string
	Recent     []history.Entry
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	data := indexData{
		Flashes: s.flash.pop(w, r),
		Years:   s.cfg.Sorting.Years,
	}
	for _, c := range classify.Categories() {
		data.Categories = append(data.Categories, c.Label())
	}
	if s.ledger != nil {
		recent, err := s.ledger.List(r.Context(), history.Filter{Limit: recentOnIndex})
		if err != nil {
			s.logger.Warn("failed to load recent uploads", logging.Error(err))
		}
		data.Recent = recent
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := indexTemplate.Execute(w, data); err != nil {
		s.logger.Error("failed to render index", logging.Error(err))
	}
}

func (s *Server) handleUploadForm(w http.ResponseWriter, r *http.Request) {
	if !s.limiter.allow(r) {
		s.rateLimited(r)
		if err := s.flash.push(w, r, Flash{Message: rateLimitedMessage}); err != nil {
			s.logger.Error("failed to set flash", logging.Error(err))
		}
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	result, tooLarge := s.runUpload(w, r)
	flash := Flash{Success: result.Success(), Message: result.Message()}
	if tooLarge {
		flash.Message = s.tooLargeMessage()
	}
	if err := s.flash.push(w, r, flash); err != nil {
		s.logger.Error("failed to set flash", logging.Error(err))
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleUploadAPI(w http.ResponseWriter, r *http.Request) {
	if !s.limiter.allow(r) {
		s.rateLimited(r)
		id, _ := logging.RequestIDFromContext(r.Context())
		w.Header().Set("Retry-After", "60")
		s.writeJSON(w, http.StatusTooManyRequests, UploadResponse{
			Message:   rateLimitedMessage,
			RequestID: id,
			Reason:    "rate_limited",
		})
		return
	}
	result, tooLarge := s.runUpload(w, r)
	resp := UploadResponse{
		Success:     result.Success(),
		Message:     result.Message(),
		Destination: result.Destination,
		RequestID:   result.RequestID,
		Reason:      failure.Kind(result.Err),
	}
	status := http.StatusOK
	switch {
	case tooLarge:
		status = http.StatusRequestEntityTooLarge
		resp.Message = s.tooLargeMessage()
	case result.Err == nil:
	case failure.IsRejection(result.Err):
		status = http.StatusBadRequest
	default:
		status = http.StatusInternalServerError
	}
	s.writeJSON(w, status, resp)
}

// runUpload parses the multipart body and feeds the file part to the
// pipeline. A missing or unparseable body counts as a missing file part.
func (s *Server) runUpload(w http.ResponseWriter, r *http.Request) (receiver.Result, bool) {
	ctx := r.Context()
	if limit := s.cfg.MaxUploadBytes(); limit > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, limit)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		if isTooLarge(err) {
			return s.pipeline.Reject(ctx, "", fmt.Errorf("request exceeds %d bytes: %w", s.cfg.MaxUploadBytes(), err)), true
		}
		return s.pipeline.Reject(ctx, "", failure.Wrap(failure.ErrMissingFilePart, "receive", "parse form", "", err)), false
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile(formFieldFile)
	if errors.Is(err, http.ErrMissingFile) && len(r.MultipartForm.Value[formFieldFile]) > 0 {
		// A file input submitted with nothing selected arrives as a plain
		// value with an empty filename.
		return s.pipeline.Reject(ctx, "", failure.Wrap(failure.ErrEmptyFilename, "receive", "read form file", "empty filename", nil)), false
	}
	if err != nil {
		return s.pipeline.Reject(ctx, "", failure.Wrap(failure.ErrMissingFilePart, "receive", "read form file", formFieldFile, err)), false
	}
	defer func(f multipart.File) { _ = f.Close() }(file)

	return s.pipeline.Receive(ctx, header.Filename, file), false
}

const rateLimitedMessage = "Too many uploads; wait a minute and try again."

func (s *Server) rateLimited(r *http.Request) {
	logging.WarnWithContext(logging.WithContext(r.Context(), s.logger), "upload rate limited", "upload_rate_limited",
		logging.String("client", clientAddress(r)),
		logging.String(logging.FieldErrorHint, "raise server.uploads_per_minute if this client is legitimate"),
		logging.String(logging.FieldImpact, "upload refused before staging"),
	)
}

func isTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr) || strings.Contains(err.Error(), "request body too large")
}

func (s *Server) tooLargeMessage() string {
	return fmt.Sprintf("File exceeds the %d MB upload limit", s.cfg.Server.MaxUploadMB)
}

func (s *Server) handleUploads(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := history.Filter{}
	if raw := strings.TrimSpace(query.Get("outcome")); raw != "" {
		outcome, ok := history.ParseOutcome(raw)
		if !ok {
			s.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid outcome %q", raw))
			return
		}
		filter.Outcome = outcome
	}
	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			s.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		filter.Limit = min(limit, maxListLimit)
	}
	if s.ledger == nil {
		s.writeJSON(w, http.StatusOK, UploadsResponse{Uploads: []history.Entry{}})
		return
	}
	entries, err := s.ledger.List(r.Context(), filter)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if entries == nil {
		entries = []history.Entry{}
	}
	s.writeJSON(w, http.StatusOK, UploadsResponse{Uploads: entries})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		StagingDir: s.cfg.Paths.StagingDir,
		Roots:      s.cfg.CategoryRoots(),
		Years:      s.cfg.Sorting.Years,
		Watching:   s.cfg.Watch.Enabled,
		Mirroring:  s.cfg.Mirror.Enabled,
	}
	if files, err := staging.List(s.cfg.Paths.StagingDir); err == nil {
		resp.StagedFiles = len(files)
	}
	if s.ledger != nil {
		stats, err := s.ledger.Stats(r.Context())
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		resp.History = &stats
	}
	s.writeJSON(w, http.StatusOK, resp)
}
