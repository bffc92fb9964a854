package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/yegors/interview-scribe/internal/progress"
	"github.com/yegors/interview-scribe/internal/storage/sqlite"
	"github.com/yegors/interview-scribe/internal/transcription"
	"github.com/yegors/interview-scribe/internal/upload"
	"github.com/yegors/interview-scribe/pkg/logger"
)

const (
	defaultSessionID = "default"
	formFileField    = "audio_file"
	formSessionField = "session_id"

	// multipart parts beyond this are spilled to disk by net/http
	multipartMemory = 32 << 20
	// room for multipart boundaries and form fields on top of the file limit
	multipartOverhead = 1 << 20
)

// Transcriber runs the transcription pipeline for one file
type Transcriber interface {
	Run(ctx context.Context, sessionID, path string) (*transcription.Result, *transcription.Report, error)
}

// Analyzer turns a transcript into the analysis text
type Analyzer interface {
	Analyze(ctx context.Context, result *transcription.Result, durationSeconds float64) (string, error)
}

// ProgressHub publishes and exposes per-session progress
type ProgressHub interface {
	Publish(sessionID string, stage progress.Stage, pct int, message string)
	Snapshot(sessionID string) (progress.Event, bool)
	Release(sessionID string)
	SessionCount() int
}

// SessionSocket upgrades a request into a progress subscription
type SessionSocket interface {
	HandleSession(w http.ResponseWriter, r *http.Request, sessionID string)
}

// JobLedger records processing requests
type JobLedger interface {
	Create(ctx context.Context, job *sqlite.JobRecord) (string, error)
	MarkRunning(ctx context.Context, id string) error
	Complete(ctx context.Context, id string, out sqlite.JobOutcome) error
	Fail(ctx context.Context, id string, out sqlite.JobOutcome, cause error) error
	Get(ctx context.Context, id string) (*sqlite.JobRecord, error)
	List(ctx context.Context, limit, offset int) ([]*sqlite.JobRecord, error)
}

// AnalysisResponse is the body returned by /analyze
type AnalysisResponse struct {
	Success           bool                  `json:"success"`
	Analysis          string                `json:"analysis"`
	Transcription     *transcription.Result `json:"transcription,omitempty"`
	FullTranscription string                `json:"full_transcription"`
	Error             string                `json:"error,omitempty"`
	JobID             string                `json:"job_id,omitempty"`
}

// DebugTranscriptionResponse is the body returned by /debug_transcription
type DebugTranscriptionResponse struct {
	Success       bool   `json:"success"`
	Transcription string `json:"transcription"`
	SegmentCount  int    `json:"segment_count"`
	DebugInfo     string `json:"debug_info"`
	JobID         string `json:"job_id,omitempty"`
}

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// Handler contains the API handlers
type Handler struct {
	transcriber Transcriber
	analyzer    Analyzer
	progress    ProgressHub
	sockets     SessionSocket
	jobs        JobLedger
	validator   *upload.Validator
	tempDir     string
	logger      *logger.Logger
}

// NewHandler creates a new API handler. analyzer may be nil, in which case
// /analyze returns the transcript without an analysis.
func NewHandler(transcriber Transcriber, analyzer Analyzer, hub ProgressHub, sockets SessionSocket, jobs JobLedger, validator *upload.Validator, tempDir string, log *logger.Logger) *Handler {
	return &Handler{
		transcriber: transcriber,
		analyzer:    analyzer,
		progress:    hub,
		sockets:     sockets,
		jobs:        jobs,
		validator:   validator,
		tempDir:     tempDir,
		logger:      log.Named("api-handler"),
	}
}

// GetRoot returns the service banner
func (h *Handler) GetRoot(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{"message": "Interview analysis API"})
}

// GetHealth returns the health status of the API
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]any{
		"status":          "healthy",
		"active_sessions": h.progress.SessionCount(),
		"analysis":        h.analyzer != nil,
	})
}

// incomingFile is an upload that has been parsed out of a multipart request
type incomingFile struct {
	file        multipart.File
	header      *multipart.FileHeader
	contentType string
	sessionID   string
}

// parseUpload reads the multipart form. The caller must call cleanup.
func (h *Handler) parseUpload(w http.ResponseWriter, r *http.Request) (*incomingFile, func(), error) {
	if limit := h.validator.MaxBytes(); limit > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, limit+multipartOverhead)
	}

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, func() {}, fmt.Errorf("%w: request exceeds %d bytes", upload.ErrTooLarge, tooLarge.Limit)
		}
		return nil, func() {}, fmt.Errorf("invalid multipart form: %w", err)
	}
	cleanup := func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}

	sessionID := r.FormValue(formSessionField)
	if sessionID == "" {
		sessionID = defaultSessionID
	}

	file, header, err := r.FormFile(formFileField)
	if err != nil {
		cleanup()
		return &incomingFile{sessionID: sessionID}, func() {}, fmt.Errorf("missing form file %q: %w", formFileField, err)
	}

	return &incomingFile{
		file:        file,
		header:      header,
		contentType: header.Header.Get("Content-Type"),
		sessionID:   sessionID,
	}, func() { file.Close(); cleanup() }, nil
}

// saveStatus maps an upload.Save failure to a status code
func saveStatus(err error) int {
	if errors.Is(err, upload.ErrTooLarge) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// sessionFromQuery is used when the form itself could not be parsed
func sessionFromQuery(r *http.Request) string {
	if id := r.URL.Query().Get(formSessionField); id != "" {
		return id
	}
	return defaultSessionID
}

// Analyze handles POST /analyze: validate, transcribe, analyze
func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	in, cleanup, err := h.parseUpload(w, r)
	defer cleanup()

	sessionID := sessionFromQuery(r)
	if in != nil {
		sessionID = in.sessionID
	}
	defer h.progress.Release(sessionID)
	log := h.logger.With(logger.String("session_id", sessionID))

	if err != nil {
		h.rejectUpload(w, sessionID, http.StatusBadRequest, err, log)
		return
	}

	log.Info("Received file",
		logger.String("file_name", in.header.Filename),
		logger.String("content_type", in.contentType),
		logger.Int64("size_bytes", in.header.Size))
	h.progress.Publish(sessionID, progress.StageUpload, 5, "Upload complete")

	if err := h.validator.CheckType(in.contentType); err != nil {
		h.rejectUpload(w, sessionID, http.StatusBadRequest, err, log)
		return
	}
	if err := h.validator.CheckSize(in.header.Size); err != nil {
		h.rejectUpload(w, sessionID, http.StatusBadRequest, err, log)
		return
	}
	h.progress.Publish(sessionID, progress.StageValidation, 10, "File validation complete")

	stored, err := upload.Save(in.file, upload.Extension(in.header.Filename, upload.DefaultExtension), h.tempDir, h.validator.MaxBytes())
	if err != nil {
		h.rejectUpload(w, sessionID, saveStatus(err), err, log)
		return
	}
	defer func() {
		if err := stored.Remove(); err != nil {
			log.Warn("Failed to remove temporary upload", logger.Error(err))
		}
	}()

	jobID := h.startJob(r.Context(), sessionID, sqlite.KindAnalyze, in.header.Filename, stored, log)

	h.progress.Publish(sessionID, progress.StageTranscription, 15, "Starting transcription...")
	result, report, err := h.transcriber.Run(r.Context(), sessionID, stored.Path)
	if err != nil {
		// the pipeline has already published the error stage
		h.failJob(jobID, report, result, err, log)
		log.Error("Transcription failed", logger.Error(err))
		WriteJSON(w, http.StatusInternalServerError, ErrorResponse{Error: fmt.Sprintf("Analysis failed: %v", err)})
		return
	}

	response := AnalysisResponse{
		Success:           true,
		Transcription:     result,
		FullTranscription: result.FullText,
		JobID:             jobID,
	}

	if h.analyzer == nil {
		log.Warn("No analysis provider configured, returning transcript only")
		h.progress.Publish(sessionID, progress.StageCompleted, 100, "Transcription complete (analysis disabled)")
		h.completeJob(jobID, report, result, log)
		WriteJSON(w, http.StatusOK, response)
		return
	}

	h.progress.Publish(sessionID, progress.StageAnalysis, 80, "Starting AI analysis...")
	analysis, err := h.analyzer.Analyze(r.Context(), result, report.DurationSeconds)
	if err != nil {
		h.progress.Publish(sessionID, progress.StageError, 0, fmt.Sprintf("Analysis error: %v", err))
		h.failJob(jobID, report, result, err, log)
		log.Error("Analysis failed", logger.Error(err))
		WriteJSON(w, http.StatusInternalServerError, ErrorResponse{Error: fmt.Sprintf("Analysis failed: %v", err)})
		return
	}

	h.progress.Publish(sessionID, progress.StageCompleted, 100, "Analysis complete!")
	h.completeJob(jobID, report, result, log)

	response.Analysis = analysis
	WriteJSON(w, http.StatusOK, response)
}

// DebugTranscription handles POST /debug_transcription: transcription only,
// without content type validation
func (h *Handler) DebugTranscription(w http.ResponseWriter, r *http.Request) {
	in, cleanup, err := h.parseUpload(w, r)
	defer cleanup()

	sessionID := sessionFromQuery(r)
	if in != nil {
		sessionID = in.sessionID
	}
	defer h.progress.Release(sessionID)
	log := h.logger.With(logger.String("session_id", sessionID), logger.Bool("debug", true))

	if err != nil {
		h.rejectUpload(w, sessionID, http.StatusBadRequest, err, log)
		return
	}

	log.Info("Received file",
		logger.String("file_name", in.header.Filename),
		logger.String("content_type", in.contentType),
		logger.Int64("size_bytes", in.header.Size))
	h.progress.Publish(sessionID, progress.StageUpload, 5, "Upload complete")
	h.progress.Publish(sessionID, progress.StageValidation, 10, "File validation complete")

	stored, err := upload.Save(in.file, upload.Extension(in.header.Filename, ".wav"), h.tempDir, h.validator.MaxBytes())
	if err != nil {
		h.rejectUpload(w, sessionID, saveStatus(err), err, log)
		return
	}
	defer func() {
		if err := stored.Remove(); err != nil {
			log.Warn("Failed to remove temporary upload", logger.Error(err))
		}
	}()

	jobID := h.startJob(r.Context(), sessionID, sqlite.KindDebug, in.header.Filename, stored, log)

	result, report, err := h.transcriber.Run(r.Context(), sessionID, stored.Path)
	if err != nil {
		h.failJob(jobID, report, result, err, log)
		log.Error("Transcription failed", logger.Error(err))
		WriteJSON(w, http.StatusInternalServerError, ErrorResponse{Error: fmt.Sprintf("Transcription failed: %v", err)})
		return
	}

	h.progress.Publish(sessionID, progress.StageCompleted, 100, "Transcription complete!")
	h.completeJob(jobID, report, result, log)

	WriteJSON(w, http.StatusOK, DebugTranscriptionResponse{
		Success:       true,
		Transcription: result.FullText,
		SegmentCount:  len(result.Segments),
		DebugInfo:     fmt.Sprintf("Processed %d segments", len(result.Segments)),
		JobID:         jobID,
	})
}

// rejectUpload reports a request that failed before transcription started
func (h *Handler) rejectUpload(w http.ResponseWriter, sessionID string, status int, err error, log *logger.Logger) {
	message := err.Error()
	switch {
	case errors.Is(err, upload.ErrUnsupportedType):
		message = fmt.Sprintf("Unsupported file type: %s", unwrapDetail(err, upload.ErrUnsupportedType))
	case errors.Is(err, upload.ErrTooLarge):
		message = fmt.Sprintf("File size exceeds limit: %s", unwrapDetail(err, upload.ErrTooLarge))
	}

	log.Error("Upload rejected", logger.Int("status", status), logger.Error(err))
	h.progress.Publish(sessionID, progress.StageError, 0, message)
	WriteJSON(w, status, ErrorResponse{Error: message})
}

// unwrapDetail strips the sentinel prefix from a wrapped validation error
func unwrapDetail(err, sentinel error) string {
	return strings.TrimPrefix(strings.TrimPrefix(err.Error(), sentinel.Error()), ": ")
}

func (h *Handler) startJob(ctx context.Context, sessionID, kind, fileName string, stored *upload.Stored, log *logger.Logger) string {
	if h.jobs == nil {
		return ""
	}
	id, err := h.jobs.Create(ctx, &sqlite.JobRecord{
		SessionID:   sessionID,
		Kind:        kind,
		FileName:    fileName,
		Fingerprint: stored.Fingerprint,
		SizeBytes:   stored.Size,
	})
	if err != nil {
		log.Warn("Failed to record job", logger.Error(err))
		return ""
	}
	if err := h.jobs.MarkRunning(ctx, id); err != nil {
		log.Warn("Failed to mark job running", logger.String("job_id", id), logger.Error(err))
	}
	return id
}

func outcome(report *transcription.Report, result *transcription.Result) sqlite.JobOutcome {
	var out sqlite.JobOutcome
	if report != nil {
		out.Mode = string(report.Mode)
		out.DurationSeconds = report.DurationSeconds
		out.WindowsPlanned = report.WindowsPlanned
		out.WindowsFailed = report.WindowsFailed
	}
	if result != nil {
		out.SegmentCount = len(result.Segments)
	}
	return out
}

// job updates use a fresh context so a cancelled request is still recorded
func (h *Handler) completeJob(id string, report *transcription.Report, result *transcription.Result, log *logger.Logger) {
	if h.jobs == nil || id == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.jobs.Complete(ctx, id, outcome(report, result)); err != nil {
		log.Warn("Failed to record job completion", logger.String("job_id", id), logger.Error(err))
	}
}

func (h *Handler) failJob(id string, report *transcription.Report, result *transcription.Result, cause error, log *logger.Logger) {
	if h.jobs == nil || id == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.jobs.Fail(ctx, id, outcome(report, result), cause); err != nil {
		log.Warn("Failed to record job failure", logger.String("job_id", id), logger.Error(err))
	}
}

// WriteJSON writes a JSON response
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
