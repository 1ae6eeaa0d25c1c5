package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/glottahq/glotta/pkg/keyring"
	"github.com/glottahq/glotta/pkg/tasks"
	"github.com/glottahq/glotta/pkg/types"
)

const maxImagesPerTask = 10

// maxTotalUpload caps the combined size of all files in one request.
// Declared as a variable so tests can shrink it.
var maxTotalUpload int64 = 50 << 20

var allowedImageTypes = []string{
	"image/jpeg",
	"image/png",
	"image/gif",
	"image/webp",
	"image/bmp",
	"image/tiff",
}

func allowedType(mime string) bool {
	for _, t := range allowedImageTypes {
		if mime == t {
			return true
		}
	}
	return false
}

type submitResponse struct {
	TaskID                  string           `json:"task_id"`
	Status                  types.TaskStatus `json:"status"`
	EstimatedProcessingTime int              `json:"estimated_processing_time"`
}

// handleSubmit accepts a multipart upload of up to maxImagesPerTask
// images, validates each one, and enqueues a translation task.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxTotalUpload+(2<<20))
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httpError(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("Total files too large. Maximum total size: %d bytes", maxTotalUpload))
			return
		}
		httpError(w, http.StatusBadRequest, "Invalid multipart form data")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	lang := types.DefaultLanguage
	if raw := r.FormValue("target_language"); raw != "" {
		parsed, err := types.ParseLanguage(raw)
		if err != nil {
			httpError(w, http.StatusBadRequest,
				fmt.Sprintf("Unsupported language: %s. Supported languages: %s", raw, languageNames()))
			return
		}
		lang = parsed
	}

	// Clients may send a single part named "file" instead of "files".
	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		headers = r.MultipartForm.File["file"]
	}
	if len(headers) == 0 {
		httpError(w, http.StatusBadRequest, "No file(s) provided")
		return
	}
	if len(headers) > maxImagesPerTask {
		httpError(w, http.StatusBadRequest,
			fmt.Sprintf("Maximum %d images allowed per request", maxImagesPerTask))
		return
	}

	images := make([][]byte, 0, len(headers))
	var total int64
	for i, fh := range headers {
		if fh.Size > s.cfg.MaxUploadSize {
			httpError(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("File %d too large. Maximum size: %d bytes", i+1, s.cfg.MaxUploadSize))
			return
		}
		total += fh.Size
		if total > maxTotalUpload {
			httpError(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("Total files too large. Maximum total size: %d bytes", maxTotalUpload))
			return
		}

		data, err := readPart(func() (io.ReadCloser, error) { return fh.Open() })
		if err != nil {
			httpError(w, http.StatusBadRequest, fmt.Sprintf("Cannot read file %d", i+1))
			return
		}
		if mime := http.DetectContentType(data); !allowedType(mime) {
			httpError(w, http.StatusBadRequest,
				fmt.Sprintf("Invalid file type for file %d: %s. Allowed types: %s",
					i+1, mime, strings.Join(allowedImageTypes, ", ")))
			return
		}
		images = append(images, data)
	}

	task, err := s.deps.Tasks.Create(r.Context(), images, lang)
	if err != nil {
		s.log.Error().Err(err).Int("images", len(images)).Msg("task creation failed")
		httpError(w, http.StatusInternalServerError, "Failed to create translation task")
		return
	}

	s.log.Info().
		Str("task_id", task.TaskID).
		Int("images", task.TotalImages).
		Str("target_language", string(lang)).
		Msg("task submitted")

	writeJSON(w, http.StatusOK, submitResponse{
		TaskID:                  task.TaskID,
		Status:                  types.TaskStatusPending,
		EstimatedProcessingTime: s.deps.Tasks.EstimateWaitTime(r.Context()),
	})
}

func readPart(open func() (io.ReadCloser, error)) ([]byte, error) {
	f, err := open()
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return io.ReadAll(f)
}

// handleResult long-polls until the task produces a result or the
// timeout elapses, then returns the current snapshot.
func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")

	timeout := s.cfg.PollingTimeout
	if raw := r.URL.Query().Get("timeout"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			timeout = time.Duration(n) * time.Second
		}
	}

	res, err := s.deps.Observer.Await(r.Context(), taskID, timeout)
	switch {
	case errors.Is(err, tasks.ErrNotFound):
		httpError(w, http.StatusNotFound, "Task not found")
		return
	case errors.Is(err, context.Canceled):
		// Client disconnected mid-poll; nothing left to write.
		return
	case err != nil:
		s.log.Error().Err(err).Str("task_id", taskID).Msg("result poll failed")
		httpError(w, http.StatusInternalServerError, "Failed to get task status")
		return
	}

	writeJSON(w, http.StatusOK, res)
}

type languageEntry struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

type languagesResponse struct {
	SupportedLanguages []languageEntry `json:"supported_languages"`
	Default            string          `json:"default"`
}

func (s *Server) handleLanguages(w http.ResponseWriter, r *http.Request) {
	all := types.Languages()
	entries := make([]languageEntry, 0, len(all))
	for _, l := range all {
		entries = append(entries, languageEntry{Code: l.Code(), Name: string(l)})
	}
	writeJSON(w, http.StatusOK, languagesResponse{
		SupportedLanguages: entries,
		Default:            string(types.DefaultLanguage),
	})
}

func languageNames() string {
	all := types.Languages()
	names := make([]string, 0, len(all))
	for _, l := range all {
		names = append(names, string(l))
	}
	return strings.Join(names, ", ")
}

type capacityEstimate struct {
	RequestsPerMinute int `json:"requests_per_minute"`
	MaxWorkers        int `json:"max_workers"`
	CurrentWorkers    int `json:"current_workers"`
}

type statsResponse struct {
	Queue            types.QueueStats       `json:"queue"`
	Workers          types.PoolStats        `json:"workers"`
	Cluster          types.ClusterStats     `json:"cluster"`
	APIKeys          keyring.Stats          `json:"api_keys"`
	Scaling          *types.ScalingDecision `json:"scaling,omitempty"`
	CapacityEstimate capacityEstimate       `json:"capacity_estimate"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	queue, err := s.deps.Tasks.QueueStats(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("queue stats unavailable")
		httpError(w, http.StatusInternalServerError, "Failed to get statistics")
		return
	}

	cluster, err := s.deps.Pool.Cluster(ctx)
	if err != nil {
		// Cluster view is best-effort; report what we have.
		s.log.Warn().Err(err).Msg("cluster stats unavailable")
	}

	workers := s.deps.Pool.Stats()
	keys := s.deps.Keys.Stats(ctx)

	decision, err := s.deps.Pool.Decision(ctx)
	if err != nil {
		s.log.Warn().Err(err).Msg("scaling decision unavailable")
	}

	writeJSON(w, http.StatusOK, statsResponse{
		Queue:   queue,
		Workers: workers,
		Cluster: cluster,
		APIKeys: keys,
		Scaling: decision,
		CapacityEstimate: capacityEstimate{
			RequestsPerMinute: keys.Active * s.cfg.DefaultRPM,
			MaxWorkers:        s.cfg.MaxWorkers,
			CurrentWorkers:    workers.TotalWorkers,
		},
	})
}

type healthResponse struct {
	Status          string `json:"status"`
	Service         string `json:"service"`
	Version         string `json:"version"`
	StoreConnected  bool   `json:"store_connected"`
	ProviderHealthy bool   `json:"provider_healthy"`
	APIKeysCount    int    `json:"api_keys_count"`
}

// handleHealth always answers 200; the status field carries the verdict
// so load balancers keep routing while operators see degradation.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	storeConnected := s.deps.Store.Ping(ctx) == nil
	providerHealthy := s.deps.Provider.Healthy(ctx)
	keyCount := s.deps.Keys.Total()

	status := "healthy"
	if !storeConnected {
		status = "degraded"
	}
	if !providerHealthy || keyCount == 0 {
		status = "unhealthy"
	}

	writeJSON(w, http.StatusOK, healthResponse{
		Status:          status,
		Service:         "glotta",
		Version:         s.cfg.Version,
		StoreConnected:  storeConnected,
		ProviderHealthy: providerHealthy,
		APIKeysCount:    keyCount,
	})
}

type errorResponse struct {
	Detail string `json:"detail"`
}

func httpError(w http.ResponseWriter, code int, detail string) {
	writeJSON(w, code, errorResponse{Detail: detail})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
