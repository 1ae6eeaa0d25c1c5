package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/glottahq/glotta/pkg/observer"
	"github.com/glottahq/glotta/pkg/types"
)

const (
	defaultCallTimeout   = 10 * time.Second
	defaultSubmitTimeout = 2 * time.Minute
)

// Client is a thin HTTP wrapper around the translation API for CLI and
// programmatic use.
type Client struct {
	base string
	http *http.Client
}

// New builds a client for the server at baseURL, e.g.
// "http://localhost:8000".
func New(baseURL string) *Client {
	return &Client{
		base: strings.TrimRight(baseURL, "/"),
		// Per-call contexts carry the deadlines; the result endpoint
		// long-polls, so no blanket client timeout.
		http: &http.Client{},
	}
}

// APIError is a non-2xx response decoded from the server's error body.
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s (status %d)", e.Detail, e.StatusCode)
}

// SubmitResponse is the acknowledgement for an accepted task.
type SubmitResponse struct {
	TaskID                  string           `json:"task_id"`
	Status                  types.TaskStatus `json:"status"`
	EstimatedProcessingTime int              `json:"estimated_processing_time"`
}

// Submit uploads the image files at the given paths for translation
// into lang. Lang may be a display name ("Japanese") or a code
// ("japanese"); empty means the server default.
func (c *Client) Submit(paths []string, lang string) (*SubmitResponse, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("no files to submit")
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, path := range paths {
		if err := attachFile(mw, path); err != nil {
			return nil, err
		}
	}
	if lang != "" {
		if err := mw.WriteField("target_language", lang); err != nil {
			return nil, fmt.Errorf("encode form: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("encode form: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultSubmitTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/api/v1/translate", &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var out SubmitResponse
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func attachFile(mw *multipart.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	fw, err := mw.CreateFormFile("files", filepath.Base(path))
	if err != nil {
		return fmt.Errorf("encode form: %w", err)
	}
	if _, err := io.Copy(fw, f); err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	return nil
}

// Result long-polls the server for up to timeoutSeconds and returns the
// task snapshot, which may still be in flight.
func (c *Client) Result(taskID string, timeoutSeconds int) (*observer.Result, error) {
	if timeoutSeconds <= 0 {
		timeoutSeconds = 60
	}

	// Give the server's poll window a margin before the local deadline.
	ctx, cancel := context.WithTimeout(context.Background(),
		time.Duration(timeoutSeconds)*time.Second+15*time.Second)
	defer cancel()

	endpoint := fmt.Sprintf("%s/api/v1/translate/result/%s?timeout=%d",
		c.base, url.PathEscape(taskID), timeoutSeconds)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	var out observer.Result
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// LanguageEntry is one supported translation target.
type LanguageEntry struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// Languages is the server's supported language catalog.
type Languages struct {
	SupportedLanguages []LanguageEntry `json:"supported_languages"`
	Default            string          `json:"default"`
}

// Languages fetches the supported target languages.
func (c *Client) Languages() (*Languages, error) {
	var out Languages
	if err := c.get("/api/v1/translate/languages", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// KeyStats summarizes credential availability.
type KeyStats struct {
	Total  int `json:"total"`
	Active int `json:"active"`
}

// CapacityEstimate is the server's throughput projection.
type CapacityEstimate struct {
	RequestsPerMinute int `json:"requests_per_minute"`
	MaxWorkers        int `json:"max_workers"`
	CurrentWorkers    int `json:"current_workers"`
}

// Stats is the operational snapshot from the stats endpoint.
type Stats struct {
	Queue            types.QueueStats   `json:"queue"`
	Workers          types.PoolStats    `json:"workers"`
	Cluster          types.ClusterStats `json:"cluster"`
	APIKeys          KeyStats           `json:"api_keys"`
	CapacityEstimate CapacityEstimate   `json:"capacity_estimate"`
}

// Stats fetches queue, worker, cluster, and credential statistics.
func (c *Client) Stats() (*Stats, error) {
	var out Stats
	if err := c.get("/api/v1/stats", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Health is the server's component health verdict.
type Health struct {
	Status          string `json:"status"`
	Service         string `json:"service"`
	Version         string `json:"version"`
	StoreConnected  bool   `json:"store_connected"`
	ProviderHealthy bool   `json:"provider_healthy"`
	APIKeysCount    int    `json:"api_keys_count"`
}

// Health fetches the server's health report.
func (c *Client) Health() (*Health, error) {
	var out Health
	if err := c.get("/api/v1/health", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) get(path string, out any) error {
	ctx, cancel := context.WithTimeout(context.Background(), defaultCallTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

// do runs the request and decodes the JSON response into out, turning
// non-2xx answers into *APIError.
func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", req.URL.Path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", req.URL.Path, err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode, Detail: resp.Status}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return apiErr
	}
	var payload struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &payload) == nil && payload.Detail != "" {
		apiErr.Detail = payload.Detail
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		if retry := resp.Header.Get("Retry-After"); retry != "" {
			if n, err := strconv.Atoi(retry); err == nil {
				apiErr.Detail = fmt.Sprintf("%s (retry in %ds)", apiErr.Detail, n)
			}
		}
	}
	return apiErr
}
