package provider

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/glottahq/glotta/pkg/log"
	"github.com/glottahq/glotta/pkg/metrics"
	"github.com/glottahq/glotta/pkg/prompts"
	"github.com/glottahq/glotta/pkg/types"
)

// Translator turns an image into translated text.
type Translator interface {
	Translate(ctx context.Context, image []byte, lang types.Language) (string, error)
}

// CredentialSource is the slice of the key rotator the adapter needs:
// pick a key per attempt, attribute usage on success, back off on failure.
type CredentialSource interface {
	Select(ctx context.Context) (*types.Credential, error)
	RecordUsage(ctx context.Context, cred *types.Credential, tokensUsed int) (bool, error)
	MarkFailed(ctx context.Context, cred *types.Credential, base time.Duration)
}

const (
	defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	defaultModel   = "gemini-2.5-flash-lite"

	maxAttempts      = 3
	maxResponseBytes = 4 << 20

	// Failure backoff bases handed to the rotator. Quota windows roll over
	// within minutes; a rejected key is likely revoked.
	quotaFailBackoff = 10 * time.Minute
	authFailBackoff  = time.Hour
)

// Config holds the Gemini adapter settings.
type Config struct {
	Model       string        // default gemini-2.5-flash-lite
	BaseURL     string        // override for tests
	HTTPTimeout time.Duration // per-request, default 120s
}

// Gemini translates image text through the Gemini generateContent API.
// One Translate call makes up to three attempts, each on a freshly
// selected credential.
type Gemini struct {
	source  CredentialSource
	prompts *prompts.Manager
	norm    *Normalizer
	client  *http.Client
	model   string
	baseURL string
	log     zerolog.Logger

	// backoffUnit scales the inter-attempt backoff; tests shrink it.
	backoffUnit time.Duration
}

// NewGemini builds the adapter.
func NewGemini(source CredentialSource, pm *prompts.Manager, cfg Config) *Gemini {
	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Gemini{
		source:      source,
		prompts:     pm,
		norm:        NewNormalizer(),
		client:      &http.Client{Timeout: timeout},
		model:       model,
		baseURL:     baseURL,
		log:         log.WithComponent("provider"),
		backoffUnit: time.Second,
	}
}

// Translate normalizes image, sends it with the language's prompt, and
// returns the translated text. Failed attempts are classified; quota and
// auth failures take the attempt's credential out of rotation before the
// next attempt. The returned error is always a *Error.
func (g *Gemini) Translate(ctx context.Context, image []byte, lang types.Language) (string, error) {
	normalized, err := g.norm.Normalize(ctx, image)
	if err != nil {
		return "", transient(err)
	}

	prompt := g.prompts.Prompt(lang)
	promptTokens := wordCount(prompt)

	var lastErr *Error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		cred, err := g.source.Select(ctx)
		if err != nil {
			// No credential will free up within this call's retry budget.
			return "", transient(err)
		}

		timer := metrics.NewTimer()
		text, err := g.generate(ctx, cred.APIKey, normalized, prompt)
		timer.ObserveDuration(metrics.ProviderRequestDuration)

		if err == nil {
			metrics.ProviderRequestsTotal.WithLabelValues("success").Inc()
			tokens := promptTokens + wordCount(text)
			if _, err := g.source.RecordUsage(ctx, cred, tokens); err != nil {
				g.log.Warn().Err(err).Str("credential", cred.ID).Msg("usage recording failed")
			}
			g.log.Debug().
				Str("credential", cred.ID).
				Int("attempt", attempt).
				Int("estimated_tokens", tokens).
				Msg("translation completed")
			return strings.TrimSpace(text), nil
		}

		lastErr = asClassified(err)
		metrics.ProviderRequestsTotal.WithLabelValues(strings.ToLower(string(lastErr.Class))).Inc()
		g.log.Warn().
			Err(err).
			Str("credential", cred.ID).
			Str("class", string(lastErr.Class)).
			Int("attempt", attempt).
			Msg("translation attempt failed")

		switch lastErr.Class {
		case ClassQuotaOrRate:
			g.source.MarkFailed(ctx, cred, quotaFailBackoff)
		case ClassAuth:
			g.source.MarkFailed(ctx, cred, authFailBackoff)
		}

		if attempt < maxAttempts {
			backoff := time.Duration(1<<uint(attempt)) * g.backoffUnit
			select {
			case <-ctx.Done():
				return "", transient(ctx.Err())
			case <-time.After(backoff):
			}
		}
	}

	return "", &Error{
		Class: lastErr.Class,
		Err:   fmt.Errorf("after %d attempts: %w", maxAttempts, lastErr.Err),
	}
}

// Healthy reports whether a credential is currently selectable.
func (g *Gemini) Healthy(ctx context.Context) bool {
	_, err := g.source.Select(ctx)
	return err == nil
}

// generateContent request/response shapes, inline_data variant.
type generateRequest struct {
	Contents []generateContent `json:"contents"`
}

type generateContent struct {
	Parts []generatePart `json:"parts"`
}

type generatePart struct {
	InlineData *inlineData `json:"inline_data,omitempty"`
	Text       string      `json:"text,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

func (r *generateResponse) text() string {
	if len(r.Candidates) == 0 {
		return ""
	}
	var b strings.Builder
	for _, p := range r.Candidates[0].Content.Parts {
		b.WriteString(p.Text)
	}
	return b.String()
}

type apiError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// generate performs one generateContent call.
func (g *Gemini) generate(ctx context.Context, apiKey string, image []byte, prompt string) (string, error) {
	payload, err := json.Marshal(generateRequest{
		Contents: []generateContent{{
			Parts: []generatePart{
				{InlineData: &inlineData{
					MimeType: "image/png",
					Data:     base64.StdEncoding.EncodeToString(image),
				}},
				{Text: prompt},
			},
		}},
	})
	if err != nil {
		return "", transient(fmt.Errorf("encode request: %w", err))
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", g.baseURL, g.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", transient(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", apiKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return "", transient(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", transient(fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		msg := upstreamMessage(body)
		return "", classified(resp.StatusCode, fmt.Errorf("upstream status %d: %s", resp.StatusCode, msg))
	}

	var out generateResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", transient(fmt.Errorf("decode response: %w", err))
	}
	text := out.text()
	if strings.TrimSpace(text) == "" {
		return "", transient(errors.New("no translation generated"))
	}
	return text, nil
}

// upstreamMessage digs the human-readable message out of an error body,
// falling back to the raw body. The status token (RESOURCE_EXHAUSTED,
// INVALID_ARGUMENT, ...) is kept in front of the message: classification
// matches on it.
func upstreamMessage(body []byte) string {
	var ae apiError
	if err := json.Unmarshal(body, &ae); err == nil && ae.Error.Message != "" {
		if ae.Error.Status != "" {
			return ae.Error.Status + ": " + ae.Error.Message
		}
		return ae.Error.Message
	}
	s := strings.TrimSpace(string(body))
	if len(s) > 512 {
		s = s[:512]
	}
	return s
}

func asClassified(err error) *Error {
	var pe *Error
	if errors.As(err, &pe) {
		return pe
	}
	return transient(err)
}

// wordCount approximates token usage; the upstream API does not return
// exact counts for this call shape.
func wordCount(s string) int {
	return len(strings.Fields(s))
}
