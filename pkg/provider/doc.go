/*
Package provider adapts the upstream Gemini API into the fabric's
Translator interface: PNG bytes and a target language in, translated text
out.

# Architecture

	Translate(ctx, image, lang)
	        │
	        ▼
	┌──────────────────┐   CPU-bound, bounded by a GOMAXPROCS-weighted
	│    Normalizer    │   semaphore: decode → flatten onto white RGB →
	└────────┬─────────┘   Lanczos downscale to ≤2048px → PNG
	         │
	         ▼
	┌──────────────────┐   up to 3 attempts, 2s/4s backoff between them,
	│   attempt loop   │   each attempt on a freshly selected credential
	└────────┬─────────┘
	         │ POST models/{model}:generateContent
	         ▼
	┌──────────────────┐   success: record usage (word-count tokens),
	│  classification  │   QUOTA_OR_RATE: back key off 600s,
	└──────────────────┘   AUTH: back key off 3600s, TRANSIENT: just retry

# Error Classification

Upstream failures never leave this package raw; they are wrapped in
*Error with one of three classes:

	QUOTA_OR_RATE  HTTP 429, or "quota"/"rate" in the message
	AUTH           HTTP 401/403, or "invalid"/"unauthorized"
	TRANSIENT      everything else: 5xx, transport errors, empty responses

The class decides what happens to the credential the attempt used, not
whether the attempt is retried: every failed attempt is retried until the
attempt budget runs out. When credential selection itself fails the call
returns immediately; waiting seconds will not un-exhaust a key pool.

# Token Accounting

The generateContent response carries no usable token counts for this call
shape, so usage is estimated as wordCount(prompt) + wordCount(response)
and attributed to the attempt's credential via RecordUsage. The estimate
only has to be roughly proportional to real usage; the rotator's limits
are soft bounds.

# Usage

	gem := provider.NewGemini(rotator, promptManager, provider.Config{
		Model: cfg.GeminiModel,
	})

	text, err := gem.Translate(ctx, pngBytes, types.LanguageVietnamese)
	if err != nil {
		class := provider.ClassOf(err) // drives the partial-result reason
	}

# See Also

  - pkg/keyring - credential selection and usage accounting
  - pkg/prompts - per-language prompt text
  - pkg/worker - calls Translate once per image goroutine
*/
package provider
