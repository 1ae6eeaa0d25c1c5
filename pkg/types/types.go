package types

import (
	"fmt"
	"strings"
	"time"
)

// TaskStatus represents the lifecycle state of a task or of a single image
// result within a task. Image results never enter the processing state.
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

// Terminal reports whether the status is completed or failed.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

// Language is a supported translation target language. The string value is
// the display name used on the wire and as the prompts file key.
type Language string

const (
	LanguageVietnamese         Language = "Vietnamese"
	LanguageEnglish            Language = "English"
	LanguageJapanese           Language = "Japanese"
	LanguageKorean             Language = "Korean"
	LanguageChineseSimplified  Language = "Chinese (Simplified)"
	LanguageChineseTraditional Language = "Chinese (Traditional)"
	LanguageSpanish            Language = "Spanish"
	LanguageFrench             Language = "French"
	LanguageGerman             Language = "German"
	LanguagePortuguese         Language = "Portuguese"
	LanguageRussian            Language = "Russian"
	LanguageThai               Language = "Thai"
	LanguageIndonesian         Language = "Indonesian"
)

// DefaultLanguage is used when a submission omits target_language.
const DefaultLanguage = LanguageVietnamese

var languageCodes = map[Language]string{
	LanguageVietnamese:         "vietnamese",
	LanguageEnglish:            "english",
	LanguageJapanese:           "japanese",
	LanguageKorean:             "korean",
	LanguageChineseSimplified:  "chinese_simplified",
	LanguageChineseTraditional: "chinese_traditional",
	LanguageSpanish:            "spanish",
	LanguageFrench:             "french",
	LanguageGerman:             "german",
	LanguagePortuguese:         "portuguese",
	LanguageRussian:            "russian",
	LanguageThai:               "thai",
	LanguageIndonesian:         "indonesian",
}

// Languages returns the supported languages in a stable order.
func Languages() []Language {
	return []Language{
		LanguageVietnamese,
		LanguageEnglish,
		LanguageJapanese,
		LanguageKorean,
		LanguageChineseSimplified,
		LanguageChineseTraditional,
		LanguageSpanish,
		LanguageFrench,
		LanguageGerman,
		LanguagePortuguese,
		LanguageRussian,
		LanguageThai,
		LanguageIndonesian,
	}
}

// Code returns the lowercase identifier form of the language
// (e.g. "chinese_simplified").
func (l Language) Code() string {
	return languageCodes[l]
}

// ParseLanguage resolves a display name or lowercase code into a Language.
func ParseLanguage(s string) (Language, error) {
	for _, l := range Languages() {
		if s == string(l) || strings.EqualFold(s, l.Code()) {
			return l, nil
		}
	}
	return "", fmt.Errorf("unsupported language %q", s)
}

// Task is a client-submitted batch of 1..10 images with one target language.
// The record is JSON-serialized into the coordination store; image payloads
// live in a separate list key and are never embedded here.
type Task struct {
	TaskID         string        `json:"task_id"`
	TargetLanguage Language      `json:"target_language"`
	Status         TaskStatus    `json:"status"`
	TotalImages    int           `json:"total_images"`
	PartialResults []ImageResult `json:"partial_results"`
	CreatedAt      time.Time     `json:"created_at"`
	StartedAt      *time.Time    `json:"started_at,omitempty"`
	CompletedAt    *time.Time    `json:"completed_at,omitempty"`
	WorkerID       string        `json:"worker_id,omitempty"`
	APIKeyID       string        `json:"api_key_id,omitempty"`
	Error          string        `json:"error,omitempty"`
	ProcessingTime float64       `json:"processing_time,omitempty"`

	// TranslatedText mirrors the first completed image result for
	// single-image clients.
	TranslatedText string `json:"translated_text,omitempty"`
}

// TerminalCount returns how many partial results have reached a terminal
// status.
func (t *Task) TerminalCount() int {
	n := 0
	for _, r := range t.PartialResults {
		if r.Status.Terminal() {
			n++
		}
	}
	return n
}

// Progress returns completion progress as a percentage of total images.
func (t *Task) Progress() float64 {
	if t.TotalImages == 0 {
		return 0
	}
	return float64(t.TerminalCount()) / float64(t.TotalImages) * 100
}

// ImageResult is the per-image outcome within a task, parallel to the
// submitted image order.
type ImageResult struct {
	Index          int        `json:"index"`
	Status         TaskStatus `json:"status"`
	TranslatedText string     `json:"translated_text,omitempty"`
	Error          string     `json:"error,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	ProcessingTime float64    `json:"processing_time,omitempty"`
}

// Credential is an API key entry with its rate limits, loaded from the
// credentials file. Zero limits inherit the configured defaults.
type Credential struct {
	ID     string           `yaml:"id" validate:"required"`
	APIKey string           `yaml:"api_key" validate:"required"`
	Limits CredentialLimits `yaml:"limits"`
}

// CredentialLimits holds the per-credential rate limits.
type CredentialLimits struct {
	RequestsPerMinute int `yaml:"requests_per_minute" validate:"gte=0"`
	RequestsPerDay    int `yaml:"requests_per_day" validate:"gte=0"`
	TokensPerMinute   int `yaml:"tokens_per_minute" validate:"gte=0"`
}

// QueueStats is a point-in-time view of queue pressure.
type QueueStats struct {
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Total      int `json:"total"`
}

// Pressure returns pending + processing, the scaler's input.
func (q QueueStats) Pressure() int {
	return q.Pending + q.Processing
}

// PoolStats summarizes the local worker pool.
type PoolStats struct {
	TotalWorkers    int     `json:"total_workers"`
	ActiveWorkers   int     `json:"active_workers"`
	IdleWorkers     int     `json:"idle_workers"`
	TasksProcessed  int64   `json:"tasks_processed"`
	TasksSuccessful int64   `json:"tasks_successful"`
	TasksFailed     int64   `json:"tasks_failed"`
	SuccessRate     float64 `json:"success_rate"`
}

// InstanceStatus is one instance's view in the cluster, derived from its
// heartbeat hash.
type InstanceStatus struct {
	InstanceID     string    `json:"instance_id"`
	WorkerCount    int       `json:"worker_count"`
	ActiveWorkers  int       `json:"active_workers"`
	ProcessedTasks int64     `json:"processed_tasks"`
	LastHeartbeat  time.Time `json:"last_heartbeat"`
}

// ClusterStats aggregates the instance set.
type ClusterStats struct {
	Instances      []InstanceStatus `json:"instances"`
	TotalInstances int              `json:"total_instances"`
	TotalWorkers   int              `json:"total_workers"`
}

// ScalingDecision is the hash the scaling leader publishes each interval.
type ScalingDecision struct {
	TargetClusterWorkers int       `json:"target_cluster_workers"`
	QueuePressure        int       `json:"queue_pressure"`
	Leader               string    `json:"leader"`
	Timestamp            time.Time `json:"timestamp"`
}
