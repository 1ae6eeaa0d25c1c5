package prompts

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/glottahq/glotta/pkg/log"
	"github.com/glottahq/glotta/pkg/types"
)

// Built-in prompts used when no prompts file is available. Kept minimal;
// production deployments ship a full prompts file.
const (
	fallbackEnglish = "You are a professional game localization expert. " +
		"Please extract and clean up all visible text from this image. " +
		"Provide only the text content without explanations. " +
		"Extract all text from the provided image:"

	fallbackVietnamese = "Bạn là chuyên gia dịch văn bản từ hình ảnh sang " +
		"tiếng việt dễ hiểu cho game thủ. Hãy chỉ cung cấp bản dịch mà " +
		"không giải thích gì thêm. Bây giờ hãy dịch cho tôi từ ảnh được cung cấp."
)

// Manager resolves the translation prompt for a target language. Prompts
// load once at startup; a missing or unreadable file falls back to the
// built-in English and Vietnamese prompts.
type Manager struct {
	prompts map[types.Language]string
	log     zerolog.Logger
}

// Load reads the prompts file at path. Loading never fails: file and parse
// errors are logged and the built-in fallbacks are used instead. Unknown
// language keys in the file are skipped with a warning.
func Load(path string) *Manager {
	m := &Manager{
		prompts: make(map[types.Language]string),
		log:     log.WithComponent("prompts"),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		m.log.Warn().Str("file", path).Err(err).Msg("prompts file unavailable, using fallback prompts")
		m.loadFallbacks()
		return m
	}

	var raw map[string]string
	if err := yaml.Unmarshal(data, &raw); err != nil {
		m.log.Error().Str("file", path).Err(err).Msg("failed to parse prompts file, using fallback prompts")
		m.loadFallbacks()
		return m
	}

	for name, prompt := range raw {
		lang, err := types.ParseLanguage(name)
		if err != nil {
			m.log.Warn().Str("language", name).Msg("skipping prompt for unknown language")
			continue
		}
		if prompt == "" {
			m.log.Warn().Str("language", name).Msg("skipping empty prompt")
			continue
		}
		m.prompts[lang] = prompt
	}

	if len(m.prompts) == 0 {
		m.log.Warn().Str("file", path).Msg("prompts file contained no usable prompts, using fallbacks")
		m.loadFallbacks()
		return m
	}

	// The English prompt is the last-resort fallback for every lookup.
	if _, ok := m.prompts[types.LanguageEnglish]; !ok {
		m.prompts[types.LanguageEnglish] = fallbackEnglish
	}

	m.log.Info().Int("languages", len(m.prompts)).Str("file", path).Msg("loaded translation prompts")
	return m
}

func (m *Manager) loadFallbacks() {
	m.prompts[types.LanguageEnglish] = fallbackEnglish
	m.prompts[types.LanguageVietnamese] = fallbackVietnamese
}

// Prompt returns the prompt for the given language, falling back to English
// when the language has no prompt configured.
func (m *Manager) Prompt(lang types.Language) string {
	if p, ok := m.prompts[lang]; ok {
		return p
	}
	m.log.Warn().Str("language", string(lang)).Msg("no prompt for language, using English fallback")
	if p, ok := m.prompts[types.LanguageEnglish]; ok {
		return p
	}
	return fallbackEnglish
}

// Languages returns the languages that have a prompt configured, in the
// supported-language order.
func (m *Manager) Languages() []types.Language {
	out := make([]types.Language, 0, len(m.prompts))
	for _, lang := range types.Languages() {
		if _, ok := m.prompts[lang]; ok {
			out = append(out, lang)
		}
	}
	return out
}

// Validate checks that every supported language resolves to a non-empty
// prompt, reporting the languages that will use the English fallback.
func (m *Manager) Validate() error {
	if _, ok := m.prompts[types.LanguageEnglish]; !ok {
		return fmt.Errorf("prompts: missing English fallback prompt")
	}
	return nil
}
