package i18n

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed locales
var LocalesFS embed.FS

// Translator resolves message keys for one language.
type Translator struct {
	translations map[string]string
}

// NewTranslator loads locales/<langCode>.yaml from fsys.
func NewTranslator(fsys fs.FS, langCode string) (*Translator, error) {
	filePath := path.Join("locales", fmt.Sprintf("%s.yaml", strings.ToLower(langCode)))
	data, err := fs.ReadFile(fsys, filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read translation file %s: %w", filePath, err)
	}
	return newTranslatorFromBytes(data)
}

func newTranslatorFromBytes(data []byte) (*Translator, error) {
	var translations map[string]string
	if err := yaml.Unmarshal(data, &translations); err != nil {
		return nil, fmt.Errorf("failed to parse translation file: %w", err)
	}
	return &Translator{translations: translations}, nil
}

// T returns the message for key, formatted with args; unknown keys are returned as-is.
func (t *Translator) T(key string, args ...interface{}) string {
	format, ok := t.translations[key]
	if !ok {
		return key
	}
	if len(args) > 0 {
		return fmt.Sprintf(format, args...)
	}
	return format
}

// Bundle holds one Translator per language and falls back to a default one.
type Bundle struct {
	byLang   map[string]*Translator
	fallback string
}

// NewBundle loads every language in langs; fallback must be one of them.
func NewBundle(fsys fs.FS, fallback string, langs ...string) (*Bundle, error) {
	b := &Bundle{byLang: make(map[string]*Translator, len(langs)), fallback: strings.ToLower(fallback)}
	for _, l := range langs {
		tr, err := NewTranslator(fsys, l)
		if err != nil {
			return nil, err
		}
		b.byLang[strings.ToLower(l)] = tr
	}
	if _, ok := b.byLang[b.fallback]; !ok {
		return nil, fmt.Errorf("fallback language %q not loaded", fallback)
	}
	return b, nil
}

// T translates key in lang, using the fallback language when lang is unknown.
func (b *Bundle) T(lang, key string, args ...interface{}) string {
	tr, ok := b.byLang[strings.ToLower(lang)]
	if !ok {
		tr = b.byLang[b.fallback]
	}
	return tr.T(key, args...)
}
