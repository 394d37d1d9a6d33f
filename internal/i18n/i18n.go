// Package i18n localizes CLI messages.
package i18n

import (
	"encoding/json"
	"io/fs"
	"sync"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
)

// defaultLanguage must match the tag of a shipped message file
// (locales/en-us.json), since missing messages are looked up under it.
var defaultLanguage = language.AmericanEnglish

var (
	mu        sync.RWMutex
	bundle    *i18n.Bundle
	localizer *i18n.Localizer
)

// Init loads every locales/*.json message file of localeFS and selects lang.
func Init(localeFS fs.FS, lang string) error {
	b := i18n.NewBundle(defaultLanguage)
	b.RegisterUnmarshalFunc("json", json.Unmarshal)

	files, err := fs.Glob(localeFS, "locales/*.json")
	if err != nil {
		return err
	}
	for _, f := range files {
		if _, err := b.LoadMessageFileFS(localeFS, f); err != nil {
			return err
		}
	}

	mu.Lock()
	defer mu.Unlock()
	bundle = b
	localizer = i18n.NewLocalizer(b, lang, defaultLanguage.String())
	return nil
}

// T translates a message by its ID with optional template data and plural count.
// The ID itself is returned when no translation is loaded.
func T(messageID string, templateData map[string]any, pluralCount ...int) string {
	mu.RLock()
	l := localizer
	mu.RUnlock()
	if l == nil {
		return messageID
	}

	config := &i18n.LocalizeConfig{
		MessageID:    messageID,
		TemplateData: templateData,
	}
	if len(pluralCount) > 0 {
		config.PluralCount = pluralCount[0]
	}

	// A message missing in the selected locale comes back in the default
	// language together with an error.
	msg, err := l.Localize(config)
	if err != nil && msg == "" {
		return messageID
	}
	return msg
}

// SetLocale changes the current locale
func SetLocale(lang string) {
	mu.Lock()
	defer mu.Unlock()
	if bundle != nil {
		localizer = i18n.NewLocalizer(bundle, lang, defaultLanguage.String())
	}
}
