package middleware

import (
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"path"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/nicksnyder/go-i18n/v2/i18n"
	log "github.com/sirupsen/logrus"
	"golang.org/x/text/language"
)

//go:embed locales/*.json
var localeFS embed.FS

// Kontext-Schlüssel, unter denen die Middleware ihre Werte ablegt
const (
	LanguageKey   = "language"
	TranslatorKey = "translator"
)

// Translator hält das Übersetzungs-Bundle und die unterstützten Sprachen
type Translator struct {
	bundle     *i18n.Bundle
	matcher    language.Matcher
	supported  []language.Tag
	localizers map[string]*i18n.Localizer
}

// NewTranslator lädt die eingebetteten Übersetzungen. Die Standardsprache
// wird bei unbekannten Anfragen verwendet.
func NewTranslator(defaultLanguage string) (*Translator, error) {
	if defaultLanguage == "" {
		defaultLanguage = "en"
	}
	def, err := language.Parse(defaultLanguage)
	if err != nil {
		return nil, fmt.Errorf("invalid default language %q: %w", defaultLanguage, err)
	}

	bundle := i18n.NewBundle(def)
	bundle.RegisterUnmarshalFunc("json", json.Unmarshal)

	files, err := fs.Glob(localeFS, "locales/*.json")
	if err != nil {
		return nil, err
	}
	for _, file := range files {
		if _, err := bundle.LoadMessageFileFS(localeFS, file); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", path.Base(file), err)
		}
	}

	// Standardsprache zuerst, damit der Matcher auf sie zurückfällt
	supported := []language.Tag{def}
	for _, tag := range bundle.LanguageTags() {
		if tag != def {
			supported = append(supported, tag)
		}
	}

	t := &Translator{
		bundle:     bundle,
		matcher:    language.NewMatcher(supported),
		supported:  supported,
		localizers: make(map[string]*i18n.Localizer, len(supported)),
	}
	for _, tag := range supported {
		t.localizers[tag.String()] = i18n.NewLocalizer(bundle, tag.String())
	}
	log.Debugf("Loaded translations for %d languages", len(supported))
	return t, nil
}

// Languages liefert die unterstützten Sprachcodes, Standardsprache zuerst
func (t *Translator) Languages() []string {
	out := make([]string, len(t.supported))
	for i, tag := range t.supported {
		out[i] = tag.String()
	}
	return out
}

// Match wählt die passende unterstützte Sprache. Der explizite Wert hat
// Vorrang vor dem Accept-Language-Header.
func (t *Translator) Match(explicit, acceptLanguage string) string {
	var wanted []language.Tag
	if explicit != "" {
		if tag, err := language.Parse(explicit); err == nil {
			wanted = append(wanted, tag)
		}
	}
	if acceptLanguage != "" {
		if tags, _, err := language.ParseAcceptLanguage(acceptLanguage); err == nil {
			wanted = append(wanted, tags...)
		}
	}
	_, index, confidence := t.matcher.Match(wanted...)
	if confidence == language.No {
		return t.supported[0].String()
	}
	return t.supported[index].String()
}

// Translate übersetzt eine Nachricht. Unbekannte IDs werden unverändert zurückgegeben.
func (t *Translator) Translate(lang, id string, data map[string]interface{}) string {
	loc, ok := t.localizers[lang]
	if !ok {
		loc = t.localizers[t.supported[0].String()]
	}
	msg, err := loc.Localize(&i18n.LocalizeConfig{MessageID: id, TemplateData: data})
	if err != nil {
		log.Debugf("Missing translation %q for %s: %v", id, lang, err)
		return id
	}
	return msg
}

// I18n erstellt eine Middleware, die Sprache und Übersetzer im Kontext ablegt
func I18n(t *Translator) gin.HandlerFunc {
	return func(c *gin.Context) {
		lang := t.Match(c.Query("lang"), c.GetHeader("Accept-Language"))
		c.Set(LanguageKey, lang)
		c.Set(TranslatorKey, t)
		c.Header("Content-Language", lang)
		c.Next()
	}
}

// T übersetzt eine Nachricht für die Sprache der aktuellen Anfrage. Ohne
// Middleware wird die ID zurückgegeben.
func T(c *gin.Context, id string, data ...map[string]interface{}) string {
	value, ok := c.Get(TranslatorKey)
	if !ok {
		return id
	}
	t, ok := value.(*Translator)
	if !ok {
		return id
	}
	var td map[string]interface{}
	if len(data) > 0 {
		td = data[0]
	}
	return t.Translate(strings.TrimSpace(c.GetString(LanguageKey)), id, td)
}
