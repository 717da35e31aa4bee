package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestMatch(t *testing.T) {
	tr, err := NewTranslator("en")
	if err != nil {
		t.Fatalf("NewTranslator() error = %v", err)
	}

	tests := []struct {
		name     string
		explicit string
		accept   string
		want     string
	}{
		{"default", "", "", "en"},
		{"query wins", "ru", "de-DE,de;q=0.9", "ru"},
		{"header region", "", "de-AT,de;q=0.9,en;q=0.5", "de"},
		{"unsupported", "", "fr-FR", "en"},
		{"garbage", "!!", "", "en"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tr.Match(tt.explicit, tt.accept); got != tt.want {
				t.Errorf("Match(%q, %q) = %q, want %q", tt.explicit, tt.accept, got, tt.want)
			}
		})
	}

	if langs := tr.Languages(); len(langs) != 3 || langs[0] != "en" {
		t.Errorf("Languages() = %v", langs)
	}
}

func TestTranslate(t *testing.T) {
	tr, err := NewTranslator("de")
	if err != nil {
		t.Fatalf("NewTranslator() error = %v", err)
	}
	if got := tr.Translate("en", "result.accepted", map[string]interface{}{"Name": "Ada"}); got != "Access granted: Ada" {
		t.Errorf("Translate(en) = %q", got)
	}
	if got := tr.Translate("de", "error.no_face", nil); got != "Im Bild wurde kein Gesicht gefunden" {
		t.Errorf("Translate(de) = %q", got)
	}
	if got := tr.Translate("en", "no.such.id", nil); got != "no.such.id" {
		t.Errorf("unknown id = %q", got)
	}
}

func TestI18nMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tr, err := NewTranslator("en")
	if err != nil {
		t.Fatal(err)
	}

	r := gin.New()
	r.Use(I18n(tr))
	r.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, T(c, "photo.deleted"))
	})

	req := httptest.NewRequest(http.MethodGet, "/?lang=de", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Body.String() != "Foto gelöscht" {
		t.Errorf("body = %q", w.Body.String())
	}
	if w.Header().Get("Content-Language") != "de" {
		t.Errorf("Content-Language = %q", w.Header().Get("Content-Language"))
	}

	// ohne Middleware bleibt die ID stehen
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	if got := T(c, "photo.deleted"); got != "photo.deleted" {
		t.Errorf("T without middleware = %q", got)
	}
}
