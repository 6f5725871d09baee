package notify

import (
	"strings"
	"testing"

	"github.com/kunaal-theme/notify/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReplacePlaceholders(t *testing.T) {
	vars := map[string]string{"site": "My Blog", "title": "Hello"}

	tests := []struct {
		name string
		tpl  string
		want string
	}{
		{"simple", "[{site}] {title}", "[My Blog] Hello"},
		{"repeated marker", "{title} / {title}", "Hello / Hello"},
		{"unknown marker kept", "{site} {nope}", "My Blog {nope}"},
		{"no markers", "plain text", "plain text"},
		{"uppercase not a marker", "{Site}", "{Site}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ReplacePlaceholders(tt.tpl, vars))
		})
	}
}

func TestRenderPost_Defaults(t *testing.T) {
	r := NewRenderer(config.NewsletterConfig{}, "My Blog")
	content := PublishedContent{
		ID:       1,
		Title:    "On Writing",
		URL:      "https://example.com/on-writing",
		Markdown: "Some *short* body.",
	}
	unsub := "https://example.com/subscribe/unsubscribe?sid=1&sig=x"

	subject, body := r.RenderPost(content, unsub)

	assert.Equal(t, "[My Blog] On Writing", subject)
	assert.Contains(t, body, "On Writing")
	assert.Contains(t, body, content.URL)
	assert.Contains(t, body, "Some short body.")
	assert.Contains(t, body, "You are receiving this because you subscribed at My Blog.")
	assert.Contains(t, body, "Unsubscribe: "+unsub)
}

func TestRenderPost_CustomTemplates(t *testing.T) {
	r := NewRenderer(config.NewsletterConfig{
		SubjectTemplate: "New: {title}",
		BodyTemplate:    "{url}\n\n{unsubscribe_url}",
		Footer:          "bye from {site}",
	}, "My Blog")

	unsub := "https://example.com/u"
	subject, body := r.RenderPost(PublishedContent{Title: "T", URL: "https://example.com/t"}, unsub)

	assert.Equal(t, "New: T", subject)
	assert.Contains(t, body, "bye from My Blog")
	// Template already places the unsubscribe link; no duplicate line added.
	assert.Equal(t, 1, strings.Count(body, unsub))
}

func TestRenderBroadcast(t *testing.T) {
	r := NewRenderer(config.NewsletterConfig{}, "My Blog")
	unsub := "https://example.com/u"

	subject, body := r.RenderBroadcast("Hi from {site}", "News from {site}.", unsub)

	assert.Equal(t, "Hi from My Blog", subject)
	assert.Contains(t, body, "News from My Blog.")
	assert.Contains(t, body, "Unsubscribe: "+unsub)
}

func TestRenderBroadcast_NoUnsubscribeURL(t *testing.T) {
	r := NewRenderer(config.NewsletterConfig{}, "My Blog")

	_, body := r.RenderBroadcast("s", "b", "")
	assert.NotContains(t, body, "Unsubscribe:")
}

func TestRenderConfirm(t *testing.T) {
	r := NewRenderer(config.NewsletterConfig{}, "My Blog")
	confirmURL := "https://example.com/subscribe/confirm?token=abc"

	subject, body := r.RenderConfirm(confirmURL)

	assert.Equal(t, "[My Blog] Confirm your subscription", subject)
	assert.Contains(t, body, confirmURL)
	assert.NotContains(t, body, "Unsubscribe:")
}

func TestExcerpt(t *testing.T) {
	t.Run("markdown is flattened", func(t *testing.T) {
		got := Excerpt("# Heading\n\nSome **bold** text and a [link](https://example.com)", 280)
		assert.Equal(t, "Heading Some bold text and a link", got)
	})

	t.Run("empty input", func(t *testing.T) {
		assert.Equal(t, "", Excerpt("", 280))
		assert.Equal(t, "", Excerpt("   \n  ", 280))
	})

	t.Run("long text truncated at word boundary", func(t *testing.T) {
		long := strings.Repeat("word ", 100)
		got := Excerpt(long, 50)
		require.True(t, strings.HasSuffix(got, "…"), "got %q", got)
		assert.LessOrEqual(t, len([]rune(got)), 51)
		assert.True(t, strings.HasSuffix(got, "word…"), "cut should land on a word boundary, got %q", got)
	})

	t.Run("short text untouched", func(t *testing.T) {
		assert.Equal(t, "tiny", Excerpt("tiny", 280))
	})

	t.Run("entities unescaped", func(t *testing.T) {
		got := Excerpt("a &amp; b", 280)
		assert.Equal(t, "a & b", got)
	})
}
