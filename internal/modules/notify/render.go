package notify

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/kunaal-theme/notify/internal/config"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// Built-in plain-text templates, used when the YAML leaves them empty.
// Placeholders use single-brace names so operators can edit them in config
// without fighting Go template syntax.
const (
	defaultSubjectTpl = "[{site}] {title}"
	defaultBodyTpl    = "{title}\n\n{excerpt}\n\nRead it here:\n{url}"

	defaultConfirmSubject = "[{site}] Confirm your subscription"
	defaultConfirmBody    = "Hi,\n\n" +
		"Someone (hopefully you) asked to receive new essays from {site} by email.\n\n" +
		"Confirm your subscription:\n{confirm_url}\n\n" +
		"If this wasn't you, ignore this message and nothing will happen."

	defaultFooter = "--\nYou are receiving this because you subscribed at {site}."

	excerptLimit = 280
)

var placeholderPattern = regexp.MustCompile(`\{[a-z_]+\}`)

// ReplacePlaceholders substitutes {name} markers. Unknown markers are left
// in place so a typo in a template is visible instead of silently eaten.
func ReplacePlaceholders(tpl string, vars map[string]string) string {
	return placeholderPattern.ReplaceAllStringFunc(tpl, func(marker string) string {
		name := strings.Trim(marker, "{}")
		if v, ok := vars[name]; ok {
			return v
		}
		return marker
	})
}

// Renderer produces the final subject and body for every outgoing email.
// Bodies are frozen at enqueue time; the worker never re-renders.
type Renderer struct {
	cfg      config.NewsletterConfig
	siteName string
}

func NewRenderer(cfg config.NewsletterConfig, siteName string) *Renderer {
	return &Renderer{cfg: cfg, siteName: siteName}
}

// PublishedContent carries what the CMS tells us about a newly published piece.
type PublishedContent struct {
	ID       uint64
	Title    string
	URL      string
	Markdown string
}

// RenderPost renders a post notification for one recipient.
func (r *Renderer) RenderPost(content PublishedContent, unsubscribeURL string) (subject, body string) {
	vars := map[string]string{
		"site":            r.siteName,
		"title":           content.Title,
		"url":             content.URL,
		"excerpt":         Excerpt(content.Markdown, excerptLimit),
		"unsubscribe_url": unsubscribeURL,
	}
	subject = ReplacePlaceholders(r.template(r.cfg.SubjectTemplate, defaultSubjectTpl), vars)
	body = ReplacePlaceholders(r.template(r.cfg.BodyTemplate, defaultBodyTpl), vars)
	return subject, r.appendFooter(body, unsubscribeURL)
}

// RenderBroadcast renders an admin blast for one recipient. The subject and
// body come straight from the composer, with placeholder support.
func (r *Renderer) RenderBroadcast(subjectTpl, bodyTpl, unsubscribeURL string) (subject, body string) {
	vars := map[string]string{
		"site":            r.siteName,
		"unsubscribe_url": unsubscribeURL,
	}
	subject = ReplacePlaceholders(subjectTpl, vars)
	body = ReplacePlaceholders(bodyTpl, vars)
	return subject, r.appendFooter(body, unsubscribeURL)
}

// RenderConfirm renders the double-opt-in confirmation email.
func (r *Renderer) RenderConfirm(confirmURL string) (subject, body string) {
	vars := map[string]string{
		"site":        r.siteName,
		"confirm_url": confirmURL,
	}
	subject = ReplacePlaceholders(r.template(r.cfg.ConfirmSubject, defaultConfirmSubject), vars)
	body = ReplacePlaceholders(r.template(r.cfg.ConfirmBody, defaultConfirmBody), vars)
	return subject, body
}

// appendFooter adds the configured footer and the mandatory unsubscribe line.
// Every queued message carries a working unsubscribe link in its body, even
// when an operator template forgets the placeholder.
func (r *Renderer) appendFooter(body, unsubscribeURL string) string {
	footer := ReplacePlaceholders(r.template(r.cfg.Footer, defaultFooter), map[string]string{
		"site": r.siteName,
	})
	out := strings.TrimRight(body, "\n") + "\n\n" + footer
	if unsubscribeURL != "" && !strings.Contains(out, unsubscribeURL) {
		out += "\nUnsubscribe: " + unsubscribeURL
	}
	return out
}

func (r *Renderer) template(configured, fallback string) string {
	if strings.TrimSpace(configured) != "" {
		return configured
	}
	return fallback
}

var excerptEngine = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
)

var (
	tagPattern        = regexp.MustCompile(`<[^>]*>`)
	whitespacePattern = regexp.MustCompile(`\s+`)
)

// Excerpt converts markdown into a short plain-text summary. Rendering
// through goldmark first normalizes links, emphasis and lists before the
// tags are stripped.
func Excerpt(markdown string, limit int) string {
	text := strings.TrimSpace(markdown)
	if text == "" {
		return ""
	}

	var out bytes.Buffer
	if err := excerptEngine.Convert([]byte(text), &out); err == nil {
		text = out.String()
	}
	text = tagPattern.ReplaceAllString(text, " ")
	text = strings.NewReplacer("&amp;", "&", "&lt;", "<", "&gt;", ">", "&quot;", `"`, "&#39;", "'").Replace(text)
	text = strings.TrimSpace(whitespacePattern.ReplaceAllString(text, " "))

	runes := []rune(text)
	if limit <= 0 || len(runes) <= limit {
		return text
	}
	cut := string(runes[:limit])
	if idx := strings.LastIndex(cut, " "); idx > limit/2 {
		cut = cut[:idx]
	}
	return strings.TrimRight(cut, " .,;:") + "…"
}
