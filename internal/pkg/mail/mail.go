package mail

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/kunaal-theme/notify/internal/config"
	pkgredis "github.com/kunaal-theme/notify/internal/pkg/redis"
)

// ErrDisabled is returned by Send when mail delivery is switched off.
var ErrDisabled = errors.New("mail sending is disabled")

const (
	preflightKey     = "kn:mail:preflight"
	preflightTTL     = 10 * time.Minute
	preflightTimeout = 6 * time.Second
	resendEndpoint   = "https://api.resend.com/emails"
)

// Config holds mail transport settings.
type Config struct {
	Enable    bool
	Host      string
	Port      int
	User      string
	Pass      string
	From      string
	ReplyTo   string
	ResendKey string
}

// FromApp maps the YAML mail section onto the transport config.
func FromApp(mc config.MailConfig) Config {
	return Config{
		Enable:    mc.Enable,
		Host:      mc.Host,
		Port:      mc.Port,
		User:      mc.User,
		Pass:      mc.Pass,
		From:      mc.From,
		ReplyTo:   mc.ReplyTo,
		ResendKey: mc.ResendKey,
	}
}

// Message is a single plain-text email.
type Message struct {
	To      string
	Subject string
	Body    string
	Headers []string // extra "Key: value" header lines
}

// Sender delivers messages. The queue worker and the subscribe handler only
// see this interface; tests substitute fakes.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Transport sends via SMTP and falls back to the Resend HTTP API when SMTP
// fails and an API key is configured.
type Transport struct {
	cfg Config
	rdb *pkgredis.Client
}

func New(cfg Config, rdb *pkgredis.Client) *Transport {
	return &Transport{cfg: cfg, rdb: rdb}
}

// Send delivers one message. The SMTP error is kept when the fallback also
// fails, since it is usually the actionable one.
func (t *Transport) Send(ctx context.Context, msg Message) error {
	if !t.cfg.Enable {
		return ErrDisabled
	}
	smtpErr := t.sendSMTP(ctx, msg)
	if smtpErr == nil {
		return nil
	}
	if t.cfg.ResendKey == "" {
		return smtpErr
	}
	if resendErr := t.sendResend(ctx, msg); resendErr != nil {
		return fmt.Errorf("smtp: %v (resend fallback: %v)", smtpErr, resendErr)
	}
	return nil
}

// Preflight checks SMTP reachability with a short TCP dial. The verdict is
// cached so interactive paths (subscribe, test send) fail fast instead of
// hanging for the full SMTP timeout on every request.
func (t *Transport) Preflight(ctx context.Context) error {
	if !t.cfg.Enable {
		return ErrDisabled
	}
	if t.rdb != nil {
		if cached, err := t.rdb.Get(ctx, preflightKey); err == nil && cached != "" {
			if cached == "ok" {
				return nil
			}
			return fmt.Errorf("smtp unreachable (cached): %s", strings.TrimPrefix(cached, "fail:"))
		}
	}

	addr := net.JoinHostPort(t.cfg.Host, strconv.Itoa(t.port()))
	conn, err := net.DialTimeout("tcp", addr, preflightTimeout)
	if err != nil {
		if t.rdb != nil {
			_ = t.rdb.Set(ctx, preflightKey, "fail:"+err.Error(), preflightTTL)
		}
		return fmt.Errorf("smtp unreachable: %w", err)
	}
	conn.Close()
	if t.rdb != nil {
		_ = t.rdb.Set(ctx, preflightKey, "ok", preflightTTL)
	}
	return nil
}

func (t *Transport) port() int {
	if t.cfg.Port > 0 {
		return t.cfg.Port
	}
	return 587
}

func (t *Transport) from() string {
	if t.cfg.From != "" {
		return t.cfg.From
	}
	return t.cfg.User
}

func (t *Transport) sendSMTP(_ context.Context, msg Message) error {
	addr := net.JoinHostPort(t.cfg.Host, strconv.Itoa(t.port()))
	from := t.from()

	var buf bytes.Buffer
	buf.WriteString("MIME-Version: 1.0\r\n")
	buf.WriteString(fmt.Sprintf("From: %s\r\n", from))
	buf.WriteString(fmt.Sprintf("To: %s\r\n", msg.To))
	buf.WriteString(fmt.Sprintf("Subject: %s\r\n", msg.Subject))
	buf.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	if t.cfg.ReplyTo != "" {
		buf.WriteString(fmt.Sprintf("Reply-To: %s\r\n", t.cfg.ReplyTo))
	}
	for _, h := range msg.Headers {
		h = strings.TrimSpace(h)
		if h == "" || !strings.Contains(h, ":") {
			continue
		}
		buf.WriteString(h)
		buf.WriteString("\r\n")
	}
	buf.WriteString("\r\n")
	buf.WriteString(strings.ReplaceAll(msg.Body, "\n", "\r\n"))

	var auth smtp.Auth
	if t.cfg.User != "" {
		auth = smtp.PlainAuth("", t.cfg.User, t.cfg.Pass, t.cfg.Host)
	}
	return smtp.SendMail(addr, auth, from, []string{msg.To}, buf.Bytes())
}

func (t *Transport) sendResend(ctx context.Context, msg Message) error {
	payload, _ := json.Marshal(map[string]interface{}{
		"from":    t.from(),
		"to":      []string{msg.To},
		"subject": msg.Subject,
		"text":    msg.Body,
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, resendEndpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+t.cfg.ResendKey)
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: 15 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		var errResp struct {
			Message string `json:"message"`
		}
		json.NewDecoder(resp.Body).Decode(&errResp)
		return fmt.Errorf("resend error %d: %s", resp.StatusCode, errResp.Message)
	}
	return nil
}
