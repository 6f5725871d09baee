package signature

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Service derives every token hash and URL signature the pipeline uses.
// tokenSecret keys the confirmation token hashes stored in the database;
// urlSecret keys the unsubscribe and click-redirect signatures that travel
// in links. Raw tokens are never persisted.
type Service struct {
	tokenSecret []byte
	urlSecret   []byte
	baseURL     string
}

func New(tokenSecret, urlSecret, baseURL string) *Service {
	return &Service{
		tokenSecret: []byte(tokenSecret),
		urlSecret:   []byte(urlSecret),
		baseURL:     strings.TrimRight(strings.TrimSpace(baseURL), "/"),
	}
}

// GenerateToken returns a fresh opaque confirmation token.
func GenerateToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// HashToken maps a raw token to its storable hash.
func (s *Service) HashToken(token string) string {
	return s.hmacHex(s.tokenSecret, token)
}

// SignUnsubscribe signs the (subscriber, email) pair for unsubscribe links.
// Email is lowercased first so the signature survives case-mangling mail clients.
func (s *Service) SignUnsubscribe(subscriberID uint64, email string) string {
	payload := strconv.FormatUint(subscriberID, 10) + "|" + strings.ToLower(strings.TrimSpace(email))
	return s.hmacHex(s.urlSecret, payload)
}

// VerifyUnsubscribe checks an unsubscribe signature in constant time.
func (s *Service) VerifyUnsubscribe(subscriberID uint64, email, sig string) bool {
	return hmacEqual(s.SignUnsubscribe(subscriberID, email), sig)
}

// SignClick signs a click-redirect target for one queue row and recipient.
func (s *Service) SignClick(queueID, subscriberID uint64, target string) string {
	payload := strconv.FormatUint(queueID, 10) + "|" + strconv.FormatUint(subscriberID, 10) + "|" + target
	return s.hmacHex(s.urlSecret, payload)
}

// VerifyClick checks a click signature in constant time.
func (s *Service) VerifyClick(queueID, subscriberID uint64, target, sig string) bool {
	return hmacEqual(s.SignClick(queueID, subscriberID, target), sig)
}

// EncodeTarget packs a redirect target for URL transport.
func EncodeTarget(target string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(target))
}

// DecodeTarget unpacks a redirect target from its URL form.
func DecodeTarget(encoded string) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("decode click target: %w", err)
	}
	return string(raw), nil
}

// ConfirmURL builds the public confirmation link for a raw token.
func (s *Service) ConfirmURL(token string) string {
	q := url.Values{}
	q.Set("token", token)
	return s.baseURL + "/subscribe/confirm?" + q.Encode()
}

// UnsubscribeURL builds the signed unsubscribe link for a subscriber.
func (s *Service) UnsubscribeURL(subscriberID uint64, email string) string {
	q := url.Values{}
	q.Set("sid", strconv.FormatUint(subscriberID, 10))
	q.Set("email", strings.ToLower(strings.TrimSpace(email)))
	q.Set("sig", s.SignUnsubscribe(subscriberID, email))
	return s.baseURL + "/subscribe/unsubscribe?" + q.Encode()
}

// ClickURL builds the signed redirect link for a target URL in one message.
func (s *Service) ClickURL(queueID, subscriberID uint64, target string) string {
	q := url.Values{}
	q.Set("qid", strconv.FormatUint(queueID, 10))
	q.Set("sid", strconv.FormatUint(subscriberID, 10))
	q.Set("u", EncodeTarget(target))
	q.Set("sig", s.SignClick(queueID, subscriberID, target))
	return s.baseURL + "/t/c?" + q.Encode()
}

// BaseURL exposes the public base this service signs links against.
func (s *Service) BaseURL() string { return s.baseURL }

func (s *Service) hmacHex(key []byte, payload string) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

func hmacEqual(expected, got string) bool {
	return hmac.Equal([]byte(expected), []byte(got))
}
