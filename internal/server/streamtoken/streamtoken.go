// Package streamtoken hides upstream stream and download URLs behind
// short-lived opaque tokens. A fresh token is issued per page render, the
// renderer hands out /stream/<token> style links, and redirect resolution
// follows shortener hops so the player gets a direct URL.
package streamtoken

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/goldflix/goldflix/internal/kv"
	"github.com/goldflix/goldflix/internal/logging"
)

const (
	// PrefixTokens and PrefixLinkCache are the store prefixes this service owns.
	PrefixTokens    = "stream_tokens"
	PrefixLinkCache = "link_cache"

	// tokenTTL bounds how long an issued link stays usable.
	tokenTTL = 3 * time.Hour
	// linkCacheTTL keeps resolved upstream URLs around between renders.
	linkCacheTTL = time.Hour
	// resolveTimeout caps the whole HEAD round trip including redirects.
	resolveTimeout = 6 * time.Second
)

// Link kinds, mirroring the movie record's linkType.
const (
	KindDirect = "direct"
	KindEmbed  = "embed"
)

// Token is what gets stored behind an issued token.
type Token struct {
	URL  string `json:"url"`
	Kind string `json:"kind"`
}

type Service struct {
	store    kv.Store
	client   *http.Client
	log      logging.Logger
	validate func(string) error
}

func NewService(store kv.Store, log logging.Logger) *Service {
	return NewServiceWithClient(store, &http.Client{Timeout: resolveTimeout}, log)
}

// NewServiceWithClient injects the HTTP client; used by tests.
func NewServiceWithClient(store kv.Store, client *http.Client, log logging.Logger) *Service {
	return &Service{store: store, client: client, log: log, validate: ValidateURL}
}

// Issue mints a new token for the URL. Tokens are never reused across
// renders; the short TTL bounds the exposure of any leaked link.
func (s *Service) Issue(ctx context.Context, rawURL, kind string) (string, error) {
	token := uuid.NewString()
	err := kv.PutJSON(ctx, s.store, kv.K(PrefixTokens, token),
		Token{URL: rawURL, Kind: kind}, kv.WithTTL(tokenTTL))
	if err != nil {
		return "", fmt.Errorf("issue token: %w", err)
	}
	return token, nil
}

// Redirect returns the stored URL for the plain 302 paths.
// common.ErrNotFound covers both unknown and expired tokens.
func (s *Service) Redirect(ctx context.Context, token string) (string, error) {
	var t Token
	if err := kv.GetJSON(ctx, s.store, kv.K(PrefixTokens, token), &t); err != nil {
		return "", err
	}
	return t.URL, nil
}

// Resolve looks the token up and, for direct links with a safe URL, follows
// redirects to the final upstream URL. Any upstream failure or timeout falls
// back to the stored URL; the caller never sees a resolution error.
func (s *Service) Resolve(ctx context.Context, token string) (string, error) {
	var t Token
	if err := kv.GetJSON(ctx, s.store, kv.K(PrefixTokens, token), &t); err != nil {
		return "", err
	}
	if t.Kind != KindDirect {
		return t.URL, nil
	}
	return s.resolveRedirect(ctx, t.URL), nil
}

func (s *Service) resolveRedirect(ctx context.Context, rawURL string) string {
	if err := s.validate(rawURL); err != nil {
		// unsafe or malformed URLs are passed through untouched, never fetched
		return rawURL
	}

	cacheKey := kv.K(PrefixLinkCache, rawURL)
	var cached string
	if err := kv.GetJSON(ctx, s.store, cacheKey, &cached); err == nil && cached != "" {
		return cached
	}

	ctx, cancel := context.WithTimeout(ctx, resolveTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return rawURL
	}
	resp, err := s.client.Do(req)
	if err != nil {
		s.log.Debug(ctx, "redirect resolution failed, using original url", "error", err)
		return rawURL
	}
	resp.Body.Close()

	final := resp.Request.URL.String()
	if err := kv.PutJSON(ctx, s.store, cacheKey, final, kv.WithTTL(linkCacheTTL)); err != nil {
		s.log.Warn(ctx, "link cache write failed", "error", err)
	}
	return final
}

// ValidateURL is the SSRF guard: only absolute http/https URLs pointing at
// public hosts pass. It runs before any network call is made.
func ValidateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("missing host")
	}
	if strings.EqualFold(host, "localhost") || strings.HasSuffix(strings.ToLower(host), ".localhost") {
		return fmt.Errorf("forbidden host %q", host)
	}
	if ip := net.ParseIP(host); ip != nil {
		if ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() ||
			ip.IsLinkLocalMulticast() || ip.IsUnspecified() {
			return fmt.Errorf("forbidden address %q", host)
		}
	}
	return nil
}
