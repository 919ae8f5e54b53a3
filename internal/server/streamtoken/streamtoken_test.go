package streamtoken

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goldflix/goldflix/internal/common"
	"github.com/goldflix/goldflix/internal/kv"
	"github.com/goldflix/goldflix/internal/kv/memory"
	"github.com/goldflix/goldflix/internal/logging"
)

func TestValidateURL(t *testing.T) {
	tests := []struct {
		name string
		url  string
		ok   bool
	}{
		{"https public", "https://cdn.example.com/v.mp4", true},
		{"http public", "http://mirror.example.org/v.mp4", true},
		{"ftp scheme", "ftp://example.com/v.mp4", false},
		{"file scheme", "file:///etc/passwd", false},
		{"localhost", "http://localhost:8080/x", false},
		{"localhost subdomain", "http://evil.localhost/x", false},
		{"loopback ip", "http://127.0.0.1/x", false},
		{"private 10", "http://10.0.0.5/x", false},
		{"private 192.168", "http://192.168.1.1/x", false},
		{"private 172.16", "http://172.16.0.1/x", false},
		{"link local", "http://169.254.169.254/latest/meta-data", false},
		{"unspecified", "http://0.0.0.0/x", false},
		{"ipv6 loopback", "http://[::1]/x", false},
		{"relative", "/stream/abc", false},
		{"garbage", "://nope", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateURL(tt.url)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestIssueAndRedirect(t *testing.T) {
	store := memory.New()
	svc := NewService(store, logging.NewNopLogger())
	ctx := context.Background()

	token, err := svc.Issue(ctx, "https://cdn.example.com/v.mp4", KindDirect)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	url, err := svc.Redirect(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/v.mp4", url)

	_, err = svc.Redirect(ctx, "nope")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestTokensExpire(t *testing.T) {
	now := time.Unix(1700000000, 0)
	store := memory.NewWithClock(func() time.Time { return now })
	svc := NewService(store, logging.NewNopLogger())
	ctx := context.Background()

	token, err := svc.Issue(ctx, "https://cdn.example.com/v.mp4", KindDirect)
	require.NoError(t, err)

	now = now.Add(3*time.Hour + time.Minute)
	_, err = svc.Redirect(ctx, token)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestResolveFollowsRedirectsAndCaches(t *testing.T) {
	final := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer final.Close()
	hops := 0
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hops++
		http.Redirect(w, r, final.URL+"/video.mp4", http.StatusFound)
	}))
	defer origin.Close()

	store := memory.New()
	svc := NewServiceWithClient(store, final.Client(), logging.NewNopLogger())
	svc.validate = func(string) error { return nil } // loopback test servers
	ctx := context.Background()

	token, err := svc.Issue(ctx, origin.URL+"/go", KindDirect)
	require.NoError(t, err)

	got, err := svc.Resolve(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, final.URL+"/video.mp4", got)
	assert.Equal(t, 1, hops)

	// second render issues a new token for the same URL; the link cache
	// answers without another upstream round trip
	token2, err := svc.Issue(ctx, origin.URL+"/go", KindDirect)
	require.NoError(t, err)
	got2, err := svc.Resolve(ctx, token2)
	require.NoError(t, err)
	assert.Equal(t, got, got2)
	assert.Equal(t, 1, hops)

	var cached string
	require.NoError(t, kv.GetJSON(ctx, store, kv.K(PrefixLinkCache, origin.URL+"/go"), &cached))
	assert.Equal(t, got, cached)
}

func TestResolveFallsBackOnUpstreamFailure(t *testing.T) {
	dead := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	dead.Close() // connection refused from here on

	store := memory.New()
	svc := NewService(store, logging.NewNopLogger())
	svc.validate = func(string) error { return nil } // loopback test server
	ctx := context.Background()

	token, err := svc.Issue(ctx, dead.URL+"/v.mp4", KindDirect)
	require.NoError(t, err)

	got, err := svc.Resolve(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, dead.URL+"/v.mp4", got)
}

func TestResolvePassesEmbedAndUnsafeThrough(t *testing.T) {
	store := memory.New()
	svc := NewService(store, logging.NewNopLogger())
	ctx := context.Background()

	embed, err := svc.Issue(ctx, "https://player.example.com/embed/1", KindEmbed)
	require.NoError(t, err)
	got, err := svc.Resolve(ctx, embed)
	require.NoError(t, err)
	assert.Equal(t, "https://player.example.com/embed/1", got)

	// unsafe stored URL is returned unresolved, never fetched
	unsafe, err := svc.Issue(ctx, "http://169.254.169.254/latest", KindDirect)
	require.NoError(t, err)
	got, err = svc.Resolve(ctx, unsafe)
	require.NoError(t, err)
	assert.Equal(t, "http://169.254.169.254/latest", got)
}
