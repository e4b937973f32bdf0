package feishu

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"order-bridge/internal/config"
	"order-bridge/internal/domain"

	"github.com/rs/zerolog"
)

type mockTokenCache struct {
	GetFunc   func(ctx context.Context) (string, error)
	SetFunc   func(ctx context.Context, token string, ttl time.Duration) error
	ClearFunc func(ctx context.Context) error
}

func (m *mockTokenCache) Get(ctx context.Context) (string, error) {
	if m.GetFunc == nil {
		return "", domain.ErrNotFound
	}
	return m.GetFunc(ctx)
}

func (m *mockTokenCache) Set(ctx context.Context, token string, ttl time.Duration) error {
	if m.SetFunc == nil {
		return nil
	}
	return m.SetFunc(ctx, token, ttl)
}

func (m *mockTokenCache) Clear(ctx context.Context) error {
	if m.ClearFunc == nil {
		return nil
	}
	return m.ClearFunc(ctx)
}

// tokenServer issues tok-1, tok-2, ... and counts refresh calls.
func tokenServer(t *testing.T, delay time.Duration) (*httptest.Server, *int32) {
	t.Helper()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/open-apis/auth/v3/tenant_access_token/internal" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var in map[string]string
		_ = json.NewDecoder(r.Body).Decode(&in)
		if in["app_id"] != "cli_a" || in["app_secret"] != "s3cret" {
			t.Errorf("credentials = %v", in)
		}
		n := atomic.AddInt32(&calls, 1)
		time.Sleep(delay)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"code":                0,
			"msg":                 "ok",
			"tenant_access_token": "tok-" + string(rune('0'+n)),
			"expire":              7200,
		})
	}))
	return srv, &calls
}

func newTestHolder(base, seed string, cache *mockTokenCache) *TokenHolder {
	l := zerolog.Nop()
	cfg := config.StorageConfig{BaseURL: base, AppID: "cli_a", AppSecret: "s3cret", SeedToken: seed, Timeout: 2 * time.Second}
	if cache == nil {
		return NewTokenHolder(cfg, nil, &l)
	}
	return NewTokenHolder(cfg, cache, &l)
}

func TestTokenHolder_Get(t *testing.T) {
	t.Run("seed token is used without a refresh", func(t *testing.T) {
		srv, calls := tokenServer(t, 0)
		defer srv.Close()
		h := newTestHolder(srv.URL, "seeded", nil)

		tok, err := h.Get(context.Background())

		if err != nil || tok != "seeded" {
			t.Fatalf("Get = %q, %v", tok, err)
		}
		if *calls != 0 {
			t.Fatalf("refresh calls = %d; want 0", *calls)
		}
	})

	t.Run("cache hit", func(t *testing.T) {
		srv, calls := tokenServer(t, 0)
		defer srv.Close()
		h := newTestHolder(srv.URL, "", &mockTokenCache{
			GetFunc: func(ctx context.Context) (string, error) { return "cached", nil },
		})

		tok, err := h.Get(context.Background())

		if err != nil || tok != "cached" || *calls != 0 {
			t.Fatalf("Get = %q, %v (calls %d)", tok, err, *calls)
		}
	})

	t.Run("cache miss refreshes and caches with slack", func(t *testing.T) {
		srv, calls := tokenServer(t, 0)
		defer srv.Close()
		var gotTTL time.Duration
		h := newTestHolder(srv.URL, "", &mockTokenCache{
			SetFunc: func(ctx context.Context, token string, ttl time.Duration) error {
				gotTTL = ttl
				return nil
			},
		})

		tok, err := h.Get(context.Background())

		if err != nil || tok != "tok-1" || *calls != 1 {
			t.Fatalf("Get = %q, %v (calls %d)", tok, err, *calls)
		}
		if want := 2*time.Hour - 5*time.Minute; gotTTL != want {
			t.Fatalf("cached ttl = %v; want %v", gotTTL, want)
		}
	})
}

func TestTokenHolder_Refresh(t *testing.T) {
	t.Run("concurrent callers share one refresh", func(t *testing.T) {
		srv, calls := tokenServer(t, 30*time.Millisecond)
		defer srv.Close()
		h := newTestHolder(srv.URL, "old", nil)

		var wg sync.WaitGroup
		results := make([]string, 8)
		for i := range results {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				tok, err := h.Refresh(context.Background(), "old")
				if err != nil {
					t.Errorf("Refresh: %v", err)
				}
				results[i] = tok
			}(i)
		}
		wg.Wait()

		if *calls != 1 {
			t.Fatalf("refresh calls = %d; want 1", *calls)
		}
		for _, r := range results {
			if r != "tok-1" {
				t.Fatalf("results = %v", results)
			}
		}
	})

	t.Run("stale token already replaced", func(t *testing.T) {
		srv, calls := tokenServer(t, 0)
		defer srv.Close()
		h := newTestHolder(srv.URL, "new", nil)

		tok, err := h.Refresh(context.Background(), "old")

		if err != nil || tok != "new" || *calls != 0 {
			t.Fatalf("Refresh = %q, %v (calls %d)", tok, err, *calls)
		}
	})

	t.Run("provider rejects credentials", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"code":10014,"msg":"app secret invalid"}`))
		}))
		defer srv.Close()
		h := newTestHolder(srv.URL, "old", nil)

		_, err := h.Refresh(context.Background(), "old")

		if !errors.Is(err, domain.ErrAuth) {
			t.Fatalf("want ErrAuth, got %v", err)
		}
		var he *domain.HTTPError
		if !errors.As(err, &he) || he.Code != 10014 {
			t.Fatalf("want wrapped HTTPError code 10014, got %v", err)
		}
	})
}
