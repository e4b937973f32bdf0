package feishu

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"order-bridge/internal/domain"

	"github.com/rs/zerolog"
)

type mockTokenSource struct {
	mu           sync.Mutex
	refreshCalls int
	staleSeen    []string

	GetFunc     func(ctx context.Context) (string, error)
	RefreshFunc func(ctx context.Context, stale string) (string, error)
}

func (m *mockTokenSource) Get(ctx context.Context) (string, error) {
	if m.GetFunc == nil {
		return "tok-old", nil
	}
	return m.GetFunc(ctx)
}

func (m *mockTokenSource) Refresh(ctx context.Context, stale string) (string, error) {
	m.mu.Lock()
	m.refreshCalls++
	m.staleSeen = append(m.staleSeen, stale)
	m.mu.Unlock()
	if m.RefreshFunc == nil {
		return "tok-new", nil
	}
	return m.RefreshFunc(ctx, stale)
}

func newTestAuthClient(ts tokenSource) *AuthClient {
	l := zerolog.Nop()
	return NewAuthClient(ts, 2*time.Second, 0, 0, &l)
}

// scriptedServer answers each request with the next (status, body) pair and
// records the Authorization header it saw.
func scriptedServer(t *testing.T, replies ...[2]any) (*httptest.Server, *[]string) {
	t.Helper()
	var mu sync.Mutex
	var auths []string
	i := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		auths = append(auths, r.Header.Get("Authorization"))
		reply := replies[len(replies)-1]
		if i < len(replies) {
			reply = replies[i]
		}
		i++
		mu.Unlock()
		w.WriteHeader(reply[0].(int))
		_, _ = w.Write([]byte(reply[1].(string)))
	}))
	return srv, &auths
}

func buildGet(url string, builds *int) RequestBuilder {
	return func(ctx context.Context, token string) (*http.Request, error) {
		*builds++
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+token)
		return req, nil
	}
}

func TestAuthClient_Do(t *testing.T) {
	t.Run("success needs no refresh", func(t *testing.T) {
		srv, auths := scriptedServer(t, [2]any{200, `{"code":0,"data":{}}`})
		defer srv.Close()
		ts := &mockTokenSource{}
		builds := 0

		resp, err := newTestAuthClient(ts).Do(context.Background(), "op", buildGet(srv.URL, &builds))

		if err != nil || resp.StatusCode != 200 {
			t.Fatalf("Do = %+v, %v", resp, err)
		}
		if ts.refreshCalls != 0 || builds != 1 || len(*auths) != 1 {
			t.Fatalf("refresh=%d builds=%d requests=%d", ts.refreshCalls, builds, len(*auths))
		}
	})

	t.Run("401 then success refreshes exactly once", func(t *testing.T) {
		// Arrange
		srv, auths := scriptedServer(t,
			[2]any{401, `{"code":99991663,"msg":"token expired"}`},
			[2]any{200, `{"code":0,"data":{"ok":true}}`},
		)
		defer srv.Close()
		ts := &mockTokenSource{}
		builds := 0

		// Act
		resp, err := newTestAuthClient(ts).Do(context.Background(), "op", buildGet(srv.URL, &builds))

		// Assert
		if err != nil {
			t.Fatalf("Do: %v", err)
		}
		if string(resp.Body) != `{"code":0,"data":{"ok":true}}` {
			t.Fatalf("body = %s", resp.Body)
		}
		if ts.refreshCalls != 1 || ts.staleSeen[0] != "tok-old" {
			t.Fatalf("refresh calls = %d stale = %v", ts.refreshCalls, ts.staleSeen)
		}
		if builds != 2 {
			t.Fatalf("request must be rebuilt for the replay, builds = %d", builds)
		}
		if (*auths)[0] != "Bearer tok-old" || (*auths)[1] != "Bearer tok-new" {
			t.Fatalf("auth headers = %v", *auths)
		}
	})

	t.Run("body code on a 200 triggers refresh", func(t *testing.T) {
		srv, _ := scriptedServer(t,
			[2]any{200, `{"code":99991661,"msg":"missing access token"}`},
			[2]any{200, `{"code":0}`},
		)
		defer srv.Close()
		ts := &mockTokenSource{}
		builds := 0

		_, err := newTestAuthClient(ts).Do(context.Background(), "op", buildGet(srv.URL, &builds))

		if err != nil || ts.refreshCalls != 1 {
			t.Fatalf("err=%v refresh=%d", err, ts.refreshCalls)
		}
	})

	t.Run("401 twice surfaces the replay error", func(t *testing.T) {
		srv, auths := scriptedServer(t,
			[2]any{401, `{"code":99991663,"msg":"first"}`},
			[2]any{403, `{"code":99991668,"msg":"second"}`},
		)
		defer srv.Close()
		ts := &mockTokenSource{}
		builds := 0

		_, err := newTestAuthClient(ts).Do(context.Background(), "op", buildGet(srv.URL, &builds))

		var he *domain.HTTPError
		if !errors.As(err, &he) {
			t.Fatalf("want HTTPError, got %v", err)
		}
		if he.StatusCode != 403 || he.Code != 99991668 || he.Msg != "second" {
			t.Fatalf("error should describe the replay, got %+v", he)
		}
		if !errors.Is(err, domain.ErrHTTP) {
			t.Fatal("HTTPError must unwrap to ErrHTTP")
		}
		if len(*auths) != 2 || ts.refreshCalls != 1 {
			t.Fatalf("requests=%d refresh=%d; want 2 and 1", len(*auths), ts.refreshCalls)
		}
	})

	t.Run("refresh failure", func(t *testing.T) {
		srv, auths := scriptedServer(t, [2]any{401, `{}`})
		defer srv.Close()
		ts := &mockTokenSource{RefreshFunc: func(ctx context.Context, stale string) (string, error) {
			return "", domain.ErrAuth
		}}
		builds := 0

		_, err := newTestAuthClient(ts).Do(context.Background(), "op", buildGet(srv.URL, &builds))

		if !errors.Is(err, domain.ErrAuth) {
			t.Fatalf("want ErrAuth, got %v", err)
		}
		if len(*auths) != 1 {
			t.Fatalf("no replay expected, requests = %d", len(*auths))
		}
	})

	t.Run("transport failure does not refresh", func(t *testing.T) {
		srv, _ := scriptedServer(t, [2]any{200, `{}`})
		url := srv.URL
		srv.Close()
		ts := &mockTokenSource{}
		builds := 0

		_, err := newTestAuthClient(ts).Do(context.Background(), "op", buildGet(url, &builds))

		if !errors.Is(err, domain.ErrNetwork) {
			t.Fatalf("want ErrNetwork, got %v", err)
		}
		if ts.refreshCalls != 0 {
			t.Fatalf("refresh calls = %d; want 0", ts.refreshCalls)
		}
	})
}

func TestNeedsRefresh(t *testing.T) {
	cases := []struct {
		status int
		body   string
		want   bool
	}{
		{200, `{"code":0}`, false},
		{200, `not json`, false},
		{200, `{"code":1254045,"msg":"field name not found"}`, false},
		{200, `{"code":99991663}`, true},
		{401, ``, true},
		{500, `{"code":0}`, true},
	}
	for _, tc := range cases {
		if got := needsRefresh(&Response{StatusCode: tc.status, Body: []byte(tc.body)}); got != tc.want {
			t.Errorf("needsRefresh(%d, %s) = %v; want %v", tc.status, tc.body, got, tc.want)
		}
	}
}
