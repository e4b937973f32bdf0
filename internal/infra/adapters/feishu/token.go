package feishu

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"order-bridge/internal/config"
	"order-bridge/internal/domain"
	"order-bridge/internal/domain/ports/repository"
	"order-bridge/internal/infra/metrics"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// tokenExpirySlack is taken off the provider's expiry before caching.
const tokenExpirySlack = 5 * time.Minute

// TokenHolder owns the tenant access token shared by all storage calls.
// At most one refresh is in flight; callers that present a token that was
// already replaced get the current one back without a second refresh.
type TokenHolder struct {
	base      string
	appID     string
	appSecret string
	client    *http.Client
	cache     repository.TokenCache // optional
	log       *zerolog.Logger

	mu    sync.RWMutex
	token string
	sf    singleflight.Group
}

func NewTokenHolder(cfg config.StorageConfig, cache repository.TokenCache, logger *zerolog.Logger) *TokenHolder {
	l := logger.With().Str("component", "feishu_token").Logger()
	return &TokenHolder{
		base:      strings.TrimRight(cfg.BaseURL, "/"),
		appID:     cfg.AppID,
		appSecret: cfg.AppSecret,
		client:    &http.Client{Timeout: cfg.Timeout},
		cache:     cache,
		log:       &l,
		token:     cfg.SeedToken,
	}
}

func (h *TokenHolder) current() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.token
}

// Get returns the held token, falling back to the cache and then the
// refresh endpoint when nothing is held yet.
func (h *TokenHolder) Get(ctx context.Context) (string, error) {
	if tok := h.current(); tok != "" {
		return tok, nil
	}
	if h.cache != nil {
		tok, err := h.cache.Get(ctx)
		if err == nil {
			h.mu.Lock()
			if h.token == "" {
				h.token = tok
			}
			tok = h.token
			h.mu.Unlock()
			return tok, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			h.log.Warn().Err(err).Msg("token cache read failed")
		}
	}
	return h.Refresh(ctx, "")
}

// Refresh replaces stale with a fresh token. Failures wrap domain.ErrAuth.
func (h *TokenHolder) Refresh(ctx context.Context, stale string) (string, error) {
	if tok := h.current(); tok != "" && tok != stale {
		return tok, nil
	}
	v, err, shared := h.sf.Do("refresh", func() (any, error) {
		if tok := h.current(); tok != "" && tok != stale {
			return tok, nil
		}
		tok, ttl, err := h.fetch(ctx)
		if err != nil {
			metrics.IncTokenRefresh("error")
			return "", fmt.Errorf("%w: refresh tenant token: %w", domain.ErrAuth, err)
		}
		metrics.IncTokenRefresh("ok")

		h.mu.Lock()
		h.token = tok
		h.mu.Unlock()

		if h.cache != nil {
			if err := h.cache.Set(ctx, tok, ttl); err != nil {
				h.log.Warn().Err(err).Msg("token cache write failed")
			}
		}
		h.log.Info().Dur("ttl", ttl).Msg("tenant access token refreshed")
		return tok, nil
	})
	if err != nil {
		return "", err
	}
	if shared {
		h.log.Debug().Msg("joined in-flight token refresh")
	}
	return v.(string), nil
}

type tokenResponse struct {
	Code              int    `json:"code"`
	Msg               string `json:"msg"`
	TenantAccessToken string `json:"tenant_access_token"`
	Expire            int    `json:"expire"` // seconds
}

func (h *TokenHolder) fetch(ctx context.Context) (string, time.Duration, error) {
	body, _ := json.Marshal(map[string]string{"app_id": h.appID, "app_secret": h.appSecret})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		h.base+"/open-apis/auth/v3/tenant_access_token/internal", bytes.NewReader(body))
	if err != nil {
		return "", 0, err
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	resp, err := h.client.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("%w: %v", domain.ErrNetwork, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", 0, fmt.Errorf("%w: %v", domain.ErrNetwork, err)
	}
	if resp.StatusCode >= 300 {
		return "", 0, &domain.HTTPError{Op: "tenant_access_token", StatusCode: resp.StatusCode, Msg: string(raw)}
	}

	var out tokenResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", 0, fmt.Errorf("%w: %v", domain.ErrParse, err)
	}
	if out.Code != 0 || out.TenantAccessToken == "" {
		return "", 0, &domain.HTTPError{Op: "tenant_access_token", StatusCode: resp.StatusCode, Code: out.Code, Msg: out.Msg}
	}
	ttl := time.Duration(out.Expire)*time.Second - tokenExpirySlack
	if ttl < 0 {
		ttl = 0
	}
	return out.TenantAccessToken, ttl, nil
}
