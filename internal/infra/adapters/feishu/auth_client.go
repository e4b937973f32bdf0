package feishu

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"order-bridge/internal/domain"
	"order-bridge/internal/infra/logging"
	"order-bridge/internal/infra/metrics"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// authFailureCodes are HTTP statuses and Feishu body codes that mean the
// tenant token is missing, invalid, or expired.
var authFailureCodes = map[int]struct{}{
	401:      {},
	403:      {},
	99991661: {},
	99991663: {},
	99991668: {},
}

// RequestBuilder builds a fresh request for the given token. It is called
// again for the replay, so bodies that can only be read once are fine.
type RequestBuilder func(ctx context.Context, token string) (*http.Request, error)

// Response is a fully read storage API response.
type Response struct {
	StatusCode int
	Body       []byte
}

type tokenSource interface {
	Get(ctx context.Context) (string, error)
	Refresh(ctx context.Context, stale string) (string, error)
}

// AuthClient executes storage calls, refreshing the token and replaying the
// call once when the first attempt looks like an authorization failure.
type AuthClient struct {
	tokens  tokenSource
	client  *http.Client
	limiter *rate.Limiter
	log     *zerolog.Logger
}

func NewAuthClient(tokens tokenSource, timeout time.Duration, rps float64, burst int, logger *zerolog.Logger) *AuthClient {
	l := logger.With().Str("component", "feishu_client").Logger()
	lim := rate.NewLimiter(rate.Inf, 0)
	if rps > 0 {
		if burst <= 0 {
			burst = 1
		}
		lim = rate.NewLimiter(rate.Limit(rps), burst)
	}
	return &AuthClient{
		tokens:  tokens,
		client:  &http.Client{Timeout: timeout},
		limiter: lim,
		log:     &l,
	}
}

func (c *AuthClient) Do(ctx context.Context, op string, build RequestBuilder) (*Response, error) {
	log := logging.With(ctx, c.log).With().Str("op", op).Logger()

	tok, err := c.tokens.Get(ctx)
	if err != nil {
		metrics.IncStorageRequest(op, "auth_error")
		return nil, err
	}

	resp, err := c.send(ctx, build, tok)
	if err != nil {
		metrics.IncStorageRequest(op, "network_error")
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !needsRefresh(resp) {
		metrics.IncStorageRequest(op, "ok")
		return resp, nil
	}

	log.Warn().Int("status", resp.StatusCode).Int("code", bodyCode(resp.Body)).Msg("storage call rejected, refreshing token")
	fresh, err := c.tokens.Refresh(ctx, tok)
	if err != nil {
		metrics.IncStorageRequest(op, "auth_error")
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	resp, err = c.send(ctx, build, fresh)
	if err != nil {
		metrics.IncStorageRequest(op, "network_error")
		return nil, fmt.Errorf("%s: replay: %w", op, err)
	}
	if needsRefresh(resp) {
		metrics.IncStorageRequest(op, "http_error")
		return nil, httpError(op, resp)
	}
	metrics.IncStorageRequest(op, "replayed")
	return resp, nil
}

func (c *AuthClient) send(ctx context.Context, build RequestBuilder, token string) (*Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrNetwork, err)
	}
	req, err := build(ctx, token)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrNetwork, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", domain.ErrNetwork, err)
	}
	return &Response{StatusCode: resp.StatusCode, Body: body}, nil
}

func needsRefresh(r *Response) bool {
	if r.StatusCode < 200 || r.StatusCode >= 300 {
		return true
	}
	if _, ok := authFailureCodes[r.StatusCode]; ok {
		return true
	}
	_, ok := authFailureCodes[bodyCode(r.Body)]
	return ok
}

type apiHead struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

func bodyCode(body []byte) int {
	var h apiHead
	if json.Unmarshal(body, &h) != nil {
		return 0
	}
	return h.Code
}

func httpError(op string, r *Response) *domain.HTTPError {
	var h apiHead
	_ = json.Unmarshal(r.Body, &h)
	msg := h.Msg
	if msg == "" && len(r.Body) > 0 {
		msg = string(r.Body)
		if len(msg) > 200 {
			msg = msg[:200] + "..."
		}
	}
	return &domain.HTTPError{Op: op, StatusCode: r.StatusCode, Code: h.Code, Msg: msg}
}

// checkBody rejects a 2xx response whose envelope code is non-zero.
func checkBody(op string, r *Response) error {
	var h apiHead
	if err := json.Unmarshal(r.Body, &h); err != nil {
		return fmt.Errorf("%w: %s: %v", domain.ErrParse, op, err)
	}
	if h.Code != 0 {
		return httpError(op, r)
	}
	return nil
}
