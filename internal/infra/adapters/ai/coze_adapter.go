package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"order-bridge/internal/config"
	"order-bridge/internal/domain"
	"order-bridge/internal/domain/model"
	"order-bridge/internal/domain/ports/adapter"
	"order-bridge/internal/infra/logging"
	"order-bridge/internal/infra/metrics"

	"github.com/rs/zerolog"
)

// Compile-time assurance this adapter satisfies the port
var _ adapter.OrderExtractor = (*CozeAdapter)(nil)

// CozeAdapter drives the Coze v3 non-streaming chat API:
// POST /v3/chat, then GET /v3/chat/retrieve until completed, then
// POST /v3/chat/message/list for the answer.
// Authorization: Bearer <COZE_API_KEY>
type CozeAdapter struct {
	apiKey       string
	base         string // e.g., https://api.coze.cn
	botID        string
	userID       string
	pollInterval time.Duration
	maxPolls     int
	client       *http.Client
	log          *zerolog.Logger
}

func NewCozeAdapter(cfg config.AIConfig, logger *zerolog.Logger) (*CozeAdapter, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("coze api key empty")
	}
	if cfg.BotID == "" {
		return nil, errors.New("coze bot id empty")
	}
	base := cfg.BaseURL
	if base == "" {
		base = "https://api.coze.cn"
	}
	l := logger.With().Str("component", "coze").Logger()
	return &CozeAdapter{
		apiKey:       cfg.APIKey,
		base:         strings.TrimRight(base, "/"),
		botID:        cfg.BotID,
		userID:       cfg.UserID,
		pollInterval: cfg.PollInterval,
		maxPolls:     cfg.MaxPolls,
		client:       &http.Client{Timeout: cfg.Timeout},
		log:          &l,
	}, nil
}

// promptSnippet is the wire shape of one chat line inside the user message.
type promptSnippet struct {
	Timestamp   string `json:"timestamp"`
	Sender      string `json:"sender"`
	Content     string `json:"content"`
	ContentType string `json:"content_type"`
}

type cozeMessage struct {
	Role        string `json:"role"`
	Type        string `json:"type,omitempty"`
	Content     string `json:"content"`
	ContentType string `json:"content_type"`
}

type chatRequest struct {
	BotID              string        `json:"bot_id"`
	UserID             string        `json:"user_id"`
	Stream             bool          `json:"stream"`
	AutoSaveHistory    bool          `json:"auto_save_history"`
	AdditionalMessages []cozeMessage `json:"additional_messages"`
}

type chatData struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversation_id"`
	Status         string `json:"status"`
	LastError      struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
	} `json:"last_error"`
}

type envelope[T any] struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data T      `json:"data"`
}

const timestampLayout = "2006-01-02T15:04:05.000Z"

// BuildPrompt serializes the batch into the user message content.
func BuildPrompt(batch model.Batch) (string, error) {
	lines := make([]promptSnippet, 0, len(batch))
	for _, s := range batch {
		sender := s.Sender
		if sender == "" {
			sender = "unknown"
		}
		ct := string(s.Type)
		if ct == "" {
			ct = string(model.SnippetText)
		}
		lines = append(lines, promptSnippet{
			Timestamp:   s.Time.UTC().Format(timestampLayout),
			Sender:      sender,
			Content:     s.Content,
			ContentType: ct,
		})
	}
	b, err := json.Marshal(lines)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ExtractOrders runs one full submit/poll/fetch round for the batch.
func (c *CozeAdapter) ExtractOrders(ctx context.Context, batch model.Batch) (*model.Extraction, error) {
	job, err := c.Submit(ctx, batch)
	if err != nil {
		metrics.IncAIJob("submit_error")
		return nil, err
	}
	ctx = logging.WithJobID(ctx, job.ID)

	job, polls, err := c.Wait(ctx, job)
	metrics.ObserveAIJobPolls(polls)
	if err != nil {
		if errors.Is(err, domain.ErrTimeout) {
			metrics.IncAIJob("timeout")
		} else {
			metrics.IncAIJob(string(model.AIJobStatusFailed))
		}
		return nil, err
	}

	answer, err := c.Fetch(ctx, job)
	if err != nil {
		metrics.IncAIJob(string(model.AIJobStatusFailed))
		return nil, err
	}
	metrics.IncAIJob(string(model.AIJobStatusCompleted))
	return &model.Extraction{Job: job, Answer: answer, Polls: polls}, nil
}

// Submit creates the remote chat job.
func (c *CozeAdapter) Submit(ctx context.Context, batch model.Batch) (model.AIJob, error) {
	prompt, err := BuildPrompt(batch)
	if err != nil {
		return model.AIJob{}, fmt.Errorf("%w: encode prompt: %v", domain.ErrSubmit, err)
	}
	body := chatRequest{
		BotID:           c.botID,
		UserID:          c.userID,
		Stream:          false,
		AutoSaveHistory: true,
		AdditionalMessages: []cozeMessage{{
			Role:        "user",
			Content:     prompt,
			ContentType: "text",
		}},
	}

	var out envelope[chatData]
	if err := c.doJSON(ctx, "submit", http.MethodPost, c.base+"/v3/chat", body, &out); err != nil {
		return model.AIJob{}, fmt.Errorf("%w: %w", domain.ErrSubmit, err)
	}
	if out.Data.ID == "" || out.Data.ConversationID == "" {
		return model.AIJob{}, fmt.Errorf("%w: response without chat id", domain.ErrSubmit)
	}

	job := model.AIJob{ID: out.Data.ID, ConversationID: out.Data.ConversationID, Status: model.AIJobStatusPending}
	logging.With(ctx, c.log).Info().
		Str("job_id", job.ID).
		Str("conversation_id", job.ConversationID).
		Int("snippets", len(batch)).
		Msg("ai job submitted")
	return job, nil
}

// Wait polls the job status every pollInterval, sleeping before each check,
// until it completes, fails, the poll ceiling is hit, or ctx ends. A status
// check that fails transiently counts as a poll and is retried.
func (c *CozeAdapter) Wait(ctx context.Context, job model.AIJob) (model.AIJob, int, error) {
	q := url.Values{}
	q.Set("chat_id", job.ID)
	q.Set("conversation_id", job.ConversationID)
	endpoint := c.base + "/v3/chat/retrieve?" + q.Encode()
	log := logging.With(ctx, c.log)

	timer := time.NewTimer(c.pollInterval)
	defer timer.Stop()

	var lastErr error
	for polls := 1; c.maxPolls <= 0 || polls <= c.maxPolls; polls++ {
		select {
		case <-ctx.Done():
			return job, polls - 1, fmt.Errorf("%w: %v", domain.ErrTimeout, ctx.Err())
		case <-timer.C:
		}

		var out envelope[chatData]
		if err := c.doJSON(ctx, "retrieve", http.MethodGet, endpoint, nil, &out); err != nil {
			if ctx.Err() != nil {
				return job, polls, fmt.Errorf("%w: %v", domain.ErrTimeout, ctx.Err())
			}
			if !transientPollError(err) {
				return job, polls, fmt.Errorf("poll job %s: %w", job.ID, err)
			}
			lastErr = err
			log.Warn().Err(err).Int("polls", polls).Msg("ai job status unreadable, polling on")
			timer.Reset(c.pollInterval)
			continue
		}
		lastErr = nil

		switch out.Data.Status {
		case "completed":
			job.Status = model.AIJobStatusCompleted
			log.Info().Int("polls", polls).Msg("ai job completed")
			return job, polls, nil
		case "failed", "canceled", "requires_action":
			job.Status = model.AIJobStatusFailed
			return job, polls, fmt.Errorf("%w: status %s: %s", domain.ErrJobFailed, out.Data.Status, out.Data.LastError.Msg)
		}
		log.Debug().Int("polls", polls).Str("status", out.Data.Status).Msg("ai job still running")
		timer.Reset(c.pollInterval)
	}
	if lastErr != nil {
		return job, c.maxPolls, fmt.Errorf("%w: job %s not completed after %d polls, last poll: %v", domain.ErrTimeout, job.ID, c.maxPolls, lastErr)
	}
	return job, c.maxPolls, fmt.Errorf("%w: job %s not completed after %d polls", domain.ErrTimeout, job.ID, c.maxPolls)
}

// transientPollError reports whether a failed status check is worth repeating.
// A 4xx answer will not change between polls; everything else might.
func transientPollError(err error) bool {
	var he *domain.HTTPError
	if errors.As(err, &he) {
		return he.StatusCode < 400 || he.StatusCode >= 500
	}
	return errors.Is(err, domain.ErrNetwork) || errors.Is(err, domain.ErrParse)
}

// Fetch returns the content of the answer message of a completed job, unparsed.
func (c *CozeAdapter) Fetch(ctx context.Context, job model.AIJob) (string, error) {
	q := url.Values{}
	q.Set("chat_id", job.ID)
	q.Set("conversation_id", job.ConversationID)

	var out envelope[[]cozeMessage]
	if err := c.doJSON(ctx, "messages", http.MethodPost, c.base+"/v3/chat/message/list?"+q.Encode(), nil, &out); err != nil {
		return "", fmt.Errorf("fetch job %s: %w", job.ID, err)
	}
	for _, m := range out.Data {
		if m.Type == "answer" {
			return m.Content, nil
		}
	}
	return "", fmt.Errorf("%w: job %s has no answer message", domain.ErrParse, job.ID)
}

// doJSON sends body (if any) as JSON and decodes the Coze envelope into out.
// A non-2xx status or a non-zero envelope code is returned as *domain.HTTPError.
func (c *CozeAdapter) doJSON(ctx context.Context, step, method, endpoint string, body any, out any) (err error) {
	start := time.Now()
	defer func() {
		metrics.ObserveAICall(step, time.Since(start).Milliseconds(), err == nil)
	}()

	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, rdr)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: coze %s: %v", domain.ErrNetwork, step, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("%w: coze %s: read body: %v", domain.ErrNetwork, step, err)
	}
	if resp.StatusCode >= 300 {
		return &domain.HTTPError{Op: "coze " + step, StatusCode: resp.StatusCode, Msg: truncate(string(raw), 200)}
	}

	var head struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return fmt.Errorf("%w: coze %s: %v", domain.ErrParse, step, err)
	}
	if head.Code != 0 {
		return &domain.HTTPError{Op: "coze " + step, StatusCode: resp.StatusCode, Code: head.Code, Msg: head.Msg}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: coze %s: %v", domain.ErrParse, step, err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
