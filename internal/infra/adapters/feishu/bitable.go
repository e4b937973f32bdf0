package feishu

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"order-bridge/internal/config"
	"order-bridge/internal/domain"
	"order-bridge/internal/domain/model"
	"order-bridge/internal/domain/ports/adapter"
	"order-bridge/internal/infra/logging"

	"github.com/rs/zerolog"
)

var _ adapter.OrderStore = (*Store)(nil)

// Store is the Bitable-backed order table. Every call goes through AuthClient.
type Store struct {
	auth     *AuthClient
	base     string
	appToken string
	tableID  string
	log      *zerolog.Logger
}

func NewStore(auth *AuthClient, cfg config.StorageConfig, logger *zerolog.Logger) *Store {
	l := logger.With().Str("component", "bitable").Logger()
	return &Store{
		auth:     auth,
		base:     strings.TrimRight(cfg.BaseURL, "/"),
		appToken: cfg.BitableAppToken,
		tableID:  cfg.TableID,
		log:      &l,
	}
}

// BatchCreate writes all records in one call and returns the raw response body.
func (s *Store) BatchCreate(ctx context.Context, records []model.StorageRecord) (json.RawMessage, error) {
	if len(records) == 0 {
		return nil, domain.ErrNoRecords
	}
	payload, err := json.Marshal(struct {
		Records []model.StorageRecord `json:"records"`
	}{Records: records})
	if err != nil {
		return nil, fmt.Errorf("encode records: %w", err)
	}
	endpoint := fmt.Sprintf("%s/open-apis/bitable/v1/apps/%s/tables/%s/records/batch_create",
		s.base, url.PathEscape(s.appToken), url.PathEscape(s.tableID))

	resp, err := s.auth.Do(ctx, "batch_create", func(ctx context.Context, token string) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Content-Type", "application/json; charset=utf-8")
		return req, nil
	})
	if err != nil {
		return nil, err
	}
	if err := checkBody("batch_create", resp); err != nil {
		return nil, err
	}
	logging.With(ctx, s.log).Info().Int("records", len(records)).Msg("records created")
	return json.RawMessage(resp.Body), nil
}
