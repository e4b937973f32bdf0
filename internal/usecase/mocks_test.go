// File: internal/usecase/mocks_test.go
package usecase

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"order-bridge/internal/domain/model"
)

// mockExtractor fakes adapter.OrderExtractor.
type mockExtractor struct {
	calls int

	ExtractOrdersFunc func(ctx context.Context, batch model.Batch) (*model.Extraction, error)
}

func (m *mockExtractor) ExtractOrders(ctx context.Context, batch model.Batch) (*model.Extraction, error) {
	m.calls++
	return m.ExtractOrdersFunc(ctx, batch)
}

// mockStore fakes adapter.OrderStore and records what it was asked to do.
type mockStore struct {
	mu       sync.Mutex
	uploaded []string
	created  [][]model.StorageRecord

	UploadImageFunc func(ctx context.Context, path string) (string, error)
	BatchCreateFunc func(ctx context.Context, records []model.StorageRecord) (json.RawMessage, error)
}

func (m *mockStore) UploadImage(ctx context.Context, path string) (string, error) {
	m.mu.Lock()
	m.uploaded = append(m.uploaded, path)
	m.mu.Unlock()
	if m.UploadImageFunc == nil {
		return "tok123", nil
	}
	return m.UploadImageFunc(ctx, path)
}

func (m *mockStore) BatchCreate(ctx context.Context, records []model.StorageRecord) (json.RawMessage, error) {
	m.mu.Lock()
	m.created = append(m.created, records)
	m.mu.Unlock()
	if m.BatchCreateFunc == nil {
		return json.RawMessage(`{"code":0}`), nil
	}
	return m.BatchCreateFunc(ctx, records)
}

// mockUploader fakes RecordUploader.
type mockUploader struct {
	calls int

	UploadFunc func(ctx context.Context, answer string) (*UploadResult, error)
}

func (m *mockUploader) Upload(ctx context.Context, answer string) (*UploadResult, error) {
	m.calls++
	return m.UploadFunc(ctx, answer)
}

// memRunRepo is a small in-memory BatchRunRepository used by unit tests.
type memRunRepo struct {
	mu      sync.Mutex
	runs    []*model.BatchRun
	saveErr error
}

func (m *memRunRepo) Save(ctx context.Context, run *model.BatchRun) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *run
	m.runs = append(m.runs, &cp)
	return nil
}

func (m *memRunRepo) ListRecent(ctx context.Context, limit int) ([]*model.BatchRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*model.BatchRun, 0, limit)
	for i := len(m.runs) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.runs[i])
	}
	return out, nil
}

type mockAlerter struct {
	mu   sync.Mutex
	sent []string
}

func (m *mockAlerter) Name() string { return "mock" }

func (m *mockAlerter) Alert(ctx context.Context, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, text)
	return nil
}

// countingLimiter is a fixed-window limiter with an endless window.
type countingLimiter struct {
	mu     sync.Mutex
	counts map[string]int
}

func (c *countingLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[key]++
	return c.counts[key] <= limit, nil
}
