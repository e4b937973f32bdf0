package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"order-bridge/internal/config"
	"order-bridge/internal/domain"
	"order-bridge/internal/domain/model"
	"order-bridge/internal/domain/ports/adapter"
	"order-bridge/internal/infra/logging"
	"order-bridge/internal/infra/metrics"
)

// Compile-time check
var _ RecordUploader = (*uploaderUC)(nil)

type RecordUploader interface {
	// Upload parses the AI answer, uploads referenced images, and writes
	// all surviving rows in one call.
	Upload(ctx context.Context, answer string) (*UploadResult, error)
}

type UploadResult struct {
	Raw            json.RawMessage
	Pushed         int
	Dropped        int // elements that were not order objects
	ImagesUploaded int
	ImagesFailed   int
}

type uploaderUC struct {
	store    adapter.OrderStore
	imageDir string
	policy   string
	log      *zerolog.Logger
}

func NewRecordUploader(store adapter.OrderStore, imageDir, onUploadFailure string, logger *zerolog.Logger) *uploaderUC {
	if onUploadFailure == "" {
		onUploadFailure = config.UploadFailureDrop
	}
	l := logger.With().Str("component", "uploader").Logger()
	return &uploaderUC{store: store, imageDir: imageDir, policy: onUploadFailure, log: &l}
}

func (u *uploaderUC) Upload(ctx context.Context, answer string) (*UploadResult, error) {
	log := logging.With(ctx, u.log)

	items, err := ParseAnswer(answer)
	if err != nil {
		return nil, err
	}

	res := &UploadResult{}
	records := make([]model.StorageRecord, 0, len(items))
	for i, raw := range items {
		order, err := MapOrder(raw)
		if err != nil {
			res.Dropped++
			log.Warn().Err(err).Int("index", i).Msg("answer element dropped")
			continue
		}
		rec := order.ToStorage()

		if order.ImageRef != "" {
			path := filepath.Join(u.imageDir, filepath.Base(order.ImageRef))
			tok, err := u.store.UploadImage(ctx, path)
			if err != nil {
				res.ImagesFailed++
				log.Error().Err(err).Str("image", order.ImageRef).Str("policy", u.policy).Msg("image upload failed")
				if u.policy != config.UploadFailureKeepRaw {
					rec.ClearImage()
				}
			} else {
				res.ImagesUploaded++
				rec.SetAttachment(tok)
			}
		}
		records = append(records, rec)
	}

	if len(records) == 0 {
		return res, domain.ErrNoRecords
	}

	raw, err := u.store.BatchCreate(ctx, records)
	if err != nil {
		return res, fmt.Errorf("batch create: %w", err)
	}
	res.Raw = raw
	res.Pushed = len(records)
	metrics.AddRecordsPushed(len(records))
	log.Info().
		Int("pushed", res.Pushed).
		Int("dropped", res.Dropped).
		Int("images_ok", res.ImagesUploaded).
		Int("images_failed", res.ImagesFailed).
		Msg("records pushed")
	return res, nil
}

// ParseAnswer decodes the AI answer as a JSON array, tolerating a surrounding
// markdown code fence.
func ParseAnswer(answer string) ([]json.RawMessage, error) {
	s := stripFence(answer)
	var items []json.RawMessage
	if err := json.Unmarshal([]byte(s), &items); err != nil {
		return nil, fmt.Errorf("%w: answer is not a JSON array: %v", domain.ErrParse, err)
	}
	return items, nil
}

func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = strings.TrimPrefix(s, "```")
	}
	s = strings.TrimSpace(s)
	return strings.TrimSpace(strings.TrimSuffix(s, "```"))
}

var errNotObject = errors.New("element is not a JSON object")

// MapOrder reads one answer element. Missing fields take zero values;
// the quantity keeps only its leading integer.
func MapOrder(raw json.RawMessage) (model.OrderRecord, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil || m == nil {
		return model.OrderRecord{}, fmt.Errorf("%w: %w", domain.ErrParse, errNotObject)
	}
	return model.OrderRecord{
		Note:     scalarString(m[model.FieldNote]),
		Urgent:   scalarString(m[model.FieldUrgent]),
		Quantity: leadingInt(scalarString(m[model.FieldQuantity])),
		ImageRef: imageRef(m[model.FieldImage]),
	}, nil
}

func scalarString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}

// leadingInt parses an optional sign and the digits that follow, ignoring
// whatever comes after: "2 units" is 2, "3.9" is 3, "abc" is 0.
func leadingInt(s string) int {
	s = strings.TrimLeft(s, " \t\r\n")
	end := 0
	if end < len(s) && (s[end] == '+' || s[end] == '-') {
		end++
	}
	start := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == start {
		return 0
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0
	}
	return n
}

// imageRef accepts a bare file name or a list whose first string is one.
func imageRef(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case []any:
		for _, e := range t {
			if s, ok := e.(string); ok && strings.TrimSpace(s) != "" {
				return strings.TrimSpace(s)
			}
		}
	}
	return ""
}
