package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/rs/zerolog"

	"order-bridge/internal/config"
	"order-bridge/internal/domain"
	"order-bridge/internal/domain/model"
)

func newTestUploader(store *mockStore, policy string) *uploaderUC {
	l := zerolog.Nop()
	return NewRecordUploader(store, "/data/images", policy, &l)
}

func TestRecordUploader_Upload(t *testing.T) {
	ctx := context.Background()

	t.Run("maps, uploads and pushes in one call", func(t *testing.T) {
		// Arrange
		store := &mockStore{}
		up := newTestUploader(store, config.UploadFailureDrop)
		answer := "```json\n[{\"客户备注信息\":\"blue, size L\",\"是否加急\":\"是\",\"下单数量\":\"2 units\",\"图片\":\"a.jpg\"}]\n```"

		// Act
		res, err := up.Upload(ctx, answer)

		// Assert
		if err != nil {
			t.Fatalf("Upload: %v", err)
		}
		if res.Pushed != 1 || res.ImagesUploaded != 1 || string(res.Raw) != `{"code":0}` {
			t.Fatalf("result = %+v", res)
		}
		if !reflect.DeepEqual(store.uploaded, []string{filepath.Join("/data/images", "a.jpg")}) {
			t.Fatalf("uploaded = %v", store.uploaded)
		}
		if len(store.created) != 1 || len(store.created[0]) != 1 {
			t.Fatalf("batch_create calls = %v", store.created)
		}
		f := store.created[0][0].Fields
		if f[model.FieldNote] != "blue, size L" || f[model.FieldUrgent] != "是" || f[model.FieldQuantity] != 2 {
			t.Fatalf("fields = %v", f)
		}
		want := []any{model.Attachment{FileToken: "tok123"}}
		if !reflect.DeepEqual(f[model.FieldImage], want) {
			t.Fatalf("image field = %#v", f[model.FieldImage])
		}
	})

	t.Run("missing fields and odd quantities", func(t *testing.T) {
		store := &mockStore{}
		up := newTestUploader(store, config.UploadFailureDrop)
		answer := `[{"下单数量":"abc"},{"下单数量":3.9,"是否加急":true},{}]`

		res, err := up.Upload(ctx, answer)

		if err != nil || res.Pushed != 3 {
			t.Fatalf("Upload = %+v, %v", res, err)
		}
		recs := store.created[0]
		if recs[0].Fields[model.FieldQuantity] != 0 || recs[0].Fields[model.FieldNote] != "" {
			t.Fatalf("first = %v", recs[0].Fields)
		}
		if recs[1].Fields[model.FieldQuantity] != 3 || recs[1].Fields[model.FieldUrgent] != "true" {
			t.Fatalf("second = %v", recs[1].Fields)
		}
		if img, _ := recs[2].Fields[model.FieldImage].([]any); len(img) != 0 {
			t.Fatalf("image without ref = %v", recs[2].Fields[model.FieldImage])
		}
		if len(store.uploaded) != 0 {
			t.Fatalf("no uploads expected, got %v", store.uploaded)
		}
	})

	t.Run("non-object element is dropped, siblings survive", func(t *testing.T) {
		store := &mockStore{}
		up := newTestUploader(store, config.UploadFailureDrop)

		res, err := up.Upload(ctx, `[42, {"客户备注信息":"ok"}, null, "str"]`)

		if err != nil || res.Pushed != 1 || res.Dropped != 3 {
			t.Fatalf("Upload = %+v, %v", res, err)
		}
		if store.created[0][0].Fields[model.FieldNote] != "ok" {
			t.Fatalf("survivor = %v", store.created[0][0].Fields)
		}
	})

	t.Run("unparseable answer pushes nothing", func(t *testing.T) {
		store := &mockStore{}
		up := newTestUploader(store, config.UploadFailureDrop)

		_, err := up.Upload(ctx, `Sorry, I could not find any orders.`)

		if !errors.Is(err, domain.ErrParse) {
			t.Fatalf("want ErrParse, got %v", err)
		}
		if len(store.created) != 0 {
			t.Fatal("batch_create must not be called")
		}
	})

	t.Run("nothing left to push", func(t *testing.T) {
		store := &mockStore{}
		up := newTestUploader(store, config.UploadFailureDrop)

		for _, answer := range []string{`[]`, `[1, 2]`} {
			if _, err := up.Upload(ctx, answer); !errors.Is(err, domain.ErrNoRecords) {
				t.Fatalf("%s: want ErrNoRecords, got %v", answer, err)
			}
		}
		if len(store.created) != 0 {
			t.Fatal("batch_create must not be called")
		}
	})

	t.Run("image path keeps only the base name", func(t *testing.T) {
		store := &mockStore{}
		up := newTestUploader(store, config.UploadFailureDrop)

		_, _ = up.Upload(ctx, `[{"图片":"../../etc/x.jpg"}]`)

		if len(store.uploaded) != 1 || store.uploaded[0] != filepath.Join("/data/images", "x.jpg") {
			t.Fatalf("uploaded = %v", store.uploaded)
		}
	})

	t.Run("upload failure policies", func(t *testing.T) {
		failing := func(ctx context.Context, path string) (string, error) { return "", domain.ErrNetwork }
		cases := []struct {
			policy string
			want   []any
		}{
			{config.UploadFailureDrop, []any{}},
			{config.UploadFailureKeepRaw, []any{"a.jpg"}},
		}
		for _, tc := range cases {
			t.Run(tc.policy, func(t *testing.T) {
				store := &mockStore{UploadImageFunc: failing}
				up := newTestUploader(store, tc.policy)

				res, err := up.Upload(ctx, `[{"图片":"a.jpg"}]`)

				if err != nil || res.Pushed != 1 || res.ImagesFailed != 1 {
					t.Fatalf("Upload = %+v, %v", res, err)
				}
				if got := store.created[0][0].Fields[model.FieldImage]; !reflect.DeepEqual(got, tc.want) {
					t.Fatalf("image field = %#v; want %#v", got, tc.want)
				}
			})
		}
	})

	t.Run("batch create failure", func(t *testing.T) {
		store := &mockStore{BatchCreateFunc: func(ctx context.Context, r []model.StorageRecord) (json.RawMessage, error) {
			return nil, &domain.HTTPError{Op: "batch_create", StatusCode: 500}
		}}
		up := newTestUploader(store, config.UploadFailureDrop)

		_, err := up.Upload(ctx, `[{"客户备注信息":"x"}]`)

		if !errors.Is(err, domain.ErrHTTP) {
			t.Fatalf("want ErrHTTP, got %v", err)
		}
	})
}

func TestLeadingInt(t *testing.T) {
	cases := map[string]int{
		"2":       2,
		"2 units": 2,
		"  7pcs":  7,
		"3.9":     3,
		"-4":      -4,
		"+5":      5,
		"abc":     0,
		"":        0,
		"x2":      0,
		"1e3":     1,
	}
	for in, want := range cases {
		if got := leadingInt(in); got != want {
			t.Errorf("leadingInt(%q) = %d; want %d", in, got, want)
		}
	}
}

func TestParseAnswer_Fences(t *testing.T) {
	for _, in := range []string{
		`[{"a":1}]`,
		"```json\n[{\"a\":1}]\n```",
		"```\n[{\"a\":1}]```",
		"  \n```json\n[{\"a\":1}]\n```\n",
	} {
		items, err := ParseAnswer(in)
		if err != nil || len(items) != 1 {
			t.Errorf("ParseAnswer(%q) = %v, %v", in, items, err)
		}
	}
	if _, err := ParseAnswer(`{"a":1}`); !errors.Is(err, domain.ErrParse) {
		t.Errorf("object answer: want ErrParse, got %v", err)
	}
}

func TestMapOrder_ImageList(t *testing.T) {
	rec, err := MapOrder(json.RawMessage(`{"图片":["", "b.jpg"]}`))
	if err != nil || rec.ImageRef != "b.jpg" {
		t.Fatalf("MapOrder = %+v, %v", rec, err)
	}
}
