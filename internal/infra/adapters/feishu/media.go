package feishu

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"order-bridge/internal/domain"
	"order-bridge/internal/infra/metrics"
)

const parentTypeBitableImage = "bitable_image"

// UploadImage uploads a local file as a Bitable attachment and returns its file token.
func (s *Store) UploadImage(ctx context.Context, path string) (tok string, err error) {
	defer func() {
		if err != nil {
			metrics.IncImageUpload("error")
		} else {
			metrics.IncImageUpload("ok")
		}
	}()

	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", path, err)
	}
	name := filepath.Base(path)

	resp, err := s.auth.Do(ctx, "upload_media", func(ctx context.Context, token string) (*http.Request, error) {
		body, contentType, err := multipartBody(path, name, s.appToken, info.Size())
		if err != nil {
			return nil, err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.base+"/open-apis/drive/v1/medias/upload_all", body)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Content-Type", contentType)
		return req, nil
	})
	if err != nil {
		return "", err
	}
	if err := checkBody("upload_media", resp); err != nil {
		return "", err
	}

	var out struct {
		Data struct {
			FileToken string `json:"file_token"`
		} `json:"data"`
	}
	if err := json.Unmarshal(resp.Body, &out); err != nil || out.Data.FileToken == "" {
		return "", fmt.Errorf("%w: upload_media: no file_token in response", domain.ErrParse)
	}
	return out.Data.FileToken, nil
}

// multipartBody reads the file from disk on every call.
func multipartBody(path, name, parentNode string, size int64) (io.Reader, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", err
	}
	defer f.Close()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fields := [][2]string{
		{"file_name", name},
		{"parent_type", parentTypeBitableImage},
		{"parent_node", parentNode},
		{"size", strconv.FormatInt(size, 10)},
	}
	for _, kv := range fields {
		if err := w.WriteField(kv[0], kv[1]); err != nil {
			return nil, "", err
		}
	}
	part, err := w.CreateFormFile("file", name)
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}
