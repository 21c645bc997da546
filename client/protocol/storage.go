package protocol

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	wire "neuralchat/protocol"
)

// Storage buckets
const (
	BucketImages = wire.BucketImages
	BucketFiles  = wire.BucketFiles
)

var ErrObjectExists = errors.New("object already exists")

// Storage uploads blobs to the service's object store.
type Storage struct {
	baseURL string
	token   string
	http    *http.Client
}

func NewStorage(baseURL, token string) *Storage {
	return &Storage{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 2 * time.Minute},
	}
}

// PublicURL is the download URL of bucket/key.
func (s *Storage) PublicURL(bucket, key string) string {
	return s.baseURL + "/storage/v1/object/public/" + bucket + "/" + key
}

// Upload stores body at bucket/key and returns its public URL. Existing
// objects are never overwritten.
func (s *Storage) Upload(ctx context.Context, bucket, key string, body io.Reader, contentType string) (string, error) {
	url := s.baseURL + "/storage/v1/object/" + bucket + "/" + key
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+s.token)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	defer resp.Body.Close()

	var out struct {
		Key       string `json:"key"`
		PublicURL string `json:"publicUrl"`
		Error     string `json:"error"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&out)

	switch {
	case resp.StatusCode == http.StatusConflict:
		return "", fmt.Errorf("upload %s: %w", key, ErrObjectExists)
	case resp.StatusCode != http.StatusOK:
		reason := out.Error
		if reason == "" {
			reason = resp.Status
		}
		return "", fmt.Errorf("upload %s: %s", key, reason)
	}

	if out.PublicURL == "" {
		return s.PublicURL(bucket, key), nil
	}
	return out.PublicURL, nil
}
