// Package proof stores proof-of-delivery images and returns a reference to them.
package proof

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/israelreshef/delivery-app-sub000/internal/apperr"
	"github.com/israelreshef/delivery-app-sub000/internal/gateway"
)

// MaxImageBytes bounds a decoded proof image.
const MaxImageBytes = 5 << 20

// Store persists a proof image for an order.
type Store interface {
	Save(ctx context.Context, orderNumber string, image []byte) (string, error)
}

// DecodeImage accepts raw base64 or a data URL and returns the image bytes.
func DecodeImage(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, ','); i >= 0 && strings.HasPrefix(s, "data:") {
		s = s[i+1:]
	}
	if s == "" {
		return nil, apperr.Validation("pod_image", "empty")
	}
	img, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, apperr.Validation("pod_image", "not base64")
	}
	if len(img) > MaxImageBytes {
		return nil, apperr.Validation("pod_image", "too large")
	}
	return img, nil
}

// DigestStore keeps nothing and references the image by its SHA-256.
type DigestStore struct{}

// Save returns "sha256:<hex>".
func (DigestStore) Save(_ context.Context, _ string, image []byte) (string, error) {
	sum := sha256.Sum256(image)
	return "sha256:" + hex.EncodeToString(sum[:]), nil
}

// HTTPStore uploads images to the proof collaborator.
type HTTPStore struct {
	baseURL string
	http    *http.Client
	retry   *gateway.Retrier
}

// NewHTTPStore creates an HTTPStore. retry may be nil for a single attempt.
func NewHTTPStore(baseURL string, timeout time.Duration, retry *gateway.Retrier) *HTTPStore {
	if retry == nil {
		retry = gateway.NewRetrier(gateway.RetryConfig{MaxAttempts: 1}, nil, nil)
	}
	return &HTTPStore{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		retry:   retry,
	}
}

// Save uploads the image and returns the reference the collaborator assigned.
func (s *HTTPStore) Save(ctx context.Context, orderNumber string, image []byte) (string, error) {
	var ref string
	err := s.retry.Do(ctx, "proof.save", func(ctx context.Context) error {
		var uerr error
		ref, uerr = s.upload(ctx, orderNumber, image)
		return uerr
	})
	return ref, err
}

func (s *HTTPStore) upload(ctx context.Context, orderNumber string, image []byte) (string, error) {
	u := s.baseURL + "/proofs?order=" + url.QueryEscape(orderNumber)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(image))
	if err != nil {
		return "", fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", http.DetectContentType(image))

	resp, err := s.http.Do(req)
	if err != nil {
		return "", apperr.Network("proof.save", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		_, _ = io.Copy(io.Discard, resp.Body)
		return "", apperr.Network("proof.save", fmt.Errorf("status %d", resp.StatusCode))
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("proof upload rejected: status %d", resp.StatusCode)
	}

	var out struct {
		Ref string `json:"ref"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode upload response: %w", err)
	}
	if out.Ref == "" {
		return "", fmt.Errorf("proof upload returned empty ref")
	}
	return out.Ref, nil
}
