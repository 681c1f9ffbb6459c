// Package pricing quotes order prices from the external pricing collaborator.
package pricing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/israelreshef/delivery-app-sub000/internal/apperr"
	"github.com/israelreshef/delivery-app-sub000/internal/domain"
	"github.com/israelreshef/delivery-app-sub000/internal/gateway"
	"github.com/israelreshef/delivery-app-sub000/internal/geo"
)

const calculatePath = "/orders/calculate"

type calculateRequest struct {
	DistanceKm     float64 `json:"distance_km"`
	PackageSize    string  `json:"package_size"`
	Urgency        string  `json:"urgency"`
	DeliveryType   string  `json:"delivery_type"`
	InsuranceValue float64 `json:"insurance_value"`
	Weight         float64 `json:"weight"`
}

type calculateResponse struct {
	Price *float64 `json:"price"`
}

// Client calls the pricing service over HTTP. Prices come back in currency
// units and are converted to cents.
type Client struct {
	baseURL string
	http    *http.Client
	retry   *gateway.Retrier
}

// NewClient creates a Client. retry may be nil for a single attempt.
func NewClient(baseURL string, timeout time.Duration, retry *gateway.Retrier) *Client {
	if retry == nil {
		retry = gateway.NewRetrier(gateway.RetryConfig{MaxAttempts: 1}, nil, nil)
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		retry:   retry,
	}
}

// Quote prices the draft.
func (c *Client) Quote(ctx context.Context, d domain.OrderDraft) (int64, error) {
	body, err := json.Marshal(requestFor(d))
	if err != nil {
		return 0, fmt.Errorf("encode quote request: %w", err)
	}

	var cents int64
	err = c.retry.Do(ctx, "pricing.quote", func(ctx context.Context) error {
		var perr error
		cents, perr = c.post(ctx, body)
		return perr
	})
	return cents, err
}

func (c *Client) post(ctx context.Context, body []byte) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+calculatePath, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("build quote request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, apperr.Network("pricing.quote", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		_, _ = io.Copy(io.Discard, resp.Body)
		return 0, apperr.Network("pricing.quote", fmt.Errorf("status %d", resp.StatusCode))
	}
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return 0, fmt.Errorf("pricing rejected quote: status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out calculateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("decode quote: %w", err)
	}
	if out.Price == nil || *out.Price < 0 {
		return 0, errors.New("pricing returned no price")
	}
	return int64(math.Round(*out.Price * 100)), nil
}

func requestFor(d domain.OrderDraft) calculateRequest {
	p, q := d.Pickup.Address, d.Dropoff.Address
	return calculateRequest{
		DistanceKm:     math.Round(geo.DistanceKm(p.Lat, p.Lng, q.Lat, q.Lng)*100) / 100,
		PackageSize:    string(d.Package.Size),
		Urgency:        string(d.Priority),
		DeliveryType:   string(d.DeliveryType),
		InsuranceValue: float64(d.InsuredValueCents) / 100,
		Weight:         d.Package.WeightKg,
	}
}
