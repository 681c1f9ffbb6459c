package courierclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/israelreshef/delivery-app-sub000/internal/apperr"
	"github.com/israelreshef/delivery-app-sub000/internal/wire"
)

const idempotencyHeader = "Idempotency-Key"

type statusRequest struct {
	Status   string `json:"status"`
	Note     string `json:"note,omitempty"`
	PodImage string `json:"pod_image,omitempty"`
}

type availabilityRequest struct {
	Available bool `json:"available"`
}

// Client is the courier's REST client.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient creates a Client authenticated with token.
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: timeout},
	}
}

// UpdateStatus moves the courier's order to status. A non-empty podImage is
// uploaded as proof of delivery.
func (c *Client) UpdateStatus(ctx context.Context, orderID int64, status, note, podImage, key string) (*wire.Order, error) {
	var o wire.Order
	path := fmt.Sprintf("/couriers/orders/%d/status", orderID)
	body := statusRequest{Status: status, Note: note, PodImage: podImage}
	if err := c.do(ctx, "courier.update_status", http.MethodPost, path, body, key, &o); err != nil {
		return nil, err
	}
	return &o, nil
}

// ActiveOrder returns the courier's order in progress, nil when there is none.
func (c *Client) ActiveOrder(ctx context.Context) (*wire.Order, error) {
	var o wire.Order
	err := c.do(ctx, "courier.active_order", http.MethodGet, "/couriers/me/active-order", nil, "", &o)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// Accept takes an offered order.
func (c *Client) Accept(ctx context.Context, courierID, orderID int64) (*wire.Order, error) {
	var o wire.Order
	path := fmt.Sprintf("/couriers/%d/orders/%d/accept", courierID, orderID)
	if err := c.do(ctx, "courier.accept", http.MethodPost, path, nil, "", &o); err != nil {
		return nil, err
	}
	return &o, nil
}

// Reject declines an offered order.
func (c *Client) Reject(ctx context.Context, courierID, orderID int64) error {
	path := fmt.Sprintf("/couriers/%d/orders/%d/reject", courierID, orderID)
	return c.do(ctx, "courier.reject", http.MethodPost, path, nil, "", nil)
}

// SetAvailability goes online or offline.
func (c *Client) SetAvailability(ctx context.Context, courierID int64, available bool) (*wire.Courier, error) {
	var out wire.Courier
	path := fmt.Sprintf("/couriers/%d/availability", courierID)
	if err := c.do(ctx, "courier.availability", http.MethodPut, path, availabilityRequest{Available: available}, "", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, body any, key string, out any) error {
	var rdr io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: encode: %w", op, err)
		}
		rdr = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if key != "" {
		req.Header.Set(idempotencyHeader, key)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return apperr.Network(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		_, _ = io.Copy(io.Discard, resp.Body)
		return apperr.Network(op, fmt.Errorf("status %d", resp.StatusCode))
	}
	if resp.StatusCode >= 400 {
		return decodeError(op, resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode: %w", op, err)
	}
	return nil
}

func decodeError(op string, resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var body wire.Error
	if err := json.Unmarshal(raw, &body); err != nil || body.Code == "" {
		return fmt.Errorf("%s: status %d: %s", op, resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	sentinel := apperr.FromCode(body.Code)
	if sentinel == nil {
		return fmt.Errorf("%s: status %d: %s (%s)", op, resp.StatusCode, body.Error, body.Code)
	}
	return fmt.Errorf("%s: %s: %w", op, body.Error, sentinel)
}
