package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"fulfillment-service/internal/service"
)

// HTTPGateway issues refunds against the payment provider's REST API.
type HTTPGateway struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func NewHTTPGateway(baseURL, apiKey string, timeout time.Duration) *HTTPGateway {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPGateway{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
	}
}

type refundBody struct {
	TransactionID string `json:"transaction_id"`
	AmountMinor   int64  `json:"amount_minor"`
	Partial       bool   `json:"partial"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

const codeAlreadyRefunded = "already_refunded"

// Refund returns nil when the provider accepted the refund or already had it,
// wraps service.ErrPermanent for rejected requests and returns a plain error for
// failures worth retrying.
func (g *HTTPGateway) Refund(ctx context.Context, req service.RefundRequest) error {
	payload, err := json.Marshal(refundBody{
		TransactionID: req.TransactionID,
		AmountMinor:   req.AmountMinor,
		Partial:       req.Partial,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", service.ErrPermanent, err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/v1/refunds", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%w: %v", service.ErrPermanent, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+g.apiKey)
	httpReq.Header.Set("Idempotency-Key", req.IdempotencyKey)

	resp, err := g.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("refund request: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("payment gateway error %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var eb errorBody
	_ = json.Unmarshal(body, &eb)
	if eb.Code == codeAlreadyRefunded || resp.StatusCode == http.StatusConflict {
		return service.ErrAlreadyRefunded
	}
	return fmt.Errorf("%w: payment gateway rejected refund %d: %s", service.ErrPermanent, resp.StatusCode, strings.TrimSpace(string(body)))
}
