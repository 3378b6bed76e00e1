// Package gateway is the HTTP client for the upstream card gateway, which
// issues cards and hands out transactions to authorize.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/upb/card-control/config"
	"github.com/upb/card-control/models"
	"github.com/upb/card-control/services"
	"go.uber.org/zap"
)

const (
	defaultTimeout  = 5 * time.Second
	transactionPath = "/transaction/"
	cardsPath       = "/cards/"
	maxErrorBody    = 512
)

// GatewayError is a non-2xx answer from the gateway
type GatewayError struct {
	StatusCode int
	Message    string
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("gateway returned %d: %s", e.StatusCode, e.Message)
}

// Client talks to the gateway over HTTP
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a gateway client. A zero timeout means 5s.
func NewClient(cfg config.GatewayConfig, logger *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// transactionPayload is the gateway's transaction representation
type transactionPayload struct {
	ID               string          `json:"id"`
	Card             string          `json:"card"`
	Amount           decimal.Decimal `json:"amount"`
	Merchant         string          `json:"merchant"`
	MerchantCategory string          `json:"merchant_category"`
	Created          time.Time       `json:"created"`
	Updated          time.Time       `json:"updated"`
}

// cardPayload is the gateway's card representation
type cardPayload struct {
	ID      string          `json:"id"`
	User    int64           `json:"user"`
	Balance decimal.Decimal `json:"balance"`
	Created time.Time       `json:"created"`
	Updated time.Time       `json:"updated"`
}

// FetchTransaction asks the gateway for the next transaction to authorize.
// The returned transaction has no status yet.
func (c *Client) FetchTransaction(ctx context.Context) (*models.Transaction, error) {
	var p transactionPayload
	if err := c.do(ctx, http.MethodGet, transactionPath, &p); err != nil {
		return nil, err
	}
	if p.ID == "" || p.Card == "" {
		return nil, &GatewayError{StatusCode: http.StatusOK, Message: "transaction payload missing id or card"}
	}

	c.logger.Info("transaction received from gateway",
		zap.String("transaction_id", p.ID),
		zap.String("card_id", p.Card))

	return &models.Transaction{
		ID:               p.ID,
		CardID:           p.Card,
		Amount:           p.Amount,
		Merchant:         p.Merchant,
		MerchantCategory: p.MerchantCategory,
		CreatedAt:        p.Created,
		UpdatedAt:        p.Updated,
	}, nil
}

// CreateCard issues a new card at the gateway. The caller sets the creator.
func (c *Client) CreateCard(ctx context.Context) (*models.Card, error) {
	var p cardPayload
	if err := c.do(ctx, http.MethodPost, cardsPath, &p); err != nil {
		return nil, err
	}
	if p.ID == "" {
		return nil, &GatewayError{StatusCode: http.StatusOK, Message: "card payload missing id"}
	}

	c.logger.Info("card created at gateway", zap.String("card_id", p.ID))

	return &models.Card{
		ID:        p.ID,
		UserID:    p.User,
		Balance:   p.Balance,
		CreatedAt: p.Created,
		UpdatedAt: p.Updated,
	}, nil
}

// do performs the request and decodes a 2xx JSON body into out. Transport
// failures and timeouts become services.ErrGatewayUnavailable; other
// statuses become *GatewayError.
func (c *Client) do(ctx context.Context, method, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return services.WrapExternal("failed to create gateway request", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Token "+c.apiKey)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("gateway unreachable",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err))
		return services.Wrap(services.ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("gateway responded",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		msg := strings.TrimSpace(string(body))
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		c.logger.Error("gateway error response",
			zap.String("path", path),
			zap.Int("status", resp.StatusCode))
		return &GatewayError{StatusCode: resp.StatusCode, Message: msg}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return services.Wrap(services.ErrGatewayUnavailable, err)
		}
		return &GatewayError{StatusCode: resp.StatusCode, Message: "invalid response body: " + err.Error()}
	}
	return nil
}
