// Package payments integrates the Przelewy24 gateway with the booking engine.
package payments

import (
	"bytes"
	"context"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/hackgods/clinic-booking/internal/config"
)

var tracer = otel.Tracer("github.com/hackgods/clinic-booking/internal/payments")

var ErrGateway = errors.New("payment gateway error")

type RegisterRequest struct {
	SessionID   string
	AmountMinor int64
	Currency    string
	Description string
	Email       string
}

type VerifyRequest struct {
	SessionID   string
	OrderID     int64
	AmountMinor int64
	Currency    string
}

// P24Client is a thin client over the Przelewy24 REST API v1.
type P24Client struct {
	cfg        config.P24Config
	httpClient *http.Client
}

func NewP24Client(cfg config.P24Config, httpClient *http.Client) *P24Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &P24Client{cfg: cfg, httpClient: httpClient}
}

func sha384Hex(raw string) string {
	sum := sha512.Sum384([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// RegisterSign signs sessionId|merchantId|amount|currency|crc.
func (c *P24Client) RegisterSign(sessionID string, amountMinor int64, currency string) string {
	return sha384Hex(fmt.Sprintf("%s|%d|%d|%s|%s", sessionID, c.cfg.MerchantID, amountMinor, currency, c.cfg.CRC))
}

// StatusSign signs sessionId|orderId|amount|currency|crc. The same layout is
// used for status notifications and verify calls.
func (c *P24Client) StatusSign(sessionID, orderID string, amountMinor int64, currency string) string {
	return sha384Hex(fmt.Sprintf("%s|%s|%d|%s|%s", sessionID, orderID, amountMinor, currency, c.cfg.CRC))
}

func (c *P24Client) RedirectURL(token string) string {
	return c.cfg.RedirectURL + "/" + token
}

type registerPayload struct {
	MerchantID  int    `json:"merchantId"`
	PosID       int    `json:"posId"`
	SessionID   string `json:"sessionId"`
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
	Description string `json:"description"`
	Email       string `json:"email"`
	Country     string `json:"country"`
	Language    string `json:"language"`
	URLReturn   string `json:"urlReturn"`
	URLStatus   string `json:"urlStatus"`
	Sign        string `json:"sign"`
}

type registerResponse struct {
	Data struct {
		Token string `json:"token"`
	} `json:"data"`
	Error string `json:"error"`
}

// Register opens a transaction and returns the gateway token.
func (c *P24Client) Register(ctx context.Context, req RegisterRequest) (string, error) {
	ctx, span := tracer.Start(ctx, "p24.register")
	defer span.End()
	span.SetAttributes(attribute.String("p24.session_id", req.SessionID), attribute.Int64("p24.amount", req.AmountMinor))

	payload := registerPayload{
		MerchantID:  c.cfg.MerchantID,
		PosID:       c.cfg.PosID,
		SessionID:   req.SessionID,
		Amount:      req.AmountMinor,
		Currency:    req.Currency,
		Description: req.Description,
		Email:       req.Email,
		Country:     "PL",
		Language:    "pl",
		URLReturn:   c.cfg.ReturnURL,
		URLStatus:   c.cfg.StatusURL,
		Sign:        c.RegisterSign(req.SessionID, req.AmountMinor, req.Currency),
	}

	var out registerResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/transaction/register", payload, &out); err != nil {
		return "", err
	}
	if out.Data.Token == "" {
		return "", fmt.Errorf("%w: register returned no token", ErrGateway)
	}
	return out.Data.Token, nil
}

type verifyPayload struct {
	MerchantID int    `json:"merchantId"`
	PosID      int    `json:"posId"`
	SessionID  string `json:"sessionId"`
	Amount     int64  `json:"amount"`
	Currency   string `json:"currency"`
	OrderID    int64  `json:"orderId"`
	Sign       string `json:"sign"`
}

type verifyResponse struct {
	Data struct {
		Status string `json:"status"`
	} `json:"data"`
	Error any `json:"error"`
}

// Verify confirms a transaction the gateway reported as paid.
func (c *P24Client) Verify(ctx context.Context, req VerifyRequest) error {
	ctx, span := tracer.Start(ctx, "p24.verify")
	defer span.End()
	span.SetAttributes(attribute.String("p24.session_id", req.SessionID), attribute.Int64("p24.order_id", req.OrderID))

	payload := verifyPayload{
		MerchantID: c.cfg.MerchantID,
		PosID:      c.cfg.PosID,
		SessionID:  req.SessionID,
		Amount:     req.AmountMinor,
		Currency:   req.Currency,
		OrderID:    req.OrderID,
		Sign:       c.StatusSign(req.SessionID, strconv.FormatInt(req.OrderID, 10), req.AmountMinor, req.Currency),
	}

	var out verifyResponse
	if err := c.do(ctx, http.MethodPut, "/api/v1/transaction/verify", payload, &out); err != nil {
		return err
	}
	if out.Error != nil && out.Error != "" {
		return fmt.Errorf("%w: verify rejected: %v", ErrGateway, out.Error)
	}
	return nil
}

func (c *P24Client) do(ctx context.Context, method, path string, body, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("p24: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("p24: build request: %w", err)
	}
	req.SetBasicAuth(strconv.Itoa(c.cfg.PosID), c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrGateway, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: read response: %v", ErrGateway, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %s %s returned %d: %s", ErrGateway, method, path, resp.StatusCode, string(respBody))
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrGateway, err)
	}
	return nil
}
