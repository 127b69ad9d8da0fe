// Package wompi is the HTTP adapter for the external payment processor.
// Tokenization uses the public key, transactions the private key, and every
// authorization carries an integrity signature plus the merchant's current
// acceptance tokens, which rotate and are fetched fresh per request.
package wompi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JoseFeliciano-spec/TiendaInterviewBackend/internal/domain/payment"
	"github.com/JoseFeliciano-spec/TiendaInterviewBackend/internal/pkg/logging"
)

const (
	defaultTimeout = 15 * time.Second
	userAgent      = "TiendaBackend/1.0"
	currencyCOP    = "COP"
)

type Config struct {
	BaseURL         string
	PublicKey       string
	PrivateKey      string
	IntegritySecret string
	Timeout         time.Duration
}

type Client struct {
	cfg  Config
	http *http.Client
}

// NewClient builds a gateway client. httpClient may be nil, in which case a
// client with the configured timeout is used.
func NewClient(cfg Config, httpClient *http.Client) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{
		cfg:  cfg,
		http: httpClient,
	}
}

type tokenizeRequest struct {
	Number     string `json:"number"`
	CVC        string `json:"cvc"`
	ExpMonth   string `json:"exp_month"`
	ExpYear    string `json:"exp_year"`
	CardHolder string `json:"card_holder"`
}

type tokenizeResponse struct {
	Data struct {
		ID       string `json:"id"`
		Brand    string `json:"brand"`
		LastFour string `json:"last_four"`
	} `json:"data"`
	Error *apiError `json:"error"`
}

// TokenizeCard exchanges raw card data for a processor token. The raw number
// and CVV travel only in the request body; they are never logged and never
// persisted. Safe to retry: tokenization has no external side effect.
func (c *Client) TokenizeCard(ctx context.Context, card payment.Card) (*payment.CardToken, error) {
	logger := logging.FromContext(ctx).With(zap.String("component", "wompi_client"))
	logger.Info("tokenize_card_start", zap.String("card_holder", card.Holder))

	body := tokenizeRequest{
		Number:     strings.ReplaceAll(card.Number, " ", ""),
		CVC:        card.CVV,
		ExpMonth:   padMonth(card.ExpiryMonth),
		ExpYear:    card.ExpiryYear,
		CardHolder: strings.TrimSpace(card.Holder),
	}

	var out tokenizeResponse
	if err := c.do(ctx, http.MethodPost, "/tokens/cards", c.cfg.PublicKey, body, &out); err != nil {
		return nil, &payment.Error{Op: "tokenize", Reason: "request failed", Retryable: true, Err: err}
	}
	if out.Error != nil {
		return nil, &payment.Error{Op: "tokenize", Reason: out.Error.Reason, Retryable: true}
	}
	if out.Data.ID == "" {
		return nil, &payment.Error{Op: "tokenize", Reason: "empty token in response", Retryable: true}
	}

	logger.Info("tokenize_card_success",
		zap.String("token_id", out.Data.ID),
		zap.String("brand", out.Data.Brand),
		zap.String("last_four", out.Data.LastFour),
	)
	return &payment.CardToken{
		ID:       out.Data.ID,
		Brand:    out.Data.Brand,
		LastFour: out.Data.LastFour,
	}, nil
}

type merchantResponse struct {
	Data struct {
		PresignedAcceptance struct {
			AcceptanceToken string `json:"acceptance_token"`
		} `json:"presigned_acceptance"`
		PresignedPersonalDataAuth struct {
			AcceptanceToken string `json:"acceptance_token"`
		} `json:"presigned_personal_data_auth"`
	} `json:"data"`
	Error *apiError `json:"error"`
}

type authorizationRequest struct {
	AmountInCents      int64         `json:"amount_in_cents"`
	Currency           string        `json:"currency"`
	CustomerEmail      string        `json:"customer_email"`
	Reference          string        `json:"reference"`
	Signature          string        `json:"signature"`
	AcceptanceToken    string        `json:"acceptance_token"`
	AcceptPersonalAuth string        `json:"accept_personal_auth,omitempty"`
	PaymentMethod      paymentMethod `json:"payment_method"`
}

type paymentMethod struct {
	Type         string `json:"type"`
	Installments int    `json:"installments"`
	Token        string `json:"token"`
}

type authorizationResponse struct {
	Data struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	} `json:"data"`
	Error *apiError `json:"error"`
}

// CreateAuthorization requests the charge. It first fetches the merchant's
// current acceptance-token pair (these rotate, so they are never cached) and
// signs the request with the integrity secret.
//
// NOT safe to retry: after an ambiguous failure the charge may already exist
// on the processor side. Callers must fall back to the webhook or the status
// poll, never re-dispatch.
func (c *Client) CreateAuthorization(ctx context.Context, req payment.AuthorizationRequest) (*payment.Authorization, error) {
	logger := logging.FromContext(ctx).With(zap.String("component", "wompi_client"))

	currency := currencyCOP

	var merchant merchantResponse
	if err := c.do(ctx, http.MethodGet, "/merchants/"+c.cfg.PublicKey, "", nil, &merchant); err != nil {
		// No charge has been dispatched yet, so this failure is unambiguous.
		return nil, &payment.Error{Op: "authorize", Reason: "acceptance token fetch failed", Retryable: false, Err: err}
	}
	if merchant.Error != nil {
		return nil, &payment.Error{Op: "authorize", Reason: merchant.Error.Reason, Retryable: false}
	}

	body := authorizationRequest{
		AmountInCents:      req.Amount,
		Currency:           currency,
		CustomerEmail:      req.CustomerEmail,
		Reference:          req.Reference,
		Signature:          IntegritySignature(req.Reference, req.Amount, currency, c.cfg.IntegritySecret),
		AcceptanceToken:    merchant.Data.PresignedAcceptance.AcceptanceToken,
		AcceptPersonalAuth: merchant.Data.PresignedPersonalDataAuth.AcceptanceToken,
		PaymentMethod: paymentMethod{
			Type:         "CARD",
			Installments: 1,
			Token:        req.Token,
		},
	}

	logger.Info("create_authorization_start",
		zap.String("reference", req.Reference),
		zap.Int64("amount_in_cents", req.Amount),
	)

	var out authorizationResponse
	if err := c.do(ctx, http.MethodPost, "/transactions", c.cfg.PrivateKey, body, &out); err != nil {
		return nil, &payment.Error{Op: "authorize", Reason: "request failed", Retryable: false, Err: err}
	}
	if out.Error != nil {
		return nil, &payment.Error{Op: "authorize", Reason: out.Error.Reason, Retryable: false}
	}

	logger.Info("create_authorization_done",
		zap.String("reference", req.Reference),
		zap.String("external_id", out.Data.ID),
		zap.String("status", out.Data.Status),
	)
	return &payment.Authorization{
		ExternalID: out.Data.ID,
		Status:     payment.Status(out.Data.Status),
	}, nil
}

type statusResponse struct {
	Data struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	} `json:"data"`
	Error *apiError `json:"error"`
}

// QueryStatus polls the processor for the current status of a charge.
// Side-effect-free and safe to retry; used by the staleness sweep.
func (c *Client) QueryStatus(ctx context.Context, externalID string) (payment.Status, error) {
	var out statusResponse
	if err := c.do(ctx, http.MethodGet, "/transactions/"+externalID, c.cfg.PrivateKey, nil, &out); err != nil {
		return "", &payment.Error{Op: "query_status", Reason: "request failed", Retryable: true, Err: err}
	}
	if out.Error != nil {
		return "", &payment.Error{Op: "query_status", Reason: out.Error.Reason, Retryable: true}
	}
	return payment.Status(out.Data.Status), nil
}

type apiError struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

func (c *Client) do(ctx context.Context, method, path, bearer string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("upstream status %d", resp.StatusCode)
	}
	return nil
}

func padMonth(m string) string {
	if len(m) == 1 {
		return "0" + m
	}
	return m
}
