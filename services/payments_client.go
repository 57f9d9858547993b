package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"

	"pocket-bounty/utils"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentsClient talks to the hosted card processor. Only pass-through
// plumbing lives here; card data never transits this service.
type PaymentsClient struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
}

func NewPaymentsClient() *PaymentsClient {
	baseURL := os.Getenv("PAYMENT_API_URL")
	if baseURL == "" {
		log.Fatal("PAYMENT_API_URL environment variable not set")
	}
	apiKey := os.Getenv("PAYMENT_API_KEY")
	if apiKey == "" {
		log.Fatal("PAYMENT_API_KEY environment variable not set")
	}
	return &PaymentsClient{
		BaseURL: baseURL,
		APIKey:  apiKey,
		Client:  utils.HTTPClient,
	}
}

type PaymentIntent struct {
	ID           string `json:"id"`
	Status       string `json:"status"` // requires_confirmation | succeeded | failed
	Amount       string `json:"amount"`
	ClientSecret string `json:"client_secret,omitempty"`
	DeclineCode  string `json:"decline_code,omitempty"`
}

type Payout struct {
	ID          string `json:"id"`
	Status      string `json:"status"` // pending | paid | failed
	Amount      string `json:"amount"`
	FailureCode string `json:"failure_code,omitempty"`
}

type SetupIntent struct {
	ID           string `json:"id"`
	ClientSecret string `json:"client_secret"`
}

type SavedMethod struct {
	ID       string `json:"id"`
	Brand    string `json:"brand"`
	Last4    string `json:"last4"`
	ExpMonth int    `json:"exp_month"`
	ExpYear  int    `json:"exp_year"`
	Customer string `json:"customer"`
}

// ProviderError is a declined or rejected provider call, already mapped to
// a message safe to show the cardholder.
type ProviderError struct {
	Code    string
	Message string
}

func (e *ProviderError) Error() string { return e.Message }

// UserMessageForDecline maps the provider's decline codes onto the handful
// of messages the clients display.
func UserMessageForDecline(code string) string {
	switch code {
	case "insufficient_funds":
		return "Your card has insufficient funds"
	case "card_declined", "generic_decline", "do_not_honor":
		return "Your card was declined"
	case "expired_card":
		return "Your card has expired"
	default:
		return "Payment failed, please try another card"
	}
}

func (c *PaymentsClient) post(path string, idempotencyKey string, body interface{}, out interface{}) error {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequest("POST", c.BaseURL+path, bytes.NewBuffer(jsonBody))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}
	return c.do(req, out)
}

func (c *PaymentsClient) get(path string, out interface{}) error {
	req, err := http.NewRequest("GET", c.BaseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	return c.do(req, out)
}

func (c *PaymentsClient) do(req *http.Request, out interface{}) error {
	resp, err := c.Client.Do(req)
	if err != nil {
		return fmt.Errorf("provider request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read provider response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error struct {
				Type        string `json:"type"`
				DeclineCode string `json:"decline_code"`
				Message     string `json:"message"`
			} `json:"error"`
		}
		if err := json.Unmarshal(respBody, &apiErr); err == nil && apiErr.Error.Type != "" {
			code := apiErr.Error.DeclineCode
			if code == "" {
				code = apiErr.Error.Type
			}
			return &ProviderError{Code: code, Message: UserMessageForDecline(code)}
		}
		log.Printf("[payments] provider returned %d: %s", resp.StatusCode, string(respBody))
		return fmt.Errorf("provider error: status %d", resp.StatusCode)
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("failed to decode provider response: %w", err)
		}
	}
	return nil
}

// CreateIntent opens a payment intent for amount (in dollars) against a
// saved method, charged immediately when methodID is set.
func (c *PaymentsClient) CreateIntent(amount decimal.Decimal, customerID, methodID, description string) (*PaymentIntent, error) {
	var intent PaymentIntent
	err := c.post("/v1/payment_intents", uuid.NewString(), map[string]interface{}{
		"amount":         amount.StringFixed(2),
		"currency":       "usd",
		"customer":       customerID,
		"payment_method": methodID,
		"confirm":        methodID != "",
		"description":    description,
	}, &intent)
	if err != nil {
		return nil, err
	}
	return &intent, nil
}

// GetIntent fetches the current state of an intent (used by confirm flows).
func (c *PaymentsClient) GetIntent(intentID string) (*PaymentIntent, error) {
	var intent PaymentIntent
	if err := c.get("/v1/payment_intents/"+intentID, &intent); err != nil {
		return nil, err
	}
	return &intent, nil
}

// CreatePayout starts a transfer to the user's bank or debit card. The
// caller passes the ledger transaction id as the idempotency key so a retry
// can never create a second transfer.
func (c *PaymentsClient) CreatePayout(amount decimal.Decimal, customerID, method, idempotencyKey string) (*Payout, error) {
	var payout Payout
	err := c.post("/v1/payouts", idempotencyKey, map[string]interface{}{
		"amount":   amount.StringFixed(2),
		"currency": "usd",
		"customer": customerID,
		"method":   method, // standard | instant
	}, &payout)
	if err != nil {
		return nil, err
	}
	return &payout, nil
}

func (c *PaymentsClient) GetPayout(payoutID string) (*Payout, error) {
	var payout Payout
	if err := c.get("/v1/payouts/"+payoutID, &payout); err != nil {
		return nil, err
	}
	return &payout, nil
}

// CreateSetupIntent returns a client secret the app uses to collect a card.
func (c *PaymentsClient) CreateSetupIntent(customerID string) (*SetupIntent, error) {
	var si SetupIntent
	err := c.post("/v1/setup_intents", uuid.NewString(), map[string]interface{}{
		"customer": customerID,
	}, &si)
	if err != nil {
		return nil, err
	}
	return &si, nil
}

// EnsureCustomer creates a provider customer object for a user if needed.
func (c *PaymentsClient) EnsureCustomer(externalUserID string) (string, error) {
	var out struct {
		ID string `json:"id"`
	}
	err := c.post("/v1/customers", externalUserID, map[string]interface{}{
		"reference": externalUserID,
	}, &out)
	if err != nil {
		return "", err
	}
	return out.ID, nil
}

// GetMethod fetches a saved method's display data after the app attaches it.
func (c *PaymentsClient) GetMethod(methodID string) (*SavedMethod, error) {
	var m SavedMethod
	if err := c.get("/v1/payment_methods/"+methodID, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// DetachMethod removes a saved card on the provider side.
func (c *PaymentsClient) DetachMethod(methodID string) error {
	return c.post("/v1/payment_methods/"+methodID+"/detach", uuid.NewString(), map[string]interface{}{}, nil)
}
