package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/iliyamo/meal-reservation/internal/config"
)

// Zarinpal result codes.
const (
	codeOK              = 100
	codeAlreadyVerified = 101
)

// Zarinpal talks to the Zarinpal v4 REST API.
type Zarinpal struct {
	merchantID  string
	baseURL     string
	startPayURL string
	client      *http.Client
}

// NewZarinpal returns a client configured from cfg.
func NewZarinpal(cfg config.GatewayConfig) *Zarinpal {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Zarinpal{
		merchantID:  cfg.MerchantID,
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		startPayURL: cfg.StartPayURL,
		client:      &http.Client{Timeout: timeout},
	}
}

// envelope is the common response shape: {"data": {...}, "errors": {...}}.
// On success errors is an empty array; on failure data is an empty array.
type envelope struct {
	Data   json.RawMessage `json:"data"`
	Errors json.RawMessage `json:"errors"`
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (z *Zarinpal) post(ctx context.Context, op, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, z.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := z.client.Do(req)
	if err != nil {
		return unavailable(op, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		return unavailable(op, fmt.Errorf("http %d", resp.StatusCode))
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return unavailable(op, fmt.Errorf("decode response: %w", err))
	}
	if e := bytes.TrimSpace(env.Errors); len(e) > 0 && e[0] == '{' {
		var ae apiError
		if err := json.Unmarshal(e, &ae); err != nil {
			return unavailable(op, fmt.Errorf("decode errors: %w", err))
		}
		return &RejectedError{Code: ae.Code, Message: ae.Message}
	}
	if d := bytes.TrimSpace(env.Data); len(d) == 0 || d[0] != '{' {
		return unavailable(op, fmt.Errorf("http %d without data", resp.StatusCode))
	}
	return json.Unmarshal(env.Data, out)
}

// Authorize calls request.json and returns the new authority.
func (z *Zarinpal) Authorize(ctx context.Context, r AuthorizeRequest) (Authorization, error) {
	body := map[string]any{
		"merchant_id":  z.merchantID,
		"amount":       r.Amount,
		"callback_url": r.CallbackURL,
		"description":  r.Description,
		"metadata":     map[string]string{"order_id": r.OrderID},
	}
	var data struct {
		Code      int    `json:"code"`
		Message   string `json:"message"`
		Authority string `json:"authority"`
	}
	if err := z.post(ctx, "authorize", "/pg/v4/payment/request.json", body, &data); err != nil {
		return Authorization{}, err
	}
	if data.Code != codeOK || data.Authority == "" {
		return Authorization{}, &RejectedError{Code: data.Code, Message: data.Message}
	}
	return Authorization{Authority: data.Authority, RedirectURL: z.startPayURL + data.Authority}, nil
}

// Confirm calls verify.json.  Code 101 means the authority was verified
// earlier and is reported as success.
func (z *Zarinpal) Confirm(ctx context.Context, authority string, amount int64) (Confirmation, error) {
	body := map[string]any{"merchant_id": z.merchantID, "amount": amount, "authority": authority}
	var data struct {
		Code    int         `json:"code"`
		Message string      `json:"message"`
		RefID   json.Number `json:"ref_id"`
	}
	if err := z.post(ctx, "confirm", "/pg/v4/payment/verify.json", body, &data); err != nil {
		return Confirmation{}, err
	}
	switch data.Code {
	case codeOK, codeAlreadyVerified:
		return Confirmation{RefID: data.RefID.String(), AlreadyVerified: data.Code == codeAlreadyVerified}, nil
	}
	return Confirmation{}, &RejectedError{Code: data.Code, Message: data.Message}
}

// Inquire calls inquiry.json.
func (z *Zarinpal) Inquire(ctx context.Context, authority string) (Inquiry, error) {
	body := map[string]any{"merchant_id": z.merchantID, "authority": authority}
	var data struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	}
	if err := z.post(ctx, "inquire", "/pg/v4/payment/inquiry.json", body, &data); err != nil {
		return Inquiry{}, err
	}
	if data.Code != codeOK {
		return Inquiry{}, &RejectedError{Code: data.Code, Message: data.Message}
	}
	return Inquiry{Status: Status(strings.ToUpper(data.Status))}, nil
}

// Reverse calls reverse.json, returning captured funds to the payer.
func (z *Zarinpal) Reverse(ctx context.Context, authority string) error {
	body := map[string]any{"merchant_id": z.merchantID, "authority": authority}
	var data struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	}
	if err := z.post(ctx, "reverse", "/pg/v4/payment/reverse.json", body, &data); err != nil {
		return err
	}
	if data.Code != codeOK {
		return &RejectedError{Code: data.Code, Message: data.Message}
	}
	return nil
}
