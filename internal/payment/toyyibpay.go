package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/noah-isme/proride-store/internal/obs"
	"github.com/noah-isme/proride-store/internal/resilience"
)

const providerToyyibPay = "toyyibpay"

// DefaultToyyibPayURL is the production gateway host.
const DefaultToyyibPayURL = "https://toyyibpay.com"

// ToyyibPayConfig configures the ToyyibPay client.
type ToyyibPayConfig struct {
	BaseURL      string
	SecretKey    string
	CategoryCode string
	Timeout      time.Duration
	Transport    http.RoundTripper
	Logger       zerolog.Logger
}

// ToyyibPay creates bills through the ToyyibPay createBill API.
type ToyyibPay struct {
	baseURL      string
	secretKey    string
	categoryCode string
	http         resilience.HTTPClient
}

// NewToyyibPay constructs the client. Calls are made once, without retries,
// behind a circuit breaker.
func NewToyyibPay(cfg ToyyibPayConfig) *ToyyibPay {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = DefaultToyyibPayURL
	}
	transport := cfg.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ToyyibPay{
		baseURL:      base,
		secretKey:    cfg.SecretKey,
		categoryCode: cfg.CategoryCode,
		http: resilience.HTTPClient{
			Client: &http.Client{Transport: otelhttp.NewTransport(transport)},
			Breaker: resilience.NewBreaker(resilience.BreakerConfig{
				Name:     providerToyyibPay,
				Window:   5,
				Cooldown: 30 * time.Second,
				Logger:   cfg.Logger,
			}),
			Timeout: timeout,
		},
	}
}

// Configured reports whether credentials are present.
func (t *ToyyibPay) Configured() bool {
	return t != nil && t.secretKey != "" && t.categoryCode != ""
}

// Provider identifies the gateway in health output and metrics.
func (t *ToyyibPay) Provider() string { return providerToyyibPay }

type createBillResponse struct {
	BillCode string `json:"BillCode"`
}

// CreateBill implements Gateway.
func (t *ToyyibPay) CreateBill(ctx context.Context, req BillRequest) (Bill, error) {
	if !t.Configured() {
		return Bill{}, fmt.Errorf("%w: credentials not configured", ErrGatewayUnavailable)
	}
	form := url.Values{
		"userSecretKey":           {t.secretKey},
		"categoryCode":            {t.categoryCode},
		"billName":                {BillName(req.OrderID)},
		"billDescription":         {BillDescription(req.OrderID)},
		"billPriceSetting":        {"1"},
		"billPayorInfo":           {"1"},
		"billAmount":              {strconv.FormatInt(req.Amount, 10)},
		"billReturnUrl":           {req.ReturnURL},
		"billCallbackUrl":         {req.CallbackURL},
		"billExternalReferenceNo": {req.OrderID},
		"billTo":                  {req.Customer.Name},
		"billEmail":               {req.Customer.Email},
		"billPhone":               {req.Customer.Phone},
		"billSplitPayment":        {"0"},
		"billSplitPaymentArgs":    {""},
		"billPaymentChannel":      {"0"},
		"billContentEmail":        {"Thank you for your purchase!"},
		"billChargeToCustomer":    {"1"},
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/index.php/api/createBill", strings.NewReader(form.Encode()))
	if err != nil {
		return Bill{}, err
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.http.Do(ctx, httpReq)
	if err != nil {
		obs.Inc(obs.GatewayBillTotal, providerToyyibPay, "error")
		return Bill{}, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		obs.Inc(obs.GatewayBillTotal, providerToyyibPay, "error")
		return Bill{}, fmt.Errorf("%w: read response: %v", ErrGatewayUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		obs.Inc(obs.GatewayBillTotal, providerToyyibPay, "rejected")
		return Bill{}, fmt.Errorf("%w: status %d", ErrGatewayUnavailable, resp.StatusCode)
	}
	var bills []createBillResponse
	if err := json.Unmarshal(body, &bills); err != nil || len(bills) == 0 || bills[0].BillCode == "" {
		obs.Inc(obs.GatewayBillTotal, providerToyyibPay, "rejected")
		return Bill{}, fmt.Errorf("%w: unexpected response %q", ErrGatewayUnavailable, truncate(string(body), 200))
	}
	obs.Inc(obs.GatewayBillTotal, providerToyyibPay, "ok")
	code := bills[0].BillCode
	return Bill{Code: code, RedirectURL: t.baseURL + "/" + code}, nil
}

type billTransaction struct {
	PaymentStatus string `json:"billpaymentStatus"`
	ExternalRef   string `json:"billExternalReferenceNo"`
}

// BillStatus implements BillChecker using getBillTransactions. Any successful
// transaction makes the bill paid. It is failed only when every attempt failed.
func (t *ToyyibPay) BillStatus(ctx context.Context, billCode, orderID string) (string, error) {
	if !t.Configured() {
		return "", fmt.Errorf("%w: credentials not configured", ErrGatewayUnavailable)
	}
	form := url.Values{"billCode": {billCode}}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/index.php/api/getBillTransactions", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.http.Do(ctx, httpReq)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return "", fmt.Errorf("%w: read response: %v", ErrGatewayUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: status %d", ErrGatewayUnavailable, resp.StatusCode)
	}
	var txns []billTransaction
	if err := json.Unmarshal(body, &txns); err != nil {
		return "", fmt.Errorf("%w: unexpected response %q", ErrGatewayUnavailable, truncate(string(body), 200))
	}
	failed := 0
	for _, txn := range txns {
		if orderID != "" && txn.ExternalRef != "" && txn.ExternalRef != orderID {
			return "", fmt.Errorf("%w: bill %s belongs to %s", ErrGatewayUnavailable, billCode, txn.ExternalRef)
		}
		switch strings.TrimSpace(txn.PaymentStatus) {
		case StatusSuccess:
			return StatusSuccess, nil
		case StatusFailed:
			failed++
		}
	}
	if len(txns) > 0 && failed == len(txns) {
		return StatusFailed, nil
	}
	return StatusPending, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
