// Package paypal implements the payment-provider port against the PayPal
// REST API.
package paypal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/subpay-io/subpay/internal/billing/domain/provider"
	"github.com/subpay-io/subpay/internal/platform/logger"
)

const (
	sandboxBaseURL = "https://api.sandbox.paypal.com"
	liveBaseURL    = "https://api-m.paypal.com"

	requestTimeout = 30 * time.Second
	// tokens are refreshed slightly early to avoid a request racing the
	// expiry
	tokenSlack = 60 * time.Second
)

// Client talks to one PayPal app (one processor credential set).
type Client struct {
	clientID string
	secret   string
	baseURL  string

	httpClient *http.Client
	logger     logger.Logger

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// New creates a PayPal client for the given credentials.
func New(clientID, secret string, sandbox bool, log logger.Logger) *Client {
	base := liveBaseURL
	if sandbox {
		base = sandboxBaseURL
	}
	return &Client{
		clientID:   clientID,
		secret:     secret,
		baseURL:    base,
		httpClient: &http.Client{Timeout: requestTimeout},
		logger:     log,
	}
}

func (c *Client) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && time.Now().Before(c.tokenExpiry) {
		return c.accessToken, nil
	}

	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/oauth2/token", bytes.NewBufferString(form.Encode()))
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(c.clientID, c.secret)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("paypal token request: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return "", &provider.Error{StatusCode: resp.StatusCode, Message: string(body)}
	}

	var payload struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", fmt.Errorf("paypal token decode: %w", err)
	}

	c.accessToken = payload.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(payload.ExpiresIn)*time.Second - tokenSlack)
	return c.accessToken, nil
}

// do issues an authenticated JSON request and decodes the response into
// out when it is non-nil. Non-2xx responses come back as *provider.Error.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out interface{}) error {
	token, err := c.token(ctx)
	if err != nil {
		return err
	}

	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("paypal %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &provider.Error{StatusCode: resp.StatusCode, Message: string(raw)}
	}

	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("paypal decode %s: %w", path, err)
		}
	}
	return nil
}

type link struct {
	Href string `json:"href"`
	Rel  string `json:"rel"`
}

func approvalLink(links []link) string {
	for _, l := range links {
		if l.Rel == "approve" || l.Rel == "approval_url" {
			return l.Href
		}
	}
	if len(links) > 0 {
		return links[0].Href
	}
	return ""
}

// GenerateCheckout creates a one-time order carrying the correlation id
// as the custom id and returns the buyer approval link.
func (c *Client) GenerateCheckout(ctx context.Context, correlationID string, amount decimal.Decimal, currency, returnURL, cancelURL string) (*provider.PaymentLink, error) {
	in := map[string]interface{}{
		"intent": "CAPTURE",
		"purchase_units": []map[string]interface{}{
			{
				"custom_id": correlationID,
				"amount": map[string]string{
					"currency_code": currency,
					"value":         amount.StringFixed(2),
				},
			},
		},
		"application_context": map[string]string{
			"return_url": returnURL,
			"cancel_url": cancelURL,
		},
	}

	var out struct {
		ID    string `json:"id"`
		Links []link `json:"links"`
	}
	if err := c.do(ctx, http.MethodPost, "/v2/checkout/orders", nil, in, &out); err != nil {
		return nil, err
	}
	return &provider.PaymentLink{ID: out.ID, URL: approvalLink(out.Links)}, nil
}

// GenerateSubscription creates a billing subscription against a remote
// plan and returns the buyer approval link. A nil startTime lets the
// subscription begin at approval.
func (c *Client) GenerateSubscription(ctx context.Context, correlationID, remotePlanID, returnURL, cancelURL string, startTime *time.Time) (*provider.PaymentLink, error) {
	in := map[string]interface{}{
		"plan_id":   remotePlanID,
		"custom_id": correlationID,
		"application_context": map[string]string{
			"return_url": returnURL,
			"cancel_url": cancelURL,
		},
	}
	if startTime != nil {
		in["start_time"] = startTime.UTC().Format(time.RFC3339)
	}

	var out struct {
		ID    string `json:"id"`
		Links []link `json:"links"`
	}
	if err := c.do(ctx, http.MethodPost, "/v1/billing/subscriptions", nil, in, &out); err != nil {
		return nil, err
	}
	return &provider.PaymentLink{ID: out.ID, URL: approvalLink(out.Links)}, nil
}

// ChangeSubscription revises the remote subscription onto a new plan and
// returns the approval link for the price change.
func (c *Client) ChangeSubscription(ctx context.Context, externalID, newRemotePlanID, returnURL, cancelURL string) (*provider.PaymentLink, error) {
	in := map[string]interface{}{
		"plan_id": newRemotePlanID,
		"application_context": map[string]string{
			"return_url": returnURL,
			"cancel_url": cancelURL,
		},
	}

	var out struct {
		PlanID string `json:"plan_id"`
		Links  []link `json:"links"`
	}
	path := fmt.Sprintf("/v1/billing/subscriptions/%s/revise", externalID)
	if err := c.do(ctx, http.MethodPost, path, nil, in, &out); err != nil {
		return nil, err
	}
	return &provider.PaymentLink{ID: externalID, URL: approvalLink(out.Links)}, nil
}

// Activate resumes a suspended remote subscription.
func (c *Client) Activate(ctx context.Context, externalID, reason string) error {
	path := fmt.Sprintf("/v1/billing/subscriptions/%s/activate", externalID)
	return c.do(ctx, http.MethodPost, path, nil, map[string]string{"reason": reason}, nil)
}

// Deactivate suspends or cancels a remote subscription.
func (c *Client) Deactivate(ctx context.Context, externalID, reason string, suspend bool) error {
	action := "cancel"
	if suspend {
		action = "suspend"
	}
	path := fmt.Sprintf("/v1/billing/subscriptions/%s/%s", externalID, action)
	return c.do(ctx, http.MethodPost, path, nil, map[string]string{"reason": reason}, nil)
}

// ApproveOrder captures an order the buyer already approved.
func (c *Client) ApproveOrder(ctx context.Context, externalID string) error {
	path := fmt.Sprintf("/v2/checkout/orders/%s/capture", externalID)
	return c.do(ctx, http.MethodPost, path, nil, struct{}{}, nil)
}

// Refund refunds a captured payment in full.
func (c *Client) Refund(ctx context.Context, externalPaymentID string) error {
	path := fmt.Sprintf("/v2/payments/captures/%s/refund", externalPaymentID)
	return c.do(ctx, http.MethodPost, path, nil, struct{}{}, nil)
}

// FetchStatus reads the provider's current view of a subscription.
func (c *Client) FetchStatus(ctx context.Context, externalID string) (*provider.StatusSnapshot, error) {
	var out struct {
		Status      string `json:"status"`
		PlanID      string `json:"plan_id"`
		BillingInfo struct {
			NextBillingTime *time.Time `json:"next_billing_time"`
		} `json:"billing_info"`
	}
	path := fmt.Sprintf("/v1/billing/subscriptions/%s", externalID)
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &out); err != nil {
		return nil, err
	}
	return &provider.StatusSnapshot{
		Status:        out.Status,
		PlanRemoteID:  out.PlanID,
		NextBillingAt: out.BillingInfo.NextBillingTime,
	}, nil
}

// VerifyWebhookSignature posts the delivery back to PayPal's verification
// endpoint with the forwarded transmission headers.
func (c *Client) VerifyWebhookSignature(ctx context.Context, headers provider.WebhookHeaders, endpointSecret string, rawPayload []byte) (bool, error) {
	in := map[string]interface{}{
		"auth_algo":         headers.AuthAlgo,
		"cert_url":          headers.CertURL,
		"transmission_id":   headers.TransmissionID,
		"transmission_sig":  headers.TransmissionSig,
		"transmission_time": headers.TransmissionTime,
		"webhook_id":        endpointSecret,
		"webhook_event":     json.RawMessage(rawPayload),
	}

	var out struct {
		VerificationStatus string `json:"verification_status"`
	}
	if err := c.do(ctx, http.MethodPost, "/v1/notifications/verify-webhook-signature", nil, in, &out); err != nil {
		return false, err
	}
	return out.VerificationStatus == "SUCCESS", nil
}

// ListProducts pages through the catalog products.
func (c *Client) ListProducts(ctx context.Context) ([]provider.RemoteProduct, error) {
	var products []provider.RemoteProduct
	for page := 1; ; page++ {
		q := url.Values{
			"page_size":      {"10"},
			"page":           {strconv.Itoa(page)},
			"total_required": {"true"},
		}
		var out struct {
			Products []struct {
				ID   string `json:"id"`
				Name string `json:"name"`
			} `json:"products"`
			TotalPages int `json:"total_pages"`
		}
		if err := c.do(ctx, http.MethodGet, "/v1/catalogs/products", q, nil, &out); err != nil {
			return nil, err
		}
		for _, p := range out.Products {
			products = append(products, provider.RemoteProduct{ID: p.ID, Name: p.Name})
		}
		if len(out.Products) == 0 || page >= out.TotalPages {
			break
		}
	}
	return products, nil
}

// CreateProduct registers a digital product in the provider catalog.
func (c *Client) CreateProduct(ctx context.Context, id, name string) error {
	in := map[string]string{
		"id":   id,
		"name": name,
		"type": "DIGITAL",
	}
	return c.do(ctx, http.MethodPost, "/v1/catalogs/products", nil, in, nil)
}

// ListPlans pages through the billing plans of a product.
func (c *Client) ListPlans(ctx context.Context, productID string) ([]provider.RemotePlan, error) {
	var plans []provider.RemotePlan
	for page := 1; ; page++ {
		q := url.Values{
			"product_id":     {productID},
			"page_size":      {"10"},
			"page":           {strconv.Itoa(page)},
			"total_required": {"true"},
		}
		var out struct {
			Plans []struct {
				ID     string `json:"id"`
				Name   string `json:"name"`
				Status string `json:"status"`
			} `json:"plans"`
			TotalPages int `json:"total_pages"`
		}
		if err := c.do(ctx, http.MethodGet, "/v1/billing/plans", q, nil, &out); err != nil {
			return nil, err
		}
		for _, p := range out.Plans {
			plans = append(plans, provider.RemotePlan{ID: p.ID, Name: p.Name, Status: p.Status})
		}
		if len(out.Plans) == 0 || page >= out.TotalPages {
			break
		}
	}
	return plans, nil
}

// CreatePlan creates an active recurring billing plan and returns its
// remote id.
func (c *Client) CreatePlan(ctx context.Context, productID, name, description, intervalUnit string, intervalCount int, price, currency string) (string, error) {
	in := map[string]interface{}{
		"product_id":  productID,
		"name":        name,
		"description": description,
		"status":      "ACTIVE",
		"billing_cycles": []map[string]interface{}{
			{
				"frequency": map[string]interface{}{
					"interval_unit":  intervalUnit,
					"interval_count": intervalCount,
				},
				"tenure_type":  "REGULAR",
				"sequence":     1,
				"total_cycles": 0,
				"pricing_scheme": map[string]interface{}{
					"fixed_price": map[string]string{
						"value":         price,
						"currency_code": currency,
					},
				},
			},
		},
		"payment_preferences": map[string]interface{}{
			"auto_bill_outstanding":     true,
			"setup_fee_failure_action":  "CONTINUE",
			"payment_failure_threshold": 3,
		},
	}

	var out struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "/v1/billing/plans", nil, in, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

// UpdatePlan patches the remote plan's name and description.
func (c *Client) UpdatePlan(ctx context.Context, planID, name, description string) error {
	in := []map[string]interface{}{
		{"op": "replace", "path": "/name", "value": name},
		{"op": "replace", "path": "/description", "value": description},
	}
	path := fmt.Sprintf("/v1/billing/plans/%s", planID)
	return c.do(ctx, http.MethodPatch, path, nil, in, nil)
}

// UpdatePlanPricing replaces the remote plan's fixed price.
func (c *Client) UpdatePlanPricing(ctx context.Context, planID, price, currency string) error {
	in := map[string]interface{}{
		"pricing_schemes": []map[string]interface{}{
			{
				"billing_cycle_sequence": 1,
				"pricing_scheme": map[string]interface{}{
					"fixed_price": map[string]string{
						"value":         price,
						"currency_code": currency,
					},
				},
			},
		},
	}
	path := fmt.Sprintf("/v1/billing/plans/%s/update-pricing-schemes", planID)
	return c.do(ctx, http.MethodPost, path, nil, in, nil)
}
