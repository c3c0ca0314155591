package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/FelixWeidner/OpsForge/app/models"
	"github.com/FelixWeidner/OpsForge/internal/pkg/env"
)

const defaultMollieAPIBaseURL = "https://api.mollie.com/v2"

// MollieClient talks to the Mollie API. Mollie webhooks carry nothing but an
// object id, so every notification requires an authenticated follow-up fetch
// before anything is trusted: the webhook is a trigger, never a data source.
type MollieClient struct {
	APIKey     string
	APIBaseURL string

	HTTPClient *http.Client
}

func NewMollieClientFromEnv() *MollieClient {
	return &MollieClient{
		APIKey:     strings.TrimSpace(env.GetEnv("MOLLIE_API_KEY", "")),
		APIBaseURL: strings.TrimSpace(env.GetEnv("MOLLIE_API_BASE_URL", defaultMollieAPIBaseURL)),
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

func (c *MollieClient) doGet(ctx context.Context, path string, out any) error {
	if strings.TrimSpace(c.APIKey) == "" {
		return errors.New("MOLLIE_API_KEY is not configured")
	}
	endpoint := strings.TrimRight(c.APIBaseURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("mollie request %s failed: status=%d", path, resp.StatusCode)
	}
	return json.Unmarshal(body, out)
}

type mollieAmount struct {
	Currency string `json:"currency"`
	Value    string `json:"value"`
}

type molliePayment struct {
	ID             string       `json:"id"`
	Status         string       `json:"status"`
	Amount         mollieAmount `json:"amount"`
	Description    string       `json:"description"`
	CustomerID     string       `json:"customerId"`
	SubscriptionID string       `json:"subscriptionId"`
	CreatedAt      string       `json:"createdAt"`
	PaidAt         string       `json:"paidAt"`
	ExpiredAt      string       `json:"expiredAt"`
	CanceledAt     string       `json:"canceledAt"`
	Links          struct {
		Checkout struct {
			Href string `json:"href"`
		} `json:"checkout"`
	} `json:"_links"`
}

// GetPayment fetches a payment by id and normalizes it.
func (c *MollieClient) GetPayment(ctx context.Context, paymentID string) (*ProviderObjectUpdate, error) {
	id := strings.TrimSpace(paymentID)
	if id == "" {
		return nil, errors.New("payment id is required")
	}

	var p molliePayment
	if err := c.doGet(ctx, "/payments/"+url.PathEscape(id), &p); err != nil {
		return nil, err
	}
	if p.ID == "" {
		return nil, errors.New("mollie payment response missing id")
	}

	raw, _ := json.Marshal(p)
	return &ProviderObjectUpdate{
		Provider:        models.BillingProviderMollie,
		Kind:            ObjectKindPayment,
		ObjectID:        p.ID,
		Status:          molliePaymentStatus(p.Status),
		AmountCents:     parseMollieAmount(p.Amount.Value),
		Currency:        strings.ToUpper(p.Amount.Currency),
		CustomerRef:     p.CustomerID,
		SubscriptionRef: p.SubscriptionID,
		EventTime:       mollieEventTime(p.PaidAt, p.ExpiredAt, p.CanceledAt, p.CreatedAt),
		RawPayloadJSON:  string(raw),
	}, nil
}

type mollieSubscription struct {
	ID              string       `json:"id"`
	Status          string       `json:"status"`
	Amount          mollieAmount `json:"amount"`
	Interval        string       `json:"interval"`
	Description     string       `json:"description"`
	CustomerID      string       `json:"customerId"`
	Metadata        struct {
		Plan string `json:"plan"`
	} `json:"metadata"`
	StartDate       string `json:"startDate"`
	NextPaymentDate string `json:"nextPaymentDate"`
	CanceledAt      string `json:"canceledAt"`
	CreatedAt       string `json:"createdAt"`
}

// GetSubscription fetches a subscription; Mollie namespaces subscriptions
// under their customer.
func (c *MollieClient) GetSubscription(ctx context.Context, customerID, subscriptionID string) (*ProviderObjectUpdate, error) {
	cid := strings.TrimSpace(customerID)
	sid := strings.TrimSpace(subscriptionID)
	if cid == "" || sid == "" {
		return nil, errors.New("customer id and subscription id are required")
	}

	var sub mollieSubscription
	path := "/customers/" + url.PathEscape(cid) + "/subscriptions/" + url.PathEscape(sid)
	if err := c.doGet(ctx, path, &sub); err != nil {
		return nil, err
	}
	if sub.ID == "" {
		return nil, errors.New("mollie subscription response missing id")
	}
	if sub.CustomerID == "" {
		sub.CustomerID = cid
	}

	raw, _ := json.Marshal(sub)
	upd := &ProviderObjectUpdate{
		Provider:       models.BillingProviderMollie,
		Kind:           ObjectKindSubscription,
		ObjectID:       sub.ID,
		Status:         mollieSubscriptionStatus(sub.Status),
		AmountCents:    parseMollieAmount(sub.Amount.Value),
		Currency:       strings.ToUpper(sub.Amount.Currency),
		CustomerRef:    sub.CustomerID,
		PlanRef:        sub.Metadata.Plan,
		PlanName:       sub.Description,
		Interval:       mollieInterval(sub.Interval),
		EventTime:      time.Now(),
		RawPayloadJSON: string(raw),
	}
	if next := parseMollieDate(sub.NextPaymentDate); next != nil {
		upd.NextPaymentDate = next
	}
	return upd, nil
}

// FetchSubscription implements SubscriptionFetcher.
func (c *MollieClient) FetchSubscription(ctx context.Context, subscriptionID, customerRef string) (*ProviderObjectUpdate, error) {
	return c.GetSubscription(ctx, customerRef, subscriptionID)
}

// CreateCustomer registers a provider-side customer for a local user.
func (c *MollieClient) CreateCustomer(ctx context.Context, name, email string) (string, error) {
	if strings.TrimSpace(c.APIKey) == "" {
		return "", errors.New("MOLLIE_API_KEY is not configured")
	}

	payload, _ := json.Marshal(map[string]string{"name": name, "email": email})
	endpoint := strings.TrimRight(c.APIBaseURL, "/") + "/customers"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(string(payload)))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("mollie customer create failed: status=%d", resp.StatusCode)
	}

	var out struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", errors.New("mollie customer response missing id")
	}
	return out.ID, nil
}

// CreatePaymentRequest describes a hosted-checkout payment creation.
type CreatePaymentRequest struct {
	AmountCents int64
	Currency    string
	Description string
	CustomerID  string
	RedirectURL string
	WebhookURL  string
	Recurring   bool
	Metadata    map[string]string
}

// CreatePaymentResult carries the provider payment id and the hosted
// checkout URL the caller is redirected to.
type CreatePaymentResult struct {
	PaymentID   string
	CheckoutURL string
	Status      string
}

// CreatePayment creates a payment and returns the hosted checkout link.
func (c *MollieClient) CreatePayment(ctx context.Context, in CreatePaymentRequest) (*CreatePaymentResult, error) {
	if strings.TrimSpace(c.APIKey) == "" {
		return nil, errors.New("MOLLIE_API_KEY is not configured")
	}
	if in.AmountCents <= 0 {
		return nil, errors.New("amount must be positive")
	}

	body := map[string]any{
		"amount": map[string]string{
			"currency": strings.ToUpper(in.Currency),
			"value":    formatMollieAmount(in.AmountCents),
		},
		"description": in.Description,
		"redirectUrl": in.RedirectURL,
	}
	if in.WebhookURL != "" {
		body["webhookUrl"] = in.WebhookURL
	}
	if in.CustomerID != "" {
		body["customerId"] = in.CustomerID
	}
	if in.Recurring {
		// First payment of a mandate-backed subscription.
		body["sequenceType"] = "first"
	}
	if len(in.Metadata) > 0 {
		body["metadata"] = in.Metadata
	}

	payload, _ := json.Marshal(body)
	endpoint := strings.TrimRight(c.APIBaseURL, "/") + "/payments"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(string(payload)))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("mollie payment create failed: status=%d", resp.StatusCode)
	}

	var p molliePayment
	if err := json.Unmarshal(respBody, &p); err != nil {
		return nil, err
	}
	if p.ID == "" {
		return nil, errors.New("mollie payment response missing id")
	}
	return &CreatePaymentResult{
		PaymentID:   p.ID,
		CheckoutURL: p.Links.Checkout.Href,
		Status:      molliePaymentStatus(p.Status),
	}, nil
}

// molliePaymentStatus passes Mollie's payment vocabulary through; it already
// matches the normalized set. Authorized payments count as paid.
func molliePaymentStatus(status string) string {
	s := strings.ToLower(strings.TrimSpace(status))
	switch s {
	case models.PaymentStatusOpen, models.PaymentStatusPending, models.PaymentStatusPaid,
		models.PaymentStatusFailed, models.PaymentStatusExpired, models.PaymentStatusCanceled:
		return s
	case "authorized":
		return models.PaymentStatusPaid
	default:
		return models.PaymentStatusOpen
	}
}

func mollieSubscriptionStatus(status string) string {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "active":
		return StatusActive
	case "pending":
		return StatusPending
	case "suspended":
		return StatusUnpaid
	case "canceled":
		return StatusCanceled
	case "completed":
		return StatusDeleted
	default:
		return StatusPending
	}
}

// mollieInterval maps interval strings like "1 month" / "12 months".
func mollieInterval(interval string) string {
	i := strings.ToLower(strings.TrimSpace(interval))
	switch {
	case strings.Contains(i, "year") || i == "12 months":
		return models.BillingIntervalYear
	case strings.Contains(i, "month"):
		return models.BillingIntervalMonth
	default:
		return models.BillingIntervalUnknown
	}
}

// parseMollieAmount converts a decimal string like "12.50" to cents.
func parseMollieAmount(value string) int64 {
	v := strings.TrimSpace(value)
	if v == "" {
		return 0
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0
	}
	return int64(f*100 + 0.5)
}

// formatMollieAmount renders cents as the decimal string Mollie expects.
func formatMollieAmount(cents int64) string {
	return fmt.Sprintf("%d.%02d", cents/100, cents%100)
}

func mollieEventTime(candidates ...string) time.Time {
	for _, c := range candidates {
		if t := parseMollieTime(c); t != nil {
			return *t
		}
	}
	return time.Now()
}

func parseMollieTime(value string) *time.Time {
	v := strings.TrimSpace(value)
	if v == "" {
		return nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return &t
	}
	return nil
}

func parseMollieDate(value string) *time.Time {
	v := strings.TrimSpace(value)
	if v == "" {
		return nil
	}
	if t, err := time.Parse("2006-01-02", v); err == nil {
		return &t
	}
	return parseMollieTime(v)
}
