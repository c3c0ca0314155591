package billing

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
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

const defaultStripeAPIBaseURL = "https://api.stripe.com/v1"

// stripeSignatureTolerance bounds how old a signed webhook may be before it
// is rejected as a possible replay.
const stripeSignatureTolerance = 5 * time.Minute

type StripeClient struct {
	APIKey     string
	APIBaseURL string

	HTTPClient *http.Client
}

func NewStripeClientFromEnv() *StripeClient {
	return &StripeClient{
		APIKey:     strings.TrimSpace(env.GetEnv("STRIPE_API_KEY", "")),
		APIBaseURL: strings.TrimSpace(env.GetEnv("STRIPE_API_BASE_URL", defaultStripeAPIBaseURL)),
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// VerifyStripeWebhookSignature checks the Stripe-Signature header against
// the raw body. The scheme is HMAC-SHA256 over "<timestamp>.<payload>" with
// the shared endpoint secret; the header carries "t=<ts>,v1=<hex>[,v1=...]".
// Verification runs before any parsing so forged payloads never reach the
// reconciler.
func VerifyStripeWebhookSignature(payload []byte, signatureHeader, webhookSecret string, now time.Time) bool {
	header := strings.TrimSpace(signatureHeader)
	secret := strings.TrimSpace(webhookSecret)
	if header == "" || secret == "" {
		return false
	}

	var timestamp int64
	var candidates [][]byte
	for _, part := range strings.Split(header, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			ts, err := strconv.ParseInt(kv[1], 10, 64)
			if err != nil {
				return false
			}
			timestamp = ts
		case "v1":
			sig, err := hex.DecodeString(strings.ToLower(kv[1]))
			if err != nil {
				continue
			}
			candidates = append(candidates, sig)
		}
	}
	if timestamp == 0 || len(candidates) == 0 {
		return false
	}

	age := now.Sub(time.Unix(timestamp, 0))
	if age > stripeSignatureTolerance || age < -stripeSignatureTolerance {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", timestamp)
	mac.Write(payload)
	expected := mac.Sum(nil)

	for _, sig := range candidates {
		if hmac.Equal(expected, sig) {
			return true
		}
	}
	return false
}

// stripeEvent is the envelope common to all Stripe webhook payloads.
type stripeEvent struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Created int64  `json:"created"`
	Data    struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

// ParseStripeEvent translates a verified Stripe webhook payload into a
// normalized update. Unhandled event types return (nil, type, nil) so the
// caller can acknowledge them without touching any state.
func ParseStripeEvent(payload []byte) (*ProviderObjectUpdate, string, error) {
	var ev stripeEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, "", fmt.Errorf("invalid stripe event payload: %w", err)
	}
	eventType := strings.TrimSpace(ev.Type)
	eventTime := time.Unix(ev.Created, 0)
	if ev.Created == 0 {
		eventTime = time.Now()
	}

	switch eventType {
	case "checkout.session.completed":
		var obj struct {
			ID           string `json:"id"`
			Customer     string `json:"customer"`
			Subscription string `json:"subscription"`
			AmountTotal  int64  `json:"amount_total"`
			Currency     string `json:"currency"`
		}
		if err := json.Unmarshal(ev.Data.Object, &obj); err != nil {
			return nil, eventType, fmt.Errorf("invalid checkout session object: %w", err)
		}
		if obj.ID == "" {
			return nil, eventType, errors.New("checkout session missing id")
		}
		return &ProviderObjectUpdate{
			Provider:        models.BillingProviderStripe,
			Kind:            ObjectKindPayment,
			ObjectID:        obj.ID,
			Status:          models.PaymentStatusPaid,
			AmountCents:     obj.AmountTotal,
			Currency:        strings.ToUpper(obj.Currency),
			CustomerRef:     obj.Customer,
			SubscriptionRef: obj.Subscription,
			EventTime:       eventTime,
			RawPayloadJSON:  string(payload),
		}, eventType, nil

	case "customer.subscription.created", "customer.subscription.updated", "customer.subscription.deleted":
		upd, err := parseStripeSubscriptionObject(ev.Data.Object)
		if err != nil {
			return nil, eventType, err
		}
		if eventType == "customer.subscription.deleted" {
			upd.Status = StatusDeleted
		}
		upd.EventTime = eventTime
		upd.RawPayloadJSON = string(payload)
		return upd, eventType, nil

	case "invoice.payment_succeeded", "invoice.payment_failed":
		var obj struct {
			ID           string `json:"id"`
			Customer     string `json:"customer"`
			Subscription string `json:"subscription"`
			AmountPaid   int64  `json:"amount_paid"`
			AmountDue    int64  `json:"amount_due"`
			Currency     string `json:"currency"`
		}
		if err := json.Unmarshal(ev.Data.Object, &obj); err != nil {
			return nil, eventType, fmt.Errorf("invalid invoice object: %w", err)
		}
		if obj.ID == "" {
			return nil, eventType, errors.New("invoice missing id")
		}
		status := models.PaymentStatusPaid
		amount := obj.AmountPaid
		if eventType == "invoice.payment_failed" {
			status = models.PaymentStatusFailed
			amount = obj.AmountDue
		}
		return &ProviderObjectUpdate{
			Provider:        models.BillingProviderStripe,
			Kind:            ObjectKindPayment,
			ObjectID:        obj.ID,
			Status:          status,
			AmountCents:     amount,
			Currency:        strings.ToUpper(obj.Currency),
			CustomerRef:     obj.Customer,
			SubscriptionRef: obj.Subscription,
			EventTime:       eventTime,
			RawPayloadJSON:  string(payload),
		}, eventType, nil

	default:
		return nil, eventType, nil
	}
}

func parseStripeSubscriptionObject(raw json.RawMessage) (*ProviderObjectUpdate, error) {
	var obj struct {
		ID               string `json:"id"`
		Customer         string `json:"customer"`
		Status           string `json:"status"`
		CurrentPeriodEnd int64  `json:"current_period_end"`
		Items            struct {
			Data []struct {
				Price struct {
					ID         string `json:"id"`
					Nickname   string `json:"nickname"`
					UnitAmount int64  `json:"unit_amount"`
					Currency   string `json:"currency"`
					Recurring  struct {
						Interval string `json:"interval"`
					} `json:"recurring"`
				} `json:"price"`
			} `json:"data"`
		} `json:"items"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, fmt.Errorf("invalid stripe subscription object: %w", err)
	}
	if obj.ID == "" {
		return nil, errors.New("stripe subscription missing id")
	}

	upd := &ProviderObjectUpdate{
		Provider:    models.BillingProviderStripe,
		Kind:        ObjectKindSubscription,
		ObjectID:    obj.ID,
		Status:      stripeSubscriptionStatus(obj.Status),
		CustomerRef: obj.Customer,
	}
	if obj.CurrentPeriodEnd > 0 {
		next := time.Unix(obj.CurrentPeriodEnd, 0)
		upd.NextPaymentDate = &next
	}
	if len(obj.Items.Data) > 0 {
		price := obj.Items.Data[0].Price
		upd.PlanRef = price.ID
		upd.PlanName = price.Nickname
		upd.AmountCents = price.UnitAmount
		upd.Currency = strings.ToUpper(price.Currency)
		upd.Interval = price.Recurring.Interval
	}
	return upd, nil
}

// stripeSubscriptionStatus maps Stripe's subscription vocabulary onto the
// normalized statuses the reconciler understands.
func stripeSubscriptionStatus(status string) string {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "active":
		return StatusActive
	case "trialing":
		return "trialing"
	case "past_due":
		return StatusPastDue
	case "unpaid":
		return StatusUnpaid
	case "canceled":
		return StatusCanceled
	case "incomplete":
		return StatusPending
	case "incomplete_expired":
		return StatusCanceled
	case "paused":
		return StatusPastDue
	default:
		return StatusPending
	}
}

// GetSubscription loads the authoritative subscription state from the
// Stripe API. Implements SubscriptionFetcher.
func (c *StripeClient) GetSubscription(ctx context.Context, subscriptionID string) (*ProviderObjectUpdate, error) {
	id := strings.TrimSpace(subscriptionID)
	if id == "" {
		return nil, errors.New("subscription id is required")
	}
	if strings.TrimSpace(c.APIKey) == "" {
		return nil, errors.New("STRIPE_API_KEY is not configured")
	}

	endpoint := strings.TrimRight(c.APIBaseURL, "/") + "/subscriptions/" + url.PathEscape(id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("stripe subscription request failed: status=%d", resp.StatusCode)
	}

	upd, err := parseStripeSubscriptionObject(body)
	if err != nil {
		return nil, err
	}
	upd.EventTime = time.Now()
	upd.RawPayloadJSON = string(body)
	return upd, nil
}

// FetchSubscription implements SubscriptionFetcher. Stripe subscriptions are
// addressable without the customer, so customerRef is unused.
func (c *StripeClient) FetchSubscription(ctx context.Context, subscriptionID, _ string) (*ProviderObjectUpdate, error) {
	return c.GetSubscription(ctx, subscriptionID)
}

// doForm posts a form-encoded request, which is what the Stripe write API
// expects.
func (c *StripeClient) doForm(ctx context.Context, path string, form url.Values, out any) error {
	if strings.TrimSpace(c.APIKey) == "" {
		return errors.New("STRIPE_API_KEY is not configured")
	}
	endpoint := strings.TrimRight(c.APIBaseURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("stripe request %s failed: status=%d", path, resp.StatusCode)
	}
	return json.Unmarshal(body, out)
}

// CreateCustomer registers a provider-side customer for a local user.
func (c *StripeClient) CreateCustomer(ctx context.Context, name, email string) (string, error) {
	form := url.Values{}
	form.Set("name", name)
	form.Set("email", email)

	var out struct {
		ID string `json:"id"`
	}
	if err := c.doForm(ctx, "/customers", form, &out); err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", errors.New("stripe customer response missing id")
	}
	return out.ID, nil
}

// CreateCheckoutSessionRequest describes a hosted checkout session for a
// subscription price.
type CreateCheckoutSessionRequest struct {
	CustomerID string
	PriceRef   string
	SuccessURL string
	CancelURL  string
	Metadata   map[string]string
}

// CreateCheckoutSession creates a subscription-mode checkout session and
// returns its id and hosted URL. The session id is what later arrives as the
// checkout.session.completed object id.
func (c *StripeClient) CreateCheckoutSession(ctx context.Context, in CreateCheckoutSessionRequest) (sessionID, checkoutURL string, err error) {
	if strings.TrimSpace(in.PriceRef) == "" {
		return "", "", errors.New("price ref is required")
	}

	form := url.Values{}
	form.Set("mode", "subscription")
	form.Set("line_items[0][price]", in.PriceRef)
	form.Set("line_items[0][quantity]", "1")
	form.Set("success_url", in.SuccessURL)
	form.Set("cancel_url", in.CancelURL)
	if in.CustomerID != "" {
		form.Set("customer", in.CustomerID)
	}
	for k, v := range in.Metadata {
		form.Set("metadata["+k+"]", v)
	}

	var out struct {
		ID  string `json:"id"`
		URL string `json:"url"`
	}
	if err := c.doForm(ctx, "/checkout/sessions", form, &out); err != nil {
		return "", "", err
	}
	if out.ID == "" {
		return "", "", errors.New("stripe checkout session response missing id")
	}
	return out.ID, out.URL, nil
}
