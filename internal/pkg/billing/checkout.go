package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/FelixWeidner/OpsForge/app/models"
	"github.com/FelixWeidner/OpsForge/internal/pkg/apperror"
	"github.com/FelixWeidner/OpsForge/internal/pkg/entitlements"
	"github.com/FelixWeidner/OpsForge/internal/pkg/env"
)

// userDirectory is the slice of the user store checkout needs: the name and
// email to register with the payment provider.
type userDirectory interface {
	GetByID(id uint) (*models.User, error)
}

// CheckoutService initiates hosted checkouts. It creates the provider-side
// customer and payment objects and records the local open payment row that
// the webhook reconciler later transitions.
type CheckoutService struct {
	repo   Repository
	users  userDirectory
	mollie *MollieClient
	stripe *StripeClient

	successURL string
	cancelURL  string
	webhookURL func(provider string) string
}

func NewCheckoutService(repo Repository, users userDirectory, mollie *MollieClient, stripe *StripeClient) *CheckoutService {
	base := strings.TrimRight(env.GetEnv("PUBLIC_BASE_URL", "http://localhost:4000"), "/")
	return &CheckoutService{
		repo:       repo,
		users:      users,
		mollie:     mollie,
		stripe:     stripe,
		successURL: env.GetEnv("CHECKOUT_SUCCESS_URL", base+"/checkout/success"),
		cancelURL:  env.GetEnv("CHECKOUT_CANCEL_URL", base+"/checkout/cancel"),
		webhookURL: func(provider string) string {
			return base + "/webhooks/" + provider
		},
	}
}

// StartCheckout validates the request, links the provider customer and
// returns the redirect URL for the hosted payment page.
func (s *CheckoutService) StartCheckout(ctx context.Context, in CheckoutInput) (*CheckoutResult, error) {
	if in.UserID == 0 {
		return nil, apperror.New(apperror.KindValidation, "user_id is required")
	}

	provider := strings.ToLower(strings.TrimSpace(in.Provider))
	switch provider {
	case models.BillingProviderStripe, models.BillingProviderMollie:
	default:
		return nil, apperror.New(apperror.KindValidation, fmt.Sprintf("unknown payment provider %q", in.Provider))
	}

	plan := normalizePlan(in.Plan)
	if plan == string(entitlements.PlanFree) {
		return nil, apperror.New(apperror.KindValidation, "plan is not purchasable")
	}
	interval := normalizeInterval(in.Interval)
	if interval == models.BillingIntervalUnknown {
		interval = models.BillingIntervalMonth
	}

	mapping, err := s.repo.FindActivePlanMappingForPlan(provider, plan, interval)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperror.New(apperror.KindValidation, fmt.Sprintf("plan %q is not offered via %s (%s)", plan, provider, interval))
	} else if err != nil {
		return nil, apperror.Wrap(apperror.KindDependency, "plan mapping lookup failed", err)
	}

	user, err := s.users.GetByID(in.UserID)
	if err != nil {
		return nil, apperror.Wrap(apperror.KindDependency, "user lookup failed", err)
	}

	customerID, err := s.ensureCustomer(ctx, provider, user)
	if err != nil {
		return nil, err
	}

	description := fmt.Sprintf("OpsForge %s (%s)", plan, interval)
	switch provider {
	case models.BillingProviderMollie:
		return s.startMollieCheckout(ctx, user, customerID, mapping, description)
	default:
		return s.startStripeCheckout(ctx, user, customerID, mapping, description)
	}
}

// ensureCustomer returns the stored provider customer id for the user,
// creating the provider object and the local link on first checkout. The
// link insert is first-write-wins, so a concurrent checkout for the same
// user ends up with one canonical customer id.
func (s *CheckoutService) ensureCustomer(ctx context.Context, provider string, user *models.User) (string, error) {
	if link, err := s.repo.GetCustomerByUserID(user.ID, provider); err == nil {
		return link.ProviderCustomerID, nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", apperror.Wrap(apperror.KindDependency, "customer link lookup failed", err)
	}

	var customerID string
	var err error
	switch provider {
	case models.BillingProviderMollie:
		customerID, err = s.mollie.CreateCustomer(ctx, user.Name, user.Email)
	default:
		customerID, err = s.stripe.CreateCustomer(ctx, user.Name, user.Email)
	}
	if err != nil {
		return "", apperror.Wrap(apperror.KindDependency, "provider customer create failed", err)
	}

	_, stored, err := s.repo.CreateCustomerIfAbsent(&models.BillingCustomer{
		UserID:             user.ID,
		Provider:           provider,
		ProviderCustomerID: customerID,
	})
	if err != nil {
		return "", apperror.Wrap(apperror.KindDependency, "customer link create failed", err)
	}
	return stored.ProviderCustomerID, nil
}

func (s *CheckoutService) startMollieCheckout(ctx context.Context, user *models.User, customerID string, mapping *models.PlanMapping, description string) (*CheckoutResult, error) {
	created, err := s.mollie.CreatePayment(ctx, CreatePaymentRequest{
		AmountCents: mapping.AmountCents,
		Currency:    mapping.Currency,
		Description: description,
		CustomerID:  customerID,
		RedirectURL: s.successURL,
		WebhookURL:  s.webhookURL(models.BillingProviderMollie),
		Recurring:   true,
		Metadata: map[string]string{
			"plan":     mapping.InternalPlan,
			"interval": mapping.BillingInterval,
		},
	})
	if err != nil {
		return nil, apperror.Wrap(apperror.KindDependency, "mollie payment create failed", err)
	}

	payment := &models.Payment{
		Provider:           models.BillingProviderMollie,
		ProviderPaymentID:  created.PaymentID,
		UserID:             user.ID,
		ProviderCustomerID: customerID,
		AmountCents:        mapping.AmountCents,
		Currency:           mapping.Currency,
		Status:             models.PaymentStatusOpen,
		Description:        description,
	}
	if err := s.repo.CreatePayment(payment); err != nil {
		return nil, apperror.Wrap(apperror.KindDependency, "payment record failed", err)
	}

	return &CheckoutResult{
		Provider:          models.BillingProviderMollie,
		CheckoutURL:       created.CheckoutURL,
		ProviderPaymentID: created.PaymentID,
		PaymentID:         payment.ID,
	}, nil
}

func (s *CheckoutService) startStripeCheckout(ctx context.Context, user *models.User, customerID string, mapping *models.PlanMapping, description string) (*CheckoutResult, error) {
	sessionID, checkoutURL, err := s.stripe.CreateCheckoutSession(ctx, CreateCheckoutSessionRequest{
		CustomerID: customerID,
		PriceRef:   mapping.ProviderPlanRef,
		SuccessURL: s.successURL,
		CancelURL:  s.cancelURL,
		Metadata: map[string]string{
			"plan":     mapping.InternalPlan,
			"interval": mapping.BillingInterval,
		},
	})
	if err != nil {
		return nil, apperror.Wrap(apperror.KindDependency, "stripe checkout session failed", err)
	}

	// The session id is the object id of the later
	// checkout.session.completed event, so the webhook finds this row.
	payment := &models.Payment{
		Provider:           models.BillingProviderStripe,
		ProviderPaymentID:  sessionID,
		UserID:             user.ID,
		ProviderCustomerID: customerID,
		AmountCents:        mapping.AmountCents,
		Currency:           mapping.Currency,
		Status:             models.PaymentStatusOpen,
		Description:        description,
	}
	if err := s.repo.CreatePayment(payment); err != nil {
		return nil, apperror.Wrap(apperror.KindDependency, "payment record failed", err)
	}

	return &CheckoutResult{
		Provider:          models.BillingProviderStripe,
		CheckoutURL:       checkoutURL,
		ProviderPaymentID: sessionID,
		PaymentID:         payment.ID,
	}, nil
}
