package billing

import (
	"context"
	"fmt"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/FelixWeidner/OpsForge/app/models"
)

// fakeRepo is an in-memory Repository with the same transition guards as the
// GORM implementation: event-time ordering and terminal payment states.
type fakeRepo struct {
	mappings     []models.PlanMapping
	customers    []models.BillingCustomer
	payments     map[string]*models.Payment
	subs         map[string]*models.Subscription
	entitlements map[uint]*models.Entitlement
	events       map[string]*models.WebhookEvent
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		payments:     make(map[string]*models.Payment),
		subs:         make(map[string]*models.Subscription),
		entitlements: make(map[uint]*models.Entitlement),
		events:       make(map[string]*models.WebhookEvent),
	}
}

func objKey(provider, id string) string { return provider + "|" + id }

func (f *fakeRepo) FindActivePlanMapping(provider, ref, interval string) (*models.PlanMapping, error) {
	for i := range f.mappings {
		m := &f.mappings[i]
		if m.Provider == provider && m.ProviderPlanRef == ref && m.BillingInterval == interval && m.IsActive {
			return m, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeRepo) FindActivePlanMappingForPlan(provider, plan, interval string) (*models.PlanMapping, error) {
	for i := range f.mappings {
		m := &f.mappings[i]
		if m.Provider == provider && m.InternalPlan == plan && m.BillingInterval == interval && m.IsActive {
			return m, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeRepo) CreateCustomerIfAbsent(link *models.BillingCustomer) (bool, *models.BillingCustomer, error) {
	for i := range f.customers {
		c := &f.customers[i]
		if c.Provider == link.Provider && c.ProviderCustomerID == link.ProviderCustomerID {
			return false, c, nil
		}
	}
	f.customers = append(f.customers, *link)
	return true, &f.customers[len(f.customers)-1], nil
}

func (f *fakeRepo) GetCustomerByProviderID(provider, providerCustomerID string) (*models.BillingCustomer, error) {
	for i := range f.customers {
		c := &f.customers[i]
		if c.Provider == provider && c.ProviderCustomerID == providerCustomerID {
			return c, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeRepo) GetCustomerByUserID(userID uint, provider string) (*models.BillingCustomer, error) {
	for i := range f.customers {
		c := &f.customers[i]
		if c.Provider == provider && c.UserID == userID {
			return c, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeRepo) CreatePayment(p *models.Payment) error {
	p.ID = uint(len(f.payments) + 1)
	f.payments[objKey(p.Provider, p.ProviderPaymentID)] = p
	return nil
}

func (f *fakeRepo) GetPaymentByProviderID(provider, id string) (*models.Payment, error) {
	if p, ok := f.payments[objKey(provider, id)]; ok {
		return p, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeRepo) ApplyPaymentStatus(provider, id, status string, at time.Time) (bool, *models.Payment, error) {
	p, ok := f.payments[objKey(provider, id)]
	if !ok {
		return false, nil, gorm.ErrRecordNotFound
	}
	if p.Status == status || p.IsFinal() {
		return false, p, nil
	}
	p.Status = status
	switch status {
	case models.PaymentStatusPaid:
		p.PaidAt = &at
	case models.PaymentStatusFailed:
		p.FailedAt = &at
	}
	return true, p, nil
}

func (f *fakeRepo) ApplySubscription(sub *models.Subscription, change EntitlementChange) (bool, error) {
	key := objKey(sub.Provider, sub.ProviderSubscriptionID)
	if existing, ok := f.subs[key]; ok {
		if existing.EventTime.After(sub.EventTime) {
			return false, nil
		}
		sub.ID = existing.ID
	} else {
		sub.ID = uint(len(f.subs) + 1)
	}
	cp := *sub
	f.subs[key] = &cp
	return true, f.applyEntitlement(sub.UserID, change)
}

func (f *fakeRepo) GetSubscriptionByProviderID(provider, id string) (*models.Subscription, error) {
	if sub, ok := f.subs[objKey(provider, id)]; ok {
		return sub, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeRepo) ListSubscriptionsByUser(userID uint) ([]models.Subscription, error) {
	var out []models.Subscription
	for _, sub := range f.subs {
		if sub.UserID == userID {
			out = append(out, *sub)
		}
	}
	return out, nil
}

func (f *fakeRepo) ApplyEntitlement(userID uint, change EntitlementChange) (bool, error) {
	return true, f.applyEntitlement(userID, change)
}

func (f *fakeRepo) applyEntitlement(userID uint, change EntitlementChange) error {
	if change.Status == "" {
		return nil
	}
	ent, ok := f.entitlements[userID]
	if !ok {
		ent = &models.Entitlement{UserID: userID, Plan: string(defaultPlan), Status: models.EntitlementStatusActive}
		f.entitlements[userID] = ent
	}
	if ent.EventTime.After(change.EventTime) {
		return nil
	}
	ent.Status = change.Status
	ent.EventTime = change.EventTime
	if !change.KeepPlan {
		ent.Plan = normalizePlan(change.Plan)
	}
	return nil
}

func (f *fakeRepo) GetEntitlement(userID uint) (*models.Entitlement, error) {
	if ent, ok := f.entitlements[userID]; ok {
		return ent, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeRepo) CreateWebhookEventIfNotExists(event *models.WebhookEvent) (bool, *models.WebhookEvent, error) {
	key := fmt.Sprintf("%s|%s|%s|%d", event.Provider, event.ObjectID, event.EventType, event.ReceivedAt.Unix())
	if stored, ok := f.events[key]; ok {
		return false, stored, nil
	}
	cp := *event
	f.events[key] = &cp
	return true, &cp, nil
}

func (f *fakeRepo) MarkObjectProcessed(provider, objectID, processingError string) error {
	for _, ev := range f.events {
		if ev.Provider == provider && ev.ObjectID == objectID {
			ev.Processed = processingError == ""
			ev.ProcessingError = processingError
		}
	}
	return nil
}

func (f *fakeRepo) IsObjectProcessed(provider, objectID string) (bool, error) {
	for _, ev := range f.events {
		if ev.Provider == provider && ev.ObjectID == objectID && ev.Processed {
			return true, nil
		}
	}
	return false, nil
}

// fakeFetcher returns a canned subscription update.
type fakeFetcher struct {
	upd   *ProviderObjectUpdate
	calls int
}

func (f *fakeFetcher) FetchSubscription(_ context.Context, _, _ string) (*ProviderObjectUpdate, error) {
	f.calls++
	cp := *f.upd
	return &cp, nil
}

func seedProMapping(repo *fakeRepo) {
	repo.mappings = append(repo.mappings, models.PlanMapping{
		Provider:        models.BillingProviderStripe,
		ProviderPlanRef: "price_pro_month",
		InternalPlan:    "pro",
		BillingInterval: "month",
		AmountCents:     900,
		Currency:        "EUR",
		IsActive:        true,
	})
}

func TestApplyUpdate_PaidPaymentActivatesSubscription(t *testing.T) {
	repo := newFakeRepo()
	seedProMapping(repo)
	repo.customers = append(repo.customers, models.BillingCustomer{
		UserID: 7, Provider: models.BillingProviderStripe, ProviderCustomerID: "cus_9",
	})
	repo.payments[objKey(models.BillingProviderStripe, "cs_1")] = &models.Payment{
		ID: 1, Provider: models.BillingProviderStripe, ProviderPaymentID: "cs_1",
		UserID: 7, ProviderCustomerID: "cus_9", Status: models.PaymentStatusOpen,
	}

	svc := NewService(repo)
	fetcher := &fakeFetcher{upd: &ProviderObjectUpdate{
		Provider: models.BillingProviderStripe, Kind: ObjectKindSubscription,
		ObjectID: "sub_42", Status: StatusActive, CustomerRef: "cus_9",
		PlanRef: "price_pro_month", Interval: "month", EventTime: time.Now(),
	}}
	svc.RegisterFetcher(models.BillingProviderStripe, fetcher)

	err := svc.ApplyUpdate(context.Background(), ProviderObjectUpdate{
		Provider: models.BillingProviderStripe, Kind: ObjectKindPayment,
		ObjectID: "cs_1", Status: models.PaymentStatusPaid,
		CustomerRef: "cus_9", SubscriptionRef: "sub_42", EventTime: time.Now(),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if fetcher.calls != 1 {
		t.Fatalf("expected one authoritative fetch, got %d", fetcher.calls)
	}
	p, _ := repo.GetPaymentByProviderID(models.BillingProviderStripe, "cs_1")
	if p.Status != models.PaymentStatusPaid {
		t.Fatalf("expected payment paid, got %q", p.Status)
	}
	sub, err := repo.GetSubscriptionByProviderID(models.BillingProviderStripe, "sub_42")
	if err != nil {
		t.Fatalf("expected subscription to be stored: %v", err)
	}
	if sub.UserID != 7 || sub.InternalPlan != "pro" || sub.Status != models.SubscriptionStatusActive {
		t.Fatalf("unexpected subscription: user=%d plan=%q status=%q", sub.UserID, sub.InternalPlan, sub.Status)
	}
	ent, _ := repo.GetEntitlement(7)
	if ent.Plan != "pro" || ent.Status != models.EntitlementStatusActive {
		t.Fatalf("unexpected entitlement: plan=%q status=%q", ent.Plan, ent.Status)
	}
}

func TestApplyUpdate_DuplicatePaidDeliveryIsNoOp(t *testing.T) {
	repo := newFakeRepo()
	repo.customers = append(repo.customers, models.BillingCustomer{
		UserID: 7, Provider: models.BillingProviderMollie, ProviderCustomerID: "cst_8",
	})
	repo.payments[objKey(models.BillingProviderMollie, "tr_1")] = &models.Payment{
		ID: 1, Provider: models.BillingProviderMollie, ProviderPaymentID: "tr_1",
		UserID: 7, Status: models.PaymentStatusOpen,
	}
	svc := NewService(repo)

	upd := ProviderObjectUpdate{
		Provider: models.BillingProviderMollie, Kind: ObjectKindPayment,
		ObjectID: "tr_1", Status: models.PaymentStatusPaid, EventTime: time.Now(),
	}
	if err := svc.ApplyUpdate(context.Background(), upd); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	first := *repo.payments[objKey(models.BillingProviderMollie, "tr_1")]

	if err := svc.ApplyUpdate(context.Background(), upd); err != nil {
		t.Fatalf("redelivery: %v", err)
	}
	second := *repo.payments[objKey(models.BillingProviderMollie, "tr_1")]
	if second.Status != models.PaymentStatusPaid || second.PaidAt == nil {
		t.Fatalf("redelivery changed payment state: %+v", second)
	}
	if !second.PaidAt.Equal(*first.PaidAt) {
		t.Fatalf("redelivery moved paid_at")
	}
}

func TestApplyUpdate_FailedPaymentSuspendsKeepingPlan(t *testing.T) {
	repo := newFakeRepo()
	repo.payments[objKey(models.BillingProviderMollie, "tr_2")] = &models.Payment{
		ID: 1, Provider: models.BillingProviderMollie, ProviderPaymentID: "tr_2",
		UserID: 7, Status: models.PaymentStatusOpen,
	}
	repo.entitlements[7] = &models.Entitlement{UserID: 7, Plan: "pro", Status: models.EntitlementStatusActive}
	svc := NewService(repo)

	err := svc.ApplyUpdate(context.Background(), ProviderObjectUpdate{
		Provider: models.BillingProviderMollie, Kind: ObjectKindPayment,
		ObjectID: "tr_2", Status: models.PaymentStatusFailed, EventTime: time.Now(),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ent := repo.entitlements[7]
	if ent.Status != models.EntitlementStatusSuspended {
		t.Fatalf("expected suspension, got %q", ent.Status)
	}
	if ent.Plan != "pro" {
		t.Fatalf("suspension must keep the plan, got %q", ent.Plan)
	}
}

func TestApplyUpdate_StaleSubscriptionEventIgnored(t *testing.T) {
	repo := newFakeRepo()
	seedProMapping(repo)
	repo.customers = append(repo.customers, models.BillingCustomer{
		UserID: 7, Provider: models.BillingProviderStripe, ProviderCustomerID: "cus_9",
	})
	svc := NewService(repo)

	t1 := time.Now().Add(-time.Hour)
	t2 := time.Now()

	newer := ProviderObjectUpdate{
		Provider: models.BillingProviderStripe, Kind: ObjectKindSubscription,
		ObjectID: "sub_42", Status: StatusActive, CustomerRef: "cus_9",
		PlanRef: "price_pro_month", Interval: "month", EventTime: t2,
	}
	if err := svc.ApplyUpdate(context.Background(), newer); err != nil {
		t.Fatalf("newer event: %v", err)
	}

	// The older cancellation arrives late; it must not regress the state.
	older := newer
	older.Status = StatusCanceled
	older.EventTime = t1
	if err := svc.ApplyUpdate(context.Background(), older); err != nil {
		t.Fatalf("stale event: %v", err)
	}

	sub, _ := repo.GetSubscriptionByProviderID(models.BillingProviderStripe, "sub_42")
	if sub.Status != models.SubscriptionStatusActive {
		t.Fatalf("stale event regressed subscription to %q", sub.Status)
	}
	ent, _ := repo.GetEntitlement(7)
	if ent.Status != models.EntitlementStatusActive || ent.Plan != "pro" {
		t.Fatalf("stale event regressed entitlement: plan=%q status=%q", ent.Plan, ent.Status)
	}
}

func TestApplyUpdate_DeletedSubscriptionDowngradesToFree(t *testing.T) {
	repo := newFakeRepo()
	seedProMapping(repo)
	repo.customers = append(repo.customers, models.BillingCustomer{
		UserID: 7, Provider: models.BillingProviderStripe, ProviderCustomerID: "cus_9",
	})
	svc := NewService(repo)

	base := ProviderObjectUpdate{
		Provider: models.BillingProviderStripe, Kind: ObjectKindSubscription,
		ObjectID: "sub_42", CustomerRef: "cus_9",
		PlanRef: "price_pro_month", Interval: "month",
	}

	active := base
	active.Status = StatusActive
	active.EventTime = time.Now().Add(-time.Hour)
	if err := svc.ApplyUpdate(context.Background(), active); err != nil {
		t.Fatalf("activation: %v", err)
	}

	deleted := base
	deleted.Status = StatusDeleted
	deleted.EventTime = time.Now()
	if err := svc.ApplyUpdate(context.Background(), deleted); err != nil {
		t.Fatalf("deletion: %v", err)
	}

	sub, _ := repo.GetSubscriptionByProviderID(models.BillingProviderStripe, "sub_42")
	if sub.Status != models.SubscriptionStatusCanceled || sub.CanceledAt == nil {
		t.Fatalf("expected canceled subscription, got %q", sub.Status)
	}
	ent, _ := repo.GetEntitlement(7)
	if ent.Plan != string(defaultPlan) || ent.Status != models.EntitlementStatusActive {
		t.Fatalf("expected free/active after deletion, got plan=%q status=%q", ent.Plan, ent.Status)
	}
}

func TestApplyUpdate_DeletionIsNotResurrectedByStaleActiveEvent(t *testing.T) {
	repo := newFakeRepo()
	seedProMapping(repo)
	repo.customers = append(repo.customers, models.BillingCustomer{
		UserID: 7, Provider: models.BillingProviderStripe, ProviderCustomerID: "cus_9",
	})
	svc := NewService(repo)

	base := ProviderObjectUpdate{
		Provider: models.BillingProviderStripe, Kind: ObjectKindSubscription,
		ObjectID: "sub_42", CustomerRef: "cus_9",
		PlanRef: "price_pro_month", Interval: "month",
	}

	deleted := base
	deleted.Status = StatusDeleted
	deleted.EventTime = time.Now()
	if err := svc.ApplyUpdate(context.Background(), deleted); err != nil {
		t.Fatalf("deletion: %v", err)
	}

	// An activation event with an earlier provider timestamp arrives after
	// the deletion. Ordering is by event time, not arrival order.
	active := base
	active.Status = StatusActive
	active.EventTime = time.Now().Add(-time.Hour)
	if err := svc.ApplyUpdate(context.Background(), active); err != nil {
		t.Fatalf("stale activation: %v", err)
	}

	sub, _ := repo.GetSubscriptionByProviderID(models.BillingProviderStripe, "sub_42")
	if sub.Status != models.SubscriptionStatusCanceled {
		t.Fatalf("stale activation resurrected subscription: %q", sub.Status)
	}
	ent, _ := repo.GetEntitlement(7)
	if ent.Plan != string(defaultPlan) || ent.Status != models.EntitlementStatusActive {
		t.Fatalf("stale activation resurrected entitlement: plan=%q status=%q", ent.Plan, ent.Status)
	}
}

func TestApplyUpdate_PendingSubscriptionLeavesEntitlementAlone(t *testing.T) {
	repo := newFakeRepo()
	repo.customers = append(repo.customers, models.BillingCustomer{
		UserID: 7, Provider: models.BillingProviderMollie, ProviderCustomerID: "cst_8",
	})
	repo.entitlements[7] = &models.Entitlement{UserID: 7, Plan: "team", Status: models.EntitlementStatusActive}
	svc := NewService(repo)

	err := svc.ApplyUpdate(context.Background(), ProviderObjectUpdate{
		Provider: models.BillingProviderMollie, Kind: ObjectKindSubscription,
		ObjectID: "sub_9", Status: StatusPending, CustomerRef: "cst_8", EventTime: time.Now(),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ent := repo.entitlements[7]
	if ent.Plan != "team" || ent.Status != models.EntitlementStatusActive {
		t.Fatalf("pending subscription must not touch entitlement, got plan=%q status=%q", ent.Plan, ent.Status)
	}
	if _, err := repo.GetSubscriptionByProviderID(models.BillingProviderMollie, "sub_9"); err != nil {
		t.Fatalf("pending subscription should still be recorded: %v", err)
	}
}

func TestApplyUpdate_UnattributablePaymentDropped(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo)

	err := svc.ApplyUpdate(context.Background(), ProviderObjectUpdate{
		Provider: models.BillingProviderStripe, Kind: ObjectKindPayment,
		ObjectID: "cs_unknown", Status: models.PaymentStatusPaid,
		CustomerRef: "cus_stranger", EventTime: time.Now(),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(repo.payments) != 0 {
		t.Fatalf("payment for unknown customer must not create rows")
	}
	if len(repo.entitlements) != 0 {
		t.Fatalf("payment for unknown customer must not create entitlements")
	}
}

func TestRecordWebhookEvent_Dedup(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo)

	in := WebhookEventInput{
		Provider:    models.BillingProviderMollie,
		ObjectID:    "tr_1",
		PayloadJSON: `id=tr_1`,
		ReceivedAt:  time.Date(2024, 1, 2, 10, 0, 0, 500, time.UTC),
	}
	created, _, err := svc.RecordWebhookEvent(context.Background(), in)
	if err != nil || !created {
		t.Fatalf("first record: created=%v err=%v", created, err)
	}
	created, _, err = svc.RecordWebhookEvent(context.Background(), in)
	if err != nil {
		t.Fatalf("second record: %v", err)
	}
	if created {
		t.Fatalf("identical delivery must deduplicate")
	}
}

func TestRecordWebhookEvent_DistinctEventTypesSameSecondStayDistinct(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo)

	base := time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)
	created, _, err := svc.RecordWebhookEvent(context.Background(), WebhookEventInput{
		Provider:    models.BillingProviderStripe,
		ObjectID:    "sub_42",
		EventType:   "customer.subscription.created",
		PayloadJSON: `{"id":"sub_42"}`,
		ReceivedAt:  base,
	})
	if err != nil || !created {
		t.Fatalf("created event: created=%v err=%v", created, err)
	}

	// The matching updated event lands 600ms later, inside the same
	// truncated second. It carries the activation, so it must be stored as
	// its own delivery and never reported as a duplicate.
	created, _, err = svc.RecordWebhookEvent(context.Background(), WebhookEventInput{
		Provider:    models.BillingProviderStripe,
		ObjectID:    "sub_42",
		EventType:   "customer.subscription.updated",
		PayloadJSON: `{"id":"sub_42","status":"active"}`,
		ReceivedAt:  base.Add(600 * time.Millisecond),
	})
	if err != nil {
		t.Fatalf("updated event: %v", err)
	}
	if !created {
		t.Fatalf("distinct event type within the same second conflated with the earlier delivery")
	}
}

func TestIsObjectProcessed(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo)

	in := WebhookEventInput{
		Provider:    models.BillingProviderMollie,
		ObjectID:    "tr_9",
		PayloadJSON: `id=tr_9`,
	}
	if _, _, err := svc.RecordWebhookEvent(context.Background(), in); err != nil {
		t.Fatalf("record: %v", err)
	}

	processed, err := svc.IsObjectProcessed(context.Background(), models.BillingProviderMollie, "tr_9")
	if err != nil || processed {
		t.Fatalf("logged-but-unapplied object reported processed=%v err=%v", processed, err)
	}

	if err := svc.MarkObjectProcessed(context.Background(), models.BillingProviderMollie, "tr_9", nil); err != nil {
		t.Fatalf("mark: %v", err)
	}
	processed, err = svc.IsObjectProcessed(context.Background(), models.BillingProviderMollie, "tr_9")
	if err != nil || !processed {
		t.Fatalf("applied object reported processed=%v err=%v", processed, err)
	}
}

func TestRecordWebhookEvent_HashFallback(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo)

	created, stored, err := svc.RecordWebhookEvent(context.Background(), WebhookEventInput{
		Provider:    models.BillingProviderStripe,
		PayloadJSON: `{"type":"ping"}`,
	})
	if err != nil || !created {
		t.Fatalf("record: created=%v err=%v", created, err)
	}
	if len(stored.ObjectID) < 6 || stored.ObjectID[:5] != "hash:" {
		t.Fatalf("expected payload-hash object id, got %q", stored.ObjectID)
	}
}

func TestReconcileEntitlement(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo)

	repo.subs[objKey("stripe", "sub_a")] = &models.Subscription{
		UserID: 7, Provider: "stripe", ProviderSubscriptionID: "sub_a",
		InternalPlan: "pro", Status: models.SubscriptionStatusActive,
	}
	repo.subs[objKey("mollie", "sub_b")] = &models.Subscription{
		UserID: 7, Provider: "mollie", ProviderSubscriptionID: "sub_b",
		InternalPlan: "team", Status: models.SubscriptionStatusCanceled,
	}

	plan, status, err := svc.ReconcileEntitlement(context.Background(), 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if plan != "pro" || status != models.EntitlementStatusActive {
		t.Fatalf("expected pro/active, got %s/%s", plan, status)
	}

	// Only a suspended subscription left: the resync must land on the same
	// state a payment failure produces, tier retained but access blocked.
	repo.subs[objKey("stripe", "sub_a")].Status = models.SubscriptionStatusSuspended
	plan, status, err = svc.ReconcileEntitlement(context.Background(), 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if plan != "pro" || status != models.EntitlementStatusSuspended {
		t.Fatalf("expected pro/suspended, got %s/%s", plan, status)
	}

	// No usable subscriptions at all falls back to free/active.
	delete(repo.subs, objKey("stripe", "sub_a"))
	plan, status, err = svc.ReconcileEntitlement(context.Background(), 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if plan != string(defaultPlan) || status != models.EntitlementStatusActive {
		t.Fatalf("expected free/active, got %s/%s", plan, status)
	}
}

func TestGetEntitlement_DefaultsToFree(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo)

	ent, err := svc.GetEntitlement(context.Background(), 99)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ent.Plan != string(defaultPlan) || ent.Status != models.EntitlementStatusActive {
		t.Fatalf("expected free/active default, got plan=%q status=%q", ent.Plan, ent.Status)
	}
}
