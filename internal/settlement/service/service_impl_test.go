package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/taskora-dev/taskora/internal/clock"
	"github.com/taskora-dev/taskora/internal/config"
	"github.com/taskora-dev/taskora/internal/gateway"
	ledgerdomain "github.com/taskora-dev/taskora/internal/ledger/domain"
	ledgerrepo "github.com/taskora-dev/taskora/internal/ledger/repository"
	notificationdomain "github.com/taskora-dev/taskora/internal/notification/domain"
	notificationrepo "github.com/taskora-dev/taskora/internal/notification/repository"
	notificationservice "github.com/taskora-dev/taskora/internal/notification/service"
	"github.com/taskora-dev/taskora/internal/observability"
	providerdomain "github.com/taskora-dev/taskora/internal/provider/domain"
	providerrepo "github.com/taskora-dev/taskora/internal/provider/repository"
	"github.com/taskora-dev/taskora/internal/settlement/domain"
	"github.com/taskora-dev/taskora/pkg/db/dbtest"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var testNode, _ = snowflake.NewNode(3)

type fakeGateway struct {
	createErr error
	status    gateway.StatusResult
	statusErr error
	invoices  int
}

func (f *fakeGateway) CreateInvoice(_ context.Context, _ int64, _ string, _ gateway.Metadata) (gateway.Invoice, error) {
	if f.createErr != nil {
		return gateway.Invoice{}, f.createErr
	}
	f.invoices++
	return gateway.Invoice{
		Token:       fmt.Sprintf("tok-%d", f.invoices),
		CheckoutURL: "https://pay.example/checkout",
	}, nil
}

func (f *fakeGateway) QueryStatus(context.Context, string) (gateway.StatusResult, error) {
	if f.statusErr != nil {
		return gateway.StatusResult{}, f.statusErr
	}
	return f.status, nil
}

type fixture struct {
	db           *gorm.DB
	svc          domain.Service
	gateway      *fakeGateway
	providerRepo providerdomain.Repository
	ledgerRepo   ledgerdomain.Repository
	now          time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := dbtest.Open(t)
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	gw := &fakeGateway{}
	pRepo := providerrepo.Provide()
	lRepo := ledgerrepo.Provide()
	fixed := clock.Fixed{T: now}

	notifier := notificationservice.NewNotifier(notificationservice.Params{
		DB:     db,
		Log:    zap.NewNop(),
		GenID:  testNode,
		Clock:  fixed,
		Repo:   notificationrepo.Provide(),
		Config: config.Config{},
	})

	svc := NewService(Params{
		DB:           db,
		Log:          zap.NewNop(),
		GenID:        testNode,
		Clock:        fixed,
		Gateway:      gw,
		LedgerRepo:   lRepo,
		ProviderRepo: pRepo,
		Notifier:     notifier,
		Metrics:      observability.NewMetrics(),
	})

	return &fixture{
		db:           db,
		svc:          svc,
		gateway:      gw,
		providerRepo: pRepo,
		ledgerRepo:   lRepo,
		now:          now,
	}
}

func (f *fixture) seedProvider(t *testing.T, tier providerdomain.Tier, expiresAt *time.Time, autoRenew bool) *providerdomain.Provider {
	t.Helper()
	p := &providerdomain.Provider{
		ID:        testNode.Generate(),
		Name:      "Nordwind Catering",
		Email:     "nordwind@example.com",
		Tier:      tier,
		ExpiresAt: expiresAt,
		AutoRenew: autoRenew,
		IsActive:  true,
		CreatedAt: f.now,
		UpdatedAt: f.now,
	}
	require.NoError(t, f.providerRepo.Insert(context.Background(), f.db, p))
	return p
}

func (f *fixture) reload(t *testing.T, id snowflake.ID) *providerdomain.Provider {
	t.Helper()
	p, err := f.providerRepo.FindByID(context.Background(), f.db, id)
	require.NoError(t, err)
	require.NotNil(t, p)
	return p
}

func (f *fixture) notificationCount(t *testing.T, kind notificationdomain.Kind) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(&notificationdomain.Record{}).
		Where("kind = ?", kind).
		Count(&n).Error)
	return n
}

func TestInitiate(t *testing.T) {
	f := newFixture(t)
	p := f.seedProvider(t, providerdomain.TierFree, nil, false)

	checkout, err := f.svc.Initiate(context.Background(), p.ID, providerdomain.TierPremium, 1)
	require.NoError(t, err)
	assert.Equal(t, "tok-1", checkout.Token)
	assert.Equal(t, providerdomain.PricePremium, checkout.AmountCents)

	attempt, err := f.ledgerRepo.FindByToken(context.Background(), f.db, checkout.Token)
	require.NoError(t, err)
	require.NotNil(t, attempt)
	assert.Equal(t, ledgerdomain.StatusPending, attempt.Status)

	// The subscription itself stays untouched until settlement.
	assert.Equal(t, providerdomain.TierFree, f.reload(t, p.ID).Tier)
}

func TestInitiate_RejectsBadInput(t *testing.T) {
	f := newFixture(t)
	p := f.seedProvider(t, providerdomain.TierFree, nil, false)

	_, err := f.svc.Initiate(context.Background(), p.ID, providerdomain.TierFree, 1)
	assert.ErrorIs(t, err, providerdomain.ErrInvalidTier)

	_, err = f.svc.Initiate(context.Background(), p.ID, providerdomain.TierPremium, 0)
	assert.ErrorIs(t, err, providerdomain.ErrValidation)

	_, err = f.svc.Initiate(context.Background(), testNode.Generate(), providerdomain.TierPremium, 1)
	assert.ErrorIs(t, err, providerdomain.ErrProviderNotFound)
}

func TestInitiate_GatewayFailureReleasesPendingSlot(t *testing.T) {
	f := newFixture(t)
	p := f.seedProvider(t, providerdomain.TierFree, nil, false)

	f.gateway.createErr = gateway.ErrUnavailable
	_, err := f.svc.Initiate(context.Background(), p.ID, providerdomain.TierPremium, 1)
	assert.ErrorIs(t, err, gateway.ErrUnavailable)

	// The attempt ends up failed, not cancelled, and the slot is free again.
	var failed int64
	require.NoError(t, f.db.Model(&ledgerdomain.PaymentAttempt{}).
		Where("provider_id = ? AND status = ?", p.ID, ledgerdomain.StatusFailed).
		Count(&failed).Error)
	assert.Equal(t, int64(1), failed)

	f.gateway.createErr = nil
	_, err = f.svc.Initiate(context.Background(), p.ID, providerdomain.TierPremium, 1)
	require.NoError(t, err)
}

func TestReconcile_CompletedActivatesSubscription(t *testing.T) {
	f := newFixture(t)
	p := f.seedProvider(t, providerdomain.TierFree, nil, false)
	checkout, err := f.svc.Initiate(context.Background(), p.ID, providerdomain.TierPremium, 1)
	require.NoError(t, err)

	require.NoError(t, f.svc.Reconcile(context.Background(), checkout.Token, domain.OutcomeCompleted, []byte(`{"status":"PAID"}`)))

	got := f.reload(t, p.ID)
	assert.Equal(t, providerdomain.TierPremium, got.Tier)
	assert.True(t, got.AutoRenew)
	require.NotNil(t, got.ExpiresAt)
	assert.Equal(t, f.now.AddDate(0, 1, 0), got.ExpiresAt.UTC())
	assert.True(t, got.Premium(f.now))

	attempt, err := f.ledgerRepo.FindByToken(context.Background(), f.db, checkout.Token)
	require.NoError(t, err)
	assert.Equal(t, ledgerdomain.StatusCompleted, attempt.Status)
}

func TestReconcile_ReplayIsIdempotent(t *testing.T) {
	f := newFixture(t)
	p := f.seedProvider(t, providerdomain.TierFree, nil, false)
	checkout, err := f.svc.Initiate(context.Background(), p.ID, providerdomain.TierPremium, 1)
	require.NoError(t, err)

	require.NoError(t, f.svc.Reconcile(context.Background(), checkout.Token, domain.OutcomeCompleted, nil))
	expiryAfterFirst := f.reload(t, p.ID).ExpiresAt.UTC()

	// Same report delivered again must not extend anything.
	require.NoError(t, f.svc.Reconcile(context.Background(), checkout.Token, domain.OutcomeCompleted, nil))
	assert.Equal(t, expiryAfterFirst, f.reload(t, p.ID).ExpiresAt.UTC())
}

func TestReconcile_ConflictingTerminalStatus(t *testing.T) {
	f := newFixture(t)
	p := f.seedProvider(t, providerdomain.TierFree, nil, false)
	checkout, err := f.svc.Initiate(context.Background(), p.ID, providerdomain.TierPremium, 1)
	require.NoError(t, err)

	require.NoError(t, f.svc.Reconcile(context.Background(), checkout.Token, domain.OutcomeCompleted, nil))

	err = f.svc.Reconcile(context.Background(), checkout.Token, domain.OutcomeFailed, nil)
	assert.ErrorIs(t, err, ledgerdomain.ErrConflictingSettlement)

	// The recorded state stands.
	assert.Equal(t, providerdomain.TierPremium, f.reload(t, p.ID).Tier)
}

func TestReconcile_FailedLeavesSubscriptionAlone(t *testing.T) {
	f := newFixture(t)
	p := f.seedProvider(t, providerdomain.TierFree, nil, false)
	checkout, err := f.svc.Initiate(context.Background(), p.ID, providerdomain.TierPremium, 1)
	require.NoError(t, err)

	require.NoError(t, f.svc.Reconcile(context.Background(), checkout.Token, domain.OutcomeFailed, []byte(`{"status":"EXPIRED"}`)))

	got := f.reload(t, p.ID)
	assert.Equal(t, providerdomain.TierFree, got.Tier)
	assert.Nil(t, got.ExpiresAt)

	attempt, err := f.ledgerRepo.FindByToken(context.Background(), f.db, checkout.Token)
	require.NoError(t, err)
	assert.Equal(t, ledgerdomain.StatusFailed, attempt.Status)
}

func TestReconcile_UnknownTokenIsBenign(t *testing.T) {
	f := newFixture(t)
	assert.NoError(t, f.svc.Reconcile(context.Background(), "tok-nobody", domain.OutcomeCompleted, nil))
}

func TestReconcile_SameTierRenewalExtends(t *testing.T) {
	f := newFixture(t)
	remaining := f.now.AddDate(0, 0, 10)
	p := f.seedProvider(t, providerdomain.TierPremium, &remaining, true)

	checkout, err := f.svc.Initiate(context.Background(), p.ID, providerdomain.TierPremium, 1)
	require.NoError(t, err)
	require.NoError(t, f.svc.Reconcile(context.Background(), checkout.Token, domain.OutcomeCompleted, nil))

	got := f.reload(t, p.ID)
	assert.Equal(t, remaining.AddDate(0, 1, 0), got.ExpiresAt.UTC())
	assert.Equal(t, int64(1), f.notificationCount(t, notificationdomain.KindRenewalSuccess))
}

func TestReconcile_UpgradeResetsPeriod(t *testing.T) {
	f := newFixture(t)
	remaining := f.now.AddDate(0, 0, 10)
	p := f.seedProvider(t, providerdomain.TierSimple, &remaining, true)

	checkout, err := f.svc.Initiate(context.Background(), p.ID, providerdomain.TierPremium, 1)
	require.NoError(t, err)
	require.NoError(t, f.svc.Reconcile(context.Background(), checkout.Token, domain.OutcomeCompleted, nil))

	got := f.reload(t, p.ID)
	assert.Equal(t, providerdomain.TierPremium, got.Tier)
	// Remaining simple-tier days are not carried into the premium period,
	// and an upgrade is not announced as a renewal.
	assert.Equal(t, f.now.AddDate(0, 1, 0), got.ExpiresAt.UTC())
	assert.Equal(t, int64(0), f.notificationCount(t, notificationdomain.KindRenewalSuccess))
}

func TestReconcile_HealsRenewalRace(t *testing.T) {
	f := newFixture(t)
	lapsed := f.now.Add(-time.Hour)
	p := f.seedProvider(t, providerdomain.TierPremium, &lapsed, true)

	checkout, err := f.svc.Initiate(context.Background(), p.ID, providerdomain.TierPremium, 1)
	require.NoError(t, err)

	// The expiry sweep downgrades the provider while the renewal payment is
	// still in flight.
	p.Tier = providerdomain.TierFree
	require.NoError(t, f.providerRepo.UpdateSubscription(context.Background(), f.db, p))

	require.NoError(t, f.svc.Reconcile(context.Background(), checkout.Token, domain.OutcomeCompleted, nil))

	got := f.reload(t, p.ID)
	assert.Equal(t, providerdomain.TierPremium, got.Tier)
	assert.Equal(t, f.now.AddDate(0, 1, 0), got.ExpiresAt.UTC())
}

func TestVerifyByToken_ReconcilesTerminalStatus(t *testing.T) {
	f := newFixture(t)
	p := f.seedProvider(t, providerdomain.TierFree, nil, false)
	checkout, err := f.svc.Initiate(context.Background(), p.ID, providerdomain.TierPremium, 1)
	require.NoError(t, err)

	f.gateway.status = gateway.StatusResult{Status: "PAID", RawPayload: []byte(`{"status":"PAID"}`)}

	result, err := f.svc.VerifyByToken(context.Background(), checkout.Token)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeCompleted, result.Outcome)
	assert.Equal(t, providerdomain.TierPremium, f.reload(t, p.ID).Tier)
}

func TestVerifyByToken_PendingDoesNotSettle(t *testing.T) {
	f := newFixture(t)
	p := f.seedProvider(t, providerdomain.TierFree, nil, false)
	checkout, err := f.svc.Initiate(context.Background(), p.ID, providerdomain.TierPremium, 1)
	require.NoError(t, err)

	f.gateway.status = gateway.StatusResult{Status: "PENDING"}

	result, err := f.svc.VerifyByToken(context.Background(), checkout.Token)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomePending, result.Outcome)
	assert.Equal(t, providerdomain.TierFree, f.reload(t, p.ID).Tier)
}

func TestVerifyByToken_UnknownEverywhere(t *testing.T) {
	f := newFixture(t)
	f.gateway.statusErr = gateway.ErrTokenNotFound

	_, err := f.svc.VerifyByToken(context.Background(), "tok-nobody")
	assert.ErrorIs(t, err, ledgerdomain.ErrAttemptNotFound)
}

func TestNormalizeStatus(t *testing.T) {
	for raw, want := range map[string]domain.Outcome{
		"PAID":    domain.OutcomeCompleted,
		"settled": domain.OutcomeCompleted,
		"EXPIRED": domain.OutcomeFailed,
		"PENDING": domain.OutcomePending,
	} {
		got, err := domain.NormalizeStatus(raw)
		require.NoError(t, err)
		assert.Equal(t, want, got, raw)
	}

	_, err := domain.NormalizeStatus("SOMETHING_NEW")
	assert.ErrorIs(t, err, domain.ErrUnknownStatus)
}
