package repository

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/taskora-dev/taskora/internal/provider/domain"
	"github.com/taskora-dev/taskora/pkg/db/dbtest"
	"gorm.io/gorm"
)

var testNode, _ = snowflake.NewNode(1)

func seedProvider(t *testing.T, db *gorm.DB, tier domain.Tier, expiresAt *time.Time, autoRenew bool) *domain.Provider {
	t.Helper()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	p := &domain.Provider{
		ID:        testNode.Generate(),
		Name:      "Acme Plumbing",
		Email:     "acme@example.com",
		Tier:      tier,
		ExpiresAt: expiresAt,
		AutoRenew: autoRenew,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, Provide().Insert(context.Background(), db, p))
	return p
}

func ts(t time.Time) *time.Time { return &t }

func TestFindByID_Missing(t *testing.T) {
	db := dbtest.Open(t)
	got, err := Provide().FindByID(context.Background(), db, testNode.Generate())
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestListExpired(t *testing.T) {
	db := dbtest.Open(t)
	r := Provide()
	now := time.Date(2026, 3, 10, 2, 0, 0, 0, time.UTC)

	lapsed := seedProvider(t, db, domain.TierPremium, ts(now.Add(-time.Hour)), false)
	onBoundary := seedProvider(t, db, domain.TierSimple, ts(now), false)
	seedProvider(t, db, domain.TierSimple, ts(now.Add(time.Hour)), false)
	seedProvider(t, db, domain.TierFree, ts(now.Add(-time.Hour)), false)

	got, err := r.ListExpired(context.Background(), db, now)
	require.NoError(t, err)
	require.Len(t, got, 2)

	ids := []snowflake.ID{got[0].ID, got[1].ID}
	assert.Contains(t, ids, lapsed.ID)
	assert.Contains(t, ids, onBoundary.ID)
}

func TestListAutoRenewDue_IncludesDowngraded(t *testing.T) {
	db := dbtest.Open(t)
	r := Provide()
	now := time.Date(2026, 3, 10, 2, 0, 0, 0, time.UTC)

	// Already moved to free by the expiry sweep but still carrying its old
	// expires_at and auto_renew flag.
	downgraded := seedProvider(t, db, domain.TierFree, ts(now.Add(-time.Hour)), true)
	paidDue := seedProvider(t, db, domain.TierPremium, ts(now.Add(-time.Minute)), true)
	seedProvider(t, db, domain.TierPremium, ts(now.Add(time.Hour)), true)
	seedProvider(t, db, domain.TierPremium, ts(now.Add(-time.Hour)), false)

	got, err := r.ListAutoRenewDue(context.Background(), db, now)
	require.NoError(t, err)
	require.Len(t, got, 2)

	ids := []snowflake.ID{got[0].ID, got[1].ID}
	assert.Contains(t, ids, downgraded.ID)
	assert.Contains(t, ids, paidDue.ID)
}

func TestListByExpiryWindow_HalfOpen(t *testing.T) {
	db := dbtest.Open(t)
	r := Provide()

	start := time.Date(2026, 3, 17, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 1)

	inWindow := seedProvider(t, db, domain.TierSimple, ts(start.Add(23*time.Hour)), false)
	atStart := seedProvider(t, db, domain.TierSimple, ts(start), false)
	seedProvider(t, db, domain.TierSimple, ts(end), false)
	seedProvider(t, db, domain.TierSimple, ts(start.Add(-time.Second)), false)

	got, err := r.ListByExpiryWindow(context.Background(), db, start, end)
	require.NoError(t, err)
	require.Len(t, got, 2)

	ids := []snowflake.ID{got[0].ID, got[1].ID}
	assert.Contains(t, ids, inWindow.ID)
	assert.Contains(t, ids, atStart.ID)
}

func TestUpdateAutoRenew(t *testing.T) {
	db := dbtest.Open(t)
	r := Provide()
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	p := seedProvider(t, db, domain.TierPremium, ts(now.AddDate(0, 1, 0)), true)

	require.NoError(t, r.UpdateAutoRenew(context.Background(), db, p.ID, false, now))

	got, err := r.FindByID(context.Background(), db, p.ID)
	require.NoError(t, err)
	assert.False(t, got.AutoRenew)

	err = r.UpdateAutoRenew(context.Background(), db, testNode.Generate(), true, now)
	assert.ErrorIs(t, err, domain.ErrProviderNotFound)
}

func TestUpdateSubscription_LeavesModerationAlone(t *testing.T) {
	db := dbtest.Open(t)
	r := Provide()
	now := time.Date(2026, 3, 10, 2, 0, 0, 0, time.UTC)

	p := seedProvider(t, db, domain.TierPremium, ts(now.Add(-time.Hour)), true)
	reason := "spam reports"
	p.IsHidden = true
	p.StatusReason = &reason
	require.NoError(t, r.UpdateModeration(context.Background(), db, p))

	p.Tier = domain.TierFree
	p.UpdatedAt = now
	require.NoError(t, r.UpdateSubscription(context.Background(), db, p))

	got, err := r.FindByID(context.Background(), db, p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TierFree, got.Tier)
	assert.True(t, got.IsHidden)
	require.NotNil(t, got.StatusReason)
	assert.Equal(t, reason, *got.StatusReason)
}
