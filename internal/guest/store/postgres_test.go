//go:build integration

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fete/internal/guest/models"
	invmodels "fete/internal/invitation/models"
	invstore "fete/internal/invitation/store"
	ordermodels "fete/internal/order/models"
	orderstore "fete/internal/order/store"
	id "fete/pkg/domain"
	"fete/pkg/platform/sentinel"
	"fete/pkg/testutil/containers"
)

func TestPostgresStore(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	pg, err := containers.StartPostgres(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pg.Terminate(context.Background()) })

	orders := orderstore.NewPostgres(pg.Pool)
	invitations := invstore.NewPostgres(pg.Pool)
	guests := NewPostgres(pg.Pool)
	now := time.Now().UTC().Truncate(time.Microsecond)

	seedInvitation := func(t *testing.T) *invmodels.Invitation {
		t.Helper()
		plan, err := ordermodels.PlanByCode(ordermodels.PlanStarter)
		require.NoError(t, err)
		order, err := ordermodels.NewOrder(id.NewOrderID(), id.NewUserID(), plan, id.NewTemplateID(), now)
		require.NoError(t, err)
		require.NoError(t, orders.Create(ctx, order))

		inv, err := invmodels.New(id.NewInvitationID(), order.ID, "slug-"+id.NewInvitationID().String(), 5, 1, now)
		require.NoError(t, err)
		require.NoError(t, inv.Activate(now, 90*24*time.Hour))
		require.NoError(t, invitations.Create(ctx, inv))
		return inv
	}

	newGuest := func(t *testing.T, inv *invmodels.Invitation, fp, ip string) *models.Guest {
		t.Helper()
		guest, err := models.New(id.NewGuestID(), inv.ID, "Guest "+fp, fp, ip, "uah-"+fp, false, now)
		require.NoError(t, err)
		return guest
	}

	t.Run("create and find by fingerprint", func(t *testing.T) {
		inv := seedInvitation(t)
		guest := newGuest(t, inv, "fp-roundtrip", "10.0.0.1")
		require.NoError(t, guests.Create(ctx, guest))

		found, err := guests.FindByFingerprint(ctx, inv.ID, "fp-roundtrip")
		require.NoError(t, err)
		assert.Equal(t, guest.ID, found.ID)
		assert.Equal(t, guest.DisplayName, found.DisplayName)
		assert.WithinDuration(t, guest.FirstSeenAt, found.FirstSeenAt, time.Millisecond)
	})

	t.Run("duplicate fingerprint under one invitation conflicts", func(t *testing.T) {
		inv := seedInvitation(t)
		require.NoError(t, guests.Create(ctx, newGuest(t, inv, "fp-dup", "10.0.0.1")))

		err := guests.Create(ctx, newGuest(t, inv, "fp-dup", "10.0.0.2"))
		assert.ErrorIs(t, err, sentinel.ErrConflict)
	})

	t.Run("the same fingerprint under another invitation is fine", func(t *testing.T) {
		first := seedInvitation(t)
		second := seedInvitation(t)
		require.NoError(t, guests.Create(ctx, newGuest(t, first, "fp-shared", "10.0.0.1")))
		assert.NoError(t, guests.Create(ctx, newGuest(t, second, "fp-shared", "10.0.0.1")))
	})

	t.Run("find recent by network honors the window", func(t *testing.T) {
		inv := seedInvitation(t)
		guest, err := models.New(id.NewGuestID(), inv.ID, "Old Guest", "fp-old", "10.9.9.9", "uah-net", false, now.Add(-48*time.Hour))
		require.NoError(t, err)
		require.NoError(t, guests.Create(ctx, guest))

		found, err := guests.FindRecentByNetwork(ctx, inv.ID, "10.9.9.9", "uah-net", now.Add(-72*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, guest.ID, found.ID)

		_, err = guests.FindRecentByNetwork(ctx, inv.ID, "10.9.9.9", "uah-net", now.Add(-time.Hour))
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})

	t.Run("list by invitation orders by first seen", func(t *testing.T) {
		inv := seedInvitation(t)
		for i, offset := range []time.Duration{-2 * time.Hour, -time.Hour, 0} {
			guest, err := models.New(id.NewGuestID(), inv.ID, "Guest", "fp-list-"+string(rune('a'+i)), "10.1.1.1", "uah", false, now.Add(offset))
			require.NoError(t, err)
			require.NoError(t, guests.Create(ctx, guest))
		}

		listed, err := guests.ListByInvitation(ctx, inv.ID)
		require.NoError(t, err)
		require.Len(t, listed, 3)
		assert.True(t, listed[0].FirstSeenAt.Before(listed[1].FirstSeenAt))
		assert.True(t, listed[1].FirstSeenAt.Before(listed[2].FirstSeenAt))
	})
}
