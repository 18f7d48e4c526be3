package main

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveAndLoadRoundTrip(t *testing.T) {
	ctx := newTestContext(t, WithEventChance(1))
	ctx.logger.Debug("=== Testing save/load round trip ===")
	require.NoError(t, ctx.ctrl.StartGame(context.Background(), ctx.session, DefaultGameConfig("k")))
	ctx.stepUntil(200, func(g *GameState) bool { return g.Phase == PhaseDay })
	ctx.mustStep()

	saved := ctx.state()
	id, err := ctx.ctrl.SaveGame(context.Background(), ctx.session, "before the vote")
	require.NoError(t, err)
	require.NotEmpty(t, id)
	ctx.logDB("after save")

	ctx.stepUntil(200, func(g *GameState) bool { return g.Phase == PhaseNight })
	require.NotEqual(t, saved.Phase, ctx.state().Phase)

	require.NoError(t, ctx.ctrl.LoadGame(context.Background(), ctx.session, id))
	loaded := ctx.state()
	if diff := cmp.Diff(saved, loaded); diff != "" {
		t.Errorf("loaded state mismatch (-saved +loaded):\n%s", diff)
	}

	// The loaded game plays on from where it was saved.
	ctx.mustStep()
	assert.Equal(t, saved.CurrentPlayerIndex+1, ctx.state().CurrentPlayerIndex)
}

func TestSaveRequiresNameAndGame(t *testing.T) {
	ctx := newTestContext(t)

	_, err := ctx.ctrl.SaveGame(context.Background(), ctx.session, "nothing yet")
	assert.ErrorIs(t, err, ErrNoActiveGame)

	ctx.start(RoleMarked, RoleInnocent, RoleInnocent)
	_, err = ctx.ctrl.SaveGame(context.Background(), ctx.session, "")
	assert.ErrorIs(t, err, ErrEmptySaveName)
}

func TestListSavesMostRecentFirst(t *testing.T) {
	ctx := newTestContext(t)
	ctx.start(RoleMarked, RoleInnocent, RoleInnocent)

	var ids []string
	for _, name := range []string{"first", "second", "third"} {
		id, err := ctx.ctrl.SaveGame(context.Background(), ctx.session, name)
		require.NoError(t, err)
		ids = append(ids, id)
	}

	saves, err := ctx.ctrl.GetSavedGames(context.Background())
	require.NoError(t, err)
	require.Len(t, saves, 3)
	assert.Equal(t, []string{"third", "second", "first"}, []string{saves[0].Name, saves[1].Name, saves[2].Name})
	assert.Equal(t, ids[2], saves[0].ID)
	for _, s := range saves {
		assert.Nil(t, s.State, "listing carries no state")
	}
	assert.True(t, saves[0].SavedAt.After(saves[2].SavedAt))
}

func TestLoadAndDeleteUnknownSave(t *testing.T) {
	ctx := newTestContext(t)
	ctx.start(RoleMarked, RoleInnocent, RoleInnocent)
	before := ctx.state()

	err := ctx.ctrl.LoadGame(context.Background(), ctx.session, "no-such-save")
	assert.ErrorIs(t, err, ErrSaveNotFound)
	assert.Equal(t, before, ctx.state())

	assert.ErrorIs(t, ctx.ctrl.DeleteGame(context.Background(), "no-such-save"), ErrSaveNotFound)
}

func TestDeleteSave(t *testing.T) {
	ctx := newTestContext(t)
	ctx.start(RoleMarked, RoleInnocent, RoleInnocent)

	id, err := ctx.ctrl.SaveGame(context.Background(), ctx.session, "doomed")
	require.NoError(t, err)
	require.NoError(t, ctx.ctrl.DeleteGame(context.Background(), id))

	saves, err := ctx.ctrl.GetSavedGames(context.Background())
	require.NoError(t, err)
	assert.Empty(t, saves)
	assert.ErrorIs(t, ctx.ctrl.LoadGame(context.Background(), ctx.session, id), ErrSaveNotFound)
}

func TestLoadClearsPendingError(t *testing.T) {
	ctx := newTestContext(t)
	ctx.start(RoleMarked, RoleGuard, RoleInnocent, RoleInnocent)
	ctx.mustStep()
	id, err := ctx.ctrl.SaveGame(context.Background(), ctx.session, "night one")
	require.NoError(t, err)

	ctx.agent.failNext(1)
	require.Error(t, ctx.step())
	require.NoError(t, ctx.ctrl.LoadGame(context.Background(), ctx.session, id))
	assert.Nil(t, ctx.session.LastError())
	ctx.mustStep()
}

func TestPruneBefore(t *testing.T) {
	ctx := newTestContext(t)
	ctx.start(RoleMarked, RoleInnocent, RoleInnocent)
	for _, name := range []string{"old", "middle", "new"} {
		_, err := ctx.ctrl.SaveGame(context.Background(), ctx.session, name)
		require.NoError(t, err)
	}
	saves, err := ctx.store.List(context.Background())
	require.NoError(t, err)
	cutoff := saves[1].SavedAt

	n, err := ctx.store.PruneBefore(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	saves, err = ctx.store.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, saves, 2)
	ctx.logDB("after prune")

	pruneSaves(context.Background(), ctx.store, ctx.clock.Now().Add(time.Hour))
	saves, err = ctx.store.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, saves)
}

func TestJanitorSchedule(t *testing.T) {
	ctx := newTestContext(t)

	off := startJanitor(ctx.store, 0, pruneSchedule, ctx.clock.Now)
	assert.Empty(t, off.Entries())

	on := startJanitor(ctx.store, 24*time.Hour, pruneSchedule, ctx.clock.Now)
	defer on.Stop()
	assert.Len(t, on.Entries(), 1)
}

func TestJanitorBadScheduleSchedulesNothing(t *testing.T) {
	ctx := newTestContext(t)

	c := startJanitor(ctx.store, 24*time.Hour, "every other tuesday", ctx.clock.Now)
	defer c.Stop()
	assert.Empty(t, c.Entries())
}
