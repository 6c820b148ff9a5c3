package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"webconf-backend/internal/repository"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "calls.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func groupRecord(id, owner string) (*repository.CallRecord, []*repository.ParticipantRecord) {
	rec := &repository.CallRecord{
		ID:           id,
		Title:        "Weekly sync",
		OwnerID:      owner,
		OwnerType:    "space",
		ProviderType: "webrtc",
		State:        "started",
		LastDate:     time.Now(),
		IsGroup:      true,
	}
	parts := []*repository.ParticipantRecord{
		{ID: "mary", CallID: id, Type: "user"},
		{ID: "john", CallID: id, Type: "user"},
		{ID: "guest@example.com", CallID: id, Type: "webrtc"},
	}
	return rec, parts
}

func TestStore_CreateFindDelete(t *testing.T) {
	req := require.New(t)
	store := openTestStore(t)
	ctx := context.Background()

	rec, parts := groupRecord("g/marketing", "marketing")
	req.NoError(store.WithinTx(ctx, func(ctx context.Context, tx repository.CallTx) error {
		return tx.Create(ctx, rec, parts)
	}))

	req.NoError(store.WithinTx(ctx, func(ctx context.Context, tx repository.CallTx) error {
		got, err := tx.Find(ctx, "g/marketing")
		req.NoError(err)
		req.NotNil(got)
		req.Equal("marketing", got.OwnerID)
		req.Equal("started", got.State)
		req.True(got.IsGroup)
		req.False(got.IsUser)
		req.Equal(rec.LastDate.UnixMilli(), got.LastDate.UnixMilli())

		gotParts, err := tx.FindParticipants(ctx, "g/marketing")
		req.NoError(err)
		req.Len(gotParts, 3)
		req.Equal("mary", gotParts[0].ID)
		req.Equal("john", gotParts[1].ID)
		req.Equal("webrtc", gotParts[2].Type)
		req.Empty(gotParts[0].State)
		return nil
	}))

	var deleted bool
	req.NoError(store.WithinTx(ctx, func(ctx context.Context, tx repository.CallTx) error {
		var err error
		deleted, err = tx.Delete(ctx, "g/marketing")
		return err
	}))
	req.True(deleted)

	req.NoError(store.WithinTx(ctx, func(ctx context.Context, tx repository.CallTx) error {
		got, err := tx.Find(ctx, "g/marketing")
		req.NoError(err)
		req.Nil(got)
		gotParts, err := tx.FindParticipants(ctx, "g/marketing")
		req.NoError(err)
		req.Empty(gotParts)
		return nil
	}))
}

func TestStore_DuplicateID(t *testing.T) {
	req := require.New(t)
	store := openTestStore(t)
	ctx := context.Background()

	rec, parts := groupRecord("g/dup", "dup")
	req.NoError(store.WithinTx(ctx, func(ctx context.Context, tx repository.CallTx) error {
		return tx.Create(ctx, rec, parts)
	}))

	err := store.WithinTx(ctx, func(ctx context.Context, tx repository.CallTx) error {
		return tx.Create(ctx, rec, parts)
	})
	req.Error(err)
	req.True(errors.Is(err, repository.ErrDuplicateCall))
}

func TestStore_FailedTxRollsBack(t *testing.T) {
	req := require.New(t)
	store := openTestStore(t)
	ctx := context.Background()

	rec, parts := groupRecord("g/rollback", "rollback")
	boom := errors.New("boom")
	err := store.WithinTx(ctx, func(ctx context.Context, tx repository.CallTx) error {
		if err := tx.Create(ctx, rec, parts); err != nil {
			return err
		}
		return boom
	})
	req.ErrorIs(err, boom)

	req.NoError(store.WithinTx(ctx, func(ctx context.Context, tx repository.CallTx) error {
		got, err := tx.Find(ctx, "g/rollback")
		req.NoError(err)
		req.Nil(got)
		return nil
	}))
}

func TestStore_UpdateAndUpdateParticipant(t *testing.T) {
	req := require.New(t)
	store := openTestStore(t)
	ctx := context.Background()

	rec, parts := groupRecord("g/update", "update")
	req.NoError(store.WithinTx(ctx, func(ctx context.Context, tx repository.CallTx) error {
		return tx.Create(ctx, rec, parts)
	}))

	req.NoError(store.WithinTx(ctx, func(ctx context.Context, tx repository.CallTx) error {
		rec.State = "stopped"
		if err := tx.Update(ctx, rec); err != nil {
			return err
		}
		return tx.UpdateParticipant(ctx, &repository.ParticipantRecord{
			ID: "mary", CallID: "g/update", Type: "user", State: "joined", ClientID: "client-1",
		})
	}))

	req.NoError(store.WithinTx(ctx, func(ctx context.Context, tx repository.CallTx) error {
		got, err := tx.Find(ctx, "g/update")
		req.NoError(err)
		req.Equal("stopped", got.State)
		gotParts, err := tx.FindParticipants(ctx, "g/update")
		req.NoError(err)
		req.Equal("joined", gotParts[0].State)
		req.Equal("client-1", gotParts[0].ClientID)
		return nil
	}))

	// the stored type survives an update carrying another one
	req.NoError(store.WithinTx(ctx, func(ctx context.Context, tx repository.CallTx) error {
		return tx.UpdateParticipant(ctx, &repository.ParticipantRecord{
			ID: "mary", CallID: "g/update", Type: "webrtc", State: "leaved",
		})
	}))
	req.NoError(store.WithinTx(ctx, func(ctx context.Context, tx repository.CallTx) error {
		gotParts, err := tx.FindParticipants(ctx, "g/update")
		req.NoError(err)
		req.Equal("user", gotParts[0].Type)
		req.Equal("leaved", gotParts[0].State)
		req.Empty(gotParts[0].ClientID)
		return nil
	}))

	err := store.WithinTx(ctx, func(ctx context.Context, tx repository.CallTx) error {
		return tx.UpdateParticipant(ctx, &repository.ParticipantRecord{ID: "nobody", CallID: "g/update", Type: "user"})
	})
	req.ErrorIs(err, repository.ErrParticipantNotFound)

	err = store.WithinTx(ctx, func(ctx context.Context, tx repository.CallTx) error {
		return tx.Update(ctx, &repository.CallRecord{ID: "missing", OwnerID: "x", OwnerType: "user", ProviderType: "webrtc"})
	})
	req.ErrorIs(err, repository.ErrCallNotFound)
}

func TestStore_GroupQueries(t *testing.T) {
	req := require.New(t)
	store := openTestStore(t)
	ctx := context.Background()

	rec, parts := groupRecord("g/design", "design")
	p2p := &repository.CallRecord{
		ID: "p/mary@john", OwnerID: "mary", OwnerType: "user", ProviderType: "webrtc",
		State: "started", LastDate: time.Now(), IsUser: true,
	}
	p2pParts := []*repository.ParticipantRecord{
		{ID: "mary", CallID: p2p.ID, Type: "user"},
		{ID: "john", CallID: p2p.ID, Type: "user"},
	}
	req.NoError(store.WithinTx(ctx, func(ctx context.Context, tx repository.CallTx) error {
		if err := tx.Create(ctx, rec, parts); err != nil {
			return err
		}
		return tx.Create(ctx, p2p, p2pParts)
	}))

	req.NoError(store.WithinTx(ctx, func(ctx context.Context, tx repository.CallTx) error {
		got, err := tx.FindByGroupOwner(ctx, "design")
		req.NoError(err)
		req.Equal("g/design", got.ID)

		none, err := tx.FindByGroupOwner(ctx, "mary")
		req.NoError(err)
		req.Nil(none)

		calls, err := tx.FindGroupCallsForUser(ctx, "john")
		req.NoError(err)
		req.Len(calls, 1)
		req.Equal("g/design", calls[0].ID)
		return nil
	}))
}

func TestStore_PurgeExpiredUserCalls(t *testing.T) {
	req := require.New(t)
	store := openTestStore(t)
	ctx := context.Background()

	old := &repository.CallRecord{
		ID: "p/old", OwnerID: "mary", OwnerType: "user", ProviderType: "webrtc",
		State: "started", LastDate: time.Now().AddDate(0, 0, -30), IsUser: true,
	}
	fresh := &repository.CallRecord{
		ID: "p/fresh", OwnerID: "mary", OwnerType: "user", ProviderType: "webrtc",
		State: "started", LastDate: time.Now(), IsUser: true,
	}
	group, groupParts := groupRecord("g/old", "old")
	group.LastDate = time.Now().AddDate(0, 0, -30)

	req.NoError(store.WithinTx(ctx, func(ctx context.Context, tx repository.CallTx) error {
		if err := tx.Create(ctx, old, []*repository.ParticipantRecord{{ID: "mary", CallID: "p/old", Type: "user"}}); err != nil {
			return err
		}
		if err := tx.Create(ctx, fresh, nil); err != nil {
			return err
		}
		return tx.Create(ctx, group, groupParts)
	}))

	var purged int
	req.NoError(store.WithinTx(ctx, func(ctx context.Context, tx repository.CallTx) error {
		var err error
		purged, err = tx.PurgeExpiredUserCalls(ctx, 14)
		return err
	}))
	req.Equal(1, purged)

	req.NoError(store.WithinTx(ctx, func(ctx context.Context, tx repository.CallTx) error {
		gone, err := tx.Find(ctx, "p/old")
		req.NoError(err)
		req.Nil(gone)
		kept, err := tx.Find(ctx, "p/fresh")
		req.NoError(err)
		req.NotNil(kept)
		groupCall, err := tx.Find(ctx, "g/old")
		req.NoError(err)
		req.NotNil(groupCall)
		return nil
	}))
}

func TestExpiryCutoff(t *testing.T) {
	now := time.Date(2026, 3, 20, 15, 4, 5, 0, time.UTC)
	cutoff := repository.ExpiryCutoff(now, 14)
	require.Equal(t, time.Date(2026, 3, 6, 0, 0, 0, 0, time.UTC), cutoff)
}
