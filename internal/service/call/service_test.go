package call

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"webconf-backend/internal/domain"
	"webconf-backend/internal/repository"
	"webconf-backend/internal/repository/sqlite"
	"webconf-backend/internal/service/notification"
	pkgcontext "webconf-backend/pkg/context"
	apperrors "webconf-backend/pkg/errors"
)

type fakeDirectory struct {
	mu     sync.Mutex
	users  map[string]domain.Identity
	spaces map[string]domain.Identity
	err    error
}

func newFakeDirectory() *fakeDirectory {
	mary := domain.NewUser("mary", "Mary", "Williams")
	john := domain.NewUser("john", "John", "Smith")
	ann := domain.NewUser("ann", "Ann", "Lee")
	return &fakeDirectory{
		users: map[string]domain.Identity{"mary": mary, "john": john, "ann": ann},
		spaces: map[string]domain.Identity{
			"marketing": domain.NewSpace("marketing", "Marketing", "/spaces/marketing", []domain.Identity{mary, john}),
		},
	}
}

func (d *fakeDirectory) ResolveUser(_ context.Context, id string) (*domain.Identity, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	if u, ok := d.users[id]; ok {
		return &u, nil
	}
	return nil, nil
}

func (d *fakeDirectory) ResolveSpace(_ context.Context, name string) (*domain.Identity, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	if sp, ok := d.spaces[name]; ok {
		return &sp, nil
	}
	return nil, nil
}

func (d *fakeDirectory) fail(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.err = err
}

type recorder struct {
	userID   string
	clientID string

	mu     sync.Mutex
	events []domain.CallEvent
}

func (r *recorder) UserID() string   { return r.userID }
func (r *recorder) ClientID() string { return r.clientID }

func (r *recorder) Notify(event domain.CallEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recorder) Events() []domain.CallEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.CallEvent(nil), r.events...)
}

func (r *recorder) Last() domain.CallEvent {
	events := r.Events()
	if len(events) == 0 {
		return domain.CallEvent{}
	}
	return events[len(events)-1]
}

type fixture struct {
	svc   *Service
	store *sqlite.Store
	hub   *notification.Hub
	dir   *fakeDirectory
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "calls.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	hub := notification.NewHub(time.Second, nil)
	dir := newFakeDirectory()
	return &fixture{
		svc:   NewService(store, dir, hub, nil),
		store: store,
		hub:   hub,
		dir:   dir,
	}
}

func (f *fixture) listen(userID, clientID string) *recorder {
	r := &recorder{userID: userID, clientID: clientID}
	f.hub.Register(r)
	return r
}

func (f *fixture) insert(t *testing.T, rec *repository.CallRecord, parts ...*repository.ParticipantRecord) {
	t.Helper()
	require.NoError(t, f.store.WithinTx(context.Background(), func(ctx context.Context, tx repository.CallTx) error {
		return tx.Create(ctx, rec, parts)
	}))
}

func as(userID string) context.Context {
	return pkgcontext.WithUserID(context.Background(), userID)
}

func spaceCall(id string, parts ...string) *AddCallInput {
	return &AddCallInput{
		ID:           id,
		OwnerID:      "marketing",
		OwnerType:    domain.IdentitySpace,
		ProviderType: "webrtc",
		Title:        "Marketing sync",
		Participants: parts,
	}
}

func p2pCall(id string) *AddCallInput {
	return &AddCallInput{
		ID:           id,
		OwnerID:      "mary",
		OwnerType:    domain.IdentityUser,
		ProviderType: "webrtc",
		Participants: []string{"mary", "john"},
	}
}

func participantIDs(call *domain.Call) []string {
	ids := make([]string, 0, len(call.Participants))
	for _, p := range call.Participants {
		ids = append(ids, p.ID)
	}
	return ids
}

func TestAddCall_RoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := as("mary")

	created, err := f.svc.AddCall(ctx, spaceCall("g/marketing", "mary", "john", "guest@example.com", "john"))
	require.NoError(t, err)
	assert.Equal(t, domain.CallStarted, created.State)
	assert.True(t, created.IsGroup())
	assert.Equal(t, []string{"mary", "john", "guest@example.com"}, participantIDs(created))
	assert.Equal(t, "webrtc", created.Participant("guest@example.com").Type)

	got, err := f.svc.GetCall(ctx, "g/marketing")
	require.NoError(t, err)
	assert.Equal(t, created.Owner.ID, got.Owner.ID)
	assert.Equal(t, created.Owner.Type, got.Owner.Type)
	assert.Equal(t, created.ProviderType, got.ProviderType)
	assert.Equal(t, participantIDs(created), participantIDs(got))
	for _, p := range created.Participants {
		assert.Equal(t, p.Type, got.Participant(p.ID).Type)
	}
	assert.Equal(t, "Mary Williams", got.Participant("mary").Title)
}

func TestAddCall_ChatRoomOwnerRoundTrip(t *testing.T) {
	f := newFixture(t)
	input := &AddCallInput{
		ID:           "r/standup",
		OwnerID:      "room-42",
		OwnerType:    domain.IdentityChatRoom,
		ProviderType: "webrtc",
		Title:        "Daily standup",
		Participants: []string{"mary", "outsider"},
	}

	_, err := f.svc.AddCall(context.Background(), input)
	require.NoError(t, err)

	got, err := f.svc.GetCall(context.Background(), "r/standup")
	require.NoError(t, err)
	assert.Equal(t, domain.IdentityChatRoom, got.Owner.Type)
	assert.Equal(t, "Daily standup", got.Owner.Title)
	assert.Equal(t, "webrtc", got.Participant("outsider").Type)
}

func TestAddCall_UnknownSpaceBecomesChatRoom(t *testing.T) {
	f := newFixture(t)
	input := spaceCall("g/ghost", "mary")
	input.OwnerID = "ghost"

	call, err := f.svc.AddCall(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, domain.IdentityChatRoom, call.Owner.Type)
	assert.True(t, call.IsGroup())
}

func TestAddCall_ValidationOrder(t *testing.T) {
	long := strings.Repeat("x", 256)
	tests := []struct {
		name  string
		edit  func(in *AddCallInput)
		field string
	}{
		{"missing id", func(in *AddCallInput) { in.ID = "" }, "id"},
		{"long id", func(in *AddCallInput) { in.ID = long }, "id"},
		{"id before owner", func(in *AddCallInput) { in.ID = ""; in.OwnerID = "" }, "id"},
		{"missing owner", func(in *AddCallInput) { in.OwnerID = ""; in.ProviderType = "" }, "owner_id"},
		{"long owner type", func(in *AddCallInput) { in.OwnerType = strings.Repeat("u", 33) }, "owner_type"},
		{"unknown owner type", func(in *AddCallInput) { in.OwnerType = "team" }, "owner_type"},
		{"missing provider", func(in *AddCallInput) { in.ProviderType = ""; in.Title = long }, "provider_type"},
		{"long title", func(in *AddCallInput) { in.Title = long }, "title"},
		{"empty participant", func(in *AddCallInput) { in.Participants = []string{"mary", ""} }, "participants[1]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			input := spaceCall("g/valid", "mary", "john")
			tt.edit(input)

			_, err := f.svc.AddCall(context.Background(), input)

			require.Error(t, err)
			appErr := apperrors.GetAppError(err)
			assert.Equal(t, apperrors.ErrCodeCallArgument, appErr.Code)
			assert.Equal(t, map[string]string{"field": tt.field}, appErr.Details)

			summaries, err := f.svc.GetUserCalls(context.Background(), "mary")
			require.NoError(t, err)
			assert.Empty(t, summaries)
		})
	}
}

func TestAddCall_GroupNotifiesEveryoneButCreator(t *testing.T) {
	f := newFixture(t)
	mary := f.listen("mary", "m1")
	john := f.listen("john", "j1")

	_, err := f.svc.AddCall(as("mary"), spaceCall("g/marketing", "mary", "john"))
	require.NoError(t, err)

	assert.Empty(t, mary.Events())
	require.Len(t, john.Events(), 1)
	event := john.Last()
	assert.Equal(t, domain.EventCallState, event.Type)
	assert.Equal(t, "g/marketing", event.CallID)
	assert.Equal(t, domain.CallStarted, event.State)
	assert.Equal(t, "marketing", event.OwnerID)
	assert.Equal(t, domain.IdentitySpace, event.OwnerType)
	assert.Equal(t, "webrtc", event.ProviderType)
}

func TestAddCall_P2PNotifiesOtherParticipant(t *testing.T) {
	f := newFixture(t)
	mary := f.listen("mary", "m1")
	john := f.listen("john", "j1")

	_, err := f.svc.AddCall(as("mary"), p2pCall("p/mary@john"))
	require.NoError(t, err)

	assert.Empty(t, mary.Events())
	require.Len(t, john.Events(), 1)
	assert.Equal(t, domain.IdentityUser, john.Last().OwnerType)
}

func TestAddCall_GroupReplacesPreviousCall(t *testing.T) {
	f := newFixture(t)
	ctx := as("mary")

	_, err := f.svc.AddCall(ctx, spaceCall("g/marketing-1", "mary", "john"))
	require.NoError(t, err)
	_, err = f.svc.AddCall(ctx, spaceCall("g/marketing-2", "mary", "john"))
	require.NoError(t, err)

	_, err = f.svc.GetCall(ctx, "g/marketing-1")
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeCallNotFound))

	got, err := f.svc.GetCall(ctx, "g/marketing-2")
	require.NoError(t, err)
	assert.Equal(t, domain.CallStarted, got.State)
}

func TestAddCall_GroupDuplicateConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := as("mary")

	_, err := f.svc.AddCall(ctx, spaceCall("g/marketing", "mary", "john"))
	require.NoError(t, err)

	_, err = f.svc.AddCall(ctx, spaceCall("g/marketing", "mary", "john"))
	reason, ok := apperrors.ConflictReasonOf(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ReasonAlreadyStarted, reason)

	_, err = f.svc.JoinCall(ctx, "g/marketing", "john", "j1")
	require.NoError(t, err)
	f.listen("john", "j1")

	_, err = f.svc.AddCall(ctx, spaceCall("g/marketing", "mary", "john"))
	reason, ok = apperrors.ConflictReasonOf(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ReasonAlreadyRunning, reason)

	_, err = f.svc.StopCall(ctx, "g/marketing", false)
	require.NoError(t, err)

	_, err = f.svc.AddCall(ctx, spaceCall("g/marketing", "mary", "john"))
	reason, ok = apperrors.ConflictReasonOf(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ReasonAlreadyCreated, reason)
}

func TestAddCall_P2PReplacesIdleCall(t *testing.T) {
	f := newFixture(t)
	ctx := as("mary")

	_, err := f.svc.AddCall(ctx, p2pCall("p/mary@john"))
	require.NoError(t, err)
	_, err = f.svc.StartCall(ctx, "p/mary@john", "m1")
	require.NoError(t, err)

	call, err := f.svc.AddCall(ctx, p2pCall("p/mary@john"))
	require.NoError(t, err)
	assert.Equal(t, domain.ParticipantNone, call.Participant("mary").State)

	got, err := f.svc.GetCall(ctx, "p/mary@john")
	require.NoError(t, err)
	assert.Empty(t, got.Participant("mary").ClientID)
}

func TestAddCall_P2PRunningCallConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := as("mary")

	_, err := f.svc.AddCall(ctx, p2pCall("p/mary@john"))
	require.NoError(t, err)
	_, err = f.svc.StartCall(ctx, "p/mary@john", "m1")
	require.NoError(t, err)
	f.listen("mary", "m1")

	_, err = f.svc.AddCall(ctx, p2pCall("p/mary@john"))
	reason, ok := apperrors.ConflictReasonOf(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ReasonAlreadyRunning, reason)

	got, err := f.svc.GetCall(ctx, "p/mary@john")
	require.NoError(t, err)
	assert.Equal(t, "m1", got.Participant("mary").ClientID)
}

func TestAddCall_P2PErroneousCallIsReplaced(t *testing.T) {
	f := newFixture(t)
	f.insert(t, &repository.CallRecord{
		ID: "p/broken", OwnerID: "mary", OwnerType: "team", ProviderType: "webrtc",
		State: "started", LastDate: time.Now(), IsUser: true,
	})

	_, err := f.svc.AddCall(as("mary"), p2pCall("p/broken"))
	require.NoError(t, err)
}

func TestAddCall_ConcurrentCreatorsOneWins(t *testing.T) {
	f := newFixture(t)
	const creators = 6

	var wg sync.WaitGroup
	errs := make([]error, creators)
	for i := 0; i < creators; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.AddCall(as("mary"), spaceCall("g/race", "mary", "john"))
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		reason, ok := apperrors.ConflictReasonOf(err)
		require.True(t, ok, "unexpected error: %v", err)
		assert.Equal(t, apperrors.ReasonAlreadyStarted, reason)
	}
	assert.Equal(t, 1, succeeded)

	got, err := f.svc.GetCall(context.Background(), "g/race")
	require.NoError(t, err)
	assert.Equal(t, domain.CallStarted, got.State)
}

func TestAddCall_IdentityFailure(t *testing.T) {
	f := newFixture(t)
	f.dir.fail(errors.New("directory unavailable"))

	_, err := f.svc.AddCall(context.Background(), p2pCall("p/mary@john"))

	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeIdentity))
}

func TestGetCall_NotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.GetCall(context.Background(), "missing")
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeCallNotFound))

	_, err = f.svc.GetCall(context.Background(), "")
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeCallArgument))
}

func TestGetCall_InvalidRecordIsWrapped(t *testing.T) {
	f := newFixture(t)
	f.insert(t, &repository.CallRecord{
		ID: "r/corrupt", OwnerID: "room", OwnerType: domain.IdentityChatRoom, ProviderType: "webrtc",
		State: "started", LastDate: time.Now(), IsGroup: true, Settings: `{"roomTitle":`,
	})
	f.insert(t, &repository.CallRecord{
		ID: "x/unknown", OwnerID: "team", OwnerType: "team", ProviderType: "webrtc",
		State: "started", LastDate: time.Now(),
	})

	for _, id := range []string{"r/corrupt", "x/unknown"} {
		_, err := f.svc.GetCall(context.Background(), id)
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInvalidCall), id)
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeCallSettings), id)
	}
}

func TestGetCall_IdentityFailureIsWrapped(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.AddCall(context.Background(), p2pCall("p/mary@john"))
	require.NoError(t, err)

	f.dir.fail(errors.New("directory unavailable"))
	_, err = f.svc.GetCall(context.Background(), "p/mary@john")

	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInvalidCall))
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeIdentity))
}

func TestStartThenJoin(t *testing.T) {
	f := newFixture(t)
	ctx := as("mary")
	_, err := f.svc.AddCall(ctx, spaceCall("g/marketing", "mary", "john", "ann"))
	require.NoError(t, err)
	ann := f.listen("ann", "a1")

	started, err := f.svc.StartCall(ctx, "g/marketing", "m1")
	require.NoError(t, err)
	assert.Equal(t, domain.ParticipantJoined, started.Participant("mary").State)
	assert.Equal(t, "m1", started.Participant("mary").ClientID)
	assert.Equal(t, domain.ParticipantLeaved, started.Participant("john").State)
	assert.Equal(t, domain.ParticipantLeaved, started.Participant("ann").State)

	_, err = f.svc.JoinCall(as("john"), "g/marketing", "john", "j1")
	require.NoError(t, err)

	got, err := f.svc.GetCall(ctx, "g/marketing")
	require.NoError(t, err)
	assert.Equal(t, domain.ParticipantJoined, got.Participant("mary").State)
	assert.Equal(t, domain.ParticipantJoined, got.Participant("john").State)
	assert.Equal(t, "j1", got.Participant("john").ClientID)
	assert.Equal(t, domain.ParticipantLeaved, got.Participant("ann").State)

	last := ann.Last()
	assert.Equal(t, domain.EventPartJoined, last.Type)
	assert.Equal(t, "john", last.PartID)
}

func TestJoinCall_UnknownParticipant(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.AddCall(as("mary"), spaceCall("g/marketing", "mary", "guest"))
	require.NoError(t, err)

	_, err = f.svc.JoinCall(context.Background(), "g/marketing", "guest", "g1")
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeParticipantNotFound))

	_, err = f.svc.JoinCall(context.Background(), "missing", "mary", "m1")
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeCallNotFound))
}

func (d *fakeDirectory) forget(id string) domain.Identity {
	d.mu.Lock()
	defer d.mu.Unlock()
	u := d.users[id]
	delete(d.users, id)
	return u
}

func (d *fakeDirectory) restore(u domain.Identity) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users[u.ID] = u
}

func TestStartCall_KeepsUserTypeWhileDirectoryMissesParticipant(t *testing.T) {
	f := newFixture(t)
	ctx := as("mary")
	_, err := f.svc.AddCall(ctx, spaceCall("g/marketing", "mary", "john"))
	require.NoError(t, err)

	john := f.dir.forget("john")
	_, err = f.svc.StartCall(ctx, "g/marketing", "m1")
	require.NoError(t, err)
	f.dir.restore(john)

	require.NoError(t, f.store.WithinTx(context.Background(), func(ctx context.Context, tx repository.CallTx) error {
		parts, err := tx.FindParticipants(ctx, "g/marketing")
		require.NoError(t, err)
		for _, p := range parts {
			assert.Equal(t, domain.IdentityUser, p.Type, p.ID)
		}
		return nil
	}))

	call, err := f.svc.JoinCall(as("john"), "g/marketing", "john", "j1")
	require.NoError(t, err)
	assert.Equal(t, domain.IdentityUser, call.Participant("john").Type)
	assert.Equal(t, domain.ParticipantJoined, call.Participant("john").State)
}

func TestJoinCall_StoppedCallRestarts(t *testing.T) {
	f := newFixture(t)
	ctx := as("mary")
	_, err := f.svc.AddCall(ctx, spaceCall("g/marketing", "mary", "john"))
	require.NoError(t, err)
	_, err = f.svc.StartCall(ctx, "g/marketing", "m1")
	require.NoError(t, err)
	_, err = f.svc.StopCall(ctx, "g/marketing", false)
	require.NoError(t, err)
	mary := f.listen("mary", "m1")

	call, err := f.svc.JoinCall(as("john"), "g/marketing", "john", "j1")
	require.NoError(t, err)

	assert.Equal(t, domain.CallStarted, call.State)
	assert.Equal(t, domain.ParticipantJoined, call.Participant("john").State)
	assert.Equal(t, domain.ParticipantLeaved, call.Participant("mary").State)
	assert.Empty(t, call.Participant("mary").ClientID)
	assert.Equal(t, domain.CallStarted, mary.Last().State)
}

func TestLeaveCall_OtherClientIsIgnored(t *testing.T) {
	f := newFixture(t)
	ctx := as("mary")
	_, err := f.svc.AddCall(ctx, spaceCall("g/marketing", "mary", "john"))
	require.NoError(t, err)
	_, err = f.svc.StartCall(ctx, "g/marketing", "m1")
	require.NoError(t, err)
	john := f.listen("john", "j1")

	_, err = f.svc.LeaveCall(ctx, "g/marketing", "mary", "m-old")
	require.NoError(t, err)

	assert.Empty(t, john.Events())
	got, err := f.svc.GetCall(ctx, "g/marketing")
	require.NoError(t, err)
	assert.Equal(t, domain.ParticipantJoined, got.Participant("mary").State)
	assert.Equal(t, "m1", got.Participant("mary").ClientID)
	assert.Equal(t, domain.CallStarted, got.State)
}

func TestLeaveCall_P2PRemovesCall(t *testing.T) {
	f := newFixture(t)
	ctx := as("mary")
	_, err := f.svc.AddCall(ctx, p2pCall("p/mary@john"))
	require.NoError(t, err)
	_, err = f.svc.StartCall(ctx, "p/mary@john", "m1")
	require.NoError(t, err)
	john := f.listen("john", "j1")

	_, err = f.svc.LeaveCall(ctx, "p/mary@john", "mary", "m1")
	require.NoError(t, err)

	events := john.Events()
	require.Len(t, events, 2)
	assert.Equal(t, domain.EventPartLeaved, events[0].Type)
	assert.Equal(t, "mary", events[0].PartID)
	assert.Equal(t, domain.EventCallState, events[1].Type)
	assert.Equal(t, domain.CallStopped, events[1].State)

	_, err = f.svc.GetCall(ctx, "p/mary@john")
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeCallNotFound))
}

func TestLeaveCall_GroupStopsWhenEveryoneLeft(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.AddCall(as("mary"), spaceCall("g/marketing", "mary", "john", "ann"))
	require.NoError(t, err)
	_, err = f.svc.StartCall(as("mary"), "g/marketing", "m1")
	require.NoError(t, err)
	_, err = f.svc.JoinCall(as("john"), "g/marketing", "john", "j1")
	require.NoError(t, err)
	_, err = f.svc.JoinCall(as("ann"), "g/marketing", "ann", "a1")
	require.NoError(t, err)

	_, err = f.svc.LeaveCall(as("john"), "g/marketing", "john", "j1")
	require.NoError(t, err)
	call, err := f.svc.LeaveCall(as("ann"), "g/marketing", "ann", "a1")
	require.NoError(t, err)
	assert.Equal(t, domain.CallStarted, call.State)

	call, err = f.svc.LeaveCall(as("mary"), "g/marketing", "mary", "m1")
	require.NoError(t, err)
	assert.Equal(t, domain.CallStopped, call.State)

	got, err := f.svc.GetCall(context.Background(), "g/marketing")
	require.NoError(t, err)
	assert.Equal(t, domain.CallStopped, got.State)
}

func TestLeaveCall_MissingCallIsSoft(t *testing.T) {
	f := newFixture(t)

	call, err := f.svc.LeaveCall(context.Background(), "missing", "mary", "m1")

	assert.NoError(t, err)
	assert.Nil(t, call)
}

func TestStopCall_Notifications(t *testing.T) {
	f := newFixture(t)
	ctx := as("mary")
	mary := f.listen("mary", "m1")
	john := f.listen("john", "j1")

	_, err := f.svc.AddCall(ctx, spaceCall("g/marketing", "mary", "john"))
	require.NoError(t, err)
	_, err = f.svc.StopCall(ctx, "g/marketing", false)
	require.NoError(t, err)
	assert.Equal(t, domain.CallStopped, mary.Last().State)
	assert.Equal(t, domain.CallStopped, john.Last().State)

	before := len(mary.Events())
	_, err = f.svc.StopCall(ctx, "g/marketing", true)
	require.NoError(t, err)
	assert.Len(t, mary.Events(), before)
	assert.Equal(t, domain.CallStopped, john.Last().State)

	_, err = f.svc.StopCall(ctx, "g/marketing", true)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeCallNotFound))
}

func TestStopCall_AnonymousRemovalNotifiesEveryone(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.AddCall(as("mary"), spaceCall("g/marketing", "mary", "john"))
	require.NoError(t, err)
	mary := f.listen("mary", "m1")

	_, err = f.svc.StopCall(context.Background(), "g/marketing", true)
	require.NoError(t, err)

	assert.Equal(t, domain.CallStopped, mary.Last().State)
}

func TestGetUserCalls(t *testing.T) {
	f := newFixture(t)
	ctx := as("mary")
	_, err := f.svc.AddCall(ctx, spaceCall("g/marketing", "mary", "john"))
	require.NoError(t, err)
	_, err = f.svc.AddCall(ctx, &AddCallInput{
		ID: "r/room", OwnerID: "room", OwnerType: domain.IdentityChatRoom, ProviderType: "webrtc",
		Title: "Room", Participants: []string{"john"},
	})
	require.NoError(t, err)
	_, err = f.svc.StopCall(ctx, "r/room", false)
	require.NoError(t, err)
	_, err = f.svc.AddCall(ctx, p2pCall("p/mary@john"))
	require.NoError(t, err)
	f.insert(t, &repository.CallRecord{
		ID: "r/corrupt", OwnerID: "other", OwnerType: domain.IdentityChatRoom, ProviderType: "webrtc",
		LastDate: time.Now(), IsGroup: true,
	}, &repository.ParticipantRecord{ID: "john", CallID: "r/corrupt", Type: domain.IdentityUser})

	calls, err := f.svc.GetUserCalls(ctx, "john")
	require.NoError(t, err)

	assert.ElementsMatch(t, []domain.CallSummary{
		{ID: "g/marketing", State: domain.CallStarted},
		{ID: "r/room", State: domain.CallStopped},
	}, calls)
}

func TestStartupSweep(t *testing.T) {
	f := newFixture(t)
	f.insert(t, &repository.CallRecord{
		ID: "p/old", OwnerID: "mary", OwnerType: domain.IdentityUser, ProviderType: "webrtc",
		State: "started", LastDate: time.Now().AddDate(0, 0, -30), IsUser: true,
	})
	_, err := f.svc.AddCall(context.Background(), spaceCall("g/marketing", "mary"))
	require.NoError(t, err)

	f.svc.WithUserCallMaxAge(14).StartupSweep(context.Background())

	_, err = f.svc.GetCall(context.Background(), "p/old")
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeCallNotFound))
	_, err = f.svc.GetCall(context.Background(), "g/marketing")
	assert.NoError(t, err)
}
