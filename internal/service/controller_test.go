package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainauth "github.com/clika/admin-api/internal/domain/auth"
	apperrors "github.com/clika/admin-api/internal/errors"
	mockauth "github.com/clika/admin-api/internal/mocks/auth"
)

func newTestController(t *testing.T, client *mockauth.MockAuthClient, store *mockauth.MemoryProfileStore) *AuthController {
	t.Helper()
	c := NewAuthController(AuthControllerOptions{
		Client:   client,
		Resolver: NewProfileResolver(store, nil),
	})
	t.Cleanup(c.Close)
	return c
}

func testIdentity(id, email string) *domainauth.Identity {
	return &domainauth.Identity{ID: id, Email: email}
}

func TestAuthController_Initialize_NoPersistedSession(t *testing.T) {
	client := mockauth.NewMockAuthClient()
	store := mockauth.NewMemoryProfileStore()
	c := newTestController(t, client, store)

	state := c.Initialize(context.Background())

	assert.True(t, state.Initialized)
	assert.False(t, state.Loading)
	assert.Nil(t, state.Identity)
	assert.Nil(t, state.Profile)
	assert.NoError(t, state.Err)
}

func TestAuthController_Initialize_RestoresPersistedSession(t *testing.T) {
	client := mockauth.NewMockAuthClient()
	client.PersistedSession = mockauth.TestSession("tok-1")
	client.PersistedIdentity = testIdentity("u-1", "alice@clika.gg")
	store := mockauth.NewMemoryProfileStore()
	c := newTestController(t, client, store)

	state := c.Initialize(context.Background())

	assert.True(t, state.Initialized)
	require.NotNil(t, state.Identity)
	assert.Equal(t, "u-1", state.Identity.ID)
	require.NotNil(t, state.Profile)
	assert.Equal(t, "alice", state.Profile.DisplayName)
	assert.Equal(t, domainauth.RoleReviewer, state.Profile.Role)
	assert.Equal(t, 1, store.InsertCalls)
}

func TestAuthController_Initialize_RestoreError(t *testing.T) {
	client := mockauth.NewMockAuthClient()
	client.GetPersistedSessionFunc = func(context.Context) (*domainauth.Session, *domainauth.Identity, error) {
		return nil, nil, errors.New("gotrue unreachable")
	}
	c := newTestController(t, client, mockauth.NewMemoryProfileStore())

	state := c.Initialize(context.Background())

	assert.True(t, state.Initialized)
	assert.Nil(t, state.Identity)
	assert.True(t, apperrors.IsTransport(state.Err))
}

func TestAuthController_Initialize_TimeoutNeverHangs(t *testing.T) {
	release := make(chan struct{})
	client := mockauth.NewMockAuthClient()
	client.GetPersistedSessionFunc = func(ctx context.Context) (*domainauth.Session, *domainauth.Identity, error) {
		<-release
		return mockauth.TestSession("tok-late"), testIdentity("u-late", "late@clika.gg"), nil
	}
	store := mockauth.NewMemoryProfileStore()

	c := NewAuthController(AuthControllerOptions{
		Client:      client,
		Resolver:    NewProfileResolver(store, nil),
		InitTimeout: 30 * time.Millisecond,
	})
	t.Cleanup(c.Close)

	start := time.Now()
	state := c.Initialize(context.Background())

	assert.Less(t, time.Since(start), time.Second)
	assert.True(t, state.Initialized)
	assert.Nil(t, state.Identity)
	assert.True(t, apperrors.IsTimeout(state.Err))

	// The restore resolving after the deadline must not resurrect the session.
	close(release)
	time.Sleep(50 * time.Millisecond)
	assert.Nil(t, c.State().Identity)
}

func TestAuthController_SignOutDuringSlowRestoreWins(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	client := mockauth.NewMockAuthClient()
	client.GetPersistedSessionFunc = func(ctx context.Context) (*domainauth.Session, *domainauth.Identity, error) {
		close(started)
		<-release
		return mockauth.TestSession("tok-stale"), testIdentity("u-stale", "stale@clika.gg"), nil
	}
	store := mockauth.NewMemoryProfileStore()

	c := NewAuthController(AuthControllerOptions{
		Client:      client,
		Resolver:    NewProfileResolver(store, nil),
		InitTimeout: 2 * time.Second,
	})
	t.Cleanup(c.Close)

	done := make(chan domainauth.State, 1)
	go func() { done <- c.Initialize(context.Background()) }()
	<-started

	// The user signs out while the restore is still in flight. The restore
	// result is now stale and must not resurrect the session.
	require.NoError(t, c.SignOut(context.Background()))
	assert.Nil(t, c.State().Identity)

	close(release)
	state := <-done

	assert.True(t, state.Initialized)
	assert.Nil(t, state.Identity)
	assert.Nil(t, c.State().Identity)
}

func TestAuthController_Initialize_SecondCallIsNoop(t *testing.T) {
	calls := 0
	client := mockauth.NewMockAuthClient()
	client.GetPersistedSessionFunc = func(context.Context) (*domainauth.Session, *domainauth.Identity, error) {
		calls++
		return nil, nil, nil
	}
	c := newTestController(t, client, mockauth.NewMemoryProfileStore())

	c.Initialize(context.Background())
	c.Initialize(context.Background())

	assert.Equal(t, 1, calls)
}

func TestAuthController_SignIn_InvalidCredentials(t *testing.T) {
	client := mockauth.NewMockAuthClient()
	client.SignInWithPasswordFunc = func(context.Context, string, string) error {
		return apperrors.InvalidCredentials("bad email or password")
	}
	c := newTestController(t, client, mockauth.NewMemoryProfileStore())
	c.Initialize(context.Background())

	err := c.SignIn(context.Background(), "alice@clika.gg", "wrong")

	assert.True(t, apperrors.IsInvalidCredentials(err))
	state := c.State()
	assert.False(t, state.Loading)
	assert.Nil(t, state.Identity)
}

func TestAuthController_SignIn_EmailNotConfirmed(t *testing.T) {
	client := mockauth.NewMockAuthClient()
	client.SignInWithPasswordFunc = func(context.Context, string, string) error {
		return apperrors.EmailNotConfirmed("confirm your email before signing in")
	}
	c := newTestController(t, client, mockauth.NewMemoryProfileStore())
	c.Initialize(context.Background())

	err := c.SignIn(context.Background(), "alice@clika.gg", "secret")

	assert.True(t, apperrors.IsEmailNotConfirmed(err))
	assert.False(t, apperrors.IsInvalidCredentials(err))
}

func TestAuthController_SignIn_PopulatesStateThroughEvent(t *testing.T) {
	client := mockauth.NewMockAuthClient()
	client.EmitOnPasswordSignIn = &domainauth.Event{
		Kind:     domainauth.EventSignedIn,
		Session:  mockauth.TestSession("tok-2"),
		Identity: testIdentity("u-2", "bob@clika.gg"),
	}
	store := mockauth.NewMemoryProfileStore()
	c := newTestController(t, client, store)
	c.Initialize(context.Background())

	require.NoError(t, c.SignIn(context.Background(), "bob@clika.gg", "secret"))

	require.Eventually(t, func() bool {
		s := c.State()
		return s.Identity != nil && s.Profile != nil
	}, time.Second, 5*time.Millisecond)

	state := c.State()
	assert.Equal(t, "u-2", state.Identity.ID)
	assert.False(t, state.Loading)
	assert.Equal(t, 1, store.InsertCalls)
}

func TestAuthController_SignOut_ClearsStateEvenOnBackendFailure(t *testing.T) {
	client := mockauth.NewMockAuthClient()
	client.PersistedSession = mockauth.TestSession("tok-3")
	client.PersistedIdentity = testIdentity("u-3", "carol@clika.gg")
	client.SignOutFunc = func(context.Context) error {
		return errors.New("gotrue 500")
	}
	c := newTestController(t, client, mockauth.NewMemoryProfileStore())
	c.Initialize(context.Background())
	require.NotNil(t, c.State().Identity)

	err := c.SignOut(context.Background())

	assert.Error(t, err)
	state := c.State()
	assert.Nil(t, state.Identity)
	assert.Nil(t, state.Session)
	assert.Nil(t, state.Profile)
	assert.True(t, state.Initialized)
}

func TestAuthController_DuplicateStartupEventsCoalesce(t *testing.T) {
	client := mockauth.NewMockAuthClient()
	store := mockauth.NewMemoryProfileStore()
	store.InsertDelay = 100 * time.Millisecond
	c := newTestController(t, client, store)
	c.Initialize(context.Background())

	ev := domainauth.Event{
		Kind:     domainauth.EventInitialSession,
		Session:  mockauth.TestSession("tok-4"),
		Identity: testIdentity("u-4", "dave@clika.gg"),
	}
	client.Emit(ev)
	time.Sleep(20 * time.Millisecond)
	ev.Kind = domainauth.EventSignedIn
	client.Emit(ev)

	require.Eventually(t, func() bool {
		return c.State().Profile != nil
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, 1, store.InsertCalls)
	assert.Equal(t, 1, store.Count())
}

func TestAuthController_SignOutWinsOverSlowSignIn(t *testing.T) {
	client := mockauth.NewMockAuthClient()
	store := mockauth.NewMemoryProfileStore()
	store.InsertDelay = 100 * time.Millisecond
	c := newTestController(t, client, store)
	c.Initialize(context.Background())

	client.Emit(domainauth.Event{
		Kind:     domainauth.EventSignedIn,
		Session:  mockauth.TestSession("tok-5"),
		Identity: testIdentity("u-5", "eve@clika.gg"),
	})
	time.Sleep(20 * time.Millisecond)
	client.Emit(domainauth.Event{Kind: domainauth.EventSignedOut})

	// Allow the slow reconciliation to finish and attempt publication.
	time.Sleep(200 * time.Millisecond)

	state := c.State()
	assert.Nil(t, state.Identity)
	assert.Nil(t, state.Profile)
	assert.True(t, state.Initialized)
}

func TestAuthController_RefreshWithSameTokenSkipsResolve(t *testing.T) {
	client := mockauth.NewMockAuthClient()
	client.PersistedSession = mockauth.TestSession("tok-6")
	client.PersistedIdentity = testIdentity("u-6", "frank@clika.gg")
	store := mockauth.NewMemoryProfileStore()
	c := newTestController(t, client, store)
	c.Initialize(context.Background())
	gets := store.GetCalls

	client.Emit(domainauth.Event{
		Kind:     domainauth.EventTokenRefreshed,
		Session:  client.PersistedSession,
		Identity: client.PersistedIdentity,
	})

	require.Eventually(t, func() bool {
		return c.State().Profile != nil
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, gets, store.GetCalls)
}

func TestAuthController_ProfileResolutionFailureKeepsIdentity(t *testing.T) {
	client := mockauth.NewMockAuthClient()
	client.PersistedSession = mockauth.TestSession("tok-7")
	client.PersistedIdentity = testIdentity("u-7", "grace@clika.gg")
	store := mockauth.NewMemoryProfileStore()
	store.FailGet = apperrors.Transport("profiles table unreachable")
	c := newTestController(t, client, store)

	state := c.Initialize(context.Background())

	require.NotNil(t, state.Identity)
	assert.Nil(t, state.Profile)
	assert.True(t, apperrors.IsTransport(state.Err))
	assert.True(t, state.Initialized)
}

func TestAuthController_UpdateProfile_RequiresAuthentication(t *testing.T) {
	c := newTestController(t, mockauth.NewMockAuthClient(), mockauth.NewMemoryProfileStore())
	c.Initialize(context.Background())

	name := "New Name"
	_, err := c.UpdateProfile(context.Background(), domainauth.ProfilePatch{DisplayName: &name})

	assert.True(t, apperrors.IsNotAuthenticated(err))
}

func TestAuthController_UpdateProfile_RepublishesMergedProfile(t *testing.T) {
	client := mockauth.NewMockAuthClient()
	client.PersistedSession = mockauth.TestSession("tok-8")
	client.PersistedIdentity = testIdentity("u-8", "heidi@clika.gg")
	store := mockauth.NewMemoryProfileStore()
	c := newTestController(t, client, store)
	c.Initialize(context.Background())

	name := "Heidi H"
	updated, err := c.UpdateProfile(context.Background(), domainauth.ProfilePatch{DisplayName: &name})

	require.NoError(t, err)
	assert.Equal(t, "Heidi H", updated.DisplayName)
	require.NotNil(t, c.State().Profile)
	assert.Equal(t, "Heidi H", c.State().Profile.DisplayName)
}

func TestAuthController_Watch_DeliversLatestSnapshot(t *testing.T) {
	client := mockauth.NewMockAuthClient()
	c := newTestController(t, client, mockauth.NewMemoryProfileStore())

	ch, cancel := c.Watch()
	defer cancel()

	first := <-ch
	assert.False(t, first.Initialized)

	c.Initialize(context.Background())

	require.Eventually(t, func() bool {
		select {
		case s := <-ch:
			return s.Initialized
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
}

func TestAuthController_Close_Unsubscribes(t *testing.T) {
	client := mockauth.NewMockAuthClient()
	c := NewAuthController(AuthControllerOptions{
		Client:   client,
		Resolver: NewProfileResolver(mockauth.NewMemoryProfileStore(), nil),
	})
	require.Equal(t, 1, client.SubscriberCount())

	c.Close()

	assert.Equal(t, 0, client.SubscriberCount())
}
