package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	domainauth "github.com/clika/admin-api/internal/domain/auth"
	apperrors "github.com/clika/admin-api/internal/errors"
	"github.com/clika/admin-api/internal/ports"
)

// DefaultInitTimeout bounds session restore at startup. Initialization never
// hangs: past this deadline the controller force-resolves to a logged-out,
// initialized state.
const DefaultInitTimeout = 10 * time.Second

// AuthControllerOptions groups dependencies for AuthController.
type AuthControllerOptions struct {
	Client      ports.AuthClient
	Resolver    *ProfileResolver
	InitTimeout time.Duration // defaults to DefaultInitTimeout when zero
	Logger      *slog.Logger
}

// AuthController is the single source of truth for "who is logged in and
// with what role". It reconciles concurrent event sources (initial load,
// explicit user actions, and push notifications from the auth backend)
// into one atomically published State snapshot.
//
// Every session transition runs through the same reconciliation path.
// Reconciliations are tagged with a monotonically increasing sequence number
// taken at event receipt; a slow reconciliation that finishes after newer
// state has been published is discarded (last-write-wins by event recency,
// not completion order).
type AuthController struct {
	client      ports.AuthClient
	resolver    *ProfileResolver
	initTimeout time.Duration
	logger      *slog.Logger

	seq atomic.Uint64 // reconciliation sequence, assigned at event receipt

	state atomic.Pointer[domainauth.State]

	mu          sync.Mutex // guards the fields below
	published   uint64     // sequence of the currently published snapshot
	initialized bool       // sticky once true
	inflight    map[reconcileKey]*inflightReconcile
	watchers    map[int]chan domainauth.State
	nextWatcher int
	closed      bool

	unsubscribe func()
	initOnce    sync.Once
}

// reconcileKey identifies a reconciliation target. Duplicate events for the
// same identity and token coalesce onto one in-flight reconciliation.
type reconcileKey struct {
	userID      string
	accessToken string
}

type inflightReconcile struct {
	latestSeq uint64 // newest sequence claimed by this reconciliation
	event     domainauth.Event
}

// NewAuthController constructs an AuthController and subscribes it to the
// auth client's session-change stream. Call Close to tear the subscription
// down.
func NewAuthController(opts AuthControllerOptions) *AuthController {
	timeout := opts.InitTimeout
	if timeout <= 0 {
		timeout = DefaultInitTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	c := &AuthController{
		client:      opts.Client,
		resolver:    opts.Resolver,
		initTimeout: timeout,
		logger:      logger,
		inflight:    make(map[reconcileKey]*inflightReconcile),
		watchers:    make(map[int]chan domainauth.State),
	}
	c.state.Store(&domainauth.State{})
	c.unsubscribe = opts.Client.Subscribe(c.handleEvent)
	return c
}

// State returns the current published snapshot.
func (c *AuthController) State() domainauth.State {
	return *c.state.Load()
}

// Watch returns a channel of state snapshots (primed with the current one)
// and a cancel function. Delivery is latest-wins: a slow consumer sees the
// newest snapshot, not every intermediate one.
func (c *AuthController) Watch() (<-chan domainauth.State, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextWatcher
	c.nextWatcher++
	ch := make(chan domainauth.State, 1)
	ch <- *c.state.Load()
	c.watchers[id] = ch

	return ch, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if _, ok := c.watchers[id]; ok {
			delete(c.watchers, id)
		}
	}
}

// Initialize restores any persisted session, resolving within the configured
// timeout. It is safe to call more than once; only the first call does work.
// Whatever the outcome (session found, none found, backend error, timeout)
// the controller ends up initialized; errors are recorded on the state,
// never raised.
func (c *AuthController) Initialize(ctx context.Context) domainauth.State {
	c.initOnce.Do(func() { c.initialize(ctx) })
	return c.State()
}

func (c *AuthController) initialize(parent context.Context) {
	c.publish(c.seq.Add(1), func(prev domainauth.State) domainauth.State {
		prev.Loading = true
		return prev
	})

	// The restore claims its sequence here, at receipt, like every other
	// event. A sign-out or backend event that lands while the restore is
	// still in flight claims a newer sequence and outranks the result.
	restoreSeq := c.seq.Add(1)

	ctx, cancel := context.WithTimeout(parent, c.initTimeout)
	defer cancel()

	resCh := make(chan restoreResult, 1)
	go func() {
		sess, identity, err := c.client.GetPersistedSession(ctx)
		resCh <- restoreResult{sess, identity, err}
	}()

	finish := func(res restoreResult) {
		switch {
		case res.err != nil:
			c.logger.Warn("session restore failed; starting logged out", "error", res.err)
			c.publishLoggedOut(restoreSeq,
				apperrors.Wrap(res.err, apperrors.ErrCodeTransport, "session restore failed"))
		case res.sess == nil:
			c.publishLoggedOut(restoreSeq, nil)
		default:
			c.reconcile(ctx, restoreSeq, domainauth.Event{
				Kind:     domainauth.EventInitialSession,
				Session:  res.sess,
				Identity: res.identity,
			})
		}
	}

	select {
	case res := <-resCh:
		finish(res)
	case <-ctx.Done():
		// The timeout path must never overwrite a result that already
		// arrived, even when both were ready at the same instant.
		select {
		case res := <-resCh:
			finish(res)
		default:
			c.logger.Warn("session restore timed out; starting logged out",
				"timeout", c.initTimeout)
			c.publishLoggedOut(restoreSeq,
				apperrors.Timeout("session restore timed out"))
			go c.drainLateRestore(resCh)
		}
	}
}

// restoreResult carries the outcome of a persisted-session restore call.
type restoreResult struct {
	sess     *domainauth.Session
	identity *domainauth.Identity
	err      error
}

// drainLateRestore consumes a restore result that lost the timeout race.
// The timeout publication stands; the stale result is discarded.
func (c *AuthController) drainLateRestore(resCh <-chan restoreResult) {
	res := <-resCh
	if res.err == nil && res.sess != nil && res.identity != nil {
		c.logger.Warn("persisted session resolved after init timeout; discarded",
			"user_id", res.identity.ID)
	}
}

// SignIn checks credentials against the backend. On success, state is
// populated by the resulting SIGNED_IN event rather than here, so the same
// transition is never applied twice. On failure the typed error is returned
// verbatim and prior state is left untouched.
func (c *AuthController) SignIn(ctx context.Context, email, password string) error {
	if email == "" || password == "" {
		return apperrors.InvalidCredentials("email and password are required")
	}

	c.publish(c.seq.Add(1), func(prev domainauth.State) domainauth.State {
		prev.Loading = true
		prev.Err = nil
		return prev
	})

	if err := c.client.SignInWithPassword(ctx, email, password); err != nil {
		c.publish(c.seq.Add(1), func(prev domainauth.State) domainauth.State {
			prev.Loading = false
			return prev
		})
		return err
	}
	return nil
}

// SignInWithProvider begins a redirect-based OAuth flow and returns the
// provider authorize URL. Completion arrives through the event stream after
// the external callback, never through this call's return value.
func (c *AuthController) SignInWithProvider(ctx context.Context, provider, redirectURL string) (string, error) {
	if provider == "" {
		return "", apperrors.Validation("provider is required")
	}
	authURL, err := c.client.SignInWithOAuth(ctx, provider, redirectURL)
	if err != nil {
		return "", fmt.Errorf("begin oauth flow: %w", err)
	}
	return authURL, nil
}

// CompleteSignIn finishes a redirect-based OAuth flow with the provider's
// callback parameters. On success the resulting SIGNED_IN event populates
// state, never this call; the returned path is the post-login destination
// captured when the flow began, or "" when none was.
func (c *AuthController) CompleteSignIn(ctx context.Context, cb ports.OAuthCallback) (string, error) {
	redirect, err := c.client.CompleteOAuth(ctx, cb)
	if err != nil {
		return "", fmt.Errorf("complete oauth flow: %w", err)
	}
	return redirect, nil
}

// SignOut invalidates the backend session and clears local state
// unconditionally, even when the backend call fails: a failed remote
// sign-out must never leave the client believing it is still authenticated.
func (c *AuthController) SignOut(ctx context.Context) error {
	err := c.client.SignOut(ctx)
	if err != nil {
		c.logger.Warn("backend sign-out failed; clearing local state anyway", "error", err)
	}
	c.publishLoggedOut(c.seq.Add(1), nil)
	return err
}

// UpdateProfile persists partial profile changes for the signed-in identity
// and republishes the merged profile. Fails with NotAuthenticated when no
// identity is present.
func (c *AuthController) UpdateProfile(
	ctx context.Context,
	patch domainauth.ProfilePatch,
) (*domainauth.Profile, error) {
	cur := c.State()
	if cur.Identity == nil {
		return nil, apperrors.NotAuthenticated("sign in to update your profile")
	}

	updated, err := c.resolver.Update(ctx, cur.Identity.ID, patch)
	if err != nil {
		return nil, err
	}

	c.publish(c.seq.Add(1), func(prev domainauth.State) domainauth.State {
		if prev.Identity != nil && prev.Identity.ID == updated.UserID {
			prev.Profile = updated
		}
		return prev
	})
	return updated, nil
}

// Close unsubscribes from the auth client's event stream and releases all
// watchers. The controller publishes nothing after Close returns.
func (c *AuthController) Close() {
	if c.unsubscribe != nil {
		c.unsubscribe()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	for id, ch := range c.watchers {
		close(ch)
		delete(c.watchers, id)
	}
}

// handleEvent is the subscription callback: every backend session change
// runs the same reconciliation path used by Initialize.
func (c *AuthController) handleEvent(ev domainauth.Event) {
	seq := c.seq.Add(1)

	if ev.Identity == nil || ev.Session == nil {
		c.publishLoggedOut(seq, nil)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.initTimeout)
	go func() {
		defer cancel()
		c.reconcile(ctx, seq, ev)
	}()
}

// reconcile produces the consistent {identity, session, profile} triple for
// an authenticated event. Duplicate events for the same identity and token
// coalesce onto one in-flight pass so racing notifications at startup cause
// exactly one profile fetch/create sequence.
func (c *AuthController) reconcile(ctx context.Context, seq uint64, ev domainauth.Event) {
	// Already settled on this exact identity and token: refresh the session
	// reference without another store roundtrip. USER_UPDATED always
	// re-resolves so metadata changes are observed.
	if ev.Kind != domainauth.EventUserUpdated {
		cur := c.State()
		if cur.Profile != nil && cur.Identity != nil && cur.Session != nil &&
			cur.Identity.ID == ev.Identity.ID &&
			cur.Session.AccessToken == ev.Session.AccessToken {
			c.publishSignedIn(seq, ev, cur.Profile, nil)
			return
		}
	}

	key := reconcileKey{userID: ev.Identity.ID, accessToken: ev.Session.AccessToken}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if in, ok := c.inflight[key]; ok {
		// A reconciliation for this target is already running; it will
		// publish under the newest claimed sequence.
		if seq > in.latestSeq {
			in.latestSeq = seq
			in.event = ev
		}
		c.mu.Unlock()
		return
	}
	in := &inflightReconcile{latestSeq: seq, event: ev}
	c.inflight[key] = in
	c.mu.Unlock()

	profile, err := c.resolver.Resolve(ctx, *ev.Identity)
	if err != nil {
		c.logger.Warn("profile resolution failed",
			"user_id", ev.Identity.ID, "error", err)
	}

	c.mu.Lock()
	finalSeq := in.latestSeq
	finalEv := in.event
	delete(c.inflight, key)
	c.mu.Unlock()

	if err != nil {
		// Identity and session are still valid; profile stays null with a
		// recorded, recoverable error.
		c.publishSignedIn(finalSeq, finalEv, nil,
			apperrors.Wrap(err, apperrors.ErrCodeTransport, "profile resolution failed"))
		return
	}
	c.publishSignedIn(finalSeq, finalEv, profile, nil)
}

func (c *AuthController) publishSignedIn(seq uint64, ev domainauth.Event, profile *domainauth.Profile, stateErr error) {
	c.publish(seq, func(domainauth.State) domainauth.State {
		return domainauth.State{
			Identity:    ev.Identity,
			Session:     ev.Session,
			Profile:     profile,
			Initialized: true,
			Err:         stateErr,
		}
	})
}

func (c *AuthController) publishLoggedOut(seq uint64, stateErr error) {
	c.publish(seq, func(domainauth.State) domainauth.State {
		return domainauth.State{Initialized: true, Err: stateErr}
	})
}

// publish atomically swaps in a new snapshot built from the previous one.
// Publication is rejected when the sequence is not newer than the published
// one, which discards stale reconciliation results. Initialized is sticky:
// it transitions false→true exactly once and never reverts.
func (c *AuthController) publish(seq uint64, mutate func(domainauth.State) domainauth.State) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || seq <= c.published {
		return false
	}
	c.published = seq

	next := mutate(*c.state.Load())
	if c.initialized {
		next.Initialized = true
	} else if next.Initialized {
		c.initialized = true
	}
	c.state.Store(&next)

	for _, ch := range c.watchers {
		select {
		case ch <- next:
		default:
			// Replace the undelivered snapshot with the newest one.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- next:
			default:
			}
		}
	}
	return true
}
