package service

import (
	"time"

	domainauth "github.com/clika/admin-api/internal/domain/auth"
)

// DefaultEscapeAfter is how long a guard may sit in Checking before a manual
// "return to login" escape must be offered.
const DefaultEscapeAfter = 5 * time.Second

// GuardStatus is the per-view decision state: Checking until auth state is
// known, then Allowed or Denied.
type GuardStatus int

const (
	GuardChecking GuardStatus = iota
	GuardAllowed
	GuardDenied
)

func (s GuardStatus) String() string {
	switch s {
	case GuardChecking:
		return "checking"
	case GuardAllowed:
		return "allowed"
	case GuardDenied:
		return "denied"
	default:
		return "unknown"
	}
}

// GuardDecision is the outcome of evaluating a protected view against auth
// state. RedirectTo is set only for Denied. OfferEscape is set when Checking
// has persisted past the escape threshold; the view must then render a
// manual way back to login instead of an indefinite spinner.
type GuardDecision struct {
	Status      GuardStatus
	RedirectTo  string
	OfferEscape bool
}

// RouteGuard gates rendering of protected views on controller state.
// Denials distinguish "not logged in" (redirect to LoginPath) from
// "insufficient privilege" (redirect to HomePath, the default authenticated
// landing page).
type RouteGuard struct {
	LoginPath   string
	HomePath    string
	EscapeAfter time.Duration // defaults to DefaultEscapeAfter when zero
}

// NewRouteGuard constructs a RouteGuard with the given entry points.
func NewRouteGuard(loginPath, homePath string) RouteGuard {
	return RouteGuard{
		LoginPath:   loginPath,
		HomePath:    homePath,
		EscapeAfter: DefaultEscapeAfter,
	}
}

// Evaluate decides whether a view gated at minRole may render given the
// current state. Pass RoleNone for views that only require authentication.
func (g RouteGuard) Evaluate(state domainauth.State, minRole domainauth.Role) GuardDecision {
	return g.EvaluateAt(state, minRole, time.Time{})
}

// EvaluateAt is Evaluate with an explicit waiting-since timestamp for the
// Checking escape threshold. A zero checkingSince never offers the escape.
func (g RouteGuard) EvaluateAt(
	state domainauth.State,
	minRole domainauth.Role,
	checkingSince time.Time,
) GuardDecision {
	if !state.Initialized || state.Loading {
		escape := !checkingSince.IsZero() && time.Since(checkingSince) >= g.escapeAfter()
		return GuardDecision{Status: GuardChecking, OfferEscape: escape}
	}

	if state.Identity == nil || state.Err != nil {
		return GuardDecision{Status: GuardDenied, RedirectTo: g.LoginPath}
	}

	if minRole != domainauth.RoleNone && !state.EffectiveRole().Satisfies(minRole) {
		// Logged in but under-privileged: land on the authenticated home
		// page, not the login page.
		return GuardDecision{Status: GuardDenied, RedirectTo: g.HomePath}
	}

	return GuardDecision{Status: GuardAllowed}
}

func (g RouteGuard) escapeAfter() time.Duration {
	if g.EscapeAfter > 0 {
		return g.EscapeAfter
	}
	return DefaultEscapeAfter
}
