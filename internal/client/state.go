// Package client implements the browser-side session controller as a Go library:
// a pure state reducer plus a driver that executes its commands against the session
// bridge and renews the session on a fixed interval.
package client

import (
	domainauth "github.com/target/session-bridge/internal/domain/auth"
)

// Phase tracks which controller operation is in flight.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseSigningIn
	PhaseSigningOut
	PhaseRenewing
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseSigningIn:
		return "signing_in"
	case PhaseSigningOut:
		return "signing_out"
	case PhaseRenewing:
		return "renewing"
	default:
		return "unknown"
	}
}

// State is the controller's view of the user's session.
//
// IsAuthenticated follows identity provider notifications only. HasSession follows
// session bridge results and drops to false on any failure.
type State struct {
	IsAuthenticated bool
	HasSession      bool
	IsLoading       bool
	Principal       *domainauth.Principal

	Phase Phase
	// Epoch increments on every auth-state notification. Results tagged with an
	// older epoch are discarded.
	Epoch uint64
}

// Initial returns the state before the identity provider has reported anything.
func Initial() State {
	return State{IsLoading: true}
}

// Event is an input to Transition.
type Event interface{ isEvent() }

// AuthStateChanged is delivered by the identity provider. A nil Principal means signed out.
type AuthStateChanged struct {
	Principal *domainauth.Principal
}

// RenewalDue is delivered by the renewal timer.
type RenewalDue struct{}

// CheckCompleted reports the result of a check-session call.
type CheckCompleted struct {
	Epoch      uint64
	HasSession bool
	Err        error
}

// CreateCompleted reports the result of a create-session call (sign-in or renewal).
type CreateCompleted struct {
	Epoch uint64
	Err   error
}

// DestroyCompleted reports the result of a destroy-session call.
type DestroyCompleted struct {
	Epoch uint64
	Err   error
}

func (AuthStateChanged) isEvent() {}
func (RenewalDue) isEvent()       {}
func (CheckCompleted) isEvent()   {}
func (CreateCompleted) isEvent()  {}
func (DestroyCompleted) isEvent() {}

// Command is a side effect requested by Transition.
type Command interface{ isCommand() }

// CheckSession asks the bridge whether a session cookie is present.
type CheckSession struct{ Epoch uint64 }

// CreateSession mints a session from a force-refreshed ID credential.
type CreateSession struct{ Epoch uint64 }

// DestroySession clears the session cookie.
type DestroySession struct{ Epoch uint64 }

func (CheckSession) isCommand()   {}
func (CreateSession) isCommand()  {}
func (DestroySession) isCommand() {}

// Transition applies ev to s and returns the next state plus the commands to run.
// It has no side effects.
func Transition(s State, ev Event) (State, []Command) {
	switch e := ev.(type) {
	case AuthStateChanged:
		return onAuthStateChanged(s, e)

	case RenewalDue:
		if s.Phase != PhaseIdle || !s.IsAuthenticated || !s.HasSession {
			return s, nil
		}
		s.Phase = PhaseRenewing
		return s, []Command{CreateSession{Epoch: s.Epoch}}

	case CheckCompleted:
		if e.Epoch != s.Epoch || s.Phase != PhaseSigningIn {
			return s, nil
		}
		if e.Err == nil && e.HasSession {
			s.HasSession = true
			s.Phase = PhaseIdle
			return s, nil
		}
		// A failed check counts as no session.
		s.HasSession = false
		return s, []Command{CreateSession{Epoch: s.Epoch}}

	case CreateCompleted:
		if e.Epoch != s.Epoch {
			// A create that succeeded after sign-out left a live cookie behind.
			if e.Err == nil && !s.IsAuthenticated {
				s.Phase = PhaseSigningOut
				return s, []Command{DestroySession{Epoch: s.Epoch}}
			}
			return s, nil
		}
		if s.Phase != PhaseSigningIn && s.Phase != PhaseRenewing {
			return s, nil
		}
		s.HasSession = e.Err == nil
		s.Phase = PhaseIdle
		return s, nil

	case DestroyCompleted:
		if e.Epoch != s.Epoch || s.Phase != PhaseSigningOut {
			return s, nil
		}
		s.HasSession = false
		s.Phase = PhaseIdle
		return s, nil
	}
	return s, nil
}

func onAuthStateChanged(s State, e AuthStateChanged) (State, []Command) {
	s.Epoch++
	s.IsLoading = false

	if e.Principal == nil {
		s.IsAuthenticated = false
		s.Principal = nil
		s.HasSession = false
		s.Phase = PhaseSigningOut
		return s, []Command{DestroySession{Epoch: s.Epoch}}
	}

	p := *e.Principal
	s.IsAuthenticated = true
	s.Principal = &p
	s.Phase = PhaseSigningIn
	return s, []Command{CheckSession{Epoch: s.Epoch}}
}
