// Package playerbackend defines the uniform contract the sync controller
// drives regardless of which concrete media player is attached, and the
// shared errors that let the controller distinguish "command failed" from
// "this player doesn't support that operation at all".
package playerbackend

import (
	"context"
	"errors"
)

// ErrUnsupported is returned by Backend methods for operations a concrete
// driver cannot perform (e.g. SetSpeed on an MPC variant). The sync
// controller treats this as "skip that sub-policy", never as a fatal
// error.
var ErrUnsupported = errors.New("playerbackend: operation unsupported by this player")

// ErrUnreachable wraps a failed command to a live player process; it is
// logged by the caller and does not tear down the session (§7
// PlayerUnreachable).
var ErrUnreachable = errors.New("playerbackend: player unreachable")

// State is the player's reported playback status. Pointer fields are nil
// when the player hasn't reported that property yet.
type State struct {
	Filename *string
	Path     *string
	Position *float64
	Duration *float64
	Paused   *bool
	Speed    *float64
}

// Known reports whether both Position and Paused have been observed, the
// minimum the sync controller needs to run a reconciliation cycle.
func (s State) Known() bool {
	return s.Position != nil && s.Paused != nil
}

// Backend is the uniform operation set §4.D requires of every concrete
// player driver (mpv-family JSON-IPC, VLC Lua-over-TCP, MPlayer slave
// mode, MPC COPYDATA, and the mpv-family chat-overlay scripting
// interface).
type Backend interface {
	LoadFile(ctx context.Context, pathOrURL string) error
	SetPosition(ctx context.Context, seconds float64) error
	SetPaused(ctx context.Context, paused bool) error
	SetSpeed(ctx context.Context, multiplier float64) error
	ShowOSD(ctx context.Context, text string, duration float64) error
	ShowChat(ctx context.Context, user, text string) error

	// PollState asks the player to report the properties this backend
	// tracks and returns the refreshed snapshot. Callers must invoke this
	// once after any mutating call before trusting GetState (§4.D "State
	// delta propagation").
	PollState(ctx context.Context) (State, error)

	// GetState returns the last snapshot observed, without talking to the
	// player.
	GetState() State

	Shutdown(ctx context.Context) error
}

// Events are the asynchronous notifications a backend pushes to its
// owner (the session orchestrator) — never the other way around, per
// §9's "pass a weak handle to the session into the backend; never
// transfer ownership".
type Events interface {
	OnStateChanged(State)
	OnFileLoadStart()
	OnFileLoadEnd()
	OnEndFile()
	OnPlayerGone(reason string)
}
