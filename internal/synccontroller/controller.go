// Package synccontroller implements the state machine that reconciles a
// locally observed player position/pause with the server's authoritative
// global playstate: rewind, fast-forward, slowdown, pause alignment,
// readiness toggling, and playlist-advance-at-EOF.
package synccontroller

import (
	"fmt"
	"sync"
	"time"

	"github.com/watchtogether/syncclient/internal/clientstate"
	"github.com/watchtogether/syncclient/internal/playerbackend"
	"github.com/watchtogether/syncclient/internal/playlist"
)

// Config holds the reconciliation thresholds. Values without an explicit
// default in the governing specification are called out in their comment;
// those are implementation decisions, not guesses at unstated intent.
type Config struct {
	RewindThreshold   float64 // default 4s
	FFThreshold       float64 // default 5s
	BehindThreshold   float64 // FFThreshold minus this is the sustain window before FF fires; no default given upstream, chosen as 3s (a 2s window)
	SlowdownThreshold float64 // default 1.5s
	ResetThreshold    float64 // default 0.5s
	SlowdownRate      float64 // default 0.95
	FFLeadIn          float64 // small lead-in added past G on FF seek; chosen as 0.3s
	FFCooldown        time.Duration
	PlaylistAdvanceCooldown time.Duration // default 8s
	RecentRewindWindow      time.Duration // default 1s
	RecentRewindPosWindow   float64       // default 5s
	EndProximity            float64       // default 5s
	MinDurationForAdvance   float64       // default 10s
	AutoplayCountdown       time.Duration // default 3s
}

// DefaultConfig returns the thresholds named explicitly in the governing
// specification, with the implementation's chosen values for the ones
// left unstated.
func DefaultConfig() Config {
	return Config{
		RewindThreshold:         4,
		FFThreshold:             5,
		BehindThreshold:         3,
		SlowdownThreshold:       1.5,
		ResetThreshold:          0.5,
		SlowdownRate:            0.95,
		FFLeadIn:                0.3,
		FFCooldown:              2 * time.Second,
		PlaylistAdvanceCooldown: 8 * time.Second,
		RecentRewindWindow:      1 * time.Second,
		RecentRewindPosWindow:   5,
		EndProximity:            5,
		MinDurationForAdvance:   10,
		AutoplayCountdown:       3 * time.Second,
	}
}

// ActionKind distinguishes the backend mutations (and side-effect
// notifications) one reconciliation cycle can produce.
type ActionKind int

const (
	ActionSeek ActionKind = iota
	ActionSetPaused
	ActionSetSpeed
	ActionNotify
	ActionAdvancePlaylist
	ActionSetReady
)

// Action is one instruction emitted by a reconciliation cycle. A cycle may
// emit several (e.g. seek + unpause + speed-reset).
type Action struct {
	Kind     ActionKind
	Position float64
	Paused   bool
	Speed    float64
	Message  string
	Index    int
	Ready    bool
}

// RoomAuthority answers the questions about room control and feature
// support that only the session/client-state layer knows.
type RoomAuthority interface {
	IsLocalController() bool
	IsReadinessSupported() bool
	IsSpeedSupported() bool
	IsMusicFile(filename string) bool
	LoopAtEnd() bool
}

// Controller reconciles local ↔ global playstate for one connection. Its
// methods are called from several goroutines (the receive loop, the
// player-state poller, backend end-file events); each call holds mu for
// its whole duration, so calls never interleave.
type Controller struct {
	cfg   Config
	state *clientstate.State
	pl    *playlist.Playlist
	auth  RoomAuthority

	mu sync.Mutex

	firstPlaystate bool

	slowdownActive bool
	ffArmedSince   time.Time
	ffCoolingUntil time.Time
	haveFFCooling  bool

	lastRewindTarget float64
	lastRewindAt     time.Time
	haveLastRewind   bool

	lastAdvanceAt   time.Time
	haveLastAdvance bool

	pendingLocalSeekFrom float64
	havePendingLocalSeek bool

	suppressUnpauseCheck bool
}

// New constructs a Controller for one connection.
func New(cfg Config, state *clientstate.State, pl *playlist.Playlist, auth RoomAuthority) *Controller {
	return &Controller{cfg: cfg, state: state, pl: pl, auth: auth, firstPlaystate: true}
}

// Config returns the thresholds this Controller was constructed with.
func (c *Controller) Config() Config {
	return c.cfg
}

// NotePendingLocalSeek stashes the pre-seek position so that when the
// server echoes our own seek back to us (do_seek with actor == self) the
// "jumped from X to Y" message can report the true prior position rather
// than whatever has been observed since.
func (c *Controller) NotePendingLocalSeek(fromPosition float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pendingLocalSeekFrom = fromPosition
	c.havePendingLocalSeek = true
}

// HandleIncomingPlaystate runs one reconciliation cycle for playstate ps
// received at wall-clock time now, given the currently observed local
// player state. Backend mutation is the caller's responsibility to
// execute in order; HandleIncomingPlaystate only decides what to do.
func (c *Controller) HandleIncomingPlaystate(ps clientstate.PlayState, forwardDelay float64, now float64, local playerbackend.State, selfUsername string) []Action {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !local.Known() {
		return nil
	}

	global := ps.Position
	if !ps.Paused {
		global += forwardDelay
	}

	localPos := *local.Position
	localPaused := *local.Paused
	delta := localPos - global

	actor := ps.SetBy
	if actor == "" {
		actor = "Unknown"
	}

	var actions []Action

	if c.firstPlaystate {
		c.firstPlaystate = false
		if local.Filename != nil && *local.Filename != "" {
			actions = append(actions, Action{Kind: ActionSeek, Position: global})
			actions = append(actions, Action{Kind: ActionSetPaused, Paused: ps.Paused})
			return actions
		}
	}

	if ps.DoSeek {
		if actor == selfUsername && c.havePendingLocalSeek {
			msg := fmt.Sprintf("self jumped from %s to %s", formatRaw(c.pendingLocalSeekFrom), formatTimecode(global))
			c.havePendingLocalSeek = false
			return append(actions, Action{Kind: ActionNotify, Message: msg})
		}
		msg := fmt.Sprintf("%s jumped from %s to %s", actor, formatRaw(localPos), formatTimecode(global))
		actions = append(actions, Action{Kind: ActionSeek, Position: global})
		actions = append(actions, Action{Kind: ActionNotify, Message: msg})
		return actions
	}

	if c.withinRecentRewindShadow(global) {
		return actions
	}

	if delta > c.cfg.RewindThreshold && actor != selfUsername {
		actions = append(actions, Action{Kind: ActionSeek, Position: global})
		actions = append(actions, Action{Kind: ActionNotify, Message: fmt.Sprintf("rewound to %s", formatTimecode(global))})
		c.lastRewindTarget = global
		c.lastRewindAt = time.Now()
		c.haveLastRewind = true
		return actions
	}

	if delta < -c.cfg.FFThreshold {
		if c.ffArmedSince.IsZero() {
			c.ffArmedSince = time.Now()
		}
		sustain := c.cfg.FFThreshold - c.cfg.BehindThreshold
		cooling := c.haveFFCooling && time.Now().Before(c.ffCoolingUntil)
		if !cooling && time.Since(c.ffArmedSince).Seconds() > sustain {
			actions = append(actions, Action{Kind: ActionSeek, Position: global + c.cfg.FFLeadIn})
			if c.slowdownActive {
				actions = append(actions, Action{Kind: ActionSetSpeed, Speed: 1.0})
				c.slowdownActive = false
			}
			c.ffCoolingUntil = time.Now().Add(c.cfg.FFCooldown)
			c.haveFFCooling = true
			c.ffArmedSince = time.Time{}
			return actions
		}
	} else {
		c.ffArmedSince = time.Time{}
	}

	if !ps.Paused && c.auth.IsSpeedSupported() {
		absDelta := delta
		if absDelta < 0 {
			absDelta = -absDelta
		}
		switch {
		case absDelta > c.cfg.SlowdownThreshold && !c.slowdownActive:
			actions = append(actions, Action{Kind: ActionSetSpeed, Speed: c.cfg.SlowdownRate})
			c.slowdownActive = true
		case c.slowdownActive && absDelta < c.cfg.ResetThreshold:
			actions = append(actions, Action{Kind: ActionSetSpeed, Speed: 1.0})
			c.slowdownActive = false
		}
	}

	if localPaused != ps.Paused {
		if ps.Paused {
			actions = append(actions, Action{Kind: ActionSeek, Position: global})
			actions = append(actions, Action{Kind: ActionSetPaused, Paused: true})
			actions = append(actions, Action{Kind: ActionNotify, Message: fmt.Sprintf("%s paused at %s", actor, formatTimecode(global))})
		} else {
			actions = append(actions, c.reconcileUnpause(actor, global)...)
		}
	}

	if idx, ok := c.pl.CurrentIndex(); ok {
		if adv := c.maybeAdvance(local, idx); adv != nil {
			actions = append(actions, *adv...)
		}
	}

	return actions
}

// reconcileUnpause applies a server-originated unpause: the global
// playstate wants to play while the local player is paused, so the local
// player is unpaused unconditionally, without a seek. The
// readiness-gated authority rule only governs the opposite direction
// (a locally initiated unpause), handled separately by
// HandleLocalPauseToggle.
func (c *Controller) reconcileUnpause(actor string, global float64) []Action {
	return []Action{
		{Kind: ActionSetPaused, Paused: false},
		{Kind: ActionNotify, Message: fmt.Sprintf("%s unpaused at %s", actor, formatTimecode(global))},
	}
}

// HandleLocalPauseToggle is invoked when the player-state poller observes
// the local player's own pause flag change without a preceding server
// instruction (the user pressed play/pause themselves). Per step 10, this
// is converted into a readiness toggle unless the local user controls the
// room and "instaplay" conditions hold; a non-controller's unpause never
// propagates as a playstate change.
func (c *Controller) HandleLocalPauseToggle(paused bool, instaplayOK bool) []Action {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.auth.IsReadinessSupported() {
		return nil
	}

	if !paused {
		if !c.auth.IsLocalController() {
			return []Action{
				{Kind: ActionSetReady, Ready: true},
				{Kind: ActionSetPaused, Paused: true},
			}
		}
		if !instaplayOK {
			return []Action{
				{Kind: ActionSetPaused, Paused: true},
				{Kind: ActionSetReady, Ready: true},
			}
		}
		// Controller, instaplay conditions hold: let the unpause propagate
		// as an actual playstate change (no action needed here beyond
		// letting the caller's own State emission reflect the new pause).
		return nil
	}

	return []Action{{Kind: ActionSetReady, Ready: false}}
}

// withinRecentRewindShadow implements the §4.H.12 "recent rewind" shadow:
// for RecentRewindWindow after a local rewind, seeks landing within
// RecentRewindPosWindow of the rewind target are suppressed entirely, to
// defeat the player's async acknowledgement of the rewind from bouncing
// back and undoing it. Both conditions are required (AND), the
// conservative reading of the ambiguous upstream wording (see DESIGN.md).
func (c *Controller) withinRecentRewindShadow(target float64) bool {
	if !c.haveLastRewind {
		return false
	}
	if time.Since(c.lastRewindAt) > c.cfg.RecentRewindWindow {
		return false
	}
	diff := target - c.lastRewindTarget
	if diff < 0 {
		diff = -diff
	}
	return diff < c.cfg.RecentRewindPosWindow
}

// maybeAdvance implements the position-proximity half of §4.H.11:
// advancing the playlist when the player is near end-of-file and the
// current item is still the one selected.
func (c *Controller) maybeAdvance(local playerbackend.State, currentIndex int) *[]Action {
	if local.Position == nil || local.Duration == nil || *local.Duration < c.cfg.MinDurationForAdvance {
		return nil
	}
	nearEnd := *local.Duration-*local.Position <= c.cfg.EndProximity
	if !nearEnd {
		return nil
	}
	return c.advanceToNext()
}

// HandleEndFile implements the other half of §4.H.11: the backend's
// end-file event advances the playlist on its own, independent of the
// position-proximity check, so a quiet server after the file truly ends
// doesn't strand the client on the finished item.
func (c *Controller) HandleEndFile() []Action {
	c.mu.Lock()
	defer c.mu.Unlock()
	adv := c.advanceToNext()
	if adv == nil {
		return nil
	}
	return *adv
}

// advanceToNext moves the playlist to its next item (wrapping when
// loop-at-end applies or the current item is a music file), subject to
// the advance cooldown, and reports the index update to send.
func (c *Controller) advanceToNext() *[]Action {
	if c.haveLastAdvance && time.Since(c.lastAdvanceAt) < c.cfg.PlaylistAdvanceCooldown {
		return nil
	}
	item, ok := c.pl.CurrentItem()
	if !ok {
		return nil
	}
	loop := c.auth.LoopAtEnd() || c.auth.IsMusicFile(item.Filename)
	next, ok := c.pl.NextWithLoop(loop)
	if !ok {
		return nil
	}
	nextIdx, _ := c.pl.CurrentIndex()

	c.lastAdvanceAt = time.Now()
	c.haveLastAdvance = true

	return &[]Action{
		{Kind: ActionAdvancePlaylist, Index: nextIdx, Message: next.Filename},
	}
}

// formatTimecode renders seconds as the server-message style mm:ss (or
// hh:mm:ss once past an hour), matching the "01:40" style examples in the
// concrete test scenarios.
func formatTimecode(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	total := int(seconds)
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}

// formatRaw renders seconds as a bare number, matching the literal "from
// 10" style in the seek-jump message (only the destination is rendered
// as a timecode).
func formatRaw(seconds float64) string {
	if seconds == float64(int64(seconds)) {
		return fmt.Sprintf("%d", int64(seconds))
	}
	return fmt.Sprintf("%g", seconds)
}
