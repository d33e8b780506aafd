package synccontroller_test

import (
	"testing"

	"github.com/watchtogether/syncclient/internal/clientstate"
	"github.com/watchtogether/syncclient/internal/playerbackend"
	"github.com/watchtogether/syncclient/internal/playlist"
	"github.com/watchtogether/syncclient/internal/synccontroller"
)

type fakeAuthority struct {
	controller bool
	readiness  bool
	speed      bool
	loop       bool
}

func (f fakeAuthority) IsLocalController() bool           { return f.controller }
func (f fakeAuthority) IsReadinessSupported() bool        { return f.readiness }
func (f fakeAuthority) IsSpeedSupported() bool            { return f.speed }
func (f fakeAuthority) IsMusicFile(filename string) bool  { return false }
func (f fakeAuthority) LoopAtEnd() bool                   { return f.loop }

func newController(auth fakeAuthority) *synccontroller.Controller {
	state := clientstate.New("self")
	pl := playlist.New()
	return synccontroller.New(synccontroller.DefaultConfig(), state, pl, auth)
}

func ptr(f float64) *float64 { return &f }
func bptr(b bool) *bool      { return &b }

func localState(pos float64, paused bool) playerbackend.State {
	return playerbackend.State{Position: ptr(pos), Paused: bptr(paused)}
}

func firstTick(c *synccontroller.Controller, filename string) {
	local := localState(0, true)
	local.Filename = &filename
	c.HandleIncomingPlaystate(clientstate.PlayState{Position: 0, Paused: true}, 0, 0, local, "self")
}

// Scenario 1: seek alignment reported by a third party.
func TestSeekAlignmentThirdParty(t *testing.T) {
	c := newController(fakeAuthority{})
	firstTick(c, "movie.mkv")

	ps := clientstate.PlayState{Position: 100, Paused: false, SetBy: "alice", DoSeek: true}
	actions := c.HandleIncomingPlaystate(ps, 0.2, 1, localState(10, false), "self")

	if len(actions) != 2 {
		t.Fatalf("expected 2 actions, got %d: %+v", len(actions), actions)
	}
	if actions[0].Kind != synccontroller.ActionSeek || actions[0].Position != 100.2 {
		t.Errorf("expected seek to 100.2, got %+v", actions[0])
	}
	if actions[1].Kind != synccontroller.ActionNotify || actions[1].Message != "alice jumped from 10 to 01:40" {
		t.Errorf("unexpected notify message: %+v", actions[1])
	}
}

// Scenario 2: slowdown engages then resets.
func TestSlowdownThenReset(t *testing.T) {
	c := newController(fakeAuthority{speed: true})
	firstTick(c, "movie.mkv")

	actions := c.HandleIncomingPlaystate(clientstate.PlayState{Position: 10, Paused: false}, 0, 1, localState(8, false), "self")
	if len(actions) != 1 || actions[0].Kind != synccontroller.ActionSetSpeed || actions[0].Speed != 0.95 {
		t.Fatalf("expected slowdown to 0.95, got %+v", actions)
	}

	actions = c.HandleIncomingPlaystate(clientstate.PlayState{Position: 10, Paused: false}, 0, 2, localState(10, false), "self")
	if len(actions) != 1 || actions[0].Kind != synccontroller.ActionSetSpeed || actions[0].Speed != 1.0 {
		t.Fatalf("expected reset to 1.0, got %+v", actions)
	}
}

// Scenario 3: pause propagation seeks then pauses, with a chat notice.
func TestPausePropagation(t *testing.T) {
	c := newController(fakeAuthority{})
	firstTick(c, "movie.mkv")

	ps := clientstate.PlayState{Position: 10, Paused: true, SetBy: "bob"}
	actions := c.HandleIncomingPlaystate(ps, 0, 1, localState(10, false), "self")

	if len(actions) != 3 {
		t.Fatalf("expected seek+pause+notify, got %+v", actions)
	}
	if actions[0].Kind != synccontroller.ActionSeek {
		t.Errorf("expected seek first, got %+v", actions[0])
	}
	if actions[1].Kind != synccontroller.ActionSetPaused || !actions[1].Paused {
		t.Errorf("expected pause second, got %+v", actions[1])
	}
	if actions[2].Message != "bob paused at 00:10" {
		t.Errorf("unexpected message: %q", actions[2].Message)
	}
}

// Scenario 5: playlist advance at EOF, then an 8s cooldown against a
// second immediate advance.
func TestPlaylistAdvanceAtEOF(t *testing.T) {
	c := newController(fakeAuthority{})
	pl := playlist.New()
	pl.SetItems([]string{"A", "B", "C"}, nil)

	state := clientstate.New("self")
	c = synccontroller.New(synccontroller.DefaultConfig(), state, pl, fakeAuthority{})
	firstTick(c, "A")

	local := playerbackend.State{Position: ptr(58), Paused: bptr(false), Duration: ptr(60.0)}
	actions := c.HandleIncomingPlaystate(clientstate.PlayState{Position: 58, Paused: false}, 0, 1, local, "self")

	found := false
	for _, a := range actions {
		if a.Kind == synccontroller.ActionAdvancePlaylist {
			found = true
			if a.Index != 1 {
				t.Errorf("expected advance to index 1, got %d", a.Index)
			}
		}
	}
	if !found {
		t.Fatalf("expected an advance action, got %+v", actions)
	}

	actions = c.HandleIncomingPlaystate(clientstate.PlayState{Position: 58, Paused: false}, 0, 2, local, "self")
	for _, a := range actions {
		if a.Kind == synccontroller.ActionAdvancePlaylist {
			t.Error("expected no second advance within the cooldown window")
		}
	}
}

// Idempotence: Δ=0, paused matches, no seek ⇒ no actions.
func TestIdempotentWhenAligned(t *testing.T) {
	c := newController(fakeAuthority{})
	firstTick(c, "movie.mkv")

	actions := c.HandleIncomingPlaystate(clientstate.PlayState{Position: 10, Paused: false}, 0, 1, localState(10, false), "self")
	if len(actions) != 0 {
		t.Errorf("expected no actions when aligned, got %+v", actions)
	}
}

func TestRewindThirdParty(t *testing.T) {
	c := newController(fakeAuthority{})
	firstTick(c, "movie.mkv")

	actions := c.HandleIncomingPlaystate(clientstate.PlayState{Position: 10, Paused: false, SetBy: "carol"}, 0, 1, localState(20, false), "self")
	if len(actions) == 0 || actions[0].Kind != synccontroller.ActionSeek || actions[0].Position != 10 {
		t.Fatalf("expected rewind seek to 10, got %+v", actions)
	}
}

func TestLocalPauseToggleNonControllerUnpauseConvertsToReady(t *testing.T) {
	c := newController(fakeAuthority{readiness: true, controller: false})
	actions := c.HandleLocalPauseToggle(false, true)

	if len(actions) != 2 {
		t.Fatalf("expected ready+pause-back actions, got %+v", actions)
	}
	if actions[0].Kind != synccontroller.ActionSetReady || !actions[0].Ready {
		t.Errorf("expected ready=true first, got %+v", actions[0])
	}
	if actions[1].Kind != synccontroller.ActionSetPaused || !actions[1].Paused {
		t.Errorf("expected re-pause, got %+v", actions[1])
	}
}

func TestLocalPauseToggleControllerInstaplayLetsThroughUnpause(t *testing.T) {
	c := newController(fakeAuthority{readiness: true, controller: true})
	actions := c.HandleLocalPauseToggle(false, true)
	if len(actions) != 0 {
		t.Errorf("expected no suppressing actions for controller instaplay, got %+v", actions)
	}
}
