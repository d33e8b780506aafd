package session

import (
	"context"
	"fmt"
	"time"

	"github.com/watchtogether/syncclient/internal/filematch"
	"github.com/watchtogether/syncclient/internal/playerbackend"
	"github.com/watchtogether/syncclient/internal/uievents"
)

// Run starts the background loops (warning ticker, player-state poller)
// and then blocks in Connect's connect/reconnect cycle until ctx is
// cancelled.
func (s *Session) Run(ctx context.Context) error {
	go s.warningLoop(ctx)
	if s.backend != nil {
		go s.pollerLoop(ctx)
	}
	return s.Connect(ctx)
}

// warningLoop runs at 1 Hz, evaluating room composition and emitting
// chat-style notices on edges (§4.I "warning loop").
func (s *Session) warningLoop(ctx context.Context) {
	ticker := time.NewTicker(warningPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.evaluateWarnings()
			s.evaluateAutoplay()
		}
	}
}

func (s *Session) evaluateWarnings() {
	users := s.state.Users()

	alone := true
	for name, u := range users {
		if name != s.identity.Username && u.Room == s.identity.Room {
			alone = false
			break
		}
	}

	s.warnMu.Lock()
	wasAlone := s.wasAlone
	s.wasAlone = alone
	s.warnMu.Unlock()

	if alone && !wasAlone {
		s.sink.ChatMessageReceived(uievents.ChatMessage{Message: "You are alone in this room"})
	}

	selfUser, ok := s.state.User(s.identity.Username)
	if !ok || !selfUser.HasFile {
		return
	}

	for name, u := range users {
		if name == s.identity.Username || u.Room != s.identity.Room || !u.HasFile {
			continue
		}
		differs := u.Filename != selfUser.Filename

		s.warnMu.Lock()
		already := s.warnedFiles[name]
		s.warnedFiles[name] = differs
		s.warnMu.Unlock()

		if differs && !already {
			s.sink.ChatMessageReceived(uievents.ChatMessage{Message: fmt.Sprintf("%s is playing a different file: %s", name, s.filenameDisplay(u.Filename))})
		}
	}
}

// evaluateAutoplay implements §4.I/§4.J: start a countdown when every
// predicate holds, cancel it immediately if any predicate flips.
func (s *Session) evaluateAutoplay() {
	ok := s.autoplayPredicatesHold()

	s.autoplayMu.Lock()
	defer s.autoplayMu.Unlock()

	if !ok {
		if s.autoplayCancel != nil {
			s.autoplayCancel()
			s.autoplayCancel = nil
		}
		return
	}
	if s.autoplayCancel != nil {
		return // already counting down
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.autoplayCancel = cancel
	go s.runAutoplayCountdown(ctx)
}

func (s *Session) autoplayPredicatesHold() bool {
	if !s.cfg.AutoplayEnabled && s.pl.NotJustChanged(8) {
		return false
	}
	if !s.IsLocalController() {
		return false
	}
	if !s.IsReadinessSupported() {
		return false
	}
	if len(s.state.ServerFeatures) > 0 && !s.isReadinessSupportedByUsers() {
		return false
	}

	users := s.state.Users()
	usersInRoom := 0
	allReady := true
	selfUser, _ := s.state.User(s.identity.Username)
	controlled := filematch.IsControlledRoom(s.identity.Room)

	for name, u := range users {
		if u.Room != s.identity.Room {
			continue
		}
		usersInRoom++
		if name == s.identity.Username {
			continue
		}
		// In a controlled room only controllers count toward readiness,
		// while usersInRoom and the "alone" check count every user; the
		// asymmetry is deliberate.
		if controlled && !u.IsController {
			continue
		}
		if !u.HasReady || !u.IsReady || u.Filename != selfUser.Filename {
			allReady = false
		}
	}

	if usersInRoom < s.cfg.AutoplayMinUsers {
		return false
	}
	return allReady
}

// isReadinessSupportedByUsers requires at least one other user with a
// populated is_ready field, per §4.J's is_readiness_supported predicate.
func (s *Session) isReadinessSupportedByUsers() bool {
	for name, u := range s.state.Users() {
		if name != s.identity.Username && u.HasReady {
			return true
		}
	}
	return false
}

func (s *Session) runAutoplayCountdown(ctx context.Context) {
	remaining := s.ctrl.Config().AutoplayCountdown
	deadline := time.Now().Add(remaining)
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		left := time.Until(deadline)
		if left <= 0 {
			if s.backend != nil {
				_ = s.backend.SetPaused(ctx, false)
			}
			return
		}
		if s.backend != nil {
			_ = s.backend.ShowOSD(ctx, fmt.Sprintf("starting in %.0fs", left.Seconds()), 1)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// pollerLoop runs at 100 ms, refreshing the player snapshot and
// detecting locally-initiated pause toggles (§5 "player-state poller").
func (s *Session) pollerLoop(ctx context.Context) {
	ticker := time.NewTicker(pollerPeriod)
	defer ticker.Stop()

	var lastPaused *bool
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st, err := s.backend.PollState(ctx)
			if err != nil {
				continue
			}
			s.OnStateChanged(st)
			s.detectLocalPauseToggle(st, &lastPaused)
		}
	}
}

func (s *Session) detectLocalPauseToggle(st playerbackend.State, lastPaused **bool) {
	if st.Paused == nil {
		return
	}
	prev := *lastPaused
	*lastPaused = st.Paused
	if prev == nil || *prev == *st.Paused {
		return
	}
	instaplayOK := s.pl.NotJustChanged(1)
	s.applyActions(s.ctrl.HandleLocalPauseToggle(*st.Paused, instaplayOK))
}
