// Package clientstate holds the per-connection session state owned by the
// session orchestrator: the room roster, the last authoritative playstate,
// the locally observed playstate, and the ignoring-on-the-fly tokens.
package clientstate

import (
	"strings"
	"sync"
	"time"
)

// User is one entry in the room roster.
type User struct {
	Room         string
	Filename     string
	HasFile      bool
	FileSize     uint64
	FileDuration float64
	IsReady      bool
	HasReady     bool
	IsController bool
}

// PlayState is a position/pause snapshot, either authoritative (from the
// server) or locally observed (from the player backend).
type PlayState struct {
	Position float64
	Paused   bool
	SetBy    string
	DoSeek   bool
}

// LocalPlayback is the last observed state from the player backend, plus a
// derived flag for whether the last local change was a discontinuous jump.
type LocalPlayback struct {
	Position float64
	Paused   bool
	IsSeek   bool
	Known    bool
}

// IgnoringOnTheFly is the pair of acknowledgement counters described in
// §4.C: "server" is cleared after being echoed back once; "client" is
// incremented on each locally emitted state-change and cleared once the
// server acknowledges that value.
type IgnoringOnTheFly struct {
	Server uint16
	Client uint16
}

// State is the full mutable session state. All access goes through its
// methods, which take short-held locks and return clones, per §5's
// clone-out-under-lock convention.
type State struct {
	mu sync.RWMutex

	Username string
	Room     string

	ServerVersion  string
	ServerFeatures map[string]string

	users map[string]User

	globalPlayState PlayState
	haveGlobal      bool

	localPlayback LocalPlayback

	ignoring IgnoringOnTheFly

	lastGlobalUpdate      time.Time
	haveLastGlobalUpdate  bool
	lastRewindTime        time.Time
	haveLastRewind        bool
	lastAdvanceTime       time.Time
	haveLastAdvance       bool
	lastUpdatedFileTime   time.Time
	haveLastUpdatedFile   bool
	lastPausedOnLeaveTime time.Time
	haveLastPausedOnLeave bool
	lastConnectTime       time.Time
	haveLastConnect       bool
}

// New constructs an empty State for the given local identity.
func New(username string) *State {
	return &State{
		Username:       username,
		users:          make(map[string]User),
		ServerFeatures: make(map[string]string),
	}
}

// AddUser inserts or overwrites the record for username, filtering
// whitespace-only placeholder names (matching §3's ingress rule).
func (s *State) AddUser(username string, u User) {
	if strings.TrimSpace(username) == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[username] = u
}

// RemoveUser deletes username from the roster.
func (s *State) RemoveUser(username string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.users, username)
}

// ClearUsers empties the roster, called on disconnect and on receiving a
// fresh List.
func (s *State) ClearUsers() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users = make(map[string]User)
}

// User returns a copy of username's record, or ok=false.
func (s *State) User(username string) (User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[username]
	return u, ok
}

// Users returns a copy of the full roster.
func (s *State) Users() map[string]User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]User, len(s.users))
	for k, v := range s.users {
		out[k] = v
	}
	return out
}

// IsReadyWithFile reports readiness only for a user that has a file
// loaded; a user without a file never counts toward readiness regardless
// of the stored ready flag, and yields ok=false in that case.
func (s *State) IsReadyWithFile(username string) (ready bool, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, exists := s.users[username]
	if !exists || !u.HasFile {
		return false, false
	}
	return u.IsReady, true
}

// SetGlobalPlayState records the latest authoritative snapshot from the
// server.
func (s *State) SetGlobalPlayState(ps PlayState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.globalPlayState = ps
	s.haveGlobal = true
	s.lastGlobalUpdate = time.Now()
	s.haveLastGlobalUpdate = true
}

// GlobalPlayState returns the last authoritative snapshot, or ok=false if
// none has arrived yet.
func (s *State) GlobalPlayState() (PlayState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.globalPlayState, s.haveGlobal
}

// SetLocalPlayback records the latest observation from the player
// backend.
func (s *State) SetLocalPlayback(lp LocalPlayback) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lp.Known = true
	s.localPlayback = lp
}

// LocalPlayback returns the last observed local state.
func (s *State) LocalPlayback() LocalPlayback {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.localPlayback
}

// IgnoringOnTheFly returns a copy of the current acknowledgement counters.
func (s *State) IgnoringOnTheFly() IgnoringOnTheFly {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ignoring
}

// IncrementClientToken increments the client-side acknowledgement counter
// and returns its new value, called whenever a state-changing State
// message is emitted.
func (s *State) IncrementClientToken() uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ignoring.Client++
	return s.ignoring.Client
}

// AcknowledgeClientToken clears the client counter if echoed equals the
// currently outstanding client token.
func (s *State) AcknowledgeClientToken(echoed uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ignoring.Client != 0 && echoed == s.ignoring.Client {
		s.ignoring.Client = 0
	}
}

// SetServerToken stores a server-issued token awaiting a single echo.
func (s *State) SetServerToken(token uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ignoring.Server = token
}

// ConsumeServerToken returns the outstanding server token (0 if none) and
// clears it, for the "echo once then clear" rule.
func (s *State) ConsumeServerToken() uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	token := s.ignoring.Server
	s.ignoring.Server = 0
	return token
}

// ShouldSuppressInbound reports whether an inbound playstate should be
// ignored under the ignoring-on-the-fly protocol: suppressed while the
// client counter is non-zero and the server has not yet echoed it back
// (server counter still zero).
func (s *State) ShouldSuppressInbound() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ignoring.Client != 0 && s.ignoring.Server == 0
}

// touch* helpers record monotonic bookkeeping timestamps used by the sync
// controller and session orchestrator.

func (s *State) TouchRewind() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastRewindTime = time.Now()
	s.haveLastRewind = true
}

func (s *State) LastRewind() (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastRewindTime, s.haveLastRewind
}

func (s *State) TouchAdvance() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastAdvanceTime = time.Now()
	s.haveLastAdvance = true
}

func (s *State) LastAdvance() (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastAdvanceTime, s.haveLastAdvance
}

func (s *State) TouchUpdatedFile() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastUpdatedFileTime = time.Now()
	s.haveLastUpdatedFile = true
}

func (s *State) TouchPausedOnLeave() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastPausedOnLeaveTime = time.Now()
	s.haveLastPausedOnLeave = true
}

func (s *State) TouchConnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastConnectTime = time.Now()
	s.haveLastConnect = true
}

// ClearLastGlobalUpdate drops the last-global-update timestamp, done at
// the start of a reconnect attempt (§4.I).
func (s *State) ClearLastGlobalUpdate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.haveLastGlobalUpdate = false
}

// LastGlobalUpdate returns the time the last authoritative playstate was
// received.
func (s *State) LastGlobalUpdate() (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastGlobalUpdate, s.haveLastGlobalUpdate
}
