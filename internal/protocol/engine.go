package protocol

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/watchtogether/syncclient/internal/clientstate"
	"github.com/watchtogether/syncclient/internal/playlist"
)

// Minimum server versions below which a feature is assumed unsupported,
// reported by FeatureMinVersion. handleHello does not consult them: a
// Hello without a feature map leaves ServerFeatures unchanged.
var defaultFeatureVersions = map[string]string{
	"controlledRooms":   "1.3.0",
	"readiness":         "1.3.0",
	"sharedPlaylists":   "1.4.0",
	"chat":              "1.5.0",
	"featureList":       "1.5.0",
	"setOthersReadiness": "1.7.2",
}

// Fallback field-length limits used until the server's Hello overrides
// them.
const (
	DefaultMaxChatLength     = 50
	DefaultMaxUsernameLength = 16
	DefaultMaxRoomLength     = 35
	DefaultMaxFilenameLength = 250
)

// Sender writes an outbound wire frame.
type Sender interface {
	Send(Message) error
}

// SyncController receives authoritative playstates for reconciliation
// (§4.H); the protocol engine only decides *whether* a playstate should be
// delivered (ignoring-on-the-fly gating), not what to do with it.
type SyncController interface {
	HandleIncomingPlaystate(ps clientstate.PlayState, forwardDelay float64, t float64)
}

// PingUpdater receives raw ping samples off the wire (§4.B); the protocol
// engine only extracts the two numbers from a State message.
type PingUpdater interface {
	ReceiveMessage(clientTimestamp, serverRTT float64)
	ForwardDelay() float64
}

// PlaystateSource asks the caller (normally the sync controller/session)
// for the outbound local playstate to attach to a State reply.
type PlaystateSource interface {
	OutgoingPlaystate() (pos float64, paused bool, doSeek bool)
}

// Hooks are the session-orchestrator-level side effects the protocol
// engine triggers while applying messages; kept as an interface so the
// engine can be exercised with a recording fake in tests.
type Hooks interface {
	OnAuthenticated(motd string)
	OnChat(username, message string)
	OnSystemMessage(message string)
	OnUserListChanged()
	OnReadyChanged(username string, ready bool)
	OnPlaylistChanged(files []string)
	OnPlaylistIndexChanged(index int)
	OnControllerAuthResult(success bool)
	OnNewControlledRoom(roomName, password string)
	OnFileAssigned(name string, size uint64, duration float64)
	OnTLSAccepted()
	OnTLSRefused()
	OnTerminalError(message string)
	OnTLSUnsupportedRetryHello()
	RequestPlaylistRestoreIfArmed(room string, playlistChangeEmpty bool)
}

// Engine dispatches inbound messages and composes outbound ones. It is not
// itself safe for concurrent Dispatch calls (the session's single receive
// goroutine is the only caller), but its exported Send-composing helpers
// may be called from other goroutines since they only read clientstate
// (which is itself safe for concurrent use).
type Engine struct {
	sender Sender
	state  *clientstate.State
	pl     *playlist.Playlist
	sync   SyncController
	ps     PlaystateSource
	ping   PingUpdater
	hooks  Hooks
	logger *slog.Logger

	mu              sync.Mutex
	authenticated   bool
	firstPlaystate  bool
	featureVersions map[string]string
}

// New constructs a protocol engine wired to the given components.
func New(sender Sender, state *clientstate.State, pl *playlist.Playlist, sc SyncController, ps PlaystateSource, ping PingUpdater, hooks Hooks, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	versions := make(map[string]string, len(defaultFeatureVersions))
	for k, v := range defaultFeatureVersions {
		versions[k] = v
	}
	return &Engine{
		sender:          sender,
		state:           state,
		pl:              pl,
		sync:            sc,
		ps:              ps,
		ping:            ping,
		hooks:           hooks,
		logger:          logger,
		firstPlaystate:  true,
		featureVersions: versions,
	}
}

// Dispatch parses and applies one inbound wire frame. A parse failure is
// logged and the frame dropped without affecting the connection (§4.A).
func (e *Engine) Dispatch(frame []byte, nowSeconds float64) {
	var msg Message
	if err := json.Unmarshal(frame, &msg); err != nil {
		e.logger.Warn("dropping malformed frame", "error", err)
		return
	}

	switch {
	case msg.Hello != nil:
		e.handleHello(msg.Hello)
	case msg.List != nil:
		e.handleList(*msg.List)
	case msg.State != nil:
		e.handleState(msg.State, nowSeconds)
	case msg.Chat != nil:
		e.handleChat(msg.Chat)
	case msg.Set != nil:
		e.handleSet(msg.Set)
	case msg.TLS != nil:
		e.handleTLS(msg.TLS)
	case msg.Error != nil:
		e.handleError(msg.Error)
	default:
		// Unrecognized discriminator; ignored for forward compatibility.
	}
}

func (e *Engine) handleHello(h *HelloMsg) {
	e.mu.Lock()
	e.authenticated = true
	e.mu.Unlock()

	if h.Features != nil {
		e.applyFeatureFlags(*h.Features)
	}
	e.hooks.OnAuthenticated(h.MOTD)
	_ = e.Send(Message{List: &ListMsg{}})
}

func (e *Engine) applyFeatureFlags(f FeatureFlags) {
	e.state.ServerFeatures["sharedPlaylists"] = boolStr(f.SharedPlaylists)
	e.state.ServerFeatures["chat"] = boolStr(f.ChatEnabled)
	e.state.ServerFeatures["readiness"] = boolStr(f.Readiness)
	e.state.ServerFeatures["managedRooms"] = boolStr(f.ManagedRooms)
}

func boolStr(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func (e *Engine) handleList(list ListMsg) {
	e.state.ClearUsers()
	for room, users := range list {
		for username, entry := range users {
			if strings.TrimSpace(username) == "" {
				continue
			}
			u := clientstate.User{Room: room}
			if entry.File != nil && entry.File.Name != nil {
				u.HasFile = true
				u.Filename = *entry.File.Name
				if entry.File.Size != nil && !entry.File.Size.IsText {
					u.FileSize = entry.File.Size.Number
				}
				if entry.File.Duration != nil {
					u.FileDuration = *entry.File.Duration
				}
			}
			if entry.IsReady != nil {
				u.IsReady = *entry.IsReady
				u.HasReady = true
			}
			if entry.Controller != nil {
				u.IsController = *entry.Controller
			}
			e.state.AddUser(username, u)
		}
	}
	e.hooks.OnUserListChanged()
}

func (e *Engine) handleState(st *StateMsg, now float64) {
	if st.Ping != nil && st.Ping.ClientLatencyCalculation != nil {
		serverRTT := -1.0
		if st.Ping.ServerRTT != nil {
			serverRTT = *st.Ping.ServerRTT
		}
		e.ping.ReceiveMessage(*st.Ping.ClientLatencyCalculation, serverRTT)
	}

	if st.IgnoringOnTheFly != nil && st.IgnoringOnTheFly.Server != nil {
		e.state.SetServerToken(*st.IgnoringOnTheFly.Server)
	}
	if st.IgnoringOnTheFly != nil && st.IgnoringOnTheFly.Client != nil {
		e.state.AcknowledgeClientToken(*st.IgnoringOnTheFly.Client)
	}

	if st.PlayState != nil && !e.state.ShouldSuppressInbound() {
		ps := clientstate.PlayState{
			Position: st.PlayState.Position,
			Paused:   st.PlayState.Paused,
		}
		if st.PlayState.SetBy != nil {
			ps.SetBy = *st.PlayState.SetBy
		} else {
			ps.SetBy = "Unknown"
		}
		if st.PlayState.DoSeek != nil {
			ps.DoSeek = *st.PlayState.DoSeek
		}
		e.state.SetGlobalPlayState(ps)
		e.sync.HandleIncomingPlaystate(ps, e.ping.ForwardDelay(), now)
	}

	_ = e.replyState()
}

// replyState composes and sends the mandatory State reply carrying the
// local playstate, echoing any outstanding server token. The reply
// carries no ping fields.
func (e *Engine) replyState() error {
	pos, paused, doSeek := e.ps.OutgoingPlaystate()
	reply := StateMsg{
		PlayState: &PlayStateField{
			Position: pos,
			Paused:   paused,
			DoSeek:   &doSeek,
		},
	}
	if token := e.state.ConsumeServerToken(); token != 0 {
		reply.IgnoringOnTheFly = &IgnoringOnTheFlyField{Server: &token}
	}
	return e.Send(Message{State: &reply})
}

func (e *Engine) handleChat(c *ChatMsg) {
	e.hooks.OnChat(c.Username, c.Message)
}

func (e *Engine) handleSet(s *SetMsg) {
	if s.Room != nil {
		e.state.Room = s.Room.Name
	}
	if s.File != nil && s.File.Name != nil {
		size, duration := uint64(0), 0.0
		if s.File.Size != nil && !s.File.Size.IsText {
			size = s.File.Size.Number
		}
		if s.File.Duration != nil {
			duration = *s.File.Duration
		}
		e.hooks.OnFileAssigned(*s.File.Name, size, duration)
	}
	for username, upd := range s.User {
		e.applyUserUpdate(username, upd)
	}
	if s.Ready != nil {
		username := s.Ready.Username
		if username == "" {
			username = e.state.Username
		}
		if u, ok := e.state.User(username); ok {
			u.IsReady = s.Ready.IsReady
			u.HasReady = true
			e.state.AddUser(username, u)
		}
		e.hooks.OnReadyChanged(username, s.Ready.IsReady)
	}
	if s.ControllerAuth != nil {
		e.hooks.OnControllerAuthResult(s.ControllerAuth.Success)
	}
	if s.NewControlledRoom != nil {
		e.hooks.OnNewControlledRoom(s.NewControlledRoom.RoomName, s.NewControlledRoom.Password)
	}
	if s.PlaylistChange != nil {
		empty := len(s.PlaylistChange.Files) == 0
		e.hooks.RequestPlaylistRestoreIfArmed(e.state.Room, empty)
		if !empty {
			idx := e.pl.ComputeValidIndex(s.PlaylistChange.Files)
			e.pl.SetItems(s.PlaylistChange.Files, &idx)
			e.hooks.OnPlaylistChanged(s.PlaylistChange.Files)
		}
	}
	if s.PlaylistIndex != nil {
		e.pl.SetCurrentIndex(s.PlaylistIndex.Index)
		e.hooks.OnPlaylistIndexChanged(s.PlaylistIndex.Index)
	}
	if s.Features != nil {
		for k, v := range s.Features {
			e.state.ServerFeatures[k] = v
		}
	}
}

func (e *Engine) applyUserUpdate(username string, upd UserUpdate) {
	u, existed := e.state.User(username)
	if !existed {
		u = clientstate.User{}
	}
	if upd.Room != nil {
		u.Room = upd.Room.Name
	}
	if upd.File != nil {
		if upd.File.Name != nil {
			u.HasFile = true
			u.Filename = *upd.File.Name
		}
		if upd.File.Size != nil && !upd.File.Size.IsText {
			u.FileSize = upd.File.Size.Number
		}
		if upd.File.Duration != nil {
			u.FileDuration = *upd.File.Duration
		}
	}
	if upd.IsReady != nil {
		u.IsReady = *upd.IsReady
		u.HasReady = true
	}
	if upd.Controller != nil {
		u.IsController = *upd.Controller
	}
	if upd.Event != nil && upd.Event.Left {
		e.state.RemoveUser(username)
		return
	}
	e.state.AddUser(username, u)
}

func (e *Engine) handleTLS(t *TLSMsg) {
	switch t.StartTLS {
	case TLSTrue:
		e.hooks.OnTLSAccepted()
	case TLSFalse:
		e.hooks.OnTLSRefused()
	}
}

func (e *Engine) handleError(err *ErrorMsg) {
	e.mu.Lock()
	authenticated := e.authenticated
	e.mu.Unlock()

	if !authenticated && strings.Contains(strings.ToLower(err.Message), "tls") {
		e.hooks.OnTLSUnsupportedRetryHello()
		return
	}
	e.hooks.OnTerminalError(err.Message)
}

// SendHello composes and sends the initial handshake.
func (e *Engine) SendHello(username, room, password, version, realVersion string) error {
	h := &HelloMsg{
		Username:    username,
		Password:    password,
		Version:     version,
		RealVersion: realVersion,
		Features: &FeatureFlags{
			SharedPlaylists: true,
			ChatEnabled:     true,
			Readiness:       true,
		},
	}
	if room != "" {
		h.Room = &RoomRef{Name: room}
	}
	return e.Send(Message{Hello: h})
}

// SendChat composes and sends an outbound chat message.
func (e *Engine) SendChat(message string) error {
	return e.Send(Message{Chat: &ChatMsg{Message: message}})
}

// Send marshals msg and hands it to the Sender.
func (e *Engine) Send(msg Message) error {
	if err := e.sender.Send(msg); err != nil {
		return fmt.Errorf("protocol: send: %w", err)
	}
	return nil
}

// FeatureMinVersion returns the minimum server version at or above which
// feature is assumed supported (absent an explicit override).
func (e *Engine) FeatureMinVersion(feature string) (string, bool) {
	v, ok := defaultFeatureVersions[feature]
	return v, ok
}
