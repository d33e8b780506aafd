// Package session wires the protocol engine, sync controller, player
// backend, media index, and playlist into one connected orchestrator:
// connect/reconnect, the warning loop, and autoplay.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/watchtogether/syncclient/internal/clientstate"
	"github.com/watchtogether/syncclient/internal/config"
	"github.com/watchtogether/syncclient/internal/filematch"
	"github.com/watchtogether/syncclient/internal/mediaindex"
	"github.com/watchtogether/syncclient/internal/ping"
	"github.com/watchtogether/syncclient/internal/playerbackend"
	"github.com/watchtogether/syncclient/internal/playlist"
	"github.com/watchtogether/syncclient/internal/protocol"
	"github.com/watchtogether/syncclient/internal/synccontroller"
	"github.com/watchtogether/syncclient/internal/uievents"
	"github.com/watchtogether/syncclient/internal/wire"
)

const (
	idleWatchdog     = 12500 * time.Millisecond
	warningPeriod    = 1 * time.Second
	pollerPeriod     = 100 * time.Millisecond
	maxReconnectTries = 999

	clientVersion     = "1.7.3"
	clientRealVersion = "syncclient-1.0"
)

// Identity is the snapshot that survives a transport drop; everything
// else in a Session is re-derived on reconnect.
type Identity struct {
	Host     string
	Port     int
	Username string
	Room     string
	Password string
}

// Session owns one connection's full lifecycle: connect, the receive
// loop, reconnect backoff, the warning loop, and autoplay.
type Session struct {
	identity Identity
	cfg      config.Config
	sink     uievents.Sink
	logger   *slog.Logger

	state   *clientstate.State
	pl      *playlist.Playlist
	ping    *ping.Service
	index   *mediaindex.Index
	backend playerbackend.Backend
	ctrl    *synccontroller.Controller
	engine  *protocol.Engine

	connMu sync.Mutex
	conn   *wire.Conn

	restoreMu    sync.Mutex
	restoreArmed bool
	restoreRoom  string

	autoplayMu     sync.Mutex
	autoplayCancel context.CancelFunc

	warnMu      sync.Mutex
	wasAlone    bool
	warnedFiles map[string]bool

	loadMu      sync.Mutex
	fileLoading bool

	reconnectAttempt int
}

// New constructs a Session. backend may be nil if no player has been
// attached yet (e.g. the CLI is waiting on a player socket to appear).
func New(identity Identity, cfg config.Config, backend playerbackend.Backend, index *mediaindex.Index, sink uievents.Sink, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Session{
		identity:    identity,
		cfg:         cfg,
		sink:        sink,
		logger:      logger,
		state:       clientstate.New(identity.Username),
		pl:          playlist.New(),
		ping:        &ping.Service{},
		index:       index,
		backend:     backend,
		warnedFiles: make(map[string]bool),
	}
	s.ctrl = synccontroller.New(synccontroller.DefaultConfig(), s.state, s.pl, s)
	return s
}

// Connect dials the configured server, performs the Hello handshake (and
// a TLS upgrade if both sides support it), and starts the receive loop.
// It blocks until the connection ends, at which point — unless ctx was
// cancelled or the server sent a terminal Error — it begins the
// reconnect loop automatically.
func (s *Session) Connect(ctx context.Context) error {
	for {
		err := s.connectOnce(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err == nil {
			s.reconnectAttempt = 0
			continue
		}
		s.logger.Warn("connection lost", "error", err)
		s.sink.ConnectionStatusChanged(uievents.ConnectionStatus{Connected: false, Reason: err.Error()})
		if !s.reconnectBackoff(ctx) {
			return err
		}
	}
}

func (s *Session) connectOnce(ctx context.Context) error {
	conn, err := wire.Dial(ctx, s.identity.Host, s.identity.Port)
	if err != nil {
		return fmt.Errorf("session: dial: %w", err)
	}
	s.connMu.Lock()
	s.conn = conn
	s.connMu.Unlock()
	defer conn.Close()

	s.engine = protocol.New(&connSender{conn}, s.state, s.pl, &syncAdapter{s}, s, s.ping, s, s.logger)

	if err := s.engine.SendHello(s.identity.Username, s.identity.Room, s.identity.Password, clientVersion, clientRealVersion); err != nil {
		return fmt.Errorf("session: hello: %w", err)
	}

	s.state.ClearLastGlobalUpdate()
	s.state.TouchConnect()
	s.sink.ConnectionStatusChanged(uievents.ConnectionStatus{Connected: true})

	watchCtx, cancelWatch := context.WithCancel(ctx)
	defer cancelWatch()
	go s.idleWatchdog(watchCtx, conn)

	return s.receiveLoop(ctx, conn)
}

func (s *Session) receiveLoop(ctx context.Context, conn *wire.Conn) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		frame, err := conn.ReadFrame()
		if err != nil {
			return err
		}
		s.engine.Dispatch(frame, float64(time.Now().UnixNano())/1e9)
	}
}

// idleWatchdog closes conn if no authoritative state has arrived within
// idleWatchdog; the closed read then surfaces as a TransportLost error
// and Connect's reconnect loop takes over (§5).
func (s *Session) idleWatchdog(ctx context.Context, conn *wire.Conn) {
	ticker := time.NewTicker(warningPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			last, ok := s.state.LastGlobalUpdate()
			if ok && time.Since(last) > idleWatchdog {
				s.logger.Warn("idle watchdog expired, dropping connection")
				conn.Close()
				return
			}
		}
	}
}

// reconnectBackoff sleeps 100ms·2^min(n-1,5) before attempt n,
// capping at maxReconnectTries. It returns false once the cap is
// reached or ctx is cancelled.
func (s *Session) reconnectBackoff(ctx context.Context) bool {
	if s.reconnectAttempt >= maxReconnectTries {
		return false
	}
	s.reconnectAttempt++

	if s.reconnectAttempt == 1 {
		s.restoreMu.Lock()
		s.restoreArmed = true
		s.restoreRoom = s.identity.Room
		s.restoreMu.Unlock()
		if s.backend != nil {
			_ = s.backend.SetPaused(ctx, true)
		}
	}

	shift := s.reconnectAttempt - 1
	if shift > 5 {
		shift = 5
	}
	delay := 100 * time.Millisecond * time.Duration(math.Pow(2, float64(shift)))

	select {
	case <-ctx.Done():
		return false
	case <-time.After(delay):
		return true
	}
}

// connSender adapts *wire.Conn to protocol.Sender.
type connSender struct{ conn *wire.Conn }

func (c *connSender) Send(msg protocol.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("session: encode message: %w", err)
	}
	return c.conn.WriteFrame(data)
}

// --- protocol.PlaystateSource ---

// OutgoingPlaystate reports the local playback position to attach to the
// mandatory State reply.
func (s *Session) OutgoingPlaystate() (pos float64, paused bool, doSeek bool) {
	if s.backend == nil {
		return 0, true, false
	}
	st := s.backend.GetState()
	if st.Position != nil {
		pos = *st.Position
	}
	if st.Paused != nil {
		paused = *st.Paused
	}
	lp := s.state.LocalPlayback()
	doSeek = lp.IsSeek
	return pos, paused, doSeek
}

// --- protocol.Hooks ---

func (s *Session) OnAuthenticated(motd string) {
	if motd != "" {
		s.sink.ChatMessageReceived(uievents.ChatMessage{Message: motd})
	}

	if filematch.IsControlledRoom(s.identity.Room) {
		_ = s.engine.Send(protocol.Message{Set: &protocol.SetMsg{
			ControllerAuth: &protocol.ControllerAuthUpdate{
				Room:     s.identity.Room,
				Password: s.identity.Password,
			},
		}})
	}

	if s.backend == nil {
		return
	}
	st := s.backend.GetState()
	if st.Filename == nil || *st.Filename == "" {
		return
	}
	s.announceLocalFile(context.Background(), st)
}

func (s *Session) OnChat(username, message string) {
	s.sink.ChatMessageReceived(uievents.ChatMessage{Username: username, Message: message})
}

func (s *Session) OnSystemMessage(message string) {
	s.sink.ChatMessageReceived(uievents.ChatMessage{Message: message})
}

func (s *Session) OnUserListChanged() {
	s.emitUserList()
}

func (s *Session) emitUserList() {
	users := s.state.Users()
	out := make([]uievents.UserListEntry, 0, len(users))
	for name, u := range users {
		out = append(out, uievents.UserListEntry{
			Room: u.Room, Username: name, Filename: u.Filename,
			IsReady: u.IsReady, HasReady: u.HasReady, IsController: u.IsController,
		})
	}
	s.sink.UserListUpdated(out)
}

func (s *Session) OnReadyChanged(username string, ready bool) {
	s.emitUserList()
}

func (s *Session) OnPlaylistChanged(files []string) {
	s.emitPlaylist()
}

func (s *Session) emitPlaylist() {
	idx, _ := s.pl.CurrentIndex()
	items := s.pl.Items()
	out := make([]uievents.PlaylistEntry, len(items))
	for i, it := range items {
		out[i] = uievents.PlaylistEntry{Filename: it.Filename, Current: i == idx}
	}
	s.sink.PlaylistUpdated(out)
}

func (s *Session) OnPlaylistIndexChanged(index int) {
	s.emitPlaylist()
	item, ok := s.pl.CurrentItem()
	if !ok || s.backend == nil {
		return
	}
	path, resolved := s.index.ResolvePath(item.Filename)
	if !resolved {
		path = item.Filename
	}
	_ = s.backend.LoadFile(context.Background(), path)
}

func (s *Session) OnControllerAuthResult(success bool) {
	if success {
		s.sink.ChatMessageReceived(uievents.ChatMessage{Message: "controller authentication succeeded"})
	} else {
		s.sink.ChatMessageReceived(uievents.ChatMessage{Message: "controller authentication failed"})
	}
}

func (s *Session) OnNewControlledRoom(roomName, password string) {
	s.identity.Room = roomName
	s.identity.Password = password
}

func (s *Session) OnFileAssigned(name string, size uint64, duration float64) {
	path, resolved := s.index.ResolvePath(name)
	if !resolved {
		path = name
	}
	if s.backend != nil {
		_ = s.backend.LoadFile(context.Background(), path)
	}
}

func (s *Session) OnTLSAccepted() {
	s.connMu.Lock()
	conn := s.conn
	s.connMu.Unlock()
	if conn == nil {
		return
	}
	version, err := conn.UpgradeTLS(s.identity.Host)
	if err != nil {
		s.logger.Warn("tls upgrade failed", "error", err)
		s.sink.TLSStatusChanged(uievents.TLSStatus{Active: false})
		return
	}
	s.sink.TLSStatusChanged(uievents.TLSStatus{Active: true, Version: version})
}

func (s *Session) OnTLSRefused() {
	s.sink.TLSStatusChanged(uievents.TLSStatus{Active: false})
}

func (s *Session) OnTerminalError(message string) {
	s.sink.ChatMessageReceived(uievents.ChatMessage{Message: message})
	// Exhaust the reconnect budget so Connect returns instead of
	// reconnecting once this connection ends.
	s.reconnectAttempt = maxReconnectTries
}

func (s *Session) OnTLSUnsupportedRetryHello() {
	_ = s.engine.SendHello(s.identity.Username, s.identity.Room, s.identity.Password, clientVersion, clientRealVersion)
}

// RequestPlaylistRestoreIfArmed implements §4.I's playlist-restore
// recovery: the first post-reconnect Set with an empty playlistChange in
// the buffered room causes the client to re-announce its own playlist.
func (s *Session) RequestPlaylistRestoreIfArmed(room string, playlistChangeEmpty bool) {
	s.restoreMu.Lock()
	armed := s.restoreArmed && playlistChangeEmpty && room == s.restoreRoom
	if armed {
		s.restoreArmed = false
	}
	s.restoreMu.Unlock()
	if !armed {
		return
	}

	files := s.pl.Filenames()
	idx, hasIdx := s.pl.CurrentIndex()
	_ = s.engine.Send(protocol.Message{Set: &protocol.SetMsg{
		PlaylistChange: &protocol.PlaylistChangeUpdate{Files: files},
	}})
	if hasIdx {
		_ = s.engine.Send(protocol.Message{Set: &protocol.SetMsg{
			PlaylistIndex: &protocol.PlaylistIndexUpdate{Index: idx},
		}})
	}
}

// --- playerbackend.Events ---

func (s *Session) OnStateChanged(st playerbackend.State) {
	var pos float64
	var paused bool
	var filename string
	if st.Position != nil {
		pos = *st.Position
	}
	if st.Paused != nil {
		paused = *st.Paused
	}
	if st.Filename != nil {
		filename = *st.Filename
	}
	s.sink.PlayerStateChanged(uievents.PlayerState{Position: pos, Paused: paused, Filename: filename})
}

// OnFileLoadStart arms the file-load barrier (§4.D): while the player is
// between its "start of file" and "end of marker" events, a file update
// is never sent upstream, since the filename/duration it would carry are
// still in flux.
func (s *Session) OnFileLoadStart() {
	s.loadMu.Lock()
	s.fileLoading = true
	s.loadMu.Unlock()
}

// OnFileLoadEnd closes the file-load barrier: the freshly settled local
// state is re-seeked and re-paused to the current global playstate, then
// announced to the server as this client's file.
func (s *Session) OnFileLoadEnd() {
	s.loadMu.Lock()
	s.fileLoading = false
	s.loadMu.Unlock()

	if s.backend == nil {
		return
	}
	ctx := context.Background()
	st, err := s.backend.PollState(ctx)
	if err != nil {
		return
	}

	if global, ok := s.state.GlobalPlayState(); ok {
		pos := global.Position
		if !global.Paused {
			pos += s.ping.ForwardDelay()
		}
		_ = s.backend.SetPosition(ctx, pos)
		_ = s.backend.SetPaused(ctx, global.Paused)
	}

	s.announceLocalFile(ctx, st)
}

// announceLocalFile sends this client's currently loaded file to the
// server, honoring the file-load barrier and the configured filename
// privacy mode. Called once the barrier closes, and again on
// reconnection-Hello so the server learns of a file already loaded
// before the new connection existed.
func (s *Session) announceLocalFile(ctx context.Context, st playerbackend.State) {
	s.loadMu.Lock()
	loading := s.fileLoading
	s.loadMu.Unlock()
	if loading {
		return
	}
	if st.Filename == nil || *st.Filename == "" {
		return
	}

	name, hasName, _, _ := filematch.ApplyPrivacy(*st.Filename, true, 0, false, s.privacyMode(), s.privacyMode())
	if !hasName {
		return
	}
	var duration *float64
	if st.Duration != nil {
		duration = st.Duration
	}
	_ = s.engine.Send(protocol.Message{Set: &protocol.SetMsg{
		File: &protocol.FileInfo{Name: &name, Duration: duration},
	}})
}

func (s *Session) privacyMode() filematch.PrivacyMode {
	switch s.cfg.FilenamePrivacy {
	case config.PrivacyDoNotSend:
		return filematch.DoNotSend
	case config.PrivacySendHashed:
		return filematch.SendHashed
	default:
		return filematch.SendRaw
	}
}

// OnEndFile advances the playlist directly off the backend's end-file
// event (§4.H.11's "or emits an end-file event" disjunct), independent of
// the position-proximity check already run inside HandleIncomingPlaystate.
func (s *Session) OnEndFile() {
	if s.backend == nil {
		return
	}
	s.applyActions(s.ctrl.HandleEndFile())
}

func (s *Session) OnPlayerGone(reason string) {
	s.logger.Warn("player unreachable", "reason", reason)
	s.sink.ChatMessageReceived(uievents.ChatMessage{Message: "player unreachable: " + reason})
}

// --- mediaindex.Events ---

func (s *Session) MediaIndexRefreshing(refreshing bool) {
	s.sink.MediaIndexRefreshing(uievents.MediaIndexStatus{Refreshing: refreshing})
}

func (s *Session) MediaIndexUpdated(at time.Time) {
	s.sink.MediaIndexUpdated(uievents.MediaIndexStatus{FileCount: 0})
}

func (s *Session) ErrorMessage(message string) {
	s.sink.ChatMessageReceived(uievents.ChatMessage{Message: message})
}

// --- synccontroller.RoomAuthority ---

func (s *Session) IsLocalController() bool {
	u, ok := s.state.User(s.identity.Username)
	return ok && u.IsController
}

func (s *Session) IsReadinessSupported() bool {
	return s.cfg.ReadinessEnabled && s.state.ServerFeatures["readiness"] != "false"
}

func (s *Session) IsSpeedSupported() bool {
	return s.backend != nil
}

func (s *Session) IsMusicFile(filename string) bool {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".mp3", ".flac", ".ogg", ".m4a", ".wav":
		return true
	default:
		return false
	}
}

func (s *Session) LoopAtEnd() bool {
	return s.cfg.LoopAtEnd
}

// syncAdapter satisfies protocol.SyncController by pulling the local
// player snapshot and executing the resulting actions, keeping the
// reconciliation logic itself (Controller) free of backend/state
// plumbing concerns.
type syncAdapter struct{ s *Session }

func (a *syncAdapter) HandleIncomingPlaystate(ps clientstate.PlayState, forwardDelay float64, t float64) {
	s := a.s
	if s.backend == nil {
		return
	}
	local := s.backend.GetState()
	actions := s.ctrl.HandleIncomingPlaystate(ps, forwardDelay, t, local, s.identity.Username)
	s.applyActions(actions)

	// §4.D "State delta propagation": refresh local_playback_state from a
	// mutation before the caller's mandatory State reply reads it, since
	// the backend only updates its cache on an explicit poll or an async
	// property-change event, never synchronously with a command.
	if len(actions) > 0 {
		_, _ = s.backend.PollState(context.Background())
	}
}

func (s *Session) applyActions(actions []synccontroller.Action) {
	ctx := context.Background()
	for _, act := range actions {
		switch act.Kind {
		case synccontroller.ActionSeek:
			_ = s.backend.SetPosition(ctx, act.Position)
		case synccontroller.ActionSetPaused:
			_ = s.backend.SetPaused(ctx, act.Paused)
		case synccontroller.ActionSetSpeed:
			_ = s.backend.SetSpeed(ctx, act.Speed)
		case synccontroller.ActionNotify:
			s.sink.ChatMessageReceived(uievents.ChatMessage{Message: act.Message})
		case synccontroller.ActionAdvancePlaylist:
			_ = s.engine.Send(protocol.Message{Set: &protocol.SetMsg{
				PlaylistIndex: &protocol.PlaylistIndexUpdate{Index: act.Index},
			}})
		case synccontroller.ActionSetReady:
			_ = s.engine.Send(protocol.Message{Set: &protocol.SetMsg{
				Ready: &protocol.ReadyUpdate{IsReady: act.Ready},
			}})
		}
	}
}

// filenameDisplay applies the configured privacy mode before a filename
// is shown to the user in a warning or chat line, matching §6's privacy
// semantics for local display rather than just wire transmission.
func (s *Session) filenameDisplay(name string) string {
	switch s.cfg.FilenamePrivacy {
	case config.PrivacyDoNotSend:
		return filematch.HiddenFilename
	case config.PrivacySendHashed:
		return filematch.Hash(name, false)
	default:
		return name
	}
}
