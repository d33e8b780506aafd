// Package mpv implements the player backend contract over mpv's
// JSON-IPC socket, shared by mpv, mpv.net and IINA (which all speak the
// same IPC dialect over a local socket or named pipe).
package mpv

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/watchtogether/syncclient/internal/playerbackend"
)

const (
	// commandThrottle is the minimum interval between successive writes to
	// the player's IPC socket (§4.D).
	commandThrottle = 50 * time.Millisecond

	// readyForceTimeout forces the ready gate back open if the player
	// never emits its file-loaded completion marker, avoiding a permanent
	// deadlock of the pending queue.
	readyForceTimeout = 3 * time.Second
)

// ipcConn is the subset of net.Conn the backend needs; defined as an
// interface so tests can substitute an in-memory pipe instead of a real
// socket.
type ipcConn interface {
	io.Reader
	io.Writer
	io.Closer
}

type ipcRequest struct {
	Command   []any `json:"command"`
	RequestID int64 `json:"request_id"`
}

type ipcReply struct {
	RequestID int64  `json:"request_id"`
	Error     string `json:"error"`
	Data      any    `json:"data"`
}

type ipcEvent struct {
	Event string `json:"event"`
	Name  string `json:"name"`
	Data  any    `json:"data"`
}

// Backend drives a single mpv-family player instance over its JSON-IPC
// socket.
type Backend struct {
	conn   ipcConn
	events playerbackend.Events
	logger *slog.Logger

	queue   pendingQueue
	wake    chan struct{}
	limiter *rate.Limiter

	ready atomic.Bool

	nextRequestID atomic.Int64
	pendingMu     sync.Mutex
	pendingReply  map[int64]chan ipcReply
	pendingProp   map[int64]string

	stateMu sync.RWMutex
	state   playerbackend.State

	fileLoading atomic.Bool
	speedKnown  atomic.Bool // set true by NewBackend; nothing reads or clears it

	closeOnce sync.Once
	closed    chan struct{}
}

// NewBackend wraps an already-connected IPC socket. Call Run to start the
// reader/writer goroutines.
func NewBackend(conn ipcConn, events playerbackend.Events, logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Backend{
		conn:         conn,
		events:       events,
		logger:       logger,
		wake:         make(chan struct{}, 1),
		limiter:      rate.NewLimiter(rate.Every(commandThrottle), 1),
		pendingReply: make(map[int64]chan ipcReply),
		pendingProp:  make(map[int64]string),
		closed:       make(chan struct{}),
	}
	b.ready.Store(true)
	b.speedKnown.Store(true)
	return b
}

// Run starts the reader and writer goroutines and blocks until ctx is
// cancelled or the connection closes.
func (b *Backend) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); b.readLoop() }()
	go func() { defer wg.Done(); b.writeLoop(ctx) }()

	<-ctx.Done()
	b.Close()
	wg.Wait()
}

// Close tears down the connection; safe to call multiple times.
func (b *Backend) Close() {
	b.closeOnce.Do(func() {
		close(b.closed)
		_ = b.conn.Close()
	})
}

func (b *Backend) readLoop() {
	scanner := bufio.NewScanner(b.conn)
	scanner.Buffer(make([]byte, 0, 4096), 1<<20)
	for scanner.Scan() {
		line := scanner.Bytes()
		b.handleLine(line)
	}
	b.events.OnPlayerGone("ipc connection closed")
}

func (b *Backend) handleLine(line []byte) {
	var reply ipcReply
	if err := json.Unmarshal(line, &reply); err == nil && reply.RequestID != 0 {
		b.pendingMu.Lock()
		ch, ok := b.pendingReply[reply.RequestID]
		prop, hasProp := b.pendingProp[reply.RequestID]
		delete(b.pendingReply, reply.RequestID)
		delete(b.pendingProp, reply.RequestID)
		b.pendingMu.Unlock()
		if hasProp && reply.Error == "success" {
			b.applyNamedProperty(prop, reply.Data)
		}
		if ok {
			ch <- reply
			close(ch)
		}
		return
	}

	var ev ipcEvent
	if err := json.Unmarshal(line, &ev); err != nil {
		b.logger.Debug("mpv ipc: unparsed line", "line", string(line))
		return
	}
	b.handleEvent(ev)
}

func (b *Backend) handleEvent(ev ipcEvent) {
	switch ev.Event {
	case "start-file":
		b.fileLoading.Store(true)
		b.ready.Store(false)
		b.armReadyForceTimer()
		b.events.OnFileLoadStart()
	case "file-loaded":
		b.fileLoading.Store(false)
		b.ready.Store(true)
		b.wakeWriter()
		b.events.OnFileLoadEnd()
	case "end-file":
		b.events.OnEndFile()
	case "property-change":
		b.applyPropertyChange(ev)
	}
}

func (b *Backend) applyPropertyChange(ev ipcEvent) {
	b.applyNamedProperty(ev.Name, ev.Data)
}

func (b *Backend) applyNamedProperty(name string, data any) {
	b.stateMu.Lock()
	defer b.stateMu.Unlock()
	switch name {
	case "time-pos":
		if v, ok := toFloat(data); ok {
			b.state.Position = &v
		}
	case "duration":
		if v, ok := toFloat(data); ok {
			b.state.Duration = &v
		}
	case "pause":
		if v, ok := data.(bool); ok {
			b.state.Paused = &v
		}
	case "speed":
		if v, ok := toFloat(data); ok {
			b.state.Speed = &v
		}
	case "filename":
		if v, ok := data.(string); ok {
			b.state.Filename = &v
		}
	case "path":
		if v, ok := data.(string); ok {
			b.state.Path = &v
		}
	}
}

func toFloat(v any) (float64, bool) {
	f, ok := v.(float64)
	return f, ok
}

func (b *Backend) armReadyForceTimer() {
	time.AfterFunc(readyForceTimeout, func() {
		if b.fileLoading.Load() {
			b.ready.Store(true)
			b.fileLoading.Store(false)
			b.wakeWriter()
		}
	})
}

func (b *Backend) wakeWriter() {
	select {
	case b.wake <- struct{}{}:
	default:
	}
}

// writeLoop is the writer goroutine: it flushes the pending queue whenever
// woken and the ready gate is open, throttled to one send per
// commandThrottle.
func (b *Backend) writeLoop(ctx context.Context) {
	ticker := time.NewTicker(commandThrottle)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-b.closed:
			return
		case <-b.wake:
		case <-ticker.C:
		}
		b.flush(ctx)
	}
}

func (b *Backend) flush(ctx context.Context) {
	if !b.ready.Load() {
		return
	}
	cmds := b.queue.popAll()
	for i, cmd := range cmds {
		if err := b.limiter.Wait(ctx); err != nil {
			return
		}
		if _, err := b.conn.Write(cmd.payload); err != nil {
			if cmd.done != nil {
				cmd.done <- fmt.Errorf("%w: %v", playerbackend.ErrUnreachable, err)
				close(cmd.done)
			}
			return
		}
		if cmd.done != nil {
			close(cmd.done)
		}
		if !b.ready.Load() {
			// A command in this batch (e.g. loadfile) may have re-armed
			// the loading barrier; put the rest of the batch back at the
			// front of the queue and stop flushing until ready returns.
			b.queue.mu.Lock()
			b.queue.order = append(append([]*queuedCommand(nil), cmds[i+1:]...), b.queue.order...)
			b.queue.mu.Unlock()
			return
		}
	}
}

func (b *Backend) enqueue(kind commandKind, command []any) error {
	id := b.nextRequestID.Add(1)
	traceID := uuid.NewString()
	payload, err := json.Marshal(ipcRequest{Command: command, RequestID: id})
	if err != nil {
		return fmt.Errorf("mpv: encode command: %w", err)
	}
	b.logger.Debug("mpv ipc command queued", "trace", traceID, "command", command)

	done := make(chan error, 1)
	b.queue.push(&queuedCommand{kind: kind, payload: payload, done: done})
	b.wakeWriter()
	return nil
}

// LoadFile loads pathOrURL, arming the file-load barrier.
func (b *Backend) LoadFile(ctx context.Context, pathOrURL string) error {
	return b.enqueue(kindLoadFile, []any{"loadfile", pathOrURL, "replace"})
}

// SetPosition seeks to seconds.
func (b *Backend) SetPosition(ctx context.Context, seconds float64) error {
	return b.enqueue(kindSetTimePos, []any{"set_property", "time-pos", seconds})
}

// SetPaused toggles the player's pause state to match paused, via mpv's
// "cycle pause" command — which only flips the current state, so this is
// a no-op when the last known state already matches.
func (b *Backend) SetPaused(ctx context.Context, paused bool) error {
	b.stateMu.RLock()
	current := b.state.Paused
	b.stateMu.RUnlock()
	if current != nil && *current == paused {
		return nil
	}
	return b.enqueue(kindCyclePause, []any{"cycle", "pause"})
}

// SetSpeed sets the playback speed multiplier. mpv supports this directly;
// the error return exists so other backends (MPC) can report
// ErrUnsupported through the same interface.
func (b *Backend) SetSpeed(ctx context.Context, multiplier float64) error {
	return b.enqueue(kindOther, []any{"set_property", "speed", multiplier})
}

// ShowOSD displays an on-screen message for duration seconds (0 or less =
// 3 seconds).
func (b *Backend) ShowOSD(ctx context.Context, text string, duration float64) error {
	ms := int(duration * 1000)
	if ms <= 0 {
		ms = 3000
	}
	return b.enqueue(kindOther, []any{"show-text", text, ms})
}

// ShowChat renders a chat line via the chat-overlay script (see
// chatoverlay.go), dispatched with script-message-to so the overlay
// script controls its own OSD lifetime independent of other show-text
// callers.
func (b *Backend) ShowChat(ctx context.Context, user, text string) error {
	line := text
	if user != "" {
		line = user + ": " + text
	}
	return b.enqueue(kindOther, []any{"script-message-to", ChatOverlayScriptName, "chat", line})
}

// PollState asks mpv for the properties this backend tracks and returns
// the refreshed snapshot.
func (b *Backend) PollState(ctx context.Context) (playerbackend.State, error) {
	for _, prop := range []string{"time-pos", "pause", "duration", "speed", "filename", "path"} {
		id := b.nextRequestID.Add(1)
		payload, err := json.Marshal(ipcRequest{Command: []any{"get_property", prop}, RequestID: id})
		if err != nil {
			continue
		}
		replyCh := make(chan ipcReply, 1)
		b.pendingMu.Lock()
		b.pendingReply[id] = replyCh
		b.pendingProp[id] = prop
		b.pendingMu.Unlock()

		if _, err := b.conn.Write(payload); err != nil {
			return b.GetState(), fmt.Errorf("%w: %v", playerbackend.ErrUnreachable, err)
		}
		select {
		case <-ctx.Done():
			return b.GetState(), ctx.Err()
		case <-replyCh:
		case <-time.After(2 * time.Second):
		}
	}
	return b.GetState(), nil
}

// GetState returns the last observed snapshot without talking to the
// player.
func (b *Backend) GetState() playerbackend.State {
	b.stateMu.RLock()
	defer b.stateMu.RUnlock()
	return b.state
}

// Shutdown requests the player quit and closes the IPC connection.
func (b *Backend) Shutdown(ctx context.Context) error {
	_ = b.enqueue(kindOther, []any{"quit"})
	time.Sleep(commandThrottle)
	b.Close()
	return nil
}
