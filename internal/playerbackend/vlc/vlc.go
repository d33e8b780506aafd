// Package vlc implements the player backend contract over VLC's "syncplay"
// Lua interface module, a line-oriented text protocol spoken over a local
// TCP socket (§4.D). Each status line carries one "command: argument" pair;
// commands are pushed asynchronously by VLC and also answered on request.
package vlc

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/watchtogether/syncclient/internal/playerbackend"
)

// conn is the subset of net.Conn the backend needs, mirroring the mpv
// backend's ipcConn so tests can substitute an in-memory pipe.
type conn interface {
	io.Reader
	io.Writer
	io.Closer
}

// Backend drives a single VLC instance over its syncplay Lua interface.
type Backend struct {
	conn   conn
	events playerbackend.Events
	logger *slog.Logger

	writeMu sync.Mutex

	stateMu          sync.RWMutex
	state            playerbackend.State
	lastPositionAt   time.Time
	havePositionTime bool

	closeOnce sync.Once
	closed    chan struct{}
}

// NewBackend wraps an already-connected syncplay Lua socket. Call Run to
// start the reader goroutine.
func NewBackend(c conn, events playerbackend.Events, logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{conn: c, events: events, logger: logger, closed: make(chan struct{})}
}

// Run starts the reader goroutine and blocks until ctx is cancelled or the
// connection closes.
func (b *Backend) Run(ctx context.Context) {
	go b.readLoop()
	select {
	case <-ctx.Done():
	case <-b.closed:
	}
	b.Close()
}

// Close tears down the underlying connection.
func (b *Backend) Close() {
	b.closeOnce.Do(func() {
		close(b.closed)
		_ = b.conn.Close()
	})
}

func (b *Backend) readLoop() {
	reader := bufio.NewReader(b.conn)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			select {
			case <-b.closed:
			default:
				b.events.OnPlayerGone(err.Error())
				b.Close()
			}
			return
		}
		b.handleLine(strings.TrimRight(line, "\r\n"))
	}
}

func (b *Backend) sendLine(line string) error {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	_, err := fmt.Fprintf(b.conn, "%s\n", line)
	if err != nil {
		return fmt.Errorf("%w: %v", playerbackend.ErrUnreachable, err)
	}
	return nil
}

// handleLine applies one status line to the cached state, matching the
// "filepath-change-notification" refresh trigger and the per-field
// "command: argument" updates the syncplay module emits.
func (b *Backend) handleLine(line string) {
	if line == "" {
		return
	}
	if line == "filepath-change-notification" {
		_ = b.sendLine("get-duration")
		_ = b.sendLine("get-filepath")
		_ = b.sendLine("get-filename")
		b.events.OnFileLoadStart()
		return
	}

	command, argument := splitStatusLine(line)

	b.stateMu.Lock()
	switch command {
	case "playstate":
		if argument != "" {
			paused := argument != "playing"
			b.state.Paused = &paused
		}
	case "position":
		if argument == "no-input" {
			b.state.Position = nil
		} else if pos, err := strconv.ParseFloat(strings.ReplaceAll(argument, ",", "."), 64); err == nil {
			b.state.Position = &pos
			b.lastPositionAt = time.Now()
			b.havePositionTime = true
		}
	case "duration", "duration-change":
		switch argument {
		case "no-input", "invalid-32-bit-value":
			b.state.Duration = nil
		default:
			if d, err := strconv.ParseFloat(strings.ReplaceAll(argument, ",", "."), 64); err == nil {
				b.state.Duration = &d
			}
		}
	case "filepath":
		if argument == "no-input" {
			b.state.Path = nil
		} else {
			path := argument
			b.state.Path = &path
		}
	case "filename":
		if argument != "no-input" {
			name := argument
			b.state.Filename = &name
			b.events.OnFileLoadEnd()
		}
	case "inputstate-change":
		if argument == "no-input" {
			b.state.Path = nil
			b.state.Filename = nil
			b.state.Duration = nil
			b.state.Position = nil
			b.events.OnEndFile()
		}
	}
	snapshot := b.state
	b.stateMu.Unlock()
	b.events.OnStateChanged(snapshot)
}

func splitStatusLine(line string) (command, argument string) {
	if cmd, arg, ok := strings.Cut(line, ": "); ok {
		return strings.TrimSpace(cmd), strings.TrimSpace(arg)
	}
	if cmd, arg, ok := strings.Cut(line, ":"); ok {
		return strings.TrimSpace(cmd), strings.TrimSpace(arg)
	}
	return strings.TrimSpace(line), ""
}

// LoadFile loads pathOrURL via "load-file".
func (b *Backend) LoadFile(ctx context.Context, pathOrURL string) error {
	return b.sendLine("load-file: " + pathOrURL)
}

// SetPosition seeks to seconds via "set-position".
func (b *Backend) SetPosition(ctx context.Context, seconds float64) error {
	return b.sendLine(fmt.Sprintf("set-position: %f", seconds))
}

// SetPaused sets the play/pause state via "set-playstate".
func (b *Backend) SetPaused(ctx context.Context, paused bool) error {
	target := "playing"
	if paused {
		target = "paused"
	}
	return b.sendLine("set-playstate: " + target)
}

// SetSpeed sets the playback rate via "set-rate".
func (b *Backend) SetSpeed(ctx context.Context, multiplier float64) error {
	return b.sendLine(fmt.Sprintf("set-rate: %.2f", multiplier))
}

// ShowOSD displays text top-right for duration seconds via "display-osd".
func (b *Backend) ShowOSD(ctx context.Context, text string, duration float64) error {
	if duration <= 0 {
		duration = 3
	}
	text = strings.ReplaceAll(text, `"`, "'")
	return b.sendLine(fmt.Sprintf("display-osd: top-right, %.1f, %s", duration, text))
}

// ShowChat renders a chat line the same way as an OSD message; VLC's
// syncplay module has no separate chat channel.
func (b *Backend) ShowChat(ctx context.Context, user, text string) error {
	line := text
	if user != "" {
		line = user + ": " + text
	}
	return b.ShowOSD(ctx, line, 5)
}

// PollState requests a fresh position/duration/filepath/filename snapshot
// and returns the last cached state (the replies arrive asynchronously on
// the reader goroutine, same as VLC's own push notifications).
func (b *Backend) PollState(ctx context.Context) (playerbackend.State, error) {
	for _, cmd := range []string{"get-position", "get-duration", "get-filepath", "get-filename", "get-playstate"} {
		if err := b.sendLine(cmd); err != nil {
			return b.GetState(), err
		}
	}
	select {
	case <-ctx.Done():
		return b.GetState(), ctx.Err()
	case <-time.After(150 * time.Millisecond):
	}
	return b.GetState(), nil
}

// GetState returns the last observed snapshot, applying the same
// elapsed-time position extrapolation VLC's infrequent position
// notifications require: while playing, the cached position is advanced
// by the time since it was last reported.
func (b *Backend) GetState() playerbackend.State {
	b.stateMu.RLock()
	defer b.stateMu.RUnlock()
	st := b.state
	if st.Paused != nil && !*st.Paused && st.Position != nil && b.havePositionTime {
		elapsed := time.Since(b.lastPositionAt).Seconds()
		if elapsed > 0.1 {
			pos := *st.Position + elapsed
			st.Position = &pos
		}
	}
	return st
}

// Shutdown requests VLC close via "close-vlc" and closes the socket.
func (b *Backend) Shutdown(ctx context.Context) error {
	_ = b.sendLine("close-vlc")
	b.Close()
	return nil
}
