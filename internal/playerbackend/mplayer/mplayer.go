// Package mplayer implements the player backend contract over MPlayer's
// slave-mode protocol (§4.D): commands are newline-terminated lines
// written to the player's stdin, and property queries are answered on
// stdout as "ANS_<property>=<value>" lines, with the input/output pipes
// decoupled since MPlayer's stdout otherwise also carries status chatter.
package mplayer

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

const answerPrefix = "ANS_"

// Backend drives a single MPlayer instance over its slave-mode pipes.
type Backend struct {
	stdin  io.Writer
	events playerbackend.Events
	logger *slog.Logger

	writeMu sync.Mutex

	pendingMu sync.Mutex
	pending   map[string]chan string

	stateMu sync.RWMutex
	state   playerbackend.State

	loading boolFlag
}

// boolFlag is a tiny bool flag guarded by its own mutex, kept local to
// this package rather than reaching for sync/atomic for a single flag
// with its own independent lifetime from the state mutex.
type boolFlag struct {
	mu  sync.Mutex
	val bool
}

func (a *boolFlag) set(v bool) { a.mu.Lock(); a.val = v; a.mu.Unlock() }
func (a *boolFlag) get() bool  { a.mu.Lock(); defer a.mu.Unlock(); return a.val }

// NewBackend wraps an MPlayer process's stdin writer and stdout reader,
// and starts the reader goroutine that demultiplexes ANS_ answers from
// the rest of MPlayer's status output.
func NewBackend(stdin io.Writer, stdout io.Reader, events playerbackend.Events, logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Backend{
		stdin:   stdin,
		events:  events,
		logger:  logger,
		pending: make(map[string]chan string),
	}
	go b.readLoop(stdout)
	return b
}

func (b *Backend) readLoop(stdout io.Reader) {
	reader := bufio.NewReader(stdout)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			b.events.OnPlayerGone(err.Error())
			return
		}
		b.handleLine(strings.TrimRight(line, "\r\n"))
	}
}

func (b *Backend) handleLine(line string) {
	switch {
	case strings.HasPrefix(line, answerPrefix):
		body := strings.TrimPrefix(line, answerPrefix)
		prop, value, ok := strings.Cut(body, "=")
		if !ok {
			return
		}
		b.applyProperty(prop, value)
		b.pendingMu.Lock()
		if ch, ok := b.pending[prop]; ok {
			ch <- value
			delete(b.pending, prop)
		}
		b.pendingMu.Unlock()
	case strings.Contains(line, "Starting playback"):
		b.loading.set(true)
		b.events.OnFileLoadStart()
	case strings.Contains(line, "Exiting") && strings.Contains(line, "End of file"):
		b.events.OnEndFile()
	}
}

func (b *Backend) applyProperty(prop, value string) {
	b.stateMu.Lock()
	switch prop {
	case "TIME_POSITION":
		if v, err := strconv.ParseFloat(value, 64); err == nil {
			b.state.Position = &v
		}
	case "LENGTH":
		if v, err := strconv.ParseFloat(value, 64); err == nil {
			b.state.Duration = &v
		}
	case "PAUSE":
		paused := value == "yes"
		b.state.Paused = &paused
	case "SPEED":
		if v, err := strconv.ParseFloat(value, 64); err == nil {
			b.state.Speed = &v
		}
	case "FILENAME":
		name := value
		b.state.Filename = &name
		if b.loading.get() {
			b.loading.set(false)
			b.stateMu.Unlock()
			b.events.OnFileLoadEnd()
			b.events.OnStateChanged(b.GetState())
			return
		}
	}
	snapshot := b.state
	b.stateMu.Unlock()
	b.events.OnStateChanged(snapshot)
}

func (b *Backend) writeLine(line string) error {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	_, err := fmt.Fprintf(b.stdin, "%s\n", line)
	if err != nil {
		return fmt.Errorf("%w: %v", playerbackend.ErrUnreachable, err)
	}
	return nil
}

func (b *Backend) getProperty(ctx context.Context, prop string) (string, error) {
	ch := make(chan string, 1)
	b.pendingMu.Lock()
	b.pending[prop] = ch
	b.pendingMu.Unlock()

	if err := b.writeLine("pausing_keep_force get_property " + prop); err != nil {
		return "", err
	}
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case v := <-ch:
		return v, nil
	case <-time.After(2 * time.Second):
		return "", fmt.Errorf("mplayer: timed out reading property %q", prop)
	}
}

// LoadFile loads pathOrURL via "loadfile".
func (b *Backend) LoadFile(ctx context.Context, pathOrURL string) error {
	return b.writeLine(fmt.Sprintf("loadfile %q", pathOrURL))
}

// SetPosition seeks to an absolute position via "seek ... 2".
func (b *Backend) SetPosition(ctx context.Context, seconds float64) error {
	return b.writeLine(fmt.Sprintf("pausing_keep_force seek %f 2", seconds))
}

// SetPaused sets pause state via "pause" (a toggle, gated on the cached
// state exactly as the mpv backend gates its own "cycle pause" command).
func (b *Backend) SetPaused(ctx context.Context, paused bool) error {
	b.stateMu.RLock()
	current := b.state.Paused
	b.stateMu.RUnlock()
	if current != nil && *current == paused {
		return nil
	}
	return b.writeLine("pause")
}

// SetSpeed sets playback speed via "speed_set".
func (b *Backend) SetSpeed(ctx context.Context, multiplier float64) error {
	return b.writeLine(fmt.Sprintf("pausing_keep_force speed_set %f", multiplier))
}

// ShowOSD displays text via "osd_show_text".
func (b *Backend) ShowOSD(ctx context.Context, text string, duration float64) error {
	ms := int(duration * 1000)
	if ms <= 0 {
		ms = 3000
	}
	return b.writeLine(fmt.Sprintf("pausing_keep_force osd_show_text %q %d 1", text, ms))
}

// ShowChat renders a chat line via the same OSD text primitive.
func (b *Backend) ShowChat(ctx context.Context, user, text string) error {
	line := text
	if user != "" {
		line = user + ": " + text
	}
	return b.ShowOSD(ctx, line, 5)
}

// PollState requests the properties this backend tracks and returns the
// refreshed snapshot.
func (b *Backend) PollState(ctx context.Context) (playerbackend.State, error) {
	for _, prop := range []string{"TIME_POSITION", "LENGTH", "PAUSE", "SPEED", "FILENAME"} {
		if _, err := b.getProperty(ctx, prop); err != nil {
			return b.GetState(), err
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

// Shutdown requests MPlayer quit via "quit".
func (b *Backend) Shutdown(ctx context.Context) error {
	return b.writeLine("quit")
}
