// Package mpc implements the player backend contract over Media Player
// Classic's host-window COPYDATA message API (§4.D): every command is a
// WM_COPYDATA message sent to MPC's main window, identified by one of the
// API's documented command IDs, carrying a small payload describing the
// argument. MPC has no playback-speed primitive, so SetSpeed always
// refuses with ErrUnsupported, matching §4.D's "players that lack a
// speed primitive must refuse slowdown requests with a typed error".
package mpc

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/watchtogether/syncclient/internal/playerbackend"
)

// Command IDs from MPC's public API (player/mpc_api.rs in the original
// source), namespaced by direction: 0x5... are notifications MPC sends
// us, 0xA... are commands we send MPC.
const (
	cmdConnect           = 0x50000000
	cmdState             = 0x50000001
	cmdNowPlaying        = 0x50000003
	cmdCurrentPosition   = 0x50000007
	cmdNotifySeek        = 0x50000008
	cmdDisconnect        = 0x5000000B
	cmdOpenFile          = 0xA0000000
	cmdPlay              = 0xA0000004
	cmdPause             = 0xA0000005
	cmdSetPosition       = 0xA0002000
	cmdGetCurrentPos     = 0xA0003004
	cmdSetSpeed          = 0xA0004008
	cmdCloseApp          = 0xA0004006
	cmdOSDShowMessage    = 0xA0005000
)

// transport sends one COPYDATA message to MPC's window. It does not wait
// for replies; MPC's notifications reach the Backend through Notify.
type transport interface {
	Send(ctx context.Context, cmd uint32, payload string) error
	Close() error
}

// Backend drives a single MPC (HC or BE) instance over COPYDATA.
type Backend struct {
	tr     transport
	events playerbackend.Events
	logger *slog.Logger

	stateMu sync.RWMutex
	state   playerbackend.State
}

// NewBackend wraps an already-connected COPYDATA transport (see
// NewWindowsTransport). events receives notifications decoded from
// MPC's own 0x5... COPYDATA pushes by feeding them through Notify.
func NewBackend(tr transport, events playerbackend.Events, logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{tr: tr, events: events, logger: logger}
}

// Notify applies one incoming COPYDATA message from MPC to the cached
// state. The package's Windows transport only sends; nothing in this
// package receives MPC's window messages, so callers feed them in here.
func (b *Backend) Notify(cmd uint32, payload string) {
	b.stateMu.Lock()
	switch cmd {
	case cmdState:
		playing := payload == "1" || payload == "2"
		paused := payload == "2"
		if playing {
			b.state.Paused = &paused
		}
	case cmdNowPlaying:
		parts := strings.SplitN(payload, "|", 3)
		if len(parts) > 0 && parts[0] != "" {
			name := parts[0]
			b.state.Filename = &name
		}
		if len(parts) > 2 {
			if d, err := strconv.ParseFloat(parts[2], 64); err == nil {
				d = d / 1000
				b.state.Duration = &d
			}
		}
		b.stateMu.Unlock()
		b.events.OnFileLoadEnd()
		b.events.OnStateChanged(b.GetState())
		return
	case cmdCurrentPosition, cmdNotifySeek:
		if ms, err := strconv.ParseFloat(payload, 64); err == nil {
			pos := ms / 1000
			b.state.Position = &pos
		}
	case cmdDisconnect:
		b.stateMu.Unlock()
		b.events.OnEndFile()
		return
	}
	snapshot := b.state
	b.stateMu.Unlock()
	b.events.OnStateChanged(snapshot)
}

// LoadFile opens pathOrURL via CMD_OPENFILE.
func (b *Backend) LoadFile(ctx context.Context, pathOrURL string) error {
	b.events.OnFileLoadStart()
	return b.tr.Send(ctx, cmdOpenFile, pathOrURL)
}

// SetPosition seeks via CMD_SETPOSITION, whose payload is a millisecond
// offset (MPC's own API accepts either a timecode or a raw millisecond
// count; the latter round-trips exactly through float64 seconds).
func (b *Backend) SetPosition(ctx context.Context, seconds float64) error {
	return b.tr.Send(ctx, cmdSetPosition, strconv.FormatInt(int64(seconds*1000), 10))
}

// SetPaused plays or pauses via CMD_PLAY/CMD_PAUSE.
func (b *Backend) SetPaused(ctx context.Context, paused bool) error {
	if paused {
		return b.tr.Send(ctx, cmdPause, "")
	}
	return b.tr.Send(ctx, cmdPlay, "")
}

// SetSpeed always fails: MPC's COPYDATA API has no playback-rate command.
func (b *Backend) SetSpeed(ctx context.Context, multiplier float64) error {
	return fmt.Errorf("mpc: %w: no playback-speed primitive", playerbackend.ErrUnsupported)
}

// ShowOSD displays text via CMD_OSDSHOWMESSAGE.
func (b *Backend) ShowOSD(ctx context.Context, text string, duration float64) error {
	ms := int64(duration * 1000)
	if ms <= 0 {
		ms = 3000
	}
	return b.tr.Send(ctx, cmdOSDShowMessage, fmt.Sprintf("%d|1|%s", ms, text))
}

// ShowChat renders a chat line the same way as an OSD message; MPC's API
// has no separate chat channel.
func (b *Backend) ShowChat(ctx context.Context, user, text string) error {
	line := text
	if user != "" {
		line = user + ": " + text
	}
	return b.ShowOSD(ctx, line, 5)
}

// PollState requests the current position via CMD_GETCURRENTPOS; the
// reply arrives asynchronously through Notify, same as MPC's unsolicited
// notifications.
func (b *Backend) PollState(ctx context.Context) (playerbackend.State, error) {
	if err := b.tr.Send(ctx, cmdGetCurrentPos, ""); err != nil {
		return b.GetState(), err
	}
	select {
	case <-ctx.Done():
		return b.GetState(), ctx.Err()
	case <-time.After(150 * time.Millisecond):
	}
	return b.GetState(), nil
}

// GetState returns the last observed snapshot without talking to MPC.
func (b *Backend) GetState() playerbackend.State {
	b.stateMu.RLock()
	defer b.stateMu.RUnlock()
	return b.state
}

// Shutdown requests MPC close via CMD_CLOSEAPP.
func (b *Backend) Shutdown(ctx context.Context) error {
	_ = b.tr.Send(ctx, cmdCloseApp, "")
	return b.tr.Close()
}
