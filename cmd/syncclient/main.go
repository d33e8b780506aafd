// Command syncclient is a headless coordination client: it connects to a
// sync server, drives a local media player over its IPC socket, and logs
// every shell-facing event via log/slog — the Wails/webview bootstrap the
// original desktop app used is out of scope here; this binary is the
// CLI-friendly default described alongside it.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/watchtogether/syncclient/internal/config"
	"github.com/watchtogether/syncclient/internal/filematch"
	"github.com/watchtogether/syncclient/internal/mediaindex"
	"github.com/watchtogether/syncclient/internal/playerbackend"
	"github.com/watchtogether/syncclient/internal/playerbackend/mpv"
	"github.com/watchtogether/syncclient/internal/session"
	"github.com/watchtogether/syncclient/internal/uievents"
)

func main() {
	server := flag.String("server", "", "sync server address (host[:port])")
	room := flag.String("room", "", "room to join")
	username := flag.String("username", "", "display name")
	password := flag.String("password", "", "room or controller password")
	playerSocket := flag.String("player", "", "mpv-family IPC socket path (omit to run without a local player)")
	mediaDirs := flag.String("media-dirs", "", "comma-separated directories to index for filename resolution")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	cfg := config.Load()
	if *username != "" {
		cfg.Username = *username
	}
	if *mediaDirs != "" {
		cfg.MediaDirectories = strings.Split(*mediaDirs, ",")
	}

	if *server == "" {
		fmt.Fprintln(os.Stderr, "syncclient: -server is required")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *server, *room, cfg.Username, *password, *playerSocket, cfg, logger); err != nil && ctx.Err() == nil {
		logger.Error("syncclient exited", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, server, room, username, password, playerSocket string, cfg config.Config, logger *slog.Logger) error {
	sink := uievents.NewSlogSink(logger)

	idx := mediaindex.New(&indexEvents{sink}, logger)
	idx.UpdateDirectories(cfg.MediaDirectories)
	go refreshIndexPeriodically(ctx, idx)

	events := &playerEvents{sink: sink, logger: logger}

	var backend *mpv.Backend
	if playerSocket != "" {
		args := []string{"--idle", "--input-ipc-server=" + playerSocket}
		if scriptsDir, err := os.UserCacheDir(); err == nil {
			scriptPath, err := mpv.InstallChatOverlayScript(filepath.Join(scriptsDir, "syncclient", "scripts"))
			if err != nil {
				logger.Warn("failed to install chat overlay script", "error", err)
			} else {
				args = append(args, "--script="+scriptPath)
			}
		}

		spawner := &mpv.Spawner{}
		conn, err := spawner.SpawnAndDial(ctx, "mpv", args, playerSocket, false)
		if err != nil {
			return fmt.Errorf("syncclient: spawn player: %w", err)
		}
		backend = mpv.NewBackend(conn, events, logger)
	}

	host, port, err := splitServer(server)
	if err != nil {
		return err
	}

	normalizedRoom, controlPassword, hasControlPassword := filematch.ParseControlledRoomInput(room)
	if hasControlPassword {
		room, password = normalizedRoom, controlPassword
	}
	identity := session.Identity{Host: host, Port: port, Username: username, Room: room, Password: password}

	var sess *session.Session
	if backend != nil {
		sess = session.New(identity, cfg, backend, idx, sink, logger)
	} else {
		sess = session.New(identity, cfg, nil, idx, sink, logger)
	}
	events.sess = sess
	if backend != nil {
		go backend.Run(ctx)
	}

	return sess.Run(ctx)
}

const defaultServerPort = 8999

// splitServer accepts host or host:port and returns the canonical pair,
// defaulting the port the way the session layer's own address parser
// does for server addresses typed without one.
func splitServer(raw string) (string, int, error) {
	raw = strings.TrimSpace(raw)
	if host, portStr, err := net.SplitHostPort(raw); err == nil {
		port, perr := strconv.Atoi(portStr)
		if perr != nil {
			return "", 0, fmt.Errorf("syncclient: invalid port %q", portStr)
		}
		return host, port, nil
	}
	if raw == "" {
		return "", 0, fmt.Errorf("syncclient: server address is required")
	}
	return raw, defaultServerPort, nil
}

func refreshIndexPeriodically(ctx context.Context, idx *mediaindex.Index) {
	idx.Refresh(ctx)
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			idx.Refresh(ctx)
		}
	}
}

type indexEvents struct{ sink uievents.Sink }

func (e *indexEvents) MediaIndexRefreshing(refreshing bool) {
	e.sink.MediaIndexRefreshing(uievents.MediaIndexStatus{Refreshing: refreshing})
}
func (e *indexEvents) MediaIndexUpdated(at time.Time) {
	e.sink.MediaIndexUpdated(uievents.MediaIndexStatus{})
}
func (e *indexEvents) ErrorMessage(message string) {
	e.sink.ChatMessageReceived(uievents.ChatMessage{Message: message})
}

// playerEvents forwards the backend's event stream to the Session. It
// exists because the backend must be constructed before the Session that
// owns it, since the Session constructor takes the backend as an
// argument; sess is filled in immediately after construction, before the
// backend can emit anything the session would need to observe (the
// backend's Run is only started once sess is set).
type playerEvents struct {
	sink   uievents.Sink
	logger *slog.Logger
	sess   *session.Session
}

func (p *playerEvents) OnStateChanged(st playerbackend.State) { p.sess.OnStateChanged(st) }
func (p *playerEvents) OnFileLoadStart()                       { p.sess.OnFileLoadStart() }
func (p *playerEvents) OnFileLoadEnd()                         { p.sess.OnFileLoadEnd() }
func (p *playerEvents) OnEndFile()                              { p.sess.OnEndFile() }
func (p *playerEvents) OnPlayerGone(reason string) {
	p.logger.Warn("player gone", "reason", reason)
	p.sess.OnPlayerGone(reason)
}
