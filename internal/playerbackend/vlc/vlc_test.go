package vlc_test

import (
	"bufio"
	"context"
	"net"
	"testing"
	"time"

	"github.com/watchtogether/syncclient/internal/playerbackend"
	"github.com/watchtogether/syncclient/internal/playerbackend/vlc"
)

type fakeEvents struct {
	loadStarts int
	loadEnds   int
	endFiles   int
}

func (f *fakeEvents) OnStateChanged(playerbackend.State) {}
func (f *fakeEvents) OnFileLoadStart()                   { f.loadStarts++ }
func (f *fakeEvents) OnFileLoadEnd()                     { f.loadEnds++ }
func (f *fakeEvents) OnEndFile()                         { f.endFiles++ }
func (f *fakeEvents) OnPlayerGone(reason string)         {}

func newHarness(t *testing.T) (*vlc.Backend, net.Conn, *fakeEvents, context.CancelFunc) {
	t.Helper()
	clientConn, serverConn := net.Pipe()
	events := &fakeEvents{}
	backend := vlc.NewBackend(clientConn, events, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go backend.Run(ctx)
	t.Cleanup(func() {
		cancel()
		serverConn.Close()
	})
	return backend, serverConn, events, cancel
}

func readLine(t *testing.T, conn net.Conn) string {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		t.Fatalf("read line: %v", err)
	}
	return line
}

func TestLoadFileSendsLoadFileLine(t *testing.T) {
	backend, serverConn, _, _ := newHarness(t)

	// net.Pipe is unbuffered, so LoadFile's write only completes once the
	// test side reads the line.
	errCh := make(chan error, 1)
	go func() { errCh <- backend.LoadFile(context.Background(), "/media/movie.mkv") }()
	line := readLine(t, serverConn)
	if line != "load-file: /media/movie.mkv\n" {
		t.Errorf("unexpected line: %q", line)
	}
	if err := <-errCh; err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
}

func TestStatusLineUpdatesState(t *testing.T) {
	backend, serverConn, _, _ := newHarness(t)

	serverConn.SetWriteDeadline(time.Now().Add(2 * time.Second))
	if _, err := serverConn.Write([]byte("position: 42.5\n")); err != nil {
		t.Fatalf("write status: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if st := backend.GetState(); st.Position != nil && *st.Position >= 42.5 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("expected GetState to reflect the position status line")
}

func TestInputStateChangeFiresEndFile(t *testing.T) {
	backend, serverConn, events, _ := newHarness(t)
	_ = backend

	serverConn.SetWriteDeadline(time.Now().Add(2 * time.Second))
	if _, err := serverConn.Write([]byte("inputstate-change: no-input\n")); err != nil {
		t.Fatalf("write status: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if events.endFiles > 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("expected inputstate-change: no-input to fire OnEndFile")
}
