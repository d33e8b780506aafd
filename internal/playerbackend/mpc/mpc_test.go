package mpc_test

import (
	"context"
	"errors"
	"testing"

	"github.com/watchtogether/syncclient/internal/playerbackend"
	"github.com/watchtogether/syncclient/internal/playerbackend/mpc"
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

type sentMessage struct {
	cmd     uint32
	payload string
}

type fakeTransport struct {
	sent []sentMessage
}

func (f *fakeTransport) Send(ctx context.Context, cmd uint32, payload string) error {
	f.sent = append(f.sent, sentMessage{cmd, payload})
	return nil
}
func (f *fakeTransport) Close() error { return nil }

func TestSetSpeedIsUnsupported(t *testing.T) {
	backend := mpc.NewBackend(&fakeTransport{}, &fakeEvents{}, nil)
	err := backend.SetSpeed(context.Background(), 0.95)
	if !errors.Is(err, playerbackend.ErrUnsupported) {
		t.Errorf("expected ErrUnsupported, got %v", err)
	}
}

func TestLoadFileFiresLoadStartAndSendsOpenFile(t *testing.T) {
	tr := &fakeTransport{}
	events := &fakeEvents{}
	backend := mpc.NewBackend(tr, events, nil)

	if err := backend.LoadFile(context.Background(), "/media/movie.mkv"); err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if events.loadStarts != 1 {
		t.Errorf("expected OnFileLoadStart to fire once, got %d", events.loadStarts)
	}
	if len(tr.sent) != 1 || tr.sent[0].payload != "/media/movie.mkv" {
		t.Errorf("unexpected sent messages: %+v", tr.sent)
	}
}

func TestNotifyNowPlayingUpdatesStateAndFiresLoadEnd(t *testing.T) {
	events := &fakeEvents{}
	backend := mpc.NewBackend(&fakeTransport{}, events, nil)

	backend.Notify(0x50000003, "movie.mkv|something|7200000")

	st := backend.GetState()
	if st.Filename == nil || *st.Filename != "movie.mkv" {
		t.Errorf("expected filename movie.mkv, got %+v", st.Filename)
	}
	if st.Duration == nil || *st.Duration != 7200 {
		t.Errorf("expected duration 7200s, got %+v", st.Duration)
	}
	if events.loadEnds != 1 {
		t.Errorf("expected OnFileLoadEnd to fire once, got %d", events.loadEnds)
	}
}

func TestNotifyDisconnectFiresEndFile(t *testing.T) {
	events := &fakeEvents{}
	backend := mpc.NewBackend(&fakeTransport{}, events, nil)

	backend.Notify(0x5000000B, "")

	if events.endFiles != 1 {
		t.Errorf("expected OnEndFile to fire once, got %d", events.endFiles)
	}
}
