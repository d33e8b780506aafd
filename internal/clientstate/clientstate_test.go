package clientstate_test

import (
	"testing"

	"github.com/watchtogether/syncclient/internal/clientstate"
)

func TestAddUserFiltersBlankNames(t *testing.T) {
	s := clientstate.New("self")
	s.AddUser("   ", clientstate.User{Room: "r"})
	if _, ok := s.User("   "); ok {
		t.Error("expected whitespace-only username to be rejected")
	}
}

func TestIsReadyWithFileRequiresFile(t *testing.T) {
	s := clientstate.New("self")
	s.AddUser("bob", clientstate.User{IsReady: true, HasFile: false})
	if _, ok := s.IsReadyWithFile("bob"); ok {
		t.Error("expected ok=false for a user without a loaded file")
	}

	s.AddUser("bob", clientstate.User{IsReady: true, HasFile: true})
	ready, ok := s.IsReadyWithFile("bob")
	if !ok || !ready {
		t.Errorf("expected ready=true ok=true, got ready=%v ok=%v", ready, ok)
	}
}

func TestIgnoringOnTheFlyClientRoundTrip(t *testing.T) {
	s := clientstate.New("self")
	token := s.IncrementClientToken()
	if token != 1 {
		t.Fatalf("expected first token to be 1, got %d", token)
	}
	if !s.ShouldSuppressInbound() {
		t.Error("expected suppression while client token outstanding and server token unset")
	}
	s.AcknowledgeClientToken(token)
	if s.ShouldSuppressInbound() {
		t.Error("expected suppression to clear once the client token is acknowledged")
	}
}

func TestIgnoringOnTheFlyWrongEchoDoesNotClear(t *testing.T) {
	s := clientstate.New("self")
	s.IncrementClientToken() // 1
	s.AcknowledgeClientToken(99)
	if !s.ShouldSuppressInbound() {
		t.Error("expected suppression to remain since the echoed token didn't match")
	}
}

func TestServerTokenConsumedOnce(t *testing.T) {
	s := clientstate.New("self")
	s.SetServerToken(7)
	if got := s.ConsumeServerToken(); got != 7 {
		t.Fatalf("expected consumed token 7, got %d", got)
	}
	if got := s.ConsumeServerToken(); got != 0 {
		t.Errorf("expected second consume to return 0, got %d", got)
	}
}

func TestGlobalPlayStateRoundTrip(t *testing.T) {
	s := clientstate.New("self")
	if _, ok := s.GlobalPlayState(); ok {
		t.Error("expected no global play state before any update")
	}
	s.SetGlobalPlayState(clientstate.PlayState{Position: 42, Paused: true})
	ps, ok := s.GlobalPlayState()
	if !ok || ps.Position != 42 || !ps.Paused {
		t.Errorf("unexpected global play state: %+v ok=%v", ps, ok)
	}
}

func TestClearUsersEmptiesRoster(t *testing.T) {
	s := clientstate.New("self")
	s.AddUser("bob", clientstate.User{})
	s.ClearUsers()
	if users := s.Users(); len(users) != 0 {
		t.Errorf("expected empty roster after clear, got %+v", users)
	}
}
