package protocol_test

import (
	"encoding/json"
	"testing"

	"github.com/watchtogether/syncclient/internal/protocol"
)

func TestChatMsgBareString(t *testing.T) {
	var c protocol.ChatMsg
	if err := json.Unmarshal([]byte(`"hello room"`), &c); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if c.Message != "hello room" || c.Username != "" {
		t.Errorf("unexpected chat: %+v", c)
	}
}

func TestChatMsgStructured(t *testing.T) {
	var c protocol.ChatMsg
	if err := json.Unmarshal([]byte(`{"username":"alice","message":"hi"}`), &c); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if c.Username != "alice" || c.Message != "hi" {
		t.Errorf("unexpected chat: %+v", c)
	}
}

func TestChatMsgMarshalRoundTrip(t *testing.T) {
	c := protocol.ChatMsg{Message: "only text"}
	data, err := json.Marshal(c)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `"only text"` {
		t.Errorf("expected bare string encoding, got %s", data)
	}

	c2 := protocol.ChatMsg{Username: "bob", Message: "hey"}
	data2, err := json.Marshal(c2)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back protocol.ChatMsg
	if err := json.Unmarshal(data2, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back != c2 {
		t.Errorf("round trip mismatch: got %+v want %+v", back, c2)
	}
}

func TestRawSizeNumberAndText(t *testing.T) {
	var n protocol.RawSize
	if err := json.Unmarshal([]byte(`12345`), &n); err != nil {
		t.Fatalf("unmarshal number: %v", err)
	}
	if n.IsText || n.Number != 12345 {
		t.Errorf("expected numeric size, got %+v", n)
	}

	var s protocol.RawSize
	if err := json.Unmarshal([]byte(`"a1b2c3d4e5f6"`), &s); err != nil {
		t.Fatalf("unmarshal text: %v", err)
	}
	if !s.IsText || s.Text != "a1b2c3d4e5f6" {
		t.Errorf("expected hashed text size, got %+v", s)
	}
}

func TestMessageDiscriminatedUnion(t *testing.T) {
	data := []byte(`{"Chat":"hi there"}`)
	var msg protocol.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if msg.Chat == nil || msg.Chat.Message != "hi there" {
		t.Fatalf("expected chat message, got %+v", msg)
	}
	if msg.Hello != nil || msg.List != nil || msg.State != nil {
		t.Errorf("expected only Chat populated, got %+v", msg)
	}
}
