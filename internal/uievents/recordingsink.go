package uievents

import "sync"

// recordedEvent captures one Sink call for later assertion, directly
// grounded on the teacher's mockTransport pattern of recording calls for
// assertions in app_test.go.
type recordedEvent struct {
	Name    string
	Payload any
}

// RecordingSink is a test double that appends every call to a slice
// instead of emitting anything.
type RecordingSink struct {
	mu     sync.Mutex
	events []recordedEvent
}

// NewRecordingSink returns an empty RecordingSink.
func NewRecordingSink() *RecordingSink {
	return &RecordingSink{}
}

func (r *RecordingSink) record(name string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{Name: name, Payload: payload})
}

// Events returns the event names recorded so far, in order.
func (r *RecordingSink) Events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.Name
	}
	return out
}

// Last returns the most recent payload recorded for name, or ok=false.
func (r *RecordingSink) Last(name string) (any, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].Name == name {
			return r.events[i].Payload, true
		}
	}
	return nil, false
}

func (r *RecordingSink) ConnectionStatusChanged(v ConnectionStatus) { r.record("connection-status-changed", v) }
func (r *RecordingSink) TLSStatusChanged(v TLSStatus)               { r.record("tls-status-changed", v) }
func (r *RecordingSink) ChatMessageReceived(v ChatMessage)          { r.record("chat-message-received", v) }
func (r *RecordingSink) UserListUpdated(v []UserListEntry)          { r.record("user-list-updated", v) }
func (r *RecordingSink) PlaylistUpdated(v []PlaylistEntry)          { r.record("playlist-updated", v) }
func (r *RecordingSink) PlayerStateChanged(v PlayerState)           { r.record("player-state-changed", v) }
func (r *RecordingSink) PingUpdated(v PingInfo)                     { r.record("ping-updated", v) }
func (r *RecordingSink) MediaIndexRefreshing(v MediaIndexStatus)    { r.record("media-index-refreshing", v) }
func (r *RecordingSink) MediaIndexUpdated(v MediaIndexStatus)       { r.record("media-index-updated", v) }
func (r *RecordingSink) ConfigUpdated()                             { r.record("config-updated", nil) }
