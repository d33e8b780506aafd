// Package uievents defines the shell-facing boundary the core reports
// through, in the shape of the teacher's wailsrt.EventsEmit(ctx, name,
// payload) calls — the core never imports a GUI runtime, it only calls
// through this interface.
package uievents

// ConnectionStatus is the payload for ConnectionStatusChanged.
type ConnectionStatus struct {
	Connected bool
	Reason    string
}

// TLSStatus is the payload for TLSStatusChanged.
type TLSStatus struct {
	Active  bool
	Version string
}

// ChatMessage is the payload for ChatMessageReceived.
type ChatMessage struct {
	Username string
	Message  string
}

// UserListEntry is one row of the payload for UserListUpdated.
type UserListEntry struct {
	Room         string
	Username     string
	Filename     string
	IsReady      bool
	HasReady     bool
	IsController bool
}

// PlaylistEntry is one row of the payload for PlaylistUpdated.
type PlaylistEntry struct {
	Filename string
	Current  bool
}

// PlayerState is the payload for PlayerStateChanged.
type PlayerState struct {
	Position float64
	Paused   bool
	Filename string
}

// PingInfo is the payload for PingUpdated.
type PingInfo struct {
	RTT           float64
	ForwardDelay  float64
	AverageRTT    float64
}

// MediaIndexStatus is the payload shared by MediaIndexRefreshing and
// MediaIndexUpdated.
type MediaIndexStatus struct {
	Refreshing bool
	FileCount  int
	Error      string
}

// Sink is the shell boundary: one method per event named in the external
// interfaces list. The core holds a Sink and never type-asserts on it.
type Sink interface {
	ConnectionStatusChanged(ConnectionStatus)
	TLSStatusChanged(TLSStatus)
	ChatMessageReceived(ChatMessage)
	UserListUpdated([]UserListEntry)
	PlaylistUpdated([]PlaylistEntry)
	PlayerStateChanged(PlayerState)
	PingUpdated(PingInfo)
	MediaIndexRefreshing(MediaIndexStatus)
	MediaIndexUpdated(MediaIndexStatus)
	ConfigUpdated()
}
