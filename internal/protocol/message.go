// Package protocol implements the coordination wire message types and the
// engine that dispatches inbound messages and composes outbound ones.
package protocol

import "encoding/json"

// Message is the wire envelope: exactly one of its fields should be
// present on any given line, mirroring the server's discriminated-union
// framing. Unrecognized keys are tolerated by encoding/json's default
// decode (they're simply absent from this struct) for forward
// compatibility.
type Message struct {
	Hello *HelloMsg `json:"Hello,omitempty"`
	List  *ListMsg  `json:"List,omitempty"`
	Set   *SetMsg   `json:"Set,omitempty"`
	State *StateMsg `json:"State,omitempty"`
	Chat  *ChatMsg  `json:"Chat,omitempty"`
	Error *ErrorMsg `json:"Error,omitempty"`
	TLS   *TLSMsg   `json:"TLS,omitempty"`
}

// HelloMsg is both the client's initial handshake and the server's
// acknowledgement of it.
type HelloMsg struct {
	Username    string        `json:"username"`
	Password    string        `json:"password,omitempty"`
	Room        *RoomRef      `json:"room,omitempty"`
	Version     string        `json:"version"`
	RealVersion string        `json:"realversion"`
	Features    *FeatureFlags `json:"features,omitempty"`
	MOTD        string        `json:"motd,omitempty"`
}

// RoomRef names a room, optionally with a controller-auth password.
type RoomRef struct {
	Name     string `json:"name"`
	Password string `json:"password,omitempty"`
}

// FeatureFlags is the capability map carried by Hello. Set.Features is a
// separate string→string map and does not use this type.
type FeatureFlags struct {
	SharedPlaylists    bool `json:"sharedPlaylists,omitempty"`
	ChatEnabled        bool `json:"chat,omitempty"`
	Readiness          bool `json:"readiness,omitempty"`
	ManagedRooms       bool `json:"managedRooms,omitempty"`
	PersistentRooms     bool `json:"persistentRooms,omitempty"`
	MaxChatMessageLength int  `json:"maxChatMessageLength,omitempty"`
	MaxUsernameLength   int  `json:"maxUsernameLength,omitempty"`
	MaxRoomNameLength   int  `json:"maxRoomNameLength,omitempty"`
	MaxFilenameLength   int  `json:"maxFilenameLength,omitempty"`
}

// ListMsg is the room roster: room name → username → entry. A nil/empty
// List message is used as the client's request form.
type ListMsg map[string]map[string]ListUser

// ListUser is one user's entry within a List.
type ListUser struct {
	File       *FileInfo `json:"file,omitempty"`
	IsReady    *bool     `json:"isReady,omitempty"`
	Controller *bool     `json:"controller,omitempty"`
}

// FileInfo describes a loaded file, with size/duration possibly hashed or
// hidden per the active privacy mode.
type FileInfo struct {
	Name     *string  `json:"name,omitempty"`
	Size     *RawSize `json:"size,omitempty"`
	Duration *float64 `json:"duration,omitempty"`
}

// RawSize accepts either a raw numeric size or a hashed textual token, the
// two wire representations privacy modes produce.
type RawSize struct {
	Number uint64
	Text   string
	IsText bool
}

func (r RawSize) MarshalJSON() ([]byte, error) {
	if r.IsText {
		return json.Marshal(r.Text)
	}
	return json.Marshal(r.Number)
}

func (r *RawSize) UnmarshalJSON(data []byte) error {
	var n uint64
	if err := json.Unmarshal(data, &n); err == nil {
		r.Number = n
		r.IsText = false
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	r.Text = s
	r.IsText = true
	return nil
}

// SetMsg is the composite update envelope; every field is optional and
// sub-updates apply in the order: Room, File, User, Ready, ControllerAuth,
// NewControlledRoom, PlaylistChange, PlaylistIndex.
type SetMsg struct {
	Room               *RoomRef               `json:"room,omitempty"`
	File               *FileInfo              `json:"file,omitempty"`
	User               map[string]UserUpdate  `json:"user,omitempty"`
	Ready              *ReadyUpdate           `json:"ready,omitempty"`
	PlaylistIndex      *PlaylistIndexUpdate   `json:"playlistIndex,omitempty"`
	PlaylistChange     *PlaylistChangeUpdate  `json:"playlistChange,omitempty"`
	ControllerAuth     *ControllerAuthUpdate  `json:"controllerAuth,omitempty"`
	NewControlledRoom  *NewControlledRoomUpdate `json:"newControlledRoom,omitempty"`
	Features           map[string]string      `json:"features,omitempty"`
}

// UserUpdate carries per-user changes within a Set.User map.
type UserUpdate struct {
	Room       *RoomRef    `json:"room,omitempty"`
	File       *FileInfo   `json:"file,omitempty"`
	Event      *UserEvent  `json:"event,omitempty"`
	IsReady    *bool       `json:"isReady,omitempty"`
	Controller *bool       `json:"controller,omitempty"`
}

// UserEvent describes a join/leave/version/feature announcement nested
// under a per-user update.
type UserEvent struct {
	Left     bool          `json:"left,omitempty"`
	Joined   bool          `json:"joined,omitempty"`
	Version  string        `json:"version,omitempty"`
	Features *FeatureFlags `json:"features,omitempty"`
}

// ReadyUpdate announces a readiness change, possibly for another user
// (setBy records who triggered it).
type ReadyUpdate struct {
	Username          string `json:"username,omitempty"`
	IsReady           bool   `json:"isReady"`
	ManuallyInitiated bool   `json:"manuallyInitiated,omitempty"`
	SetBy             string `json:"setBy,omitempty"`
}

// PlaylistIndexUpdate announces the selected index has changed.
type PlaylistIndexUpdate struct {
	User  string `json:"user,omitempty"`
	Index int    `json:"index"`
}

// PlaylistChangeUpdate announces the full playlist contents have changed.
type PlaylistChangeUpdate struct {
	User  string   `json:"user,omitempty"`
	Files []string `json:"files"`
}

// ControllerAuthUpdate reports the result of a controller-auth attempt.
type ControllerAuthUpdate struct {
	Room     string `json:"room,omitempty"`
	Password string `json:"password,omitempty"`
	User     string `json:"user,omitempty"`
	Success  bool   `json:"success,omitempty"`
}

// NewControlledRoomUpdate announces a freshly created managed room.
type NewControlledRoomUpdate struct {
	RoomName string `json:"roomName"`
	Password string `json:"password"`
}

// StateMsg is the bidirectional playstate/ping/ignoring-on-the-fly
// envelope.
type StateMsg struct {
	PlayState        *PlayStateField        `json:"playstate,omitempty"`
	Ping             *PingField             `json:"ping,omitempty"`
	IgnoringOnTheFly *IgnoringOnTheFlyField `json:"ignoringOnTheFly,omitempty"`
}

// PlayStateField is the position/pause/actor tuple carried on State.
type PlayStateField struct {
	Position float64  `json:"position"`
	Paused   bool     `json:"paused"`
	DoSeek   *bool    `json:"doSeek,omitempty"`
	SetBy    *string  `json:"setBy,omitempty"`
}

// PingField carries round-trip timing information.
type PingField struct {
	LatencyCalculation       *float64 `json:"latencyCalculation,omitempty"`
	ClientLatencyCalculation *float64 `json:"clientLatencyCalculation,omitempty"`
	ClientRTT                *float64 `json:"clientRtt,omitempty"`
	ServerRTT                *float64 `json:"serverRtt,omitempty"`
}

// IgnoringOnTheFlyField carries the acknowledgement counters.
type IgnoringOnTheFlyField struct {
	Server *uint16 `json:"server,omitempty"`
	Client *uint16 `json:"client,omitempty"`
}

// ChatMsg is either a structured {username, message} or (via
// UnmarshalJSON) a bare string with Username left empty.
type ChatMsg struct {
	Username string `json:"username,omitempty"`
	Message  string `json:"message,omitempty"`
}

func (c *ChatMsg) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		c.Message = s
		return nil
	}
	type alias ChatMsg
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*c = ChatMsg(a)
	return nil
}

func (c ChatMsg) MarshalJSON() ([]byte, error) {
	if c.Username == "" {
		return json.Marshal(c.Message)
	}
	type alias ChatMsg
	return json.Marshal(alias(c))
}

// ErrorMsg carries a server-surfaced error string.
type ErrorMsg struct {
	Message string `json:"message"`
}

// TLSMsg carries the three-way TLS negotiation payload.
type TLSMsg struct {
	StartTLS string `json:"startTLS"`
}

const (
	TLSSend  = "send"
	TLSTrue  = "true"
	TLSFalse = "false"
)
