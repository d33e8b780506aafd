package uievents

import "log/slog"

// SlogSink logs each event at Info, the default sink so the repository is
// runnable and testable headlessly without any GUI runtime attached.
type SlogSink struct {
	logger *slog.Logger
}

// NewSlogSink wraps logger (or slog.Default() if nil) as a Sink.
func NewSlogSink(logger *slog.Logger) *SlogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogSink{logger: logger}
}

func (s *SlogSink) ConnectionStatusChanged(v ConnectionStatus) {
	s.logger.Info("connection-status-changed", "connected", v.Connected, "reason", v.Reason)
}

func (s *SlogSink) TLSStatusChanged(v TLSStatus) {
	s.logger.Info("tls-status-changed", "active", v.Active, "version", v.Version)
}

func (s *SlogSink) ChatMessageReceived(v ChatMessage) {
	s.logger.Info("chat-message-received", "username", v.Username, "message", v.Message)
}

func (s *SlogSink) UserListUpdated(v []UserListEntry) {
	s.logger.Info("user-list-updated", "count", len(v))
}

func (s *SlogSink) PlaylistUpdated(v []PlaylistEntry) {
	s.logger.Info("playlist-updated", "count", len(v))
}

func (s *SlogSink) PlayerStateChanged(v PlayerState) {
	s.logger.Info("player-state-changed", "position", v.Position, "paused", v.Paused, "filename", v.Filename)
}

func (s *SlogSink) PingUpdated(v PingInfo) {
	s.logger.Info("ping-updated", "rtt", v.RTT, "forward_delay", v.ForwardDelay, "avg_rtt", v.AverageRTT)
}

func (s *SlogSink) MediaIndexRefreshing(v MediaIndexStatus) {
	s.logger.Info("media-index-refreshing", "refreshing", v.Refreshing)
}

func (s *SlogSink) MediaIndexUpdated(v MediaIndexStatus) {
	if v.Error != "" {
		s.logger.Warn("media-index-updated", "file_count", v.FileCount, "error", v.Error)
		return
	}
	s.logger.Info("media-index-updated", "file_count", v.FileCount)
}

func (s *SlogSink) ConfigUpdated() {
	s.logger.Info("config-updated")
}
