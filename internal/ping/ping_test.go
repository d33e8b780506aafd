package ping_test

import (
	"testing"

	"github.com/watchtogether/syncclient/internal/ping"
)

func TestReceiveMessageRejectsNegativeRTT(t *testing.T) {
	var s ping.Service
	future := ping.NewTimestamp() + 5
	s.ReceiveMessage(future, 0)
	if s.RTT() != 0 {
		t.Errorf("expected negative-RTT sample to be rejected, got RTT=%v", s.RTT())
	}
}

func TestReceiveMessageRejectsNegativeServerRTT(t *testing.T) {
	var s ping.Service
	s.ReceiveMessage(ping.NewTimestamp(), -1)
	if s.RTT() != 0 {
		t.Errorf("expected negative serverRTT sample to be rejected, got RTT=%v", s.RTT())
	}
}

func TestReceiveMessageRejectsNonPositiveTimestamp(t *testing.T) {
	var s ping.Service
	s.ReceiveMessage(0, 0)
	s.ReceiveMessage(-1, 0)
	if s.RTT() != 0 {
		t.Errorf("expected non-positive timestamp to be rejected, got RTT=%v", s.RTT())
	}
}

func TestReceiveMessageUpdatesEstimates(t *testing.T) {
	var s ping.Service
	ts := ping.NewTimestamp() - 0.05 // echo of a timestamp sent 50 ms ago
	s.ReceiveMessage(ts, 0)

	if s.RTT() <= 0 {
		t.Errorf("expected a positive RTT sample, got %v", s.RTT())
	}
	if s.AverageRTT() != s.RTT() {
		t.Errorf("expected first sample to seed the average, got avg=%v rtt=%v", s.AverageRTT(), s.RTT())
	}
	if s.ForwardDelay() <= 0 {
		t.Errorf("expected a positive forward delay, got %v", s.ForwardDelay())
	}
}

func TestReceiveMessageSmoothsTowardNewSamples(t *testing.T) {
	var s ping.Service
	ts := ping.NewTimestamp() - 0.2 // first sample: about 200 ms
	s.ReceiveMessage(ts, 0)
	first := s.AverageRTT()

	s.ReceiveMessage(ping.NewTimestamp()-0.05, 0) // second sample: about 50 ms
	second := s.AverageRTT()

	if second == first && first == 0 {
		t.Skip("clock resolution too coarse to observe smoothing in this environment")
	}
	if !(second < first && second > s.RTT()) {
		t.Errorf("expected the average to move part of the way from %v toward the new sample %v, got %v", first, s.RTT(), second)
	}
}
