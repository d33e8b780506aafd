package mpv

import "sync"

// commandKind classifies a queued command for coalescing purposes. Only
// the three kinds named in §4.D collapse; everything else (OSD messages,
// chat echoes, one-off commands) queues in arrival order without
// coalescing.
type commandKind int

const (
	kindOther commandKind = iota
	kindSetTimePos
	kindLoadFile
	kindCyclePause
)

func (k commandKind) coalesces() bool {
	return k == kindSetTimePos || k == kindLoadFile || k == kindCyclePause
}

// queuedCommand is one pending mpv IPC command awaiting the writer's
// readiness gate.
type queuedCommand struct {
	kind    commandKind
	payload []byte
	done    chan error
}

// pendingQueue is the single-consumer pending buffer between any number of
// producer goroutines and the writer goroutine. Coalescible kinds replace
// their predecessor in place (a newer one supersedes an older one of the
// same kind); a second cycle-pause cancels the first, removing it
// entirely rather than replacing it, since two toggles net out to a
// no-op.
type pendingQueue struct {
	mu    sync.Mutex
	order []*queuedCommand
}

func (q *pendingQueue) push(cmd *queuedCommand) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if cmd.kind.coalesces() {
		for i, existing := range q.order {
			if existing.kind != cmd.kind {
				continue
			}
			if cmd.kind == kindCyclePause {
				q.order = append(q.order[:i], q.order[i+1:]...)
				if existing.done != nil {
					close(existing.done)
				}
				if cmd.done != nil {
					close(cmd.done)
				}
				return
			}
			if existing.done != nil {
				close(existing.done)
			}
			q.order[i] = cmd
			return
		}
	}
	q.order = append(q.order, cmd)
}

// popAll drains and returns the entire queue in order.
func (q *pendingQueue) popAll() []*queuedCommand {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.order
	q.order = nil
	return out
}

func (q *pendingQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.order)
}
