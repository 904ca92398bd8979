package ws

import "sync"

// Recorder is an in-memory Sender that keeps every delivered message. It is
// used by tests and by headless tooling that drives the game without sockets.
type Recorder struct {
	mu        sync.Mutex
	byPlayer  map[string][]Message
	broadcast []Message
}

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{byPlayer: make(map[string][]Message)}
}

func (r *Recorder) SendToPlayer(playerID string, msg Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byPlayer[playerID] = append(r.byPlayer[playerID], msg)
	return nil
}

func (r *Recorder) Broadcast(msg Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.broadcast = append(r.broadcast, msg)
	return nil
}

// Messages returns a copy of everything sent to playerID.
func (r *Recorder) Messages(playerID string) []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.byPlayer[playerID]...)
}

// OfType returns messages of msgType sent to playerID, in send order.
func (r *Recorder) OfType(playerID, msgType string) []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Message
	for _, m := range r.byPlayer[playerID] {
		if m.Type == msgType {
			out = append(out, m)
		}
	}
	return out
}

// Last returns the most recent message of msgType sent to playerID.
func (r *Recorder) Last(playerID, msgType string) (Message, bool) {
	msgs := r.OfType(playerID, msgType)
	if len(msgs) == 0 {
		return Message{}, false
	}
	return msgs[len(msgs)-1], true
}

// Broadcasts returns a copy of all broadcast messages.
func (r *Recorder) Broadcasts() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.broadcast...)
}

// Reset drops everything recorded so far.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byPlayer = make(map[string][]Message)
	r.broadcast = nil
}
