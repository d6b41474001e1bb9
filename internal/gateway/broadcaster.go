package gateway

import (
	"encoding/json"
	"log/slog"
	"maps"
	"slices"
	"strconv"
	"sync"

	"github.com/CosmoTheDev/codesense/models"
)

// Broadcaster fans events out to GET /events subscribers. It remembers the
// latest frame of every running scan so a client that connects mid-scan
// starts from the current progress instead of waiting for the next file.
type Broadcaster struct {
	mu   sync.RWMutex
	subs map[chan []byte]struct{}
	seq  uint64
	live map[string][]byte // scan id → latest progress frame
}

func newBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[chan []byte]struct{}), live: make(map[string][]byte)}
}

// subscribe registers a subscriber and returns the progress frames of the
// scans still running, ordered by scan id. The caller must unsubscribe when
// the connection closes.
func (b *Broadcaster) subscribe() (chan []byte, [][]byte) {
	ch := make(chan []byte, 32)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[ch] = struct{}{}
	replay := make([][]byte, 0, len(b.live))
	for _, id := range slices.Sorted(maps.Keys(b.live)) {
		replay = append(replay, b.live[id])
	}
	return ch, replay
}

func (b *Broadcaster) unsubscribe(ch chan []byte) {
	b.mu.Lock()
	delete(b.subs, ch)
	b.mu.Unlock()
}

// send publishes a gateway level event such as a health tick.
func (b *Broadcaster) send(evt SSEEvent) {
	b.publish(evt, "")
}

// sendScan publishes a scan state change. Running scans replace their
// snapshot; a terminal state drops it.
func (b *Broadcaster) sendScan(s models.Scan) {
	evt := "scan.progress"
	if s.Status.Terminal() {
		evt = "scan." + string(s.Status)
	}
	b.publish(SSEEvent{Type: evt, Payload: newScanView(s)}, s.ID)
}

func (b *Broadcaster) publish(evt SSEEvent, scanID string) {
	raw, err := json.Marshal(evt)
	if err != nil {
		slog.Warn("Failed to marshal SSE event", "type", evt.Type, "error", err)
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq++
	frame := sseFrame(b.seq, raw)
	if scanID != "" {
		if evt.Type == "scan.progress" {
			b.live[scanID] = frame
		} else {
			delete(b.live, scanID)
		}
	}
	for ch := range b.subs {
		select {
		case ch <- frame:
		default:
			slog.Debug("Dropping SSE frame for slow subscriber", "type", evt.Type, "scan_id", scanID)
		}
	}
}

// sseFrame renders "id: <seq>\ndata: <json>\n\n".
func sseFrame(seq uint64, data []byte) []byte {
	frame := make([]byte, 0, len(data)+32)
	frame = append(frame, "id: "...)
	frame = strconv.AppendUint(frame, seq, 10)
	frame = append(frame, "\ndata: "...)
	frame = append(frame, data...)
	return append(frame, '\n', '\n')
}
