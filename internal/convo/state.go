// Package convo holds the conversational core: the per-chat turn buffer,
// the bounded history, the debounce flush test, and the store that owns the
// live chat map.
package convo

import (
	"encoding/json"
	"strings"
	"time"

	"telebridge/internal/domain"
)

// DefaultMaxHistory is the number of non-system turns kept per chat.
const DefaultMaxHistory = 10

// State is the full conversational state of one chat: the exchanged history
// (History[0] is always the system instruction turn), the buffer of segments
// not yet merged into a turn, and the bookkeeping the flush decision needs.
type State struct {
	History       []domain.Turn
	Pending       []domain.Segment
	LastMessageID int
	LastUpdate    time.Time // zero when nothing is pending
	AwaitingFlush bool

	systemPrompt string
	maxHistory   int
}

// NewState creates a fresh state holding only the system turn.
func NewState(systemPrompt string, maxHistory int) *State {
	if maxHistory <= 0 {
		maxHistory = DefaultMaxHistory
	}
	s := &State{systemPrompt: systemPrompt, maxHistory: maxHistory}
	s.Reset()
	return s
}

// Reset truncates the history back to the system turn and clears the buffer.
func (s *State) Reset() {
	s.History = []domain.Turn{domain.SystemTurn(s.systemPrompt)}
	s.Pending = nil
	s.LastMessageID = 0
	s.LastUpdate = time.Time{}
	s.AwaitingFlush = false
}

// QueueText buffers a text fragment. Blank text is a no-op.
func (s *State) QueueText(text string, now time.Time) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return
	}
	s.queue(domain.TextSegment(trimmed), now)
}

// QueueImage buffers an image fragment, queueing its caption as text first
// so reading order is preserved.
func (s *State) QueueImage(data []byte, mimeType, caption string, now time.Time) {
	if caption != "" {
		s.QueueText(caption, now)
	}
	s.queue(domain.ImageSegment(data, mimeType), now)
}

func (s *State) queue(seg domain.Segment, now time.Time) {
	s.Pending = append(s.Pending, seg)
	s.LastUpdate = now
	s.AwaitingFlush = true
}

// AddAssistant appends a model reply to the history.
func (s *State) AddAssistant(text string) {
	s.History = append(s.History, domain.AssistantTurn(text))
	s.trim()
}

// Drain merges the buffered segments into a single user turn, appends it to
// the history and returns a pointer to the appended turn. Consecutive text
// segments are joined with a newline; segment order is otherwise preserved.
// A lone text segment collapses to plain string content. Returns nil when
// nothing is pending; calling Drain twice in a row is therefore harmless.
func (s *State) Drain() *domain.Turn {
	if len(s.Pending) == 0 {
		return nil
	}

	var merged []domain.Segment
	var textRun []string
	flushRun := func() {
		if len(textRun) > 0 {
			merged = append(merged, domain.TextSegment(strings.Join(textRun, "\n")))
			textRun = nil
		}
	}
	for _, part := range s.Pending {
		if part.Kind == domain.SegmentText {
			textRun = append(textRun, part.Text)
			continue
		}
		flushRun()
		merged = append(merged, part)
	}
	flushRun()

	s.Pending = nil
	s.AwaitingFlush = false
	s.LastUpdate = time.Time{}

	var content domain.Content
	if len(merged) == 1 && merged[0].Kind == domain.SegmentText {
		content = domain.PlainText(merged[0].Text)
	} else {
		content = domain.SegmentContent(merged)
	}

	s.History = append(s.History, domain.Turn{Role: domain.RoleUser, Content: content})
	s.trim()
	return &s.History[len(s.History)-1]
}

// ShouldFlush reports whether the buffered fragments have been quiet for at
// least window and are ready to become one outbound turn. The boundary is
// inclusive: elapsed == window flushes.
func (s *State) ShouldFlush(now time.Time, window time.Duration) bool {
	if !s.AwaitingFlush || len(s.Pending) == 0 || s.LastUpdate.IsZero() {
		return false
	}
	return now.Sub(s.LastUpdate) >= window
}

// trim drops the oldest non-system turns once the window is exceeded. The
// system turn never moves from position zero.
func (s *State) trim() {
	if len(s.History) == 0 {
		return
	}
	rest := s.History[1:]
	if len(rest) <= s.maxHistory {
		return
	}
	rest = rest[len(rest)-s.maxHistory:]
	s.History = append(s.History[:1], rest...)
}

// snapshot is the persisted form. Field names match what the persistence
// layer has always stored, so old snapshots keep loading.
type snapshot struct {
	History       []domain.Turn    `json:"messages"`
	Pending       []domain.Segment `json:"pending_parts"`
	LastMessageID int              `json:"last_message_id"`
	LastUpdateTS  *float64         `json:"last_update_ts"`
	AwaitingFlush bool             `json:"waiting_reply"`
}

// Snapshot serializes the state for persistence.
func (s *State) Snapshot() ([]byte, error) {
	snap := snapshot{
		History:       s.History,
		Pending:       s.Pending,
		LastMessageID: s.LastMessageID,
		AwaitingFlush: s.AwaitingFlush,
	}
	if !s.LastUpdate.IsZero() {
		ts := float64(s.LastUpdate.UnixNano()) / float64(time.Second)
		snap.LastUpdateTS = &ts
	}
	return json.MarshalIndent(snap, "", "  ")
}

// Restore rebuilds a state from a persisted snapshot. An empty or absent
// turn list falls back to a fresh system-only history, and trimming is
// re-applied in case the configured window shrank since the snapshot was
// written.
func Restore(payload []byte, systemPrompt string, maxHistory int) (*State, error) {
	var snap snapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		return nil, err
	}

	s := NewState(systemPrompt, maxHistory)
	if len(snap.History) > 0 {
		s.History = snap.History
	}
	s.Pending = snap.Pending
	s.LastMessageID = snap.LastMessageID
	s.AwaitingFlush = snap.AwaitingFlush
	if snap.LastUpdateTS != nil {
		s.LastUpdate = time.Unix(0, int64(*snap.LastUpdateTS*float64(time.Second)))
	}
	s.trim()
	return s, nil
}
