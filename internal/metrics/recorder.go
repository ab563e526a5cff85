// Package metrics keeps the bot's usage counters and mirrors them to a JSON
// file after every mutation, so the stats command can read them while the
// bot runs (or after it stopped).
package metrics

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Snapshot is the on-disk and over-the-wire shape of the counters.
type Snapshot struct {
	TotalUpdates   int64            `json:"total_updates"`
	UniqueChats    int              `json:"unique_chats"`
	ModelCalls     CallStats        `json:"openai_calls"`
	Transcriptions CallStats        `json:"transcriptions"`
	Errors         map[string]int64 `json:"errors"`
	LastUpdated    string           `json:"last_updated,omitempty"`
}

// CallStats aggregates one class of upstream call.
type CallStats struct {
	Count                 int64   `json:"count"`
	TotalDuration         float64 `json:"total_duration"`
	TotalPromptTokens     int64   `json:"total_prompt_tokens,omitempty"`
	TotalCompletionTokens int64   `json:"total_completion_tokens,omitempty"`
}

// Recorder is safe for concurrent use. Persistence is best effort: a failed
// write never disturbs the caller.
type Recorder struct {
	mu   sync.Mutex
	path string // empty disables the on-disk mirror
	data Snapshot
	seen map[int64]struct{}
}

// NewRecorder loads existing counters from path when present, so restarts
// accumulate instead of resetting.
func NewRecorder(path string) *Recorder {
	r := &Recorder{
		path: path,
		data: Snapshot{Errors: make(map[string]int64)},
		seen: make(map[int64]struct{}),
	}
	if path != "" {
		if data, err := os.ReadFile(path); err == nil {
			var snap Snapshot
			if json.Unmarshal(data, &snap) == nil {
				if snap.Errors == nil {
					snap.Errors = make(map[string]int64)
				}
				r.data = snap
			}
		}
	}
	return r
}

// RecordUpdate counts one handled Telegram update for the given chat.
func (r *Recorder) RecordUpdate(chatID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data.TotalUpdates++
	if _, ok := r.seen[chatID]; !ok {
		r.seen[chatID] = struct{}{}
		r.data.UniqueChats++
	}
	r.persistLocked()
}

// RecordModelCall counts one chat-completion round trip.
func (r *Recorder) RecordModelCall(duration time.Duration, promptTokens, completionTokens int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data.ModelCalls.Count++
	r.data.ModelCalls.TotalDuration += duration.Seconds()
	r.data.ModelCalls.TotalPromptTokens += int64(promptTokens)
	r.data.ModelCalls.TotalCompletionTokens += int64(completionTokens)
	r.persistLocked()
}

// RecordTranscription counts one audio transcription round trip.
func (r *Recorder) RecordTranscription(duration time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data.Transcriptions.Count++
	r.data.Transcriptions.TotalDuration += duration.Seconds()
	r.persistLocked()
}

// RecordError counts one failure in the named category.
func (r *Recorder) RecordError(category string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data.Errors[category]++
	r.persistLocked()
}

// Snapshot returns a copy of the current counters.
func (r *Recorder) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	snap := r.data
	snap.Errors = make(map[string]int64, len(r.data.Errors))
	for k, v := range r.data.Errors {
		snap.Errors[k] = v
	}
	return snap
}

func (r *Recorder) persistLocked() {
	if r.path == "" {
		return
	}
	r.data.LastUpdated = time.Now().Format(time.RFC3339)
	data, err := json.MarshalIndent(r.data, "", "  ")
	if err != nil {
		return
	}
	_ = os.MkdirAll(filepath.Dir(r.path), 0o755)
	_ = os.WriteFile(r.path, data, 0o644)
}

// FromFile reads a snapshot written by a (possibly still running) bot.
func FromFile(path string) (Snapshot, error) {
	var snap Snapshot
	data, err := os.ReadFile(path)
	if err != nil {
		return snap, fmt.Errorf("cannot read metrics file %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &snap); err != nil {
		return snap, fmt.Errorf("cannot parse metrics file %s: %w", path, err)
	}
	if snap.Errors == nil {
		snap.Errors = make(map[string]int64)
	}
	return snap, nil
}
