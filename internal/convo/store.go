package convo

import (
	"log/slog"
	"time"

	"telebridge/internal/domain"
)

// Store owns the live chat-id → State map. It is mutated only from the
// single control loop, so it carries no locking. Persistence is best-effort:
// a failing backend is logged and the in-memory state stays authoritative.
type Store struct {
	states       map[int64]*State
	systemPrompt string
	maxHistory   int
	persist      domain.StateStore
	logger       *slog.Logger
	now          func() time.Time
}

// StoreConfig carries the store dependencies.
type StoreConfig struct {
	SystemPrompt string
	MaxHistory   int
	Persist      domain.StateStore
	Logger       *slog.Logger
	Now          func() time.Time // defaults to time.Now
}

// NewStore creates an empty store.
func NewStore(cfg StoreConfig) *Store {
	if cfg.MaxHistory <= 0 {
		cfg.MaxHistory = DefaultMaxHistory
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Store{
		states:       make(map[int64]*State),
		systemPrompt: cfg.SystemPrompt,
		maxHistory:   cfg.MaxHistory,
		persist:      cfg.Persist,
		logger:       cfg.Logger,
		now:          cfg.Now,
	}
}

// Now returns the store's notion of the current time.
func (st *Store) Now() time.Time { return st.now() }

// Hydrate loads every persisted chat state into memory. Individual failures
// are logged and skipped.
func (st *Store) Hydrate() {
	ids, err := st.persist.ListChats()
	if err != nil {
		st.logger.Warn("cannot list persisted chats", "err", err)
		return
	}
	for _, id := range ids {
		payload, err := st.persist.Load(id)
		if err != nil || payload == nil {
			continue
		}
		state, err := Restore(payload, st.systemPrompt, st.maxHistory)
		if err != nil {
			st.logger.Warn("invalid persisted state, starting fresh", "chat_id", id, "err", err)
			continue
		}
		st.states[id] = state
	}
	if len(st.states) > 0 {
		st.logger.Info("chat states hydrated", "count", len(st.states))
	}
}

// Get returns the state for a chat, rehydrating it from persistence or
// creating a fresh one on first contact.
func (st *Store) Get(chatID int64) *State {
	if state, ok := st.states[chatID]; ok {
		return state
	}

	var state *State
	if payload, err := st.persist.Load(chatID); err == nil && payload != nil {
		state, err = Restore(payload, st.systemPrompt, st.maxHistory)
		if err != nil {
			st.logger.Warn("invalid persisted state, starting fresh", "chat_id", chatID, "err", err)
			state = nil
		}
	} else if err != nil {
		st.logger.Warn("cannot load persisted state", "chat_id", chatID, "err", err)
	}
	if state == nil {
		state = NewState(st.systemPrompt, st.maxHistory)
	}

	st.states[chatID] = state
	return state
}

// Persist writes a snapshot of the chat state. Failures never abort the
// in-memory operation.
func (st *Store) Persist(chatID int64, state *State) {
	payload, err := state.Snapshot()
	if err != nil {
		st.logger.Warn("cannot serialize chat state", "chat_id", chatID, "err", err)
		return
	}
	if err := st.persist.Save(chatID, payload); err != nil {
		st.logger.Warn("cannot persist chat state", "chat_id", chatID, "err", err)
	}
}

// Delete removes a chat from memory and from the persistence backend.
func (st *Store) Delete(chatID int64) {
	delete(st.states, chatID)
	if err := st.persist.Delete(chatID); err != nil {
		st.logger.Warn("cannot delete persisted state", "chat_id", chatID, "err", err)
	}
}

// AnyAwaiting reports whether any chat has buffered fragments.
func (st *Store) AnyAwaiting() bool {
	for _, state := range st.states {
		if state.AwaitingFlush {
			return true
		}
	}
	return false
}

// Entry pairs a chat id with its state for flush iteration.
type Entry struct {
	ChatID int64
	State  *State
}

// Due returns the chats whose debounce window has elapsed. The scan is O(n)
// over the live chat set; at this scale that beats maintaining a heap.
func (st *Store) Due(window time.Duration) []Entry {
	now := st.now()
	var due []Entry
	for id, state := range st.states {
		if state.ShouldFlush(now, window) {
			due = append(due, Entry{ChatID: id, State: state})
		}
	}
	return due
}
