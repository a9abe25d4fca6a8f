// Package eventlog implements the append-only, per-session event log
// (§4.1): durable persistence of every state-changing fact plus a
// gapless, duplicate-free live tail, grounded on the teacher's
// file-based JSON storage (internal/storage) and its watermill event bus
// (internal/event) for the live-fan-out half of the contract.
package eventlog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/opencode-ai/agentrund/internal/logging"
	"github.com/opencode-ai/agentrund/pkg/types"
)

// Sentinel errors matching §4.1's failure taxonomy. Callers at the boundary
// (internal/session) wrap these into types.DomainError.
var (
	ErrNotFound = errors.New("eventlog: session not found")
	ErrConflict = errors.New("eventlog: concurrent append conflict")
)

// SessionFilter narrows ListSessions. An empty filter matches everything.
type SessionFilter struct {
	Tag   string
	Limit int
}

// Store is the event log contract of §4.1.
type Store interface {
	Append(ctx context.Context, sessionID types.SessionID, payloads []types.EventPayload) ([]types.SequenceNumber, error)
	Read(ctx context.Context, sessionID types.SessionID, from types.SequenceNumber, limit int) ([]types.Event, error)
	// Tail streams events from `from` onward with no gaps and no
	// duplicates: missing backlog is delivered first, then live events.
	// The returned channel is closed when ctx is cancelled.
	Tail(ctx context.Context, sessionID types.SessionID, from types.SequenceNumber) (<-chan types.Event, error)
	ListSessions(ctx context.Context, filter SessionFilter) ([]types.SessionSummary, error)
	Delete(ctx context.Context, sessionID types.SessionID) error
}

// meta is the small per-session control file guarded by FileLock: the
// authoritative "next sequence number to assign" and enough denormalized
// state to answer ListSessions without replaying every log.
type meta struct {
	LastSequence types.SequenceNumber `json:"lastSequence"`
	CreatedAt    types.Timestamp      `json:"createdAt"`
	UpdatedAt    types.Timestamp      `json:"updatedAt"`
	TipID        types.MessageID      `json:"tipID,omitempty"`
	Tags         map[string]string    `json:"tags,omitempty"`
}

// FileStore is a Store backed by one directory per session, one file per
// event (named by zero-padded sequence number), guarded by a per-session
// FileLock for cross-process safety and fanned out live via an in-process
// watermill gochannel bus, one topic per session.
type FileStore struct {
	basePath string

	mu    sync.Mutex // protects locks/bus maps, not file content
	locks map[types.SessionID]*FileLock
	bus   *gochannel.GoChannel

	nowFn func() types.Timestamp
}

// New creates a FileStore rooted at basePath, creating it if necessary.
func New(basePath string) (*FileStore, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("eventlog: create base dir: %w", err)
	}
	return &FileStore{
		basePath: basePath,
		locks:    make(map[types.SessionID]*FileLock),
		bus: gochannel.NewGoChannel(
			gochannel.Config{OutputChannelBuffer: 256},
			watermill.NopLogger{},
		),
		nowFn: nowMillis,
	}, nil
}

func (s *FileStore) sessionDir(id types.SessionID) string {
	return filepath.Join(s.basePath, "sessions", string(id))
}

func (s *FileStore) metaPath(id types.SessionID) string {
	return filepath.Join(s.sessionDir(id), "meta.json")
}

func (s *FileStore) eventPath(id types.SessionID, seq types.SequenceNumber) string {
	return filepath.Join(s.sessionDir(id), "log", fmt.Sprintf("%020d.json", seq))
}

func (s *FileStore) lockFor(id types.SessionID) *FileLock {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[id]
	if !ok {
		l = NewFileLock(s.metaPath(id))
		s.locks[id] = l
	}
	return l
}

func (s *FileStore) readMeta(id types.SessionID) (meta, error) {
	var m meta
	data, err := os.ReadFile(s.metaPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return meta{}, ErrNotFound
		}
		return meta{}, fmt.Errorf("eventlog: read meta: %w", err)
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return meta{}, fmt.Errorf("eventlog: decode meta: %w", err)
	}
	return m, nil
}

func (s *FileStore) writeMeta(id types.SessionID, m meta) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("eventlog: encode meta: %w", err)
	}
	tmp := s.metaPath(id) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("eventlog: write meta: %w", err)
	}
	return os.Rename(tmp, s.metaPath(id))
}

// Append implements Store. It assigns contiguous sequence numbers under the
// session's FileLock so concurrent writers (or a second process against the
// same data directory) cannot interleave appends.
func (s *FileStore) Append(ctx context.Context, sessionID types.SessionID, payloads []types.EventPayload) ([]types.SequenceNumber, error) {
	if len(payloads) == 0 {
		return nil, nil
	}

	if err := os.MkdirAll(filepath.Join(s.sessionDir(sessionID), "log"), 0o755); err != nil {
		return nil, fmt.Errorf("eventlog: create session dir: %w", err)
	}

	lock := s.lockFor(sessionID)
	if err := lock.LockContext(ctx); err != nil {
		return nil, err
	}
	defer lock.Unlock()

	m, err := s.readMeta(sessionID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if errors.Is(err, ErrNotFound) {
		m = meta{CreatedAt: s.nowFn()}
	}

	seqs := make([]types.SequenceNumber, len(payloads))
	now := s.nowFn()
	events := make([]types.Event, len(payloads))
	for i, p := range payloads {
		m.LastSequence++
		seqs[i] = m.LastSequence
		events[i] = types.Event{
			SessionID:      sessionID,
			SequenceNumber: m.LastSequence,
			Timestamp:      now,
			Kind:           p.Kind(),
			Payload:        p,
		}
		data, err := json.MarshalIndent(events[i], "", "  ")
		if err != nil {
			return nil, fmt.Errorf("eventlog: encode event: %w", err)
		}
		tmp := s.eventPath(sessionID, m.LastSequence) + ".tmp"
		if err := os.WriteFile(tmp, data, 0o644); err != nil {
			return nil, fmt.Errorf("eventlog: write event: %w", err)
		}
		if err := os.Rename(tmp, s.eventPath(sessionID, m.LastSequence)); err != nil {
			return nil, fmt.Errorf("eventlog: rename event: %w", err)
		}
	}
	m.UpdatedAt = now
	if err := s.writeMeta(sessionID, m); err != nil {
		return nil, err
	}

	// Publish after the durable write succeeds and the lock is still held,
	// so a concurrent Tail subscriber that starts reading backlog the
	// instant after this unlocks is guaranteed to find these events on
	// disk already.
	for _, ev := range events {
		data, _ := json.Marshal(ev)
		if err := s.bus.Publish(string(sessionID), message.NewMessage(watermill.NewUUID(), data)); err != nil {
			logging.Warn().Err(err).Str("session", string(sessionID)).Uint64("seq", uint64(ev.SequenceNumber)).Msg("failed to publish event to live tail")
		}
	}

	return seqs, nil
}

// Read implements Store.
func (s *FileStore) Read(ctx context.Context, sessionID types.SessionID, from types.SequenceNumber, limit int) ([]types.Event, error) {
	dir := filepath.Join(s.sessionDir(sessionID), "log")
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("eventlog: list events: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".json") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var out []types.Event
	for _, name := range names {
		seq, err := strconv.ParseUint(strings.TrimSuffix(name, ".json"), 10, 64)
		if err != nil {
			continue
		}
		if types.SequenceNumber(seq) < from {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			continue
		}
		var ev types.Event
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("eventlog: decode event %s: %w", name, err)
		}
		out = append(out, ev)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// Tail implements Store. Backlog is read once, then live events are
// deduplicated against the last sequence number delivered so a subscriber
// observes no gap and no repeat across the backlog/live seam.
func (s *FileStore) Tail(ctx context.Context, sessionID types.SessionID, from types.SequenceNumber) (<-chan types.Event, error) {
	sub, err := s.bus.Subscribe(ctx, string(sessionID))
	if err != nil {
		return nil, fmt.Errorf("eventlog: subscribe: %w", err)
	}

	out := make(chan types.Event, 64)
	go func() {
		defer close(out)

		backlog, err := s.Read(ctx, sessionID, from, 0)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return
		}
		var lastSent types.SequenceNumber
		if from > 0 {
			lastSent = from - 1
		}
		for _, ev := range backlog {
			select {
			case out <- ev:
				lastSent = ev.SequenceNumber
			case <-ctx.Done():
				return
			}
		}

		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-sub:
				if !ok {
					return
				}
				var ev types.Event
				if err := json.Unmarshal(msg.Payload, &ev); err != nil {
					msg.Ack()
					continue
				}
				msg.Ack()
				if ev.SequenceNumber <= lastSent {
					continue // already delivered from backlog
				}
				select {
				case out <- ev:
					lastSent = ev.SequenceNumber
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

// ListSessions implements Store.
func (s *FileStore) ListSessions(ctx context.Context, filter SessionFilter) ([]types.SessionSummary, error) {
	root := filepath.Join(s.basePath, "sessions")
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("eventlog: list sessions: %w", err)
	}

	var out []types.SessionSummary
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		id := types.SessionID(e.Name())
		m, err := s.readMeta(id)
		if err != nil {
			continue
		}
		if filter.Tag != "" && m.Tags[filter.Tag] == "" {
			continue
		}
		out = append(out, types.SessionSummary{
			ID:        id,
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
			TipID:     m.TipID,
			Metadata:  m.Tags,
		})
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt < out[j].CreatedAt })
	return out, nil
}

// Delete implements Store as a hard delete (log truncation, §3): it removes
// the session's entire directory. Soft delete is modeled as an appended
// SessionDeleted event and never calls this method.
func (s *FileStore) Delete(ctx context.Context, sessionID types.SessionID) error {
	lock := s.lockFor(sessionID)
	if err := lock.LockContext(ctx); err != nil {
		return err
	}
	defer lock.Unlock()

	if err := os.RemoveAll(s.sessionDir(sessionID)); err != nil {
		return fmt.Errorf("eventlog: delete session: %w", err)
	}
	logging.Info().Str("session", string(sessionID)).Msg("deleted session event log")
	return nil
}

// UpdateTip records the session's current message-DAG tip in meta, so
// ListSessions doesn't need a full replay. Called by the session actor
// after each MessageAppended event, not by the reducer (which has no I/O).
func (s *FileStore) UpdateTip(ctx context.Context, sessionID types.SessionID, tip types.MessageID) error {
	lock := s.lockFor(sessionID)
	if err := lock.LockContext(ctx); err != nil {
		return err
	}
	defer lock.Unlock()

	m, err := s.readMeta(sessionID)
	if err != nil {
		return err
	}
	m.TipID = tip
	m.UpdatedAt = s.nowFn()
	return s.writeMeta(sessionID, m)
}
