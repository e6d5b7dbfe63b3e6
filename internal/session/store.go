// Package session keeps the live chat sessions of the process. Each session
// binds one document and its vector index to a conversation history.
package session

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"docchat/internal/domain"
	"docchat/internal/vectorstore"
)

const defaultMaxSessions = 256

// Options configures a Store.
type Options struct {
	// MaxSessions caps live sessions; creating one more evicts the least
	// recently used. Zero means the default.
	MaxSessions int
	// TTL expires sessions idle for longer than this. Zero disables expiry.
	TTL time.Duration
	// CleanupInterval is how often expired sessions are swept.
	CleanupInterval time.Duration
	Logger          *zap.Logger
}

// Snapshot is a point-in-time copy of a session. Index is shared and
// read-only; History is a private copy.
type Snapshot struct {
	ID            string
	Document      domain.Document
	Index         *vectorstore.Index
	Summary       domain.Summary
	SummaryFailed bool
	History       []domain.Turn
	CreatedAt     time.Time
}

// Info is the listing view of a session.
type Info struct {
	ID            string    `json:"session_id"`
	Filename      string    `json:"filename"`
	CreatedAt     time.Time `json:"created_at"`
	Passages      int       `json:"passages"`
	Turns         int       `json:"turns"`
	SummaryFailed bool      `json:"summary_failed"`
}

type session struct {
	id            string
	doc           domain.Document
	index         *vectorstore.Index
	summary       domain.Summary
	summaryFailed bool
	createdAt     time.Time
	lastAccess    atomic.Uint64

	mu      sync.Mutex
	history []domain.Turn
	closed  bool
}

// close marks the session dead. It reports whether this call closed it.
func (s *session) close() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.closed = true
	s.history = nil
	return true
}

// Store maps session ids to sessions. Lookups go straight to the internally
// synchronized cache; only creation and eviction take the admission lock.
type Store struct {
	cache       *cache.Cache
	admit       sync.Mutex
	clock       atomic.Uint64
	maxSessions int
	ttl         time.Duration
	log         *zap.Logger
}

// NewStore creates an empty store and starts its expiry janitor.
func NewStore(opts Options) *Store {
	if opts.MaxSessions <= 0 {
		opts.MaxSessions = defaultMaxSessions
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	expiry := cache.NoExpiration
	cleanup := time.Duration(0)
	if opts.TTL > 0 {
		expiry = opts.TTL
		cleanup = opts.CleanupInterval
		if cleanup <= 0 {
			cleanup = opts.TTL
		}
	}
	s := &Store{
		cache:       cache.New(expiry, cleanup),
		maxSessions: opts.MaxSessions,
		ttl:         opts.TTL,
		log:         opts.Logger,
	}
	s.cache.OnEvicted(func(id string, v interface{}) {
		if v.(*session).close() {
			s.log.Debug("session expired", zap.String("session_id", id))
		}
	})
	return s
}

// Create registers a new session and returns its id.
func (s *Store) Create(doc domain.Document, index *vectorstore.Index, summary domain.Summary, summaryFailed bool) (string, error) {
	sess := &session{
		id:            uuid.NewString(),
		doc:           doc,
		index:         index,
		summary:       summary,
		summaryFailed: summaryFailed,
		createdAt:     time.Now(),
	}
	sess.lastAccess.Store(s.clock.Add(1))

	s.admit.Lock()
	defer s.admit.Unlock()
	s.cache.DeleteExpired()
	for s.cache.ItemCount() >= s.maxSessions {
		if !s.evictOldest() {
			break
		}
	}
	if err := s.cache.Add(sess.id, sess, cache.DefaultExpiration); err != nil {
		return "", err
	}
	return sess.id, nil
}

func (s *Store) evictOldest() bool {
	var victim *session
	for _, item := range s.cache.Items() {
		sess := item.Object.(*session)
		if victim == nil || sess.lastAccess.Load() < victim.lastAccess.Load() {
			victim = sess
		}
	}
	if victim == nil {
		return false
	}
	victim.close()
	s.cache.Delete(victim.id)
	s.log.Info("session evicted", zap.String("session_id", victim.id), zap.Int("max_sessions", s.maxSessions))
	return true
}

func (s *Store) lookup(id string) (*session, error) {
	v, found := s.cache.Get(id)
	if !found {
		return nil, domain.ErrNotFound
	}
	return v.(*session), nil
}

func (s *Store) touch(sess *session) {
	sess.lastAccess.Store(s.clock.Add(1))
	if s.ttl > 0 {
		// Replace fails once the id is gone, so a touch never revives a deleted session.
		_ = s.cache.Replace(sess.id, sess, cache.DefaultExpiration)
	}
}

// Get returns a snapshot of the session.
func (s *Store) Get(id string) (Snapshot, error) {
	sess, err := s.lookup(id)
	if err != nil {
		return Snapshot{}, err
	}
	sess.mu.Lock()
	if sess.closed {
		sess.mu.Unlock()
		return Snapshot{}, domain.ErrNotFound
	}
	history := make([]domain.Turn, len(sess.history))
	copy(history, sess.history)
	sess.mu.Unlock()

	s.touch(sess)
	return Snapshot{
		ID:            sess.id,
		Document:      sess.doc,
		Index:         sess.index,
		Summary:       sess.summary,
		SummaryFailed: sess.summaryFailed,
		History:       history,
		CreatedAt:     sess.createdAt,
	}, nil
}

// AppendTurn records an answered question. It fails with ErrNotFound when
// the session was deleted, even if the caller still holds a snapshot.
func (s *Store) AppendTurn(id string, turn domain.Turn) error {
	sess, err := s.lookup(id)
	if err != nil {
		return err
	}
	sess.mu.Lock()
	if sess.closed {
		sess.mu.Unlock()
		return domain.ErrNotFound
	}
	sess.history = append(sess.history, turn)
	sess.mu.Unlock()
	s.touch(sess)
	return nil
}

// Delete removes the session. Once Delete returns, every operation on id
// fails with ErrNotFound.
func (s *Store) Delete(id string) error {
	sess, err := s.lookup(id)
	if err != nil {
		return err
	}
	if !sess.close() {
		return domain.ErrNotFound
	}
	s.cache.Delete(id)
	return nil
}

// List returns live sessions, newest first.
func (s *Store) List() []Info {
	items := s.cache.Items()
	out := make([]Info, 0, len(items))
	for _, item := range items {
		sess := item.Object.(*session)
		sess.mu.Lock()
		closed, turns := sess.closed, len(sess.history)
		sess.mu.Unlock()
		if closed {
			continue
		}
		passages := 0
		if sess.index != nil {
			passages = sess.index.Len()
		}
		out = append(out, Info{
			ID:            sess.id,
			Filename:      sess.doc.Filename,
			CreatedAt:     sess.createdAt,
			Passages:      passages,
			Turns:         turns,
			SummaryFailed: sess.summaryFailed,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Len returns the number of live sessions.
func (s *Store) Len() int { return len(s.List()) }

// Close removes every session.
func (s *Store) Close() {
	for id := range s.cache.Items() {
		s.cache.Delete(id)
	}
}
