package signaling

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"

	"github.com/mossy-p/screen-relay/internal/logger"
	"github.com/mossy-p/screen-relay/internal/models"
)

// memorySession guards one session record with its own lock, so
// operations on different sessions never contend.
type memorySession struct {
	mu      sync.Mutex
	session models.Session
	removed bool // set by Sweep; later writes report ErrNotFound
}

// MemoryStore keeps sessions in process memory.
type MemoryStore struct {
	sessions map[string]*memorySession
	latestID string
	mu       sync.RWMutex

	ttl time.Duration
	now func() time.Time
}

// NewMemoryStore creates a store. Sessions idle for longer than ttl are
// removed by Sweep; a zero ttl keeps sessions for the process lifetime.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*memorySession),
		ttl:      ttl,
		now:      time.Now,
	}
}

func (s *MemoryStore) Create(ctx context.Context) (string, error) {
	id := uuid.New().String()
	now := s.now()

	s.mu.Lock()
	s.sessions[id] = &memorySession{session: models.Session{
		ID:         id,
		CreatedAt:  now,
		UpdatedAt:  now,
		State:      models.SessionCreated,
		Candidates: []webrtc.ICECandidateInit{},
	}}
	s.mu.Unlock()

	return id, nil
}

func (s *MemoryStore) lookup(id string) (*memorySession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ms, exists := s.sessions[id]
	if !exists {
		return nil, ErrNotFound
	}
	return ms, nil
}

// update runs fn on the session under its lock and bumps UpdatedAt.
func (s *MemoryStore) update(id string, fn func(*models.Session)) error {
	ms, err := s.lookup(id)
	if err != nil {
		return err
	}
	return s.apply(ms, fn)
}

// apply runs fn on a session found by lookup. Sweep may have removed the
// session since, in which case nothing is written.
func (s *MemoryStore) apply(ms *memorySession, fn func(*models.Session)) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	if ms.removed {
		return ErrNotFound
	}
	fn(&ms.session)
	ms.session.UpdatedAt = s.now()
	return nil
}

func (s *MemoryStore) SubmitOffer(ctx context.Context, id string, offer webrtc.SessionDescription) error {
	err := s.update(id, func(sess *models.Session) {
		sess.Offer = &offer
		sess.State = sess.State.Advance(models.SessionOfferReceived)
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.latestID = id
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) SubmitAnswer(ctx context.Context, id string, answer webrtc.SessionDescription) error {
	return s.update(id, func(sess *models.Session) {
		sess.Answer = &answer
		sess.State = sess.State.Advance(models.SessionAnswerSent)
	})
}

func (s *MemoryStore) AddICECandidate(ctx context.Context, id string, candidate webrtc.ICECandidateInit) error {
	return s.update(id, func(sess *models.Session) {
		sess.Candidates = append(sess.Candidates, candidate)
	})
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*models.Session, error) {
	ms, err := s.lookup(id)
	if err != nil {
		return nil, err
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()
	if ms.removed {
		return nil, ErrNotFound
	}
	return copySession(&ms.session), nil
}

func (s *MemoryStore) LatestPendingOffer(ctx context.Context) (*models.PendingOffer, error) {
	s.mu.RLock()
	latestID := s.latestID
	s.mu.RUnlock()

	if latestID == "" {
		return nil, nil
	}

	sess, err := s.Get(ctx, latestID)
	if errors.Is(err, ErrNotFound) {
		// Latest session expired
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &models.PendingOffer{
		SessionID: sess.ID,
		Offer:     sess.Offer,
		State:     sess.State,
	}, nil
}

// Sweep removes sessions idle for longer than the store's ttl and returns
// how many were removed.
func (s *MemoryStore) Sweep(ctx context.Context) (int, error) {
	if s.ttl <= 0 {
		return 0, nil
	}
	cutoff := s.now().Add(-s.ttl)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, ms := range s.sessions {
		ms.mu.Lock()
		idle := ms.session.UpdatedAt.Before(cutoff)
		if idle {
			ms.removed = true
		}
		ms.mu.Unlock()

		if idle {
			delete(s.sessions, id)
			if s.latestID == id {
				s.latestID = ""
			}
			removed++
		}
	}

	if removed > 0 {
		logger.Infof("Expired %d idle signaling sessions", removed)
	}
	return removed, nil
}

// Len returns the number of stored sessions.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func copySession(src *models.Session) *models.Session {
	dst := *src
	if src.Offer != nil {
		offer := *src.Offer
		dst.Offer = &offer
	}
	if src.Answer != nil {
		answer := *src.Answer
		dst.Answer = &answer
	}
	dst.Candidates = append([]webrtc.ICECandidateInit{}, src.Candidates...)
	return &dst
}
