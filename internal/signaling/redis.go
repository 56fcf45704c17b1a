package signaling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/mossy-p/screen-relay/internal/models"
)

const (
	latestOfferKey = "signaling:latest"
	maxTxRetries   = 100
)

func sessionKey(id string) string    { return "session:" + id }
func candidatesKey(id string) string { return "session:" + id + ":candidates" }

// sessionRecord is the stored form of a session. Candidates are kept in a
// separate list.
type sessionRecord struct {
	ID        string              `msgpack:"id"`
	CreatedAt time.Time           `msgpack:"created_at"`
	UpdatedAt time.Time           `msgpack:"updated_at"`
	State     models.SessionState `msgpack:"state"`
	Offer     *descriptionRecord  `msgpack:"offer,omitempty"`
	Answer    *descriptionRecord  `msgpack:"answer,omitempty"`
}

type descriptionRecord struct {
	Type string `msgpack:"type"`
	SDP  string `msgpack:"sdp"`
}

func toDescriptionRecord(sd *webrtc.SessionDescription) *descriptionRecord {
	if sd == nil {
		return nil
	}
	return &descriptionRecord{Type: sd.Type.String(), SDP: sd.SDP}
}

func (r *descriptionRecord) description() *webrtc.SessionDescription {
	if r == nil {
		return nil
	}
	return &webrtc.SessionDescription{Type: webrtc.NewSDPType(r.Type), SDP: r.SDP}
}

func encodeSession(sess *models.Session) ([]byte, error) {
	return msgpack.Marshal(&sessionRecord{
		ID:        sess.ID,
		CreatedAt: sess.CreatedAt,
		UpdatedAt: sess.UpdatedAt,
		State:     sess.State,
		Offer:     toDescriptionRecord(sess.Offer),
		Answer:    toDescriptionRecord(sess.Answer),
	})
}

func decodeSession(data []byte) (*models.Session, error) {
	var rec sessionRecord
	if err := msgpack.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	return &models.Session{
		ID:        rec.ID,
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
		State:     rec.State,
		Offer:     rec.Offer.description(),
		Answer:    rec.Answer.description(),
	}, nil
}

// RedisStore keeps sessions in Redis so several relay processes can share
// one negotiation space. Session records are msgpack-encoded; candidates
// live in a list next to the record so appends never rewrite it.
type RedisStore struct {
	client redis.UniversalClient
	ttl    time.Duration
	now    func() time.Time
}

// NewRedisStore creates a store. A non-zero ttl expires sessions that see
// no activity for that long.
func NewRedisStore(client redis.UniversalClient, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl, now: time.Now}
}

func (s *RedisStore) Create(ctx context.Context) (string, error) {
	id := uuid.New().String()
	now := s.now()

	data, err := encodeSession(&models.Session{
		ID:        id,
		CreatedAt: now,
		UpdatedAt: now,
		State:     models.SessionCreated,
	})
	if err != nil {
		return "", fmt.Errorf("encode session: %w", err)
	}

	if err := s.client.Set(ctx, sessionKey(id), data, s.ttl).Err(); err != nil {
		return "", fmt.Errorf("store session: %w", err)
	}
	return id, nil
}

// update applies fn to the stored record inside a WATCH transaction and
// retries when another writer touched the record first. extra queues
// further commands into the same transaction.
func (s *RedisStore) update(ctx context.Context, id string, fn func(*models.Session), extra func(redis.Pipeliner)) error {
	key := sessionKey(id)

	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		sess, err := decodeSession(data)
		if err != nil {
			return fmt.Errorf("decode session %s: %w", id, err)
		}
		fn(sess)
		sess.UpdatedAt = s.now()

		if data, err = encodeSession(sess); err != nil {
			return fmt.Errorf("encode session %s: %w", id, err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, s.ttl)
			s.touch(ctx, pipe, candidatesKey(id))
			if extra != nil {
				extra(pipe)
			}
			return nil
		})
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("update session %s: too much contention", id)
}

// touch refreshes the expiry of key when sessions expire.
func (s *RedisStore) touch(ctx context.Context, pipe redis.Pipeliner, key string) {
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
}

func (s *RedisStore) SubmitOffer(ctx context.Context, id string, offer webrtc.SessionDescription) error {
	return s.update(ctx, id, func(sess *models.Session) {
		sess.Offer = &offer
		sess.State = sess.State.Advance(models.SessionOfferReceived)
	}, func(pipe redis.Pipeliner) {
		pipe.Set(ctx, latestOfferKey, id, s.ttl)
	})
}

func (s *RedisStore) SubmitAnswer(ctx context.Context, id string, answer webrtc.SessionDescription) error {
	return s.update(ctx, id, func(sess *models.Session) {
		sess.Answer = &answer
		sess.State = sess.State.Advance(models.SessionAnswerSent)
	}, nil)
}

// AddICECandidate appends with RPUSH, which Redis applies atomically, so
// concurrent appends never contend on the session record.
func (s *RedisStore) AddICECandidate(ctx context.Context, id string, candidate webrtc.ICECandidateInit) error {
	n, err := s.client.Exists(ctx, sessionKey(id)).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}

	data, err := msgpack.Marshal(&candidate)
	if err != nil {
		return fmt.Errorf("encode candidate: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, candidatesKey(id), data)
		s.touch(ctx, pipe, candidatesKey(id))
		s.touch(ctx, pipe, sessionKey(id))
		return nil
	})
	return err
}

func (s *RedisStore) Get(ctx context.Context, id string) (*models.Session, error) {
	var (
		sessCmd *redis.StringCmd
		candCmd *redis.StringSliceCmd
	)
	_, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		sessCmd = pipe.Get(ctx, sessionKey(id))
		candCmd = pipe.LRange(ctx, candidatesKey(id), 0, -1)
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}

	data, err := sessCmd.Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	sess, err := decodeSession(data)
	if err != nil {
		return nil, fmt.Errorf("decode session %s: %w", id, err)
	}

	sess.Candidates = []webrtc.ICECandidateInit{}
	for _, raw := range candCmd.Val() {
		var c webrtc.ICECandidateInit
		if err := msgpack.Unmarshal([]byte(raw), &c); err != nil {
			return nil, fmt.Errorf("decode candidate for %s: %w", id, err)
		}
		sess.Candidates = append(sess.Candidates, c)
	}

	return sess, nil
}

func (s *RedisStore) LatestPendingOffer(ctx context.Context) (*models.PendingOffer, error) {
	id, err := s.client.Get(ctx, latestOfferKey).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	sess, err := s.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
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
