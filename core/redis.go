package core

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"
	"github.com/redis/go-redis/v9"
)

// NewRedisClient returns a configured go-redis client from URL (e.g., redis://localhost:6379/0).
func NewRedisClient(redisURL string) (*redis.Client, error) {
	if redisURL == "" {
		return nil, errors.New("empty redis url")
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}

	return client, nil
}

// SessionDestroyer is implemented by stores that can drop server-side session state.
type SessionDestroyer interface {
	Destroy(ctx context.Context, session *sessions.Session) error
}

// RedisStore is a sessions.Store that keeps values in Redis. The cookie only
// carries the signed session ID.
type RedisStore struct {
	client    *redis.Client
	Codecs    []securecookie.Codec
	Options   *sessions.Options
	KeyPrefix string

	serializer securecookie.GobEncoder
}

var (
	_ sessions.Store   = (*RedisStore)(nil)
	_ SessionDestroyer = (*RedisStore)(nil)
)

func NewRedisStore(client *redis.Client, keyPairs ...[]byte) *RedisStore {
	return &RedisStore{
		client: client,
		Codecs: securecookie.CodecsFromPairs(keyPairs...),
		Options: &sessions.Options{
			Path:     "/",
			MaxAge:   sessionMaxAge,
			HttpOnly: true,
		},
		KeyPrefix: "session:",
	}
}

func (s *RedisStore) Get(r *http.Request, name string) (*sessions.Session, error) {
	return sessions.GetRegistry(r).Get(s, name)
}

// New loads the session named by the request cookie. A missing, forged or
// expired cookie yields a fresh session without error.
func (s *RedisStore) New(r *http.Request, name string) (*sessions.Session, error) {
	session := sessions.NewSession(s, name)
	opts := *s.Options
	session.Options = &opts
	session.IsNew = true

	c, err := r.Cookie(name)
	if err != nil {
		return session, nil
	}
	var id string
	if err := securecookie.DecodeMulti(name, c.Value, &id, s.Codecs...); err != nil {
		return session, nil
	}

	data, err := s.client.Get(r.Context(), s.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return session, nil
		}
		return session, fmt.Errorf("load session: %w", err)
	}
	if err := s.serializer.Deserialize(data, &session.Values); err != nil {
		return session, nil
	}
	session.ID = id
	session.IsNew = false
	return session, nil
}

// Save writes the session to Redis and refreshes the cookie. A negative MaxAge
// deletes both.
func (s *RedisStore) Save(r *http.Request, w http.ResponseWriter, session *sessions.Session) error {
	ctx := r.Context()
	if session.Options.MaxAge < 0 {
		if err := s.Destroy(ctx, session); err != nil {
			return err
		}
		http.SetCookie(w, sessions.NewCookie(session.Name(), "", session.Options))
		return nil
	}

	if session.ID == "" {
		id, err := newSessionID()
		if err != nil {
			return err
		}
		session.ID = id
	}
	data, err := s.serializer.Serialize(session.Values)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := s.client.Set(ctx, s.key(session.ID), data, s.ttl(session)).Err(); err != nil {
		return fmt.Errorf("store session: %w", err)
	}

	encoded, err := securecookie.EncodeMulti(session.Name(), session.ID, s.Codecs...)
	if err != nil {
		return err
	}
	http.SetCookie(w, sessions.NewCookie(session.Name(), encoded, session.Options))
	return nil
}

// Destroy deletes the server-side state of session and clears its ID.
func (s *RedisStore) Destroy(ctx context.Context, session *sessions.Session) error {
	if session.ID == "" {
		return nil
	}
	if err := s.client.Del(ctx, s.key(session.ID)).Err(); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	session.ID = ""
	return nil
}

func (s *RedisStore) key(id string) string {
	return s.KeyPrefix + id
}

func (s *RedisStore) ttl(session *sessions.Session) time.Duration {
	if session.Options.MaxAge > 0 {
		return time.Duration(session.Options.MaxAge) * time.Second
	}
	return time.Duration(sessionMaxAge) * time.Second
}
