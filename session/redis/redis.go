//
// Copyright (C) 2026 The ensemble authors. All rights reserved.
//
// ensemble is licensed under the Apache License Version 2.0.
//

// Package redis provides a Redis-backed session service.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/ensemble-ai/ensemble/session"
)

const defaultKeyPrefix = "ensemble:session:"

// Service is a Redis implementation of session.Service. Sessions are stored
// as JSON values keyed by "<prefix><type>:<id>".
type Service struct {
	client    goredis.UniversalClient
	keyPrefix string
	ttl       time.Duration
}

// Option configures the Redis session service.
type Option func(*Service)

// WithKeyPrefix overrides the storage key prefix.
func WithKeyPrefix(prefix string) Option {
	return func(s *Service) { s.keyPrefix = prefix }
}

// WithTTL sets an expiry on stored sessions. Zero means no expiry.
func WithTTL(ttl time.Duration) Option {
	return func(s *Service) { s.ttl = ttl }
}

// New creates a Redis session service on top of an existing client.
func New(client goredis.UniversalClient, opts ...Option) *Service {
	s := &Service{
		client:    client,
		keyPrefix: defaultKeyPrefix,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) storageKey(key session.Key) string {
	return fmt.Sprintf("%s%s:%s", s.keyPrefix, key.Type, key.ID)
}

// GetSession implements session.Service.
func (s *Service) GetSession(ctx context.Context, key session.Key) (*session.Session, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	raw, err := s.client.Get(ctx, s.storageKey(key)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, session.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get session: %w", err)
	}
	var sess session.Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", key.ID, err)
	}
	return &sess, nil
}

// SaveSession implements session.Service.
func (s *Service) SaveSession(ctx context.Context, sess *session.Session) error {
	if err := sess.Key().Validate(); err != nil {
		return err
	}
	raw, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", sess.ID, err)
	}
	if err := s.client.Set(ctx, s.storageKey(sess.Key()), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis save session: %w", err)
	}
	return nil
}

// DeleteSession implements session.Service.
func (s *Service) DeleteSession(ctx context.Context, key session.Key) error {
	if err := key.Validate(); err != nil {
		return err
	}
	if err := s.client.Del(ctx, s.storageKey(key)).Err(); err != nil {
		return fmt.Errorf("redis delete session: %w", err)
	}
	return nil
}
