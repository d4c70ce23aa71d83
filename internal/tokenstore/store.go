// Package tokenstore persists the single opaque auth token between runs.
package tokenstore

import (
	"context"
	"fmt"
	"sync"

	"postraft-facade/config"
)

// Store persists one token. Load returns "" with a nil error when nothing is stored.
type Store interface {
	Load(ctx context.Context) (string, error)
	Save(ctx context.Context, token string) error
	Clear(ctx context.Context) error
}

// Open returns the Store selected by cfg.TokenStore and a func releasing
// whatever the store holds open.
func Open(cfg *config.Config) (Store, func() error, error) {
	noop := func() error { return nil }
	switch cfg.TokenStore {
	case config.TokenStoreMemory:
		return NewMemory(), noop, nil
	case config.TokenStoreFile:
		path, err := cfg.ResolveTokenPath()
		if err != nil {
			return nil, nil, err
		}
		return NewFile(path), noop, nil
	case config.TokenStoreSQLite:
		path, err := cfg.ResolveTokenPath()
		if err != nil {
			return nil, nil, err
		}
		s, err := OpenSQLite(path)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown token store %q", cfg.TokenStore)
	}
}

// Memory keeps the token in process memory only.
type Memory struct {
	mu    sync.RWMutex
	token string
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Load(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token, nil
}

func (m *Memory) Save(ctx context.Context, token string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	m.token = token
	m.mu.Unlock()
	return nil
}

func (m *Memory) Clear(ctx context.Context) error {
	return m.Save(ctx, "")
}

var _ Store = (*Memory)(nil)
