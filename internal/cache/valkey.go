// Package cache provides the TTL-aware key/value clients backing the token
// revocation store.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	valkeygo "github.com/valkey-io/valkey-go"
)

const (
	keyPrefix          = "kinoauth:revoked:"
	connectionDeadline = 5 * time.Second
)

// ValkeyConfig holds connection settings for the Valkey/Redis backend.
type ValkeyConfig struct {
	Address  string
	Password string
	DB       int
}

// Valkey is a thin adapter exposing existence checks and TTL'd writes over
// a Valkey connection. All callers share one client; commands carry the
// caller's context deadline.
type Valkey struct {
	client valkeygo.Client
}

// NewValkey connects and verifies the connection with a ping.
func NewValkey(cfg ValkeyConfig) (*Valkey, error) {
	if cfg.Address == "" {
		return nil, errors.New("valkey address is required")
	}
	opts := valkeygo.ClientOption{
		InitAddress: []string{cfg.Address},
		SelectDB:    cfg.DB,
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	client, err := valkeygo.NewClient(opts)
	if err != nil {
		return nil, fmt.Errorf("create valkey client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectionDeadline)
	defer cancel()
	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to valkey: %w", err)
	}
	return &Valkey{client: client}, nil
}

// Exists reports whether the key is present.
func (v *Valkey) Exists(ctx context.Context, key string) (bool, error) {
	n, err := v.client.Do(ctx, v.client.B().Exists().Key(keyPrefix+key).Build()).AsInt64()
	if err != nil {
		return false, fmt.Errorf("valkey exists: %w", err)
	}
	return n > 0, nil
}

// Set writes the key with the given TTL.
func (v *Valkey) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl <= 0 {
		return errors.New("ttl must be positive")
	}
	cmd := v.client.B().Set().Key(keyPrefix + key).Value(value).Ex(ttl).Build()
	if err := v.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("valkey set: %w", err)
	}
	return nil
}

// Close releases the underlying connection.
func (v *Valkey) Close() {
	v.client.Close()
}
