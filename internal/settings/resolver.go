// Package settings resolves runtime-overridable settings, currently the
// backend base URL that every upstream fetch is issued against.
package settings

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"

	"promo-gate/internal/storage"
)

// BaseURLKey is the key holding the base URL override.
const BaseURLKey = "api_base_url"

var ErrInvalidURL = errors.New("invalid base url")

// KV is the persisted key/value store behind overrides.
type KV interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// Resolver answers the base URL at call time: override first, compiled default otherwise.
type Resolver struct {
	kv       KV
	fallback string
}

func NewResolver(kv KV, fallback string) *Resolver {
	return &Resolver{kv: kv, fallback: strings.TrimRight(fallback, "/")}
}

// BaseURL never fails; a store error degrades to the default.
func (r *Resolver) BaseURL(ctx context.Context) string {
	if r.kv == nil {
		return r.fallback
	}
	v, err := r.kv.Get(ctx, BaseURLKey)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return r.fallback
	case err != nil:
		log.Warn().Err(err).Msg("base url override unavailable; using default")
		return r.fallback
	case v == "":
		return r.fallback
	}
	return v
}

// Override reports the stored override, if any.
func (r *Resolver) Override(ctx context.Context) (string, bool, error) {
	if r.kv == nil {
		return "", false, nil
	}
	v, err := r.kv.Get(ctx, BaseURLKey)
	if errors.Is(err, storage.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, v != "", nil
}

func (r *Resolver) Default() string { return r.fallback }

// SetOverride validates and stores a new base URL.
func (r *Resolver) SetOverride(ctx context.Context, raw string) (string, error) {
	normalized, err := Normalize(raw)
	if err != nil {
		return "", err
	}
	if r.kv == nil {
		return "", errors.New("no settings store configured")
	}
	if err := r.kv.Set(ctx, BaseURLKey, normalized); err != nil {
		return "", fmt.Errorf("store override: %w", err)
	}
	return normalized, nil
}

func (r *Resolver) ClearOverride(ctx context.Context) error {
	if r.kv == nil {
		return nil
	}
	if err := r.kv.Delete(ctx, BaseURLKey); err != nil {
		return fmt.Errorf("clear override: %w", err)
	}
	return nil
}

// Normalize accepts absolute http(s) URLs and strips any trailing slash.
func Normalize(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%w: scheme must be http or https", ErrInvalidURL)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%w: missing host", ErrInvalidURL)
	}
	return strings.TrimRight(u.String(), "/"), nil
}
