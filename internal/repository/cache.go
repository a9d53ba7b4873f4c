package repository

import (
	"context"

	"downbeat/internal/domain"
)

// StatusCache persists the last-known normalized status per external task id.
// It is read once at startup to pre-seed entries before their first poll
// completes and written after every accepted update.
type StatusCache interface {
	Init(ctx context.Context) error
	Load(ctx context.Context) (map[string]domain.StatusUpdate, error)
	Put(ctx context.Context, externalTaskID string, update domain.StatusUpdate) error
	Delete(ctx context.Context, externalTaskID string) error
}
