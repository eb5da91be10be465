// Package storage defines the persistence interface and its implementations.
package storage

import (
	"context"
	"errors"

	"mubarakway/internal/model"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Storage is the interface for all persistence operations.
type Storage interface {
	UpsertUser(ctx context.Context, u *model.User) error
	GetUser(ctx context.Context, telegramID int64) (*model.User, error)
	UpdateUser(ctx context.Context, u *model.User) error
	SetLocation(ctx context.Context, telegramID int64, loc model.Location) error
	ListNotifiableUsers(ctx context.Context) ([]model.User, error)

	SetPrayerMark(ctx context.Context, m *model.PrayerMark) error
	ListPrayerMarks(ctx context.Context, telegramID int64, date string) ([]model.PrayerMark, error)

	Close() error
}
