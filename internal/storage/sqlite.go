package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver registration.

	"mubarakway/internal/model"
	"mubarakway/migrations"
)

const timeLayout = "2006-01-02T15:04:05Z"

const userColumns = `telegram_id, username, first_name, last_name, language_code,
	latitude, longitude, timezone, city,
	calculation_method, madhab, notifications_enabled, before_minutes,
	created_at, last_active_at`

// SQLite implements Storage backed by a SQLite database.
type SQLite struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLite opens a SQLite database at dsn and runs pending migrations.
func NewSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// A single connection keeps ":memory:" databases shared between queries.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	if err := migrations.Run(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db, now: time.Now}, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// UpsertUser creates the user on first contact or refreshes the Telegram
// profile fields and activity time of an existing one. Settings of an
// existing user are kept. u is replaced with the stored row.
func (s *SQLite) UpsertUser(ctx context.Context, u *model.User) error {
	now := s.now().UTC().Format(timeLayout)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (telegram_id, username, first_name, last_name, language_code, created_at, last_active_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (telegram_id) DO UPDATE SET
		   username = excluded.username,
		   first_name = excluded.first_name,
		   last_name = excluded.last_name,
		   language_code = excluded.language_code,
		   last_active_at = excluded.last_active_at`,
		u.TelegramID, u.Username, u.FirstName, u.LastName, u.LanguageCode, now, now,
	)
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}

	stored, err := s.GetUser(ctx, u.TelegramID)
	if err != nil {
		return err
	}
	*u = *stored
	return nil
}

// GetUser returns a user by Telegram ID or ErrNotFound.
func (s *SQLite) GetUser(ctx context.Context, telegramID int64) (*model.User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE telegram_id = ?`, telegramID,
	)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return u, err
}

// UpdateUser persists the profile, location and settings of an existing user.
func (s *SQLite) UpdateUser(ctx context.Context, u *model.User) error {
	var lat, lon *float64
	var tz, city string
	if u.Location != nil {
		lat, lon = &u.Location.Latitude, &u.Location.Longitude
		tz, city = u.Location.Timezone, u.Location.City
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET username = ?, first_name = ?, last_name = ?, language_code = ?,
		   latitude = ?, longitude = ?, timezone = ?, city = ?,
		   calculation_method = ?, madhab = ?, notifications_enabled = ?, before_minutes = ?,
		   last_active_at = ?
		 WHERE telegram_id = ?`,
		u.Username, u.FirstName, u.LastName, u.LanguageCode,
		lat, lon, tz, city,
		u.CalculationMethod, u.Madhab, boolToInt(u.NotificationsEnabled), u.BeforeMinutes,
		s.now().UTC().Format(timeLayout),
		u.TelegramID,
	)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	return expectRow(res)
}

// SetLocation saves the location of an existing user.
func (s *SQLite) SetLocation(ctx context.Context, telegramID int64, loc model.Location) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET latitude = ?, longitude = ?, timezone = ?, city = ?, last_active_at = ?
		 WHERE telegram_id = ?`,
		loc.Latitude, loc.Longitude, loc.Timezone, loc.City, s.now().UTC().Format(timeLayout), telegramID,
	)
	if err != nil {
		return fmt.Errorf("set location: %w", err)
	}
	return expectRow(res)
}

// ListNotifiableUsers returns users with notifications enabled and a saved location.
func (s *SQLite) ListNotifiableUsers(ctx context.Context) ([]model.User, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users
		 WHERE notifications_enabled = 1
		   AND latitude IS NOT NULL
		   AND longitude IS NOT NULL
		 ORDER BY telegram_id`,
	)
	if err != nil {
		return nil, fmt.Errorf("query notifiable users: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var users []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

// SetPrayerMark stores a user's answer for a prayer, replacing an earlier
// answer for the same prayer and day.
func (s *SQLite) SetPrayerMark(ctx context.Context, m *model.PrayerMark) error {
	now := s.now().UTC().Format(timeLayout)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO prayer_marks (telegram_id, prayer_key, date, status, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (telegram_id, prayer_key, date) DO UPDATE SET
		   status = excluded.status,
		   created_at = excluded.created_at`,
		m.TelegramID, m.PrayerKey, m.Date, string(m.Status), now,
	)
	if err != nil {
		return fmt.Errorf("set prayer mark: %w", err)
	}
	m.CreatedAt, _ = time.Parse(timeLayout, now)
	return nil
}

// ListPrayerMarks returns a user's answers for one day.
func (s *SQLite) ListPrayerMarks(ctx context.Context, telegramID int64, date string) ([]model.PrayerMark, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT telegram_id, prayer_key, date, status, created_at
		 FROM prayer_marks WHERE telegram_id = ? AND date = ?
		 ORDER BY created_at, prayer_key`,
		telegramID, date,
	)
	if err != nil {
		return nil, fmt.Errorf("query prayer marks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var marks []model.PrayerMark
	for rows.Next() {
		var m model.PrayerMark
		var status, created string
		if err := rows.Scan(&m.TelegramID, &m.PrayerKey, &m.Date, &status, &created); err != nil {
			return nil, fmt.Errorf("scan prayer mark: %w", err)
		}
		m.Status = model.MarkStatus(status)
		m.CreatedAt, _ = time.Parse(timeLayout, created)
		marks = append(marks, m)
	}
	return marks, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func expectRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanUser(row scannable) (*model.User, error) {
	var u model.User
	var lat, lon sql.NullFloat64
	var tz, city, created, active string
	var enabled int
	err := row.Scan(
		&u.TelegramID, &u.Username, &u.FirstName, &u.LastName, &u.LanguageCode,
		&lat, &lon, &tz, &city,
		&u.CalculationMethod, &u.Madhab, &enabled, &u.BeforeMinutes,
		&created, &active,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}
	u.NotificationsEnabled = enabled == 1
	if lat.Valid && lon.Valid {
		u.Location = &model.Location{
			Latitude:  lat.Float64,
			Longitude: lon.Float64,
			Timezone:  tz,
			City:      city,
		}
	}
	u.CreatedAt, _ = time.Parse(timeLayout, created)
	u.LastActiveAt, _ = time.Parse(timeLayout, active)
	return &u, nil
}
