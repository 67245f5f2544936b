package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"event-invitations/internal/models"
)

var ErrNotFound = errors.New("not found")

const timeLayout = "2006-01-02 15:04:05"

const schema = `
CREATE TABLE IF NOT EXISTS events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL,
	date TEXT NOT NULL,
	time TEXT NOT NULL,
	place TEXT NOT NULL,
	organizer TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	template_path TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS guests (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	event_id INTEGER NOT NULL REFERENCES events(id),
	last_name TEXT NOT NULL,
	first_name TEXT NOT NULL,
	email TEXT NOT NULL DEFAULT '',
	phone TEXT NOT NULL DEFAULT '',
	accompanying_guests INTEGER NOT NULL DEFAULT 0,
	category TEXT NOT NULL DEFAULT 'Standard',
	table_name TEXT NOT NULL DEFAULT '',
	qr_code TEXT UNIQUE,
	invitation_path TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL DEFAULT 'pending',
	sent_at TEXT NOT NULL DEFAULT '',
	scanned_at TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS scans (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	guest_id INTEGER NOT NULL REFERENCES guests(id),
	identifier TEXT NOT NULL,
	scanned_at TEXT NOT NULL,
	location TEXT NOT NULL DEFAULT ''
);
`

const guestColumns = `id, event_id, last_name, first_name, email, phone, accompanying_guests,
	category, table_name, COALESCE(qr_code, ''), invitation_path, status, sent_at, scanned_at, created_at`

// Storage is the SQLite-backed store of events, guests and scans.
type Storage struct {
	mu  sync.Mutex
	db  *sql.DB
	log zerolog.Logger
	now func() time.Time
}

// NewStorage opens (creating if needed) the database at filePath.
func NewStorage(filePath string, log zerolog.Logger) (*Storage, error) {
	if filePath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=5000", filePath))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return &Storage{
		db:  db,
		log: log.With().Str("component", "Storage").Logger(),
		now: time.Now,
	}, nil
}

func (s *Storage) Close() error {
	return s.db.Close()
}

// AddEvent stores a new event and returns its id
func (s *Storage) AddEvent(ctx context.Context, event models.Event) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO events (name, date, time, place, organizer, description, template_path, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		event.Name, event.Date, event.Time, event.Place, event.Organizer, event.Description,
		event.TemplatePath, formatTime(s.now()))
	if err != nil {
		return 0, fmt.Errorf("failed to add event: %w", err)
	}
	return res.LastInsertId()
}

// GetEvent retrieves an event by id
func (s *Storage) GetEvent(ctx context.Context, id int64) (*models.Event, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, date, time, place, organizer, description, template_path, created_at
		FROM events WHERE id = ?`, id)

	event, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("event %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	return event, nil
}

// ListEvents returns all events, latest date first
func (s *Storage) ListEvents(ctx context.Context) ([]models.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, date, time, place, organizer, description, template_path, created_at
		FROM events ORDER BY date DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	var events []models.Event
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to read event: %w", err)
		}
		events = append(events, *event)
	}
	return events, rows.Err()
}

// SetEventTemplate changes the template used for an event's invitations
func (s *Storage) SetEventTemplate(ctx context.Context, eventID int64, templatePath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `UPDATE events SET template_path = ? WHERE id = ?`, templatePath, eventID)
	if err != nil {
		return fmt.Errorf("failed to set template: %w", err)
	}
	return expectRow(res, "event", eventID)
}

// AddGuest stores a new pending guest and returns its id
func (s *Storage) AddGuest(ctx context.Context, guest models.Guest) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if guest.Category == "" {
		guest.Category = models.DefaultCategory
	}
	if guest.AccompanyingGuests < 0 {
		return 0, fmt.Errorf("accompanying guests cannot be negative")
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO guests (event_id, last_name, first_name, email, phone, accompanying_guests,
			category, table_name, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		guest.EventID, guest.LastName, guest.FirstName, guest.Email, guest.PhoneNumber,
		guest.AccompanyingGuests, guest.Category, guest.TableName, models.StatusPending, formatTime(s.now()))
	if err != nil {
		return 0, fmt.Errorf("failed to add guest: %w", err)
	}
	return res.LastInsertId()
}

// GetGuest retrieves a guest by id
func (s *Storage) GetGuest(ctx context.Context, id int64) (*models.Guest, error) {
	return s.queryGuest(ctx, `SELECT `+guestColumns+` FROM guests WHERE id = ?`, id)
}

// GuestByQRCode retrieves the guest whose current identifier is code
func (s *Storage) GuestByQRCode(ctx context.Context, code string) (*models.Guest, error) {
	return s.queryGuest(ctx, `SELECT `+guestColumns+` FROM guests WHERE qr_code = ?`, code)
}

// ListGuests returns the guests of an event by name, or every guest
// newest first when eventID is 0
func (s *Storage) ListGuests(ctx context.Context, eventID int64) ([]models.Guest, error) {
	if eventID == 0 {
		return s.queryGuests(ctx, `SELECT `+guestColumns+` FROM guests ORDER BY created_at DESC, id DESC`)
	}
	return s.queryGuests(ctx, `SELECT `+guestColumns+` FROM guests WHERE event_id = ?
		ORDER BY last_name, first_name, id`, eventID)
}

// GuestsByStatus returns the guests of an event with the given status
func (s *Storage) GuestsByStatus(ctx context.Context, eventID int64, status models.AttendanceStatus) ([]models.Guest, error) {
	return s.queryGuests(ctx, `SELECT `+guestColumns+` FROM guests WHERE event_id = ? AND status = ?
		ORDER BY last_name, first_name, id`, eventID, status)
}

// SetTable assigns a guest to a table
func (s *Storage) SetTable(ctx context.Context, guestID int64, table string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `UPDATE guests SET table_name = ? WHERE id = ?`, table, guestID)
	if err != nil {
		return fmt.Errorf("failed to set table: %w", err)
	}
	return expectRow(res, "guest", guestID)
}

// SetInvitation stores the identifier and file of a freshly rendered
// invitation. The latest identifier wins; the previous one no longer
// resolves to the guest.
func (s *Storage) SetInvitation(ctx context.Context, guestID int64, identifier, invitationPath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var previous string
	err := s.db.QueryRowContext(ctx, `SELECT COALESCE(qr_code, '') FROM guests WHERE id = ?`, guestID).Scan(&previous)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("guest %d: %w", guestID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to read guest: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, `UPDATE guests SET qr_code = ?, invitation_path = ? WHERE id = ?`,
		identifier, invitationPath, guestID); err != nil {
		return fmt.Errorf("failed to store invitation: %w", err)
	}

	if previous != "" && previous != identifier {
		s.log.Info().
			Int64("guest_id", guestID).
			Str("previous", previous).
			Str("identifier", identifier).
			Msg("Invitation identifier replaced")
	}
	return nil
}

// RecordCheckIn marks a pending guest present and appends a scan record,
// atomically. It returns false, recording nothing, when the guest was
// already present.
func (s *Storage) RecordCheckIn(ctx context.Context, guestID int64, identifier, location string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stamp := formatTime(at)
	res, err := tx.ExecContext(ctx, `UPDATE guests SET status = ?, scanned_at = ? WHERE id = ? AND status <> ?`,
		models.StatusPresent, stamp, guestID, models.StatusPresent)
	if err != nil {
		return false, fmt.Errorf("failed to update status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to update status: %w", err)
	}
	if n == 0 {
		return false, nil
	}

	if _, err := tx.ExecContext(ctx, `INSERT INTO scans (guest_id, identifier, scanned_at, location) VALUES (?, ?, ?, ?)`,
		guestID, identifier, stamp, location); err != nil {
		return false, fmt.Errorf("failed to record scan: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit check-in: %w", err)
	}
	return true, nil
}

// MarkSent records when the invitation was delivered to the guest
func (s *Storage) MarkSent(ctx context.Context, guestID int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `UPDATE guests SET sent_at = ? WHERE id = ?`, formatTime(at), guestID)
	if err != nil {
		return fmt.Errorf("failed to mark sent: %w", err)
	}
	return expectRow(res, "guest", guestID)
}

// ListScans returns the check-in history, latest first. eventID 0 means
// every event.
func (s *Storage) ListScans(ctx context.Context, eventID int64) ([]models.Scan, error) {
	query := `
		SELECT s.id, s.guest_id, s.identifier, s.scanned_at, s.location, g.first_name, g.last_name, g.category
		FROM scans s JOIN guests g ON s.guest_id = g.id`
	var args []any
	if eventID != 0 {
		query += ` WHERE g.event_id = ?`
		args = append(args, eventID)
	}
	query += ` ORDER BY s.scanned_at DESC, s.id DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list scans: %w", err)
	}
	defer rows.Close()

	var scans []models.Scan
	for rows.Next() {
		var sc models.Scan
		var at string
		if err := rows.Scan(&sc.ID, &sc.GuestID, &sc.Identifier, &at, &sc.Location,
			&sc.FirstName, &sc.LastName, &sc.Category); err != nil {
			return nil, fmt.Errorf("failed to read scan: %w", err)
		}
		sc.ScannedAt = parseTime(at)
		scans = append(scans, sc)
	}
	return scans, rows.Err()
}

// Statistics summarizes the attendance of an event
func (s *Storage) Statistics(ctx context.Context, eventID int64) (*models.EventStats, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT category, COUNT(*), SUM(accompanying_guests + 1),
			SUM(CASE WHEN status = ? THEN 1 ELSE 0 END),
			SUM(CASE WHEN status = ? THEN accompanying_guests + 1 ELSE 0 END)
		FROM guests WHERE event_id = ? GROUP BY category`,
		models.StatusPresent, models.StatusPresent, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to compute statistics: %w", err)
	}
	defer rows.Close()

	stats := &models.EventStats{ByCategory: make(map[string]models.CategoryStats)}
	for rows.Next() {
		var category string
		var guests, people, present, presentPeople int
		if err := rows.Scan(&category, &guests, &people, &present, &presentPeople); err != nil {
			return nil, fmt.Errorf("failed to read statistics: %w", err)
		}
		stats.TotalGuests += guests
		stats.TotalPeople += people
		stats.Present += present
		stats.PresentPeople += presentPeople
		stats.ByCategory[category] = models.CategoryStats{Guests: guests, People: people, Present: present}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if stats.TotalGuests > 0 {
		rate := float64(stats.Present) / float64(stats.TotalGuests) * 100
		stats.AttendanceRate = math.Round(rate*100) / 100
	}
	return stats, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(row scanner) (*models.Event, error) {
	var e models.Event
	var created string
	if err := row.Scan(&e.ID, &e.Name, &e.Date, &e.Time, &e.Place, &e.Organizer, &e.Description,
		&e.TemplatePath, &created); err != nil {
		return nil, err
	}
	e.CreatedAt = parseTime(created)
	return &e, nil
}

func scanGuest(row scanner) (*models.Guest, error) {
	var g models.Guest
	var status, sent, scanned, created string
	if err := row.Scan(&g.ID, &g.EventID, &g.LastName, &g.FirstName, &g.Email, &g.PhoneNumber,
		&g.AccompanyingGuests, &g.Category, &g.TableName, &g.QRCode, &g.InvitationPath, &status,
		&sent, &scanned, &created); err != nil {
		return nil, err
	}
	g.Status = models.AttendanceStatus(status)
	g.SentAt = parseTime(sent)
	g.ScannedAt = parseTime(scanned)
	g.CreatedAt = parseTime(created)
	return &g, nil
}

func (s *Storage) queryGuest(ctx context.Context, query string, args ...any) (*models.Guest, error) {
	guest, err := scanGuest(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("guest: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get guest: %w", err)
	}
	return guest, nil
}

func (s *Storage) queryGuests(ctx context.Context, query string, args ...any) ([]models.Guest, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list guests: %w", err)
	}
	defer rows.Close()

	var guests []models.Guest
	for rows.Next() {
		g, err := scanGuest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to read guest: %w", err)
		}
		guests = append(guests, *g)
	}
	return guests, rows.Err()
}

func expectRow(res sql.Result, what string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s %d: %w", what, id, ErrNotFound)
	}
	return nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(timeLayout)
}

func parseTime(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	t, err := time.ParseInLocation(timeLayout, s, time.Local)
	if err != nil {
		return time.Time{}
	}
	return t
}
