package models

import "time"

// Event is the occasion guests are invited to
type Event struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Date         string    `json:"date"`
	Time         string    `json:"time"`
	Place        string    `json:"place"`
	Organizer    string    `json:"organizer,omitempty"`
	Description  string    `json:"description,omitempty"`
	TemplatePath string    `json:"template_path,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Scan is one successful check-in at the door
type Scan struct {
	ID         int64     `json:"id"`
	GuestID    int64     `json:"guest_id"`
	Identifier string    `json:"identifier"`
	ScannedAt  time.Time `json:"scanned_at"`
	Location   string    `json:"location"`
	FirstName  string    `json:"first_name,omitempty"`
	LastName   string    `json:"last_name,omitempty"`
	Category   string    `json:"category,omitempty"`
}

// CategoryStats is the per-category part of EventStats
type CategoryStats struct {
	Guests  int `json:"guests"`
	People  int `json:"people"`
	Present int `json:"present"`
}

// EventStats summarizes attendance of one event
type EventStats struct {
	TotalGuests    int                      `json:"total_guests"`
	TotalPeople    int                      `json:"total_people"`
	Present        int                      `json:"present"`
	PresentPeople  int                      `json:"present_people"`
	AttendanceRate float64                  `json:"attendance_rate"`
	ByCategory     map[string]CategoryStats `json:"by_category"`
}
