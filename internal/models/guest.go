package models

import (
	"strings"
	"time"
)

// Guest represents an invited guest of an event
type Guest struct {
	ID                 int64            `json:"id"`
	EventID            int64            `json:"event_id"`
	LastName           string           `json:"last_name"`
	FirstName          string           `json:"first_name"`
	Email              string           `json:"email,omitempty"`
	PhoneNumber        string           `json:"phone_number,omitempty"`
	AccompanyingGuests int              `json:"accompanying_guests"`
	Category           string           `json:"category"`
	TableName          string           `json:"table_name,omitempty"`
	QRCode             string           `json:"qr_code,omitempty"`
	InvitationPath     string           `json:"invitation_path,omitempty"`
	Status             AttendanceStatus `json:"status"`
	SentAt             time.Time        `json:"sent_at,omitempty"`
	ScannedAt          time.Time        `json:"scanned_at,omitempty"`
	CreatedAt          time.Time        `json:"created_at"`
}

// FullName returns "first last", the form printed on invitations
func (g Guest) FullName() string {
	return strings.TrimSpace(g.FirstName + " " + g.LastName)
}

// PartySize counts the guest plus everyone coming with them
func (g Guest) PartySize() int {
	if g.AccompanyingGuests < 0 {
		return 1
	}
	return 1 + g.AccompanyingGuests
}

// AttendanceStatus represents whether the guest was seen at the door
type AttendanceStatus string

const (
	StatusPending AttendanceStatus = "pending"
	StatusPresent AttendanceStatus = "present"
)

// DefaultCategory is assigned to guests added without one
const DefaultCategory = "Standard"
