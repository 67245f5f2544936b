// Package qr builds and reads the payloads printed on invitations.
//
// Two payload formats exist in the wild. Legacy codes carry the bare
// identifier ("INVITE-<guest>-<hex8>"). Current codes are multi-line text
// meant for humans, with the identifier on a line starting with "ID:".
// Parse resolves either into a Payload once, at the boundary.
package qr

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"event-invitations/internal/models"
)

var ErrMalformed = errors.New("malformed QR payload")

// idPrefix marks the identifier line of a tagged payload.
const idPrefix = "ID:"

// Format tells which payload layout was scanned.
type Format int

const (
	FormatLegacy Format = iota
	FormatTagged
)

func (f Format) String() string {
	if f == FormatTagged {
		return "tagged"
	}
	return "legacy"
}

// Payload is a parsed QR payload reduced to its identifier.
type Payload struct {
	Format     Format
	Identifier string
}

// NewIdentifier returns a fresh identifier for one rendering of a
// guest's invitation. Every call yields a new value; the previous one
// stops resolving once the new one is stored.
func NewIdentifier(guestID int64) string {
	random := strings.ReplaceAll(uuid.New().String(), "-", "")
	return fmt.Sprintf("INVITE-%d-%s", guestID, random[:8])
}

// Build returns the current payload format for an identifier.
func Build(identifier string, guest models.Guest, event models.Event) string {
	var b strings.Builder
	// values are folded onto one line so none can start a line of its own
	line := func(label, value string) {
		value = strings.Join(strings.Fields(value), " ")
		if value == "" {
			return
		}
		b.WriteString(label)
		b.WriteString(": ")
		b.WriteString(value)
		b.WriteByte('\n')
	}

	line("Event", event.Name)
	line("Guest", guest.FullName())
	line("Date", event.Date+" "+event.Time)
	line("Place", event.Place)
	line("Table", guest.TableName)
	b.WriteString(idPrefix)
	b.WriteString(identifier)
	b.WriteByte('\n')
	return b.String()
}

// Parse extracts the identifier from a scanned payload. The first line
// starting with "ID:" wins; without one the whole payload is the
// identifier.
func Parse(raw string) (Payload, error) {
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSuffix(line, "\r")
		if strings.HasPrefix(line, idPrefix) {
			id := strings.TrimSpace(strings.TrimPrefix(line, idPrefix))
			if id == "" {
				return Payload{}, fmt.Errorf("%w: empty ID line", ErrMalformed)
			}
			return Payload{Format: FormatTagged, Identifier: id}, nil
		}
	}

	id := strings.TrimSpace(raw)
	if id == "" {
		return Payload{}, fmt.Errorf("%w: empty payload", ErrMalformed)
	}
	return Payload{Format: FormatLegacy, Identifier: id}, nil
}

// Extract is Parse reduced to the identifier.
func Extract(raw string) (string, error) {
	p, err := Parse(raw)
	if err != nil {
		return "", err
	}
	return p.Identifier, nil
}
