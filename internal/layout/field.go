package layout

import (
	"fmt"

	"event-invitations/internal/models"
)

// Field is the closed set of things a layout element can be bound to.
type Field int

const (
	FieldUnknown Field = iota
	FieldFullName
	FieldFirstName
	FieldLastName
	FieldCategory
	FieldTable
	FieldEventName
	FieldEventDate
	FieldEventTime
	FieldEventPlace
	FieldQRCode
)

// Element ids as they appear in layout files.
var fieldIDs = map[Field]string{
	FieldFullName:   "nom_complet",
	FieldFirstName:  "prenom",
	FieldLastName:   "nom",
	FieldCategory:   "categorie",
	FieldTable:      "table",
	FieldEventName:  "event_nom",
	FieldEventDate:  "event_date",
	FieldEventTime:  "event_heure",
	FieldEventPlace: "event_lieu",
	FieldQRCode:     "qrcode",
}

var fieldLabels = map[Field]string{
	FieldFullName:   "Full name",
	FieldFirstName:  "First name",
	FieldLastName:   "Last name",
	FieldCategory:   "Category",
	FieldTable:      "Table",
	FieldEventName:  "Event name",
	FieldEventDate:  "Event date",
	FieldEventTime:  "Event time",
	FieldEventPlace: "Event place",
	FieldQRCode:     "QR code",
}

// Fields lists every bindable field in editor order.
func Fields() []Field {
	return []Field{
		FieldFullName, FieldFirstName, FieldLastName, FieldCategory, FieldTable,
		FieldEventName, FieldEventDate, FieldEventTime, FieldEventPlace, FieldQRCode,
	}
}

// ParseField resolves an element id.
func ParseField(id string) (Field, error) {
	for f, s := range fieldIDs {
		if s == id {
			return f, nil
		}
	}
	return FieldUnknown, fmt.Errorf("unknown element id %q", id)
}

func (f Field) String() string {
	if s, ok := fieldIDs[f]; ok {
		return s
	}
	return "unknown"
}

// Label is the human readable name shown in the editor.
func (f Field) Label() string {
	return fieldLabels[f]
}

// Kind is the element kind a field requires.
func (f Field) Kind() Kind {
	if f == FieldQRCode {
		return KindQRCode
	}
	return KindText
}

// Value returns the text printed for a text field. It is total over the
// text fields; the QR slot has no text value.
func (f Field) Value(guest models.Guest, event models.Event) string {
	switch f {
	case FieldFullName:
		return guest.FullName()
	case FieldFirstName:
		return guest.FirstName
	case FieldLastName:
		return guest.LastName
	case FieldCategory:
		return guest.Category
	case FieldTable:
		return guest.TableName
	case FieldEventName:
		return event.Name
	case FieldEventDate:
		return event.Date
	case FieldEventTime:
		return event.Time
	case FieldEventPlace:
		return event.Place
	default:
		return ""
	}
}
