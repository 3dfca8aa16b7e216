package handoff

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

// SlotKeyBase is the well-known slot the patient app polls on focus.
const SlotKeyBase = "patientNextSession"

// SlotKey returns the slot for patientID. An empty id addresses the shared
// slot used by single-device installs.
func SlotKey(patientID string) string {
	if patientID == "" {
		return SlotKeyBase
	}
	return SlotKeyBase + ":" + patientID
}

// DefaultPsychologistName is shown when neither the request nor the caller's
// token carries a display name.
const DefaultPsychologistName = "Psicólogo(a)"

// PsychologistName picks the display name for a record: the requested one,
// then the token name, then DefaultPsychologistName.
func PsychologistName(requested, fromToken string) string {
	if requested != "" {
		return requested
	}
	if fromToken != "" {
		return fromToken
	}
	return DefaultPsychologistName
}

// ErrInvalidRecord wraps every validation failure of a Record.
var ErrInvalidRecord = errors.New("invalid handoff record")

// Record describes the next session a psychologist has scheduled.
type Record struct {
	PsychologistName string `json:"psychologistName"`
	Date             string `json:"date"`
	Time             string `json:"time"`
	TeleconsultaLink string `json:"teleconsultaLink"`
	RoomName         string `json:"roomName"`
}

func (r Record) Validate() error {
	if r.PsychologistName == "" {
		return fmt.Errorf("%w: psychologistName is required", ErrInvalidRecord)
	}
	if _, err := time.Parse("02/01/2006", r.Date); err != nil {
		return fmt.Errorf("%w: date must be DD/MM/YYYY", ErrInvalidRecord)
	}
	if _, err := time.Parse("15:04", r.Time); err != nil {
		return fmt.Errorf("%w: time must be HH:MM", ErrInvalidRecord)
	}
	if r.RoomName == "" {
		return fmt.Errorf("%w: roomName is required", ErrInvalidRecord)
	}
	u, err := url.Parse(r.TeleconsultaLink)
	if err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		return fmt.Errorf("%w: teleconsultaLink must be an http(s) URL", ErrInvalidRecord)
	}
	return nil
}

// Focus is what the patient home screen shows when it regains focus.
type Focus struct {
	Record     *Record `json:"record,omitempty"`
	BadgeCount int     `json:"badgeCount"`
	ShowBanner bool    `json:"showBanner"`
	Message    string  `json:"message,omitempty"`
}
