package session

import (
	"net/url"
	"regexp"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/onterapia/teleconsulta/internal/platform/auth"
)

// Display formats used by both apps.
const (
	DateLayout  = "02/01/2006"
	TimeLayout  = "15:04"
	labelLayout = "020106_1504"
	labelPrefix = "Sessao-"
)

var roomPattern = regexp.MustCompile(`^[a-z0-9\-_.]+$`)

// combiningDiacriticals is the Combining Diacritical Marks block. Marks
// outside it are not stripped and end up as '-'.
var combiningDiacriticals = &unicode.RangeTable{
	R16: []unicode.Range16{{Lo: 0x0300, Hi: 0x036f, Stride: 1}},
}

// Session is a freshly generated conference room.
type Session struct {
	Label     string    `json:"label"`
	RoomName  string    `json:"roomName"`
	Date      string    `json:"date"`
	Time      string    `json:"time"`
	JoinURL   string    `json:"joinUrl"`
	StartedAt time.Time `json:"startedAt"`
}

// Started is returned to the app that opened the session screen. Invite and
// ShareLink are only filled for psychologists.
type Started struct {
	Session   Session `json:"session"`
	Initiator string  `json:"initiator"`
	Invite    string  `json:"invite,omitempty"`
	ShareLink string  `json:"shareLink,omitempty"`
}

// ValidInitiator reports whether role may start a session.
func ValidInitiator(role string) bool {
	return role == auth.RolePsychologist || role == auth.RolePatient
}

// ValidRoomName reports whether name could have come out of Slugify and is
// usable as a URL path segment. Names made only of dots are rejected since
// JoinURL would turn them into relative path references.
func ValidRoomName(name string) bool {
	return roomPattern.MatchString(name) && strings.Trim(name, ".") != ""
}

// Slugify turns a label into a conference room name: combining accents are
// stripped, every UTF-16 code unit outside [a-zA-Z0-9-_.] becomes '-' (so a
// rune beyond the BMP yields two), and the result is lower-cased.
func Slugify(label string) string {
	// transform.Chain keeps state, so it is built per call.
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(combiningDiacriticals)))
	stripped, _, err := transform.String(t, label)
	if err != nil {
		stripped = label
	}

	var b strings.Builder
	b.Grow(len(stripped))
	for _, r := range stripped {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r + ('a' - 'A'))
		case r > 0xffff:
			b.WriteString("--")
		default:
			b.WriteByte('-')
		}
	}
	return b.String()
}

// JoinURL appends room to base as a single path segment.
func JoinURL(base, room string) string {
	return strings.TrimRight(base, "/") + "/" + url.PathEscape(room)
}
