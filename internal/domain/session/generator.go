package session

import (
	"math/rand/v2"

	"github.com/onterapia/teleconsulta/internal/platform/clock"
)

const hexDigits = "0123456789abcdef"

// Generator builds sessions from the current time.
type Generator struct {
	clock     clock.Clock
	baseURL   string
	suffixLen int
	rand      func() uint64
}

type Option func(*Generator)

// WithRandomSuffix appends '-' and n random hex characters to every room
// name. Rooms created in the same minute then no longer share a name.
func WithRandomSuffix(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.suffixLen = n
		}
	}
}

// WithRandSource replaces the random source used for suffixes.
func WithRandSource(fn func() uint64) Option {
	return func(g *Generator) {
		g.rand = fn
	}
}

func NewGenerator(c clock.Clock, baseURL string, opts ...Option) *Generator {
	g := &Generator{
		clock:   c,
		baseURL: baseURL,
		rand:    rand.Uint64,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate reads the clock once and derives every field from that instant.
func (g *Generator) Generate() Session {
	now := g.clock.Now()
	label := labelPrefix + now.Format(labelLayout)
	room := Slugify(label)
	if g.suffixLen > 0 {
		room += "-" + g.suffix()
	}
	return Session{
		Label:     label,
		RoomName:  room,
		Date:      now.Format(DateLayout),
		Time:      now.Format(TimeLayout),
		JoinURL:   g.JoinURL(room),
		StartedAt: now,
	}
}

// JoinURL returns the conference link for room on the configured host.
func (g *Generator) JoinURL(room string) string {
	return JoinURL(g.baseURL, room)
}

func (g *Generator) suffix() string {
	buf := make([]byte, g.suffixLen)
	var bits uint64
	for i := range buf {
		if i%16 == 0 {
			bits = g.rand()
		}
		buf[i] = hexDigits[bits&0xf]
		bits >>= 4
	}
	return string(buf)
}
