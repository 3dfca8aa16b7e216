package reminder

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/onterapia/teleconsulta/internal/platform/clock"
	"github.com/onterapia/teleconsulta/internal/platform/notification"
)

var (
	ErrPastTrigger = errors.New("trigger is not in the future")
	ErrNotFound    = errors.New("reminder not found")
)

// Sender delivers a due reminder.
type Sender interface {
	Send(ctx context.Context, n *notification.Notification) error
}

type stopper interface {
	Stop() bool
}

// afterFunc matches time.AfterFunc.
type afterFunc func(d time.Duration, f func()) stopper

func realAfterFunc(d time.Duration, f func()) stopper {
	return time.AfterFunc(d, f)
}

type pendingReminder struct {
	req   Request
	timer stopper
}

// LocalRegistrar keeps reminders in process and sends each one through the
// notification manager when its trigger fires. Pending reminders are lost on
// restart.
type LocalRegistrar struct {
	mu        sync.Mutex
	pending   map[string]*pendingReminder
	clock     clock.Clock
	sender    Sender
	afterFunc afterFunc
	logger    zerolog.Logger
}

func NewLocalRegistrar(c clock.Clock, sender Sender, logger zerolog.Logger) *LocalRegistrar {
	return &LocalRegistrar{
		pending:   make(map[string]*pendingReminder),
		clock:     c,
		sender:    sender,
		afterFunc: realAfterFunc,
		logger:    logger.With().Str("component", "reminder-registrar").Logger(),
	}
}

func (r *LocalRegistrar) Register(_ context.Context, req Request) (string, error) {
	d := req.Trigger.At.Sub(r.clock.Now())
	if d <= 0 {
		return "", ErrPastTrigger
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.pending[req.ID]; ok {
		old.timer.Stop()
	}
	id := req.ID
	r.pending[id] = &pendingReminder{
		req:   req,
		timer: r.afterFunc(d, func() { r.fire(id) }),
	}
	return id, nil
}

func (r *LocalRegistrar) fire(id string) {
	r.mu.Lock()
	p, ok := r.pending[id]
	if ok {
		delete(r.pending, id)
	}
	r.mu.Unlock()
	if !ok {
		return
	}

	n := &notification.Notification{
		Recipient:  p.req.Recipient,
		Title:      p.req.Content.Title,
		Body:       p.req.Content.Body,
		Data:       p.req.Content.Data,
		TemplateID: notification.TemplateSessionReminder,
	}
	if err := r.sender.Send(context.Background(), n); err != nil {
		r.logger.Error().Err(err).Str("id", id).Str("recipient", p.req.Recipient).Msg("reminder delivery failed")
		return
	}
	r.logger.Info().Str("id", id).Str("recipient", p.req.Recipient).Str("status", n.Status).Msg("reminder fired")
}

// Cancel stops a pending reminder. Only the recipient's own reminders are
// visible; an empty recipient matches any.
func (r *LocalRegistrar) Cancel(id, recipient string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.pending[id]
	if !ok || (recipient != "" && p.req.Recipient != recipient) {
		return ErrNotFound
	}
	p.timer.Stop()
	delete(r.pending, id)
	return nil
}

// Pending lists reminders not yet fired, soonest first. An empty recipient
// lists all of them.
func (r *LocalRegistrar) Pending(recipient string) []Request {
	r.mu.Lock()
	out := make([]Request, 0, len(r.pending))
	for _, p := range r.pending {
		if recipient == "" || p.req.Recipient == recipient {
			out = append(out, p.req)
		}
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Trigger.At.Equal(out[j].Trigger.At) {
			return out[i].ID < out[j].ID
		}
		return out[i].Trigger.At.Before(out[j].Trigger.At)
	})
	return out
}

// Close stops every pending timer.
func (r *LocalRegistrar) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, p := range r.pending {
		p.timer.Stop()
		delete(r.pending, id)
	}
}
