package reminder

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/onterapia/teleconsulta/internal/platform/clock"
	"github.com/onterapia/teleconsulta/internal/platform/notification"
)

// DefaultLead is how long before the session the reminder fires.
const DefaultLead = 15 * time.Minute

// Registrar hands a request to whatever delivers it when the trigger fires.
type Registrar interface {
	Register(ctx context.Context, req Request) (string, error)
}

type Scheduler struct {
	clock     clock.Clock
	registrar Registrar
	templates *notification.TemplateEngine
	lead      time.Duration
	logger    zerolog.Logger
}

func NewScheduler(c clock.Clock, r Registrar, templates *notification.TemplateEngine, lead time.Duration, logger zerolog.Logger) *Scheduler {
	if lead <= 0 {
		lead = DefaultLead
	}
	return &Scheduler{
		clock:     c,
		registrar: r,
		templates: templates,
		lead:      lead,
		logger:    logger.With().Str("component", "reminder").Logger(),
	}
}

// ScheduleSessionNotification registers a one-shot reminder lead before
// sessionStart. When that moment is not in the future nothing is
// registered and the result is marked skipped.
func (s *Scheduler) ScheduleSessionNotification(ctx context.Context, sessionStart time.Time, p Payload) (Result, error) {
	notifyAt := sessionStart.Add(-s.lead)
	if !notifyAt.After(s.clock.Now()) {
		s.logger.Warn().
			Time("session_start", sessionStart).
			Time("notify_at", notifyAt).
			Msg("reminder time already passed, not scheduling")
		return Result{Skipped: true, NotifyAt: notifyAt}, nil
	}

	content, err := s.content(sessionStart, p.RoomName)
	if err != nil {
		return Result{}, err
	}
	id, err := s.registrar.Register(ctx, Request{
		Recipient: p.Recipient,
		Trigger:   TriggerAt(notifyAt),
		Content:   content,
	})
	if errors.Is(err, ErrPastTrigger) {
		// The registrar reads its own clock; the moment can pass between the two reads.
		s.logger.Warn().Time("notify_at", notifyAt).Str("room", p.RoomName).Msg("reminder time passed while registering, not scheduling")
		return Result{Skipped: true, NotifyAt: notifyAt}, nil
	}
	if err != nil {
		s.logger.Error().Err(err).Str("room", p.RoomName).Msg("register reminder")
		return Result{}, fmt.Errorf("register reminder: %w", err)
	}

	s.logger.Info().Str("id", id).Str("room", p.RoomName).Time("notify_at", notifyAt).Msg("reminder scheduled")
	return Result{ID: id, NotifyAt: notifyAt}, nil
}

func (s *Scheduler) content(sessionStart time.Time, room string) (Content, error) {
	title, body, err := s.templates.Render(notification.TemplateSessionReminder, map[string]string{
		"lead": strconv.Itoa(int(s.lead / time.Minute)),
		"time": sessionStart.Format("15:04"),
	})
	if err != nil {
		return Content{}, err
	}
	return Content{
		Title: title,
		Body:  body,
		Data:  map[string]string{"screen": ScreenVideoCall, "roomName": room},
	}, nil
}
