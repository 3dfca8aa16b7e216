package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/onterapia/teleconsulta/internal/domain/handoff"
	"github.com/onterapia/teleconsulta/internal/platform/auth"
	"github.com/onterapia/teleconsulta/internal/platform/notification"
	"github.com/onterapia/teleconsulta/internal/platform/whatsapp"
)

var (
	ErrInvalidRole   = errors.New("initiator must be psychologist or patient")
	ErrForbiddenRole = errors.New("only psychologists can send a session to a patient")
)

// HandoffPublisher stores a session for the patient app to pick up.
type HandoffPublisher interface {
	Publish(ctx context.Context, patientID string, rec handoff.Record) error
}

type Service struct {
	gen       *Generator
	handoff   HandoffPublisher
	templates *notification.TemplateEngine
	logger    zerolog.Logger
}

func NewService(gen *Generator, hp HandoffPublisher, templates *notification.TemplateEngine, logger zerolog.Logger) *Service {
	return &Service{
		gen:       gen,
		handoff:   hp,
		templates: templates,
		logger:    logger.With().Str("component", "session").Logger(),
	}
}

// Start opens a new session for initiator. Psychologists also get the
// invite text and a WhatsApp share link for it.
func (s *Service) Start(ctx context.Context, initiator string) (Started, error) {
	if !ValidInitiator(initiator) {
		return Started{}, ErrInvalidRole
	}
	sess := s.gen.Generate()
	out := Started{Session: sess, Initiator: initiator}

	if initiator == auth.RolePsychologist {
		_, invite, err := s.templates.Render(notification.TemplateSessionInvite, map[string]string{"url": sess.JoinURL})
		if err != nil {
			return Started{}, fmt.Errorf("render invite: %w", err)
		}
		out.Invite = invite
		out.ShareLink = whatsapp.ShareLink(invite)
	}

	s.logger.Info().Str("room", sess.RoomName).Str("initiator", initiator).Msg("session started")
	return out, nil
}

// SendToPatient hands sess to the patient's app.
func (s *Service) SendToPatient(ctx context.Context, initiator, psychologistName, patientID string, sess Session) error {
	if initiator != auth.RolePsychologist {
		return ErrForbiddenRole
	}
	return s.handoff.Publish(ctx, patientID, handoff.Record{
		PsychologistName: psychologistName,
		Date:             sess.Date,
		Time:             sess.Time,
		TeleconsultaLink: sess.JoinURL,
		RoomName:         sess.RoomName,
	})
}

// Rebuild recreates a session from the fields the app echoes back, taking
// the join URL from the configured conference host.
func (s *Service) Rebuild(room, date, hhmm string) Session {
	return Session{
		RoomName: room,
		Date:     date,
		Time:     hhmm,
		JoinURL:  s.gen.JoinURL(room),
	}
}
