package handoff

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/onterapia/teleconsulta/internal/platform/notification"
	"github.com/onterapia/teleconsulta/internal/platform/websocket"
)

// EventPublished is pushed to the patient when a record is published.
const EventPublished = "handoff.published"

type Service struct {
	mailbox   Mailbox
	events    websocket.EventPublisher
	templates *notification.TemplateEngine
	logger    zerolog.Logger
}

// NewService builds the handoff service. events and templates may be nil.
func NewService(mb Mailbox, events websocket.EventPublisher, templates *notification.TemplateEngine, logger zerolog.Logger) *Service {
	return &Service{
		mailbox:   mb,
		events:    events,
		templates: templates,
		logger:    logger.With().Str("component", "handoff").Logger(),
	}
}

// Publish stores rec in the patient's slot, replacing anything unconsumed,
// and nudges the patient's open connections.
func (s *Service) Publish(ctx context.Context, patientID string, rec Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	if err := s.mailbox.Put(ctx, SlotKey(patientID), payload); err != nil {
		return err
	}

	s.logger.Info().Str("patient_id", patientID).Str("room", rec.RoomName).Msg("next session published")

	if s.events == nil || patientID == "" {
		return nil
	}
	ev, err := websocket.NewEvent(EventPublished, websocket.UserTopic(patientID), map[string]string{
		"date": rec.Date,
		"time": rec.Time,
	})
	if err == nil {
		err = s.events.Publish(ctx, ev)
	}
	if err != nil {
		// The record is stored; the patient still sees it on next focus.
		s.logger.Warn().Err(err).Str("patient_id", patientID).Msg("handoff push failed")
	}
	return nil
}

// Consume takes the patient's pending record, if any. A payload that does
// not decode is logged and reported as no record; it has already been
// removed from the slot.
func (s *Service) Consume(ctx context.Context, patientID string) (Focus, error) {
	payload, ok, err := s.mailbox.Take(ctx, SlotKey(patientID))
	if err != nil {
		return Focus{}, err
	}
	if !ok {
		return Focus{BadgeCount: 0}, nil
	}

	var rec Record
	if err := json.Unmarshal(payload, &rec); err != nil {
		s.logger.Error().Err(err).Str("patient_id", patientID).Msg("discarding malformed handoff record")
		return Focus{BadgeCount: 0}, nil
	}

	return Focus{
		Record:     &rec,
		BadgeCount: 1,
		ShowBanner: true,
		Message:    s.banner(rec),
	}, nil
}

func (s *Service) banner(rec Record) string {
	if s.templates == nil {
		return ""
	}
	_, body, err := s.templates.Render(notification.TemplateHandoffBanner, map[string]string{
		"psychologist": rec.PsychologistName,
		"date":         rec.Date,
		"time":         rec.Time,
	})
	if err != nil {
		return ""
	}
	return body
}
