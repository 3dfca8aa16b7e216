package gate

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/onterapia/teleconsulta/internal/platform/websocket"
)

// EventConsentRecorded is pushed to the room topic when a participant
// accepts or declines the recording notice.
const EventConsentRecorded = "consent.recorded"

var (
	ErrTermsOutdated = errors.New("terms version is not current")
	ErrMissingRoom   = errors.New("roomName is required")
)

// Outcome is what a client reports after running the gate on the device.
type Outcome struct {
	RoomName        string `json:"roomName"`
	Camera          bool   `json:"camera"`
	Microphone      bool   `json:"microphone"`
	PermissionError bool   `json:"permissionError"`
	Accepted        bool   `json:"accepted"`
	TermsVersion    string `json:"termsVersion"`
}

type Service struct {
	repo   ConsentRepository
	terms  Terms
	events websocket.EventPublisher
	logger zerolog.Logger
}

// NewService builds the consent service. events may be nil, in which case
// decisions are only stored.
func NewService(repo ConsentRepository, terms Terms, events websocket.EventPublisher, logger zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		terms:  terms,
		events: events,
		logger: logger.With().Str("component", "gate").Logger(),
	}
}

func (s *Service) Terms() Terms {
	return s.terms
}

// Replay runs the reported outcome through the gate and returns the state it
// ends in.
func Replay(o Outcome) State {
	st := Initial()
	if o.PermissionError {
		return Reduce(st, Event{Kind: EventPermissionError})
	}
	st = Reduce(st, Resolved(o.Camera, o.Microphone))
	if st.Phase != PhaseTermsPending {
		return st
	}
	if o.Accepted {
		return Reduce(st, Event{Kind: EventTermsAccepted})
	}
	return Reduce(st, Event{Kind: EventTermsDeclined})
}

// Record replays o and, when the consent step was reached, stores the
// decision. The returned record is nil when permissions stopped the flow
// before the notice was shown.
func (s *Service) Record(ctx context.Context, userID string, o Outcome) (State, *ConsentRecord, error) {
	if o.RoomName == "" {
		return State{}, nil, ErrMissingRoom
	}
	if o.TermsVersion != s.terms.Version {
		return State{}, nil, fmt.Errorf("%w: got %q, current is %q", ErrTermsOutdated, o.TermsVersion, s.terms.Version)
	}

	st := Replay(o)
	if st.Phase != PhaseTermsAccepted && st.Phase != PhaseExited {
		return st, nil, nil
	}

	rec := &ConsentRecord{
		UserID:       userID,
		RoomName:     o.RoomName,
		Accepted:     st.Consent,
		TermsVersion: s.terms.Version,
		Camera:       st.Camera,
		Microphone:   st.Microphone,
	}
	if err := s.repo.Create(ctx, rec); err != nil {
		return st, nil, fmt.Errorf("store consent: %w", err)
	}
	s.logger.Info().
		Str("user_id", userID).
		Str("room", o.RoomName).
		Bool("accepted", rec.Accepted).
		Msg("consent recorded")
	s.announce(ctx, rec, st)
	return st, rec, nil
}

// announce tells the other participants of the room about a decision.
// Delivery failures are logged; the decision is already stored.
func (s *Service) announce(ctx context.Context, rec *ConsentRecord, st State) {
	if s.events == nil {
		return
	}
	ev, err := websocket.NewEvent(EventConsentRecorded, websocket.RoomTopic(rec.RoomName), map[string]any{
		"userId":          rec.UserID,
		"roomName":        rec.RoomName,
		"accepted":        rec.Accepted,
		"canEnterSession": st.CanEnterSession(),
	})
	if err == nil {
		err = s.events.Publish(ctx, ev)
	}
	if err != nil {
		s.logger.Warn().Err(err).Str("room", rec.RoomName).Msg("announce consent")
	}
}

func (s *Service) List(ctx context.Context, userID string, limit, offset int) ([]*ConsentRecord, int, error) {
	return s.repo.ListByUser(ctx, userID, limit, offset)
}
