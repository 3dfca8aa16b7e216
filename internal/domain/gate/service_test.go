package gate

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/onterapia/teleconsulta/internal/platform/websocket"
)

type mockConsentRepo struct {
	items []*ConsentRecord
	err   error
}

func (m *mockConsentRepo) Create(_ context.Context, r *ConsentRecord) error {
	if m.err != nil {
		return m.err
	}
	r.ID = uuid.New()
	r.RecordedAt = time.Now()
	m.items = append(m.items, r)
	return nil
}

func (m *mockConsentRepo) ListByUser(_ context.Context, userID string, limit, offset int) ([]*ConsentRecord, int, error) {
	var mine []*ConsentRecord
	for i := len(m.items) - 1; i >= 0; i-- {
		if m.items[i].UserID == userID {
			mine = append(mine, m.items[i])
		}
	}
	total := len(mine)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return mine[offset:end], total, nil
}

type mockEvents struct {
	events []websocket.Event
	err    error
}

func (m *mockEvents) Publish(_ context.Context, ev websocket.Event) error {
	m.events = append(m.events, ev)
	return m.err
}

func newTestService() (*Service, *mockConsentRepo) {
	repo := &mockConsentRepo{}
	return NewService(repo, DefaultTerms(), nil, zerolog.Nop()), repo
}

func outcome(cam, mic, accepted bool) Outcome {
	return Outcome{
		RoomName:     "sessao-270525_2100",
		Camera:       cam,
		Microphone:   mic,
		Accepted:     accepted,
		TermsVersion: DefaultTerms().Version,
	}
}

func TestService_RecordAccept(t *testing.T) {
	svc, repo := newTestService()
	st, rec, err := svc.Record(context.Background(), "patient-1", outcome(true, true, true))
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if !st.CanEnterSession() {
		t.Errorf("expected open gate, got %+v", st)
	}
	if rec == nil || !rec.Accepted || rec.UserID != "patient-1" || len(repo.items) != 1 {
		t.Fatalf("unexpected record %+v", rec)
	}
}

func TestService_RecordDecline(t *testing.T) {
	svc, repo := newTestService()
	st, rec, err := svc.Record(context.Background(), "patient-1", outcome(true, true, false))
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if st.Phase != PhaseExited || rec == nil || rec.Accepted {
		t.Fatalf("expected stored decline, got %+v %+v", st, rec)
	}
	if len(repo.items) != 1 {
		t.Error("decline must be stored")
	}
}

// Accepting the notice does not count when a permission was refused.
func TestService_AcceptWithoutGrantsIsNotConsent(t *testing.T) {
	svc, repo := newTestService()
	st, rec, err := svc.Record(context.Background(), "patient-1", outcome(true, false, true))
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if st.Phase != PhaseDenied || st.CanEnterSession() {
		t.Errorf("expected denied, got %+v", st)
	}
	if rec != nil || len(repo.items) != 0 {
		t.Error("nothing must be stored when the notice was never reached")
	}
}

func TestService_PermissionErrorOutcome(t *testing.T) {
	svc, _ := newTestService()
	o := outcome(true, true, true)
	o.PermissionError = true
	st, rec, _ := svc.Record(context.Background(), "p", o)
	if !st.Unrecoverable || rec != nil {
		t.Errorf("expected unrecoverable denial, got %+v", st)
	}
}

func TestService_RecordValidation(t *testing.T) {
	svc, _ := newTestService()
	o := outcome(true, true, true)
	o.RoomName = ""
	if _, _, err := svc.Record(context.Background(), "p", o); !errors.Is(err, ErrMissingRoom) {
		t.Errorf("expected ErrMissingRoom, got %v", err)
	}
	o = outcome(true, true, true)
	o.TermsVersion = "0.1"
	if _, _, err := svc.Record(context.Background(), "p", o); !errors.Is(err, ErrTermsOutdated) {
		t.Errorf("expected ErrTermsOutdated, got %v", err)
	}
}

func TestService_RecordStoreError(t *testing.T) {
	svc, repo := newTestService()
	repo.err = errors.New("db down")
	if _, _, err := svc.Record(context.Background(), "p", outcome(true, true, true)); err == nil {
		t.Fatal("expected error")
	}
}

func TestService_RecordAnnouncesToRoom(t *testing.T) {
	events := &mockEvents{}
	svc := NewService(&mockConsentRepo{}, DefaultTerms(), events, zerolog.Nop())

	if _, _, err := svc.Record(context.Background(), "patient-1", outcome(true, true, true)); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if len(events.events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events.events))
	}
	ev := events.events[0]
	if ev.Type != EventConsentRecorded || ev.Topic != websocket.RoomTopic("sessao-270525_2100") {
		t.Errorf("unexpected event %s on %s", ev.Type, ev.Topic)
	}
	var data struct {
		UserID          string `json:"userId"`
		Accepted        bool   `json:"accepted"`
		CanEnterSession bool   `json:"canEnterSession"`
	}
	if err := json.Unmarshal(ev.Data, &data); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if data.UserID != "patient-1" || !data.Accepted || !data.CanEnterSession {
		t.Errorf("unexpected payload %+v", data)
	}
}

func TestService_AnnounceFailureKeepsRecord(t *testing.T) {
	events := &mockEvents{err: errors.New("hub gone")}
	repo := &mockConsentRepo{}
	svc := NewService(repo, DefaultTerms(), events, zerolog.Nop())

	_, rec, err := svc.Record(context.Background(), "patient-1", outcome(true, true, false))
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if rec == nil || len(repo.items) != 1 {
		t.Fatal("decision must be stored even when the push fails")
	}
}

func TestService_NothingAnnouncedBeforeNotice(t *testing.T) {
	events := &mockEvents{}
	svc := NewService(&mockConsentRepo{}, DefaultTerms(), events, zerolog.Nop())
	svc.Record(context.Background(), "patient-1", outcome(false, false, true))
	if len(events.events) != 0 {
		t.Errorf("expected no events, got %d", len(events.events))
	}
}

func TestReplay_MatchesReducer(t *testing.T) {
	for _, o := range []Outcome{outcome(true, true, true), outcome(false, true, true), outcome(true, true, false)} {
		want := Initial()
		want = Reduce(want, Resolved(o.Camera, o.Microphone))
		if o.Accepted {
			want = Reduce(want, Event{Kind: EventTermsAccepted})
		} else {
			want = Reduce(want, Event{Kind: EventTermsDeclined})
		}
		if got := Replay(o); got != want {
			t.Errorf("Replay(%+v) = %+v, want %+v", o, got, want)
		}
	}
}
