package session

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/onterapia/teleconsulta/internal/domain/handoff"
	"github.com/onterapia/teleconsulta/internal/platform/auth"
	"github.com/onterapia/teleconsulta/internal/platform/clock"
	"github.com/onterapia/teleconsulta/internal/platform/notification"
)

type mockPublisher struct {
	patients []string
	records  []handoff.Record
	err      error
}

func (m *mockPublisher) Publish(_ context.Context, patientID string, rec handoff.Record) error {
	if m.err != nil {
		return m.err
	}
	m.patients = append(m.patients, patientID)
	m.records = append(m.records, rec)
	return nil
}

func newTestService(hp HandoffPublisher) *Service {
	gen := NewGenerator(clock.NewFixed(sessionStart), "https://meet.jit.si")
	return NewService(gen, hp, notification.NewTemplateEngine(), zerolog.Nop())
}

func TestService_StartPsychologistGetsInvite(t *testing.T) {
	svc := newTestService(&mockPublisher{})
	out, err := svc.Start(context.Background(), auth.RolePsychologist)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	wantInvite := "Olá! Sua sessão de teleconsulta OnTerapia está agendada. Entre no link: https://meet.jit.si/sessao-270525_2100"
	if out.Invite != wantInvite {
		t.Errorf("Invite = %q", out.Invite)
	}
	if !strings.HasPrefix(out.ShareLink, "whatsapp://send?text=Ol%C3%A1%21%20Sua%20sess%C3%A3o") {
		t.Errorf("ShareLink = %q", out.ShareLink)
	}
	if !strings.HasSuffix(out.ShareLink, "https%3A%2F%2Fmeet.jit.si%2Fsessao-270525_2100") {
		t.Errorf("ShareLink does not end with the escaped URL: %q", out.ShareLink)
	}
}

func TestService_StartPatientHasNoInvite(t *testing.T) {
	svc := newTestService(&mockPublisher{})
	out, err := svc.Start(context.Background(), auth.RolePatient)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if out.Invite != "" || out.ShareLink != "" {
		t.Errorf("patient must not receive an invite: %+v", out)
	}
	if out.Session.RoomName != "sessao-270525_2100" {
		t.Errorf("RoomName = %q", out.Session.RoomName)
	}
}

func TestService_StartRejectsUnknownRole(t *testing.T) {
	svc := newTestService(&mockPublisher{})
	if _, err := svc.Start(context.Background(), "admin"); !errors.Is(err, ErrInvalidRole) {
		t.Fatalf("expected ErrInvalidRole, got %v", err)
	}
}

func TestService_SendToPatient(t *testing.T) {
	pub := &mockPublisher{}
	svc := newTestService(pub)
	out, _ := svc.Start(context.Background(), auth.RolePsychologist)

	if err := svc.SendToPatient(context.Background(), auth.RolePsychologist, "Dra. Ana", "patient-1", out.Session); err != nil {
		t.Fatalf("SendToPatient: %v", err)
	}
	if len(pub.records) != 1 || pub.patients[0] != "patient-1" {
		t.Fatalf("unexpected publish calls: %+v", pub)
	}
	want := handoff.Record{
		PsychologistName: "Dra. Ana",
		Date:             "27/05/2025",
		Time:             "21:00",
		TeleconsultaLink: "https://meet.jit.si/sessao-270525_2100",
		RoomName:         "sessao-270525_2100",
	}
	if pub.records[0] != want {
		t.Errorf("record = %+v", pub.records[0])
	}
}

func TestService_SendToPatientRequiresPsychologist(t *testing.T) {
	pub := &mockPublisher{}
	svc := newTestService(pub)
	err := svc.SendToPatient(context.Background(), auth.RolePatient, "x", "patient-1", Session{})
	if !errors.Is(err, ErrForbiddenRole) {
		t.Fatalf("expected ErrForbiddenRole, got %v", err)
	}
	if len(pub.records) != 0 {
		t.Error("nothing must be published")
	}
}

// A session sent through the real handoff service reaches the patient once.
func TestService_SendThroughHandoff(t *testing.T) {
	mb := handoff.NewMemoryMailbox()
	hs := handoff.NewService(mb, nil, nil, zerolog.Nop())
	svc := newTestService(hs)
	out, _ := svc.Start(context.Background(), auth.RolePsychologist)

	if err := svc.SendToPatient(context.Background(), auth.RolePsychologist, "Dra. Ana", "patient-1", out.Session); err != nil {
		t.Fatalf("SendToPatient: %v", err)
	}
	focus, err := hs.Consume(context.Background(), "patient-1")
	if err != nil || focus.BadgeCount != 1 || focus.Record.RoomName != out.Session.RoomName {
		t.Fatalf("unexpected focus %+v err=%v", focus, err)
	}
}
