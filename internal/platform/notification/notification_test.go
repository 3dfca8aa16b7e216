package notification

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/onterapia/teleconsulta/internal/platform/auth"
	"github.com/onterapia/teleconsulta/internal/platform/websocket"
)

// ---------------------------------------------------------------------------
// Template Engine Tests
// ---------------------------------------------------------------------------

func TestTemplateEngine_SessionReminder(t *testing.T) {
	eng := NewTemplateEngine()
	title, body, err := eng.Render(TemplateSessionReminder, map[string]string{
		"lead": "15",
		"time": "14:30",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if title != "Lembrete: Sua Sessão!" {
		t.Errorf("title = %q", title)
	}
	if body != "Sua consulta começa em 15 minutos, às 14:30." {
		t.Errorf("body = %q", body)
	}
}

func TestTemplateEngine_RenderMissing(t *testing.T) {
	eng := NewTemplateEngine()
	if _, _, err := eng.Render("nonexistent", nil); err == nil {
		t.Fatal("expected error for missing template, got nil")
	}
}

func TestTemplateEngine_MissingKeyLeftInPlace(t *testing.T) {
	eng := NewTemplateEngine()
	_, body, err := eng.Render(TemplateHandoffBanner, map[string]string{"psychologist": "Dra. Ana"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if body != "Dra. Ana agendou sua sessão para {{date}} às {{time}}." {
		t.Errorf("body = %q", body)
	}
}

func TestTemplateEngine_RegisterOverrides(t *testing.T) {
	eng := NewTemplateEngine()
	eng.RegisterTemplate(Template{ID: TemplateSessionInvite, Title: "Convite", Body: "Link: {{url}}"})
	_, body, _ := eng.Render(TemplateSessionInvite, map[string]string{"url": "https://meet.jit.si/x"})
	if body != "Link: https://meet.jit.si/x" {
		t.Errorf("body = %q", body)
	}
}

// ---------------------------------------------------------------------------
// Manager Tests
// ---------------------------------------------------------------------------

func newTestManager(sender PushSender) *Manager {
	return NewManager(sender, zerolog.Nop())
}

func TestManager_SendMarksSent(t *testing.T) {
	mock := &MockPushSender{}
	mgr := newTestManager(mock)

	n := &Notification{Recipient: "patient-1", Title: "t", Body: "b"}
	if err := mgr.Send(context.Background(), n); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n.ID == "" {
		t.Error("expected id to be assigned")
	}
	if n.Status != StatusSent || n.SentAt == nil {
		t.Errorf("expected sent with timestamp, got %s", n.Status)
	}
	if len(mock.Calls()) != 1 {
		t.Fatalf("expected 1 push, got %d", len(mock.Calls()))
	}
}

func TestManager_SendRequiresRecipient(t *testing.T) {
	mgr := newTestManager(&MockPushSender{})
	if err := mgr.Send(context.Background(), &Notification{}); err == nil {
		t.Fatal("expected error for missing recipient")
	}
}

func TestManager_OfflineIsNotAnError(t *testing.T) {
	mgr := newTestManager(&MockPushSender{Err: ErrOffline})
	n := &Notification{Recipient: "patient-1"}
	if err := mgr.Send(context.Background(), n); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n.Status != StatusOffline {
		t.Errorf("expected offline, got %s", n.Status)
	}
}

func TestManager_FailureRecorded(t *testing.T) {
	mgr := newTestManager(&MockPushSender{Err: errors.New("boom")})
	n := &Notification{Recipient: "patient-1"}
	if err := mgr.Send(context.Background(), n); err == nil {
		t.Fatal("expected error")
	}
	got, err := mgr.Get(context.Background(), n.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != StatusFailed || got.Error != "boom" {
		t.Errorf("unexpected record: %+v", got)
	}
}

func TestManager_ListByRecipientNewestFirst(t *testing.T) {
	mgr := newTestManager(&MockPushSender{})
	ctx := context.Background()
	for _, title := range []string{"a", "b", "c"} {
		mgr.Send(ctx, &Notification{Recipient: "patient-1", Title: title})
	}
	mgr.Send(ctx, &Notification{Recipient: "patient-2", Title: "x"})

	list := mgr.ListByRecipient(ctx, "patient-1", 2)
	if len(list) != 2 {
		t.Fatalf("expected 2, got %d", len(list))
	}
	if list[0].Title != "c" || list[1].Title != "b" {
		t.Errorf("unexpected order: %s, %s", list[0].Title, list[1].Title)
	}
}

func TestManager_LogIsBounded(t *testing.T) {
	mgr := newTestManager(&MockPushSender{})
	mgr.max = 3
	ctx := context.Background()
	var first string
	for i := 0; i < 5; i++ {
		n := &Notification{Recipient: "u"}
		mgr.Send(ctx, n)
		if i == 0 {
			first = n.ID
		}
	}
	if _, err := mgr.Get(ctx, first); err == nil {
		t.Error("expected oldest notification to be evicted")
	}
	if got := len(mgr.ListByRecipient(ctx, "u", 10)); got != 3 {
		t.Errorf("expected 3 kept, got %d", got)
	}
}

func TestManager_Retry(t *testing.T) {
	mock := &MockPushSender{Err: ErrOffline}
	mgr := newTestManager(mock)
	ctx := context.Background()

	n := &Notification{Recipient: "patient-1"}
	mgr.Send(ctx, n)

	mock.mu.Lock()
	mock.Err = nil
	mock.mu.Unlock()

	if err := mgr.Retry(ctx, n.ID); err != nil {
		t.Fatalf("Retry: %v", err)
	}
	got, _ := mgr.Get(ctx, n.ID)
	if got.Status != StatusSent {
		t.Errorf("expected sent after retry, got %s", got.Status)
	}
	if err := mgr.Retry(ctx, n.ID); err == nil {
		t.Error("expected error retrying a sent notification")
	}
}

func TestManager_Stats(t *testing.T) {
	ok := &MockPushSender{}
	mgr := newTestManager(ok)
	ctx := context.Background()
	mgr.Send(ctx, &Notification{Recipient: "a"})
	mgr.Send(ctx, &Notification{Recipient: "b"})

	stats := mgr.Stats(ctx)
	if stats[StatusSent] != 2 {
		t.Errorf("expected 2 sent, got %v", stats)
	}
}

func TestManager_ConcurrentSend(t *testing.T) {
	mgr := newTestManager(&MockPushSender{})
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			mgr.Send(context.Background(), &Notification{Recipient: "u"})
		}()
	}
	wg.Wait()
	if got := mgr.Stats(context.Background())[StatusSent]; got != 50 {
		t.Errorf("expected 50 sent, got %d", got)
	}
}

// ---------------------------------------------------------------------------
// Hub sender
// ---------------------------------------------------------------------------

type fakeHub struct {
	events    []websocket.Event
	delivered int
}

func (h *fakeHub) Broadcast(topic string, event websocket.Event) int {
	h.events = append(h.events, event)
	return h.delivered
}

func TestHubPushSender_AddressesUserTopic(t *testing.T) {
	hub := &fakeHub{delivered: 1}
	s := NewHubPushSender(hub)
	if err := s.SendPush(context.Background(), &Notification{ID: "n1", Recipient: "patient-1", Title: "t"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(hub.events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(hub.events))
	}
	ev := hub.events[0]
	if ev.Topic != websocket.UserTopic("patient-1") || ev.Type != EventType {
		t.Errorf("unexpected event: %+v", ev)
	}
	var n Notification
	if err := json.Unmarshal(ev.Data, &n); err != nil || n.ID != "n1" {
		t.Errorf("unexpected payload %s: %v", ev.Data, err)
	}
}

func TestHubPushSender_NoSubscribersIsOffline(t *testing.T) {
	s := NewHubPushSender(&fakeHub{})
	err := s.SendPush(context.Background(), &Notification{Recipient: "patient-1"})
	if !errors.Is(err, ErrOffline) {
		t.Fatalf("expected ErrOffline, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// Handler Tests
// ---------------------------------------------------------------------------

func newCtx(method, path, userID string, roles ...string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(method, path, nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), userID, "", roles))
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestHandler_ListOwnOnly(t *testing.T) {
	mgr := newTestManager(&MockPushSender{})
	ctx := context.Background()
	mgr.Send(ctx, &Notification{Recipient: "patient-1", Title: "mine"})
	mgr.Send(ctx, &Notification{Recipient: "patient-2", Title: "theirs"})
	h := NewHandler(mgr)

	c, rec := newCtx(http.MethodGet, "/notifications", "patient-1", auth.RolePatient)
	if err := h.List(c); err != nil {
		t.Fatalf("List: %v", err)
	}
	var list []Notification
	json.Unmarshal(rec.Body.Bytes(), &list)
	if len(list) != 1 || list[0].Title != "mine" {
		t.Errorf("unexpected list: %+v", list)
	}
}

func TestHandler_ListEmptyArray(t *testing.T) {
	h := NewHandler(newTestManager(&MockPushSender{}))
	c, rec := newCtx(http.MethodGet, "/notifications", "nobody", auth.RolePatient)
	if err := h.List(c); err != nil {
		t.Fatalf("List: %v", err)
	}
	if body := rec.Body.String(); body != "[]\n" {
		t.Errorf("expected empty array, got %q", body)
	}
}

func TestHandler_RetryOtherUsersIsNotFound(t *testing.T) {
	mgr := newTestManager(&MockPushSender{Err: ErrOffline})
	n := &Notification{Recipient: "patient-2"}
	mgr.Send(context.Background(), n)
	h := NewHandler(mgr)

	c, _ := newCtx(http.MethodPost, "/", "patient-1", auth.RolePatient)
	c.SetParamNames("id")
	c.SetParamValues(n.ID)
	err := h.Retry(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %v", err)
	}
}

func TestHandler_StatsRoute(t *testing.T) {
	mgr := newTestManager(&MockPushSender{})
	mgr.Send(context.Background(), &Notification{Recipient: "a"})
	h := NewHandler(mgr)

	c, rec := newCtx(http.MethodGet, "/notifications/stats", "admin", auth.RoleAdmin)
	if err := h.Stats(c); err != nil {
		t.Fatalf("Stats: %v", err)
	}
	var stats map[string]int
	json.Unmarshal(rec.Body.Bytes(), &stats)
	if stats[StatusSent] != 1 {
		t.Errorf("unexpected stats: %v", stats)
	}
}
