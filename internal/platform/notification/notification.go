// Package notification delivers in-app push notifications to the patient and
// psychologist apps, renders them from templates, and keeps a bounded
// in-memory delivery log.
package notification

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/onterapia/teleconsulta/internal/platform/auth"
	"github.com/onterapia/teleconsulta/internal/platform/websocket"
)

// Delivery statuses.
const (
	StatusPending = "pending"
	StatusSent    = "sent"
	StatusOffline = "offline"
	StatusFailed  = "failed"
)

// EventType is the websocket event type carrying a notification.
const EventType = "notification"

// ErrOffline is returned by a sender when the recipient has no open
// connection. The notification is kept so the client can fetch it later.
var ErrOffline = errors.New("recipient offline")

// Notification is a single push message to one user.
type Notification struct {
	ID         string            `json:"id"`
	Recipient  string            `json:"recipient"`
	Title      string            `json:"title"`
	Body       string            `json:"body"`
	Data       map[string]string `json:"data,omitempty"`
	TemplateID string            `json:"templateId,omitempty"`
	Status     string            `json:"status"`
	CreatedAt  time.Time         `json:"createdAt"`
	SentAt     *time.Time        `json:"sentAt,omitempty"`
	Error      string            `json:"error,omitempty"`
}

// PushSender delivers a rendered notification to a device or connection.
type PushSender interface {
	SendPush(ctx context.Context, n *Notification) error
}

// ---------------------------------------------------------------------------
// Hub sender
// ---------------------------------------------------------------------------

// Hub is the subset of the websocket hub used for delivery.
type Hub interface {
	Broadcast(topic string, event websocket.Event) int
}

// HubPushSender pushes notifications over the websocket hub to the
// recipient's user topic.
type HubPushSender struct {
	hub Hub
}

func NewHubPushSender(hub Hub) *HubPushSender {
	return &HubPushSender{hub: hub}
}

func (s *HubPushSender) SendPush(_ context.Context, n *Notification) error {
	ev, err := websocket.NewEvent(EventType, websocket.UserTopic(n.Recipient), n)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	if s.hub.Broadcast(ev.Topic, ev) == 0 {
		return ErrOffline
	}
	return nil
}

// ---------------------------------------------------------------------------
// Templates
// ---------------------------------------------------------------------------

// Template is a reusable title/body pair with {{key}} placeholders.
type Template struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Body  string `json:"body"`
}

// Built-in template ids.
const (
	TemplateSessionReminder = "session-reminder"
	TemplateSessionInvite   = "session-invite"
	TemplateHandoffBanner   = "handoff-banner"
)

type TemplateEngine struct {
	mu        sync.RWMutex
	templates map[string]Template
}

func NewTemplateEngine() *TemplateEngine {
	e := &TemplateEngine{templates: make(map[string]Template)}
	for _, t := range []Template{
		{
			ID:    TemplateSessionReminder,
			Title: "Lembrete: Sua Sessão!",
			Body:  "Sua consulta começa em {{lead}} minutos, às {{time}}.",
		},
		{
			ID:    TemplateSessionInvite,
			Title: "Teleconsulta OnTerapia",
			Body:  "Olá! Sua sessão de teleconsulta OnTerapia está agendada. Entre no link: {{url}}",
		},
		{
			ID:    TemplateHandoffBanner,
			Title: "Nova sessão agendada",
			Body:  "{{psychologist}} agendou sua sessão para {{date}} às {{time}}.",
		},
	} {
		e.templates[t.ID] = t
	}
	return e
}

func (e *TemplateEngine) RegisterTemplate(t Template) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[t.ID] = t
}

// Render substitutes data into the template. Placeholders without a value
// are left as they are.
func (e *TemplateEngine) Render(templateID string, data map[string]string) (title, body string, err error) {
	e.mu.RLock()
	t, ok := e.templates[templateID]
	e.mu.RUnlock()
	if !ok {
		return "", "", fmt.Errorf("template %q not found", templateID)
	}

	pairs := make([]string, 0, len(data)*2)
	for k, v := range data {
		pairs = append(pairs, "{{"+k+"}}", v)
	}
	r := strings.NewReplacer(pairs...)
	return r.Replace(t.Title), r.Replace(t.Body), nil
}

// ---------------------------------------------------------------------------
// Mock sender
// ---------------------------------------------------------------------------

// MockPushSender records every push. It is used by tests in this and other
// packages.
type MockPushSender struct {
	mu    sync.Mutex
	calls []Notification
	Err   error
}

func (m *MockPushSender) SendPush(_ context.Context, n *Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, *n)
	return m.Err
}

func (m *MockPushSender) Calls() []Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Notification, len(m.calls))
	copy(out, m.calls)
	return out
}

// ---------------------------------------------------------------------------
// Manager
// ---------------------------------------------------------------------------

const defaultLogSize = 1000

// Manager sends notifications and keeps the most recent ones.
type Manager struct {
	sender PushSender
	logger zerolog.Logger
	now    func() time.Time

	mu    sync.RWMutex
	byID  map[string]*Notification
	order []string
	max   int
}

func NewManager(sender PushSender, logger zerolog.Logger) *Manager {
	return &Manager{
		sender: sender,
		logger: logger.With().Str("component", "notification").Logger(),
		now:    func() time.Time { return time.Now().UTC() },
		byID:   make(map[string]*Notification),
		max:    defaultLogSize,
	}
}

// Send delivers n and records the outcome. An offline recipient is not an
// error; the notification is stored with StatusOffline.
func (m *Manager) Send(ctx context.Context, n *Notification) error {
	if n.Recipient == "" {
		return fmt.Errorf("recipient is required")
	}
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	n.CreatedAt = m.now()
	n.Status = StatusPending

	err := m.deliver(ctx, n)
	m.store(n)
	return err
}

func (m *Manager) deliver(ctx context.Context, n *Notification) error {
	err := m.sender.SendPush(ctx, n)

	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case err == nil:
		sentAt := m.now()
		n.Status = StatusSent
		n.SentAt = &sentAt
		n.Error = ""
		return nil
	case errors.Is(err, ErrOffline):
		n.Status = StatusOffline
		m.logger.Debug().Str("recipient", n.Recipient).Str("id", n.ID).Msg("recipient offline, notification kept")
		return nil
	default:
		n.Status = StatusFailed
		n.Error = err.Error()
		m.logger.Warn().Err(err).Str("recipient", n.Recipient).Str("id", n.ID).Msg("push failed")
		return err
	}
}

func (m *Manager) store(n *Notification) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.byID[n.ID]; !exists {
		m.order = append(m.order, n.ID)
	}
	m.byID[n.ID] = n
	for len(m.order) > m.max {
		delete(m.byID, m.order[0])
		m.order = m.order[1:]
	}
}

func (m *Manager) Get(_ context.Context, id string) (*Notification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, ok := m.byID[id]
	if !ok {
		return nil, fmt.Errorf("notification %q not found", id)
	}
	cp := *n
	return &cp, nil
}

// ListByRecipient returns up to limit notifications for recipient, newest first.
func (m *Manager) ListByRecipient(_ context.Context, recipient string, limit int) []*Notification {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Notification
	for i := len(m.order) - 1; i >= 0 && len(out) < limit; i-- {
		n := m.byID[m.order[i]]
		if n.Recipient == recipient {
			cp := *n
			out = append(out, &cp)
		}
	}
	return out
}

// Retry re-sends a failed or offline notification.
func (m *Manager) Retry(ctx context.Context, id string) error {
	m.mu.RLock()
	n, ok := m.byID[id]
	var status string
	if ok {
		status = n.Status
	}
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("notification %q not found", id)
	}
	if status != StatusFailed && status != StatusOffline {
		return fmt.Errorf("notification %q cannot be retried (status: %s)", id, status)
	}
	return m.deliver(ctx, n)
}

// Stats counts notifications by status.
func (m *Manager) Stats(_ context.Context) map[string]int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stats := make(map[string]int)
	for _, n := range m.byID {
		stats[n.Status]++
	}
	return stats
}

// ---------------------------------------------------------------------------
// HTTP Handler
// ---------------------------------------------------------------------------

type Handler struct {
	manager *Manager
}

func NewHandler(mgr *Manager) *Handler {
	return &Handler{manager: mgr}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/notifications", h.List)
	g.POST("/notifications/:id/retry", h.Retry)

	admin := g.Group("", auth.RequireRole(auth.RoleAdmin))
	admin.GET("/notifications/stats", h.Stats)
}

// List returns the caller's own notifications.
func (h *Handler) List(c echo.Context) error {
	uid := auth.UserIDFromContext(c.Request().Context())
	if uid == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	list := h.manager.ListByRecipient(c.Request().Context(), uid, 100)
	if list == nil {
		list = []*Notification{}
	}
	return c.JSON(http.StatusOK, list)
}

func (h *Handler) Retry(c echo.Context) error {
	ctx := c.Request().Context()
	n, err := h.manager.Get(ctx, c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	if n.Recipient != auth.UserIDFromContext(ctx) && !auth.HasAnyRole(ctx, auth.RoleAdmin) {
		return echo.NewHTTPError(http.StatusNotFound, "notification not found")
	}
	if err := h.manager.Retry(ctx, n.ID); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	n, _ = h.manager.Get(ctx, n.ID)
	return c.JSON(http.StatusOK, n)
}

func (h *Handler) Stats(c echo.Context) error {
	return c.JSON(http.StatusOK, h.manager.Stats(c.Request().Context()))
}
