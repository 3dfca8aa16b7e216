package gate

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// PermissionRequester asks the operating system for camera and microphone.
type PermissionRequester interface {
	RequestMedia(ctx context.Context) (camera, microphone bool, err error)
}

// PreGranted is used on platforms that need no runtime grant.
type PreGranted struct{}

func (PreGranted) RequestMedia(context.Context) (bool, bool, error) {
	return true, true, nil
}

// Flow is one pass through the gate, from opening the session screen to
// entering the call or leaving it. Re-entering after a settings change
// starts a new Flow.
type Flow struct {
	mu        sync.Mutex
	state     State
	requester PermissionRequester
	logger    zerolog.Logger
}

func NewFlow(requester PermissionRequester, logger zerolog.Logger) *Flow {
	return &Flow{
		state:     Initial(),
		requester: requester,
		logger:    logger,
	}
}

// Start requests the media permissions and records the outcome. It is a
// no-op once the flow has left the checking phase.
func (f *Flow) Start(ctx context.Context) State {
	f.mu.Lock()
	if f.state.Phase != PhaseChecking {
		s := f.state
		f.mu.Unlock()
		return s
	}
	f.mu.Unlock()

	camera, mic, err := f.requester.RequestMedia(ctx)
	if err != nil {
		f.logger.Error().Err(err).Msg("media permission request failed")
		return f.Apply(Event{Kind: EventPermissionError})
	}
	if !camera || !mic {
		f.logger.Info().Bool("camera", camera).Bool("microphone", mic).Msg("media permissions refused")
	}
	return f.Apply(Resolved(camera, mic))
}

func (f *Flow) Apply(ev Event) State {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = Reduce(f.state, ev)
	return f.state
}

func (f *Flow) Accept() State       { return f.Apply(Event{Kind: EventTermsAccepted}) }
func (f *Flow) Decline() State      { return f.Apply(Event{Kind: EventTermsDeclined}) }
func (f *Flow) Cancel() State       { return f.Apply(Event{Kind: EventCancel}) }
func (f *Flow) OpenSettings() State { return f.Apply(Event{Kind: EventOpenSettings}) }

func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// HandleWebRequest answers a capability request against the state at the
// moment of the call.
func (f *Flow) HandleWebRequest(capabilities []string) Decision {
	d := Arbitrate(f.State(), capabilities)
	if !d.Grant {
		f.logger.Warn().Strs("capabilities", capabilities).Str("reason", d.Reason).Msg("web capability request denied")
	}
	return d
}
