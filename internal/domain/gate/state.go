package gate

// Phase is the step the pre-call flow is in.
type Phase string

const (
	PhaseChecking      Phase = "checking"
	PhaseGranted       Phase = "granted"
	PhaseDenied        Phase = "denied"
	PhaseTermsPending  Phase = "terms-pending"
	PhaseTermsAccepted Phase = "terms-accepted"
	PhaseExited        Phase = "exited"
)

type EventKind string

const (
	EventPermissionsResolved EventKind = "permissions-resolved"
	EventPermissionError     EventKind = "permission-error"
	EventTermsAccepted       EventKind = "terms-accepted"
	EventTermsDeclined       EventKind = "terms-declined"
	EventCancel              EventKind = "cancel"
	EventOpenSettings        EventKind = "open-settings"
)

// Event drives the gate. Camera and Microphone are only read for
// EventPermissionsResolved.
type Event struct {
	Kind       EventKind `json:"kind"`
	Camera     bool      `json:"camera,omitempty"`
	Microphone bool      `json:"microphone,omitempty"`
}

func Resolved(camera, microphone bool) Event {
	return Event{Kind: EventPermissionsResolved, Camera: camera, Microphone: microphone}
}

// State is the gate's full state. The zero value is not valid; use Initial.
type State struct {
	Phase      Phase `json:"phase"`
	Camera     bool  `json:"camera"`
	Microphone bool  `json:"microphone"`
	Consent    bool  `json:"consent"`
	// Unrecoverable marks a denial caused by the permission request failing
	// rather than the user refusing.
	Unrecoverable     bool `json:"unrecoverable,omitempty"`
	SettingsRequested bool `json:"settingsRequested,omitempty"`
}

func Initial() State {
	return State{Phase: PhaseChecking}
}

// Reduce returns the state that follows s on ev. Cancel exits from any phase
// before the session opens. Other events that make no sense in the current
// phase leave the state unchanged.
func Reduce(s State, ev Event) State {
	switch s.Phase {
	case PhaseChecking:
		switch ev.Kind {
		case EventPermissionsResolved:
			s.Camera, s.Microphone = ev.Camera, ev.Microphone
			if s.Camera && s.Microphone {
				// granted is left immediately for the consent step.
				s.Phase = PhaseTermsPending
			} else {
				s.Phase = PhaseDenied
			}
		case EventPermissionError:
			s.Camera, s.Microphone = false, false
			s.Phase = PhaseDenied
			s.Unrecoverable = true
		case EventCancel:
			s.Phase = PhaseExited
		}

	case PhaseTermsPending:
		switch ev.Kind {
		case EventTermsAccepted:
			if s.Camera && s.Microphone {
				s.Consent = true
				s.Phase = PhaseTermsAccepted
			}
		case EventTermsDeclined, EventCancel:
			s.Consent = false
			s.Phase = PhaseExited
		}

	case PhaseDenied:
		switch ev.Kind {
		case EventCancel:
			s.Phase = PhaseExited
		case EventOpenSettings:
			s.SettingsRequested = true
		}
	}
	return s
}

// CanEnterSession reports whether the video session may be shown.
func (s State) CanEnterSession() bool {
	return s.Phase == PhaseTermsAccepted && s.Camera && s.Microphone && s.Consent
}

// Done reports whether the flow has ended without entering the session.
func (s State) Done() bool {
	return s.Phase == PhaseExited
}
