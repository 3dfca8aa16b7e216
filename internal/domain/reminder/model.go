package reminder

import "time"

// ScreenVideoCall is the app screen a reminder opens.
const ScreenVideoCall = "VideoCall"

// Trigger fires once at At. Hour and Minute repeat At's wall clock for
// clients that schedule by time of day.
type Trigger struct {
	At      time.Time `json:"at"`
	Hour    int       `json:"hour"`
	Minute  int       `json:"minute"`
	Repeats bool      `json:"repeats"`
}

func TriggerAt(at time.Time) Trigger {
	return Trigger{At: at, Hour: at.Hour(), Minute: at.Minute()}
}

type Content struct {
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data"`
}

// Request is one notification handed to a Registrar.
type Request struct {
	ID        string  `json:"id"`
	Recipient string  `json:"recipient"`
	Trigger   Trigger `json:"trigger"`
	Content   Content `json:"content"`
}

// Payload identifies who is reminded and of which room.
type Payload struct {
	Recipient string `json:"recipient"`
	RoomName  string `json:"roomName"`
}

type Result struct {
	ID       string    `json:"id,omitempty"`
	Skipped  bool      `json:"skipped"`
	NotifyAt time.Time `json:"notifyAt"`
}
