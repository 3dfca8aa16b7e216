package gate

import "strings"

// Decision is the answer given to the embedded web page's media request.
type Decision struct {
	Grant  bool   `json:"grant"`
	Reason string `json:"reason,omitempty"`
}

const webkitResourcePrefix = "ANDROID.WEBKIT.RESOURCE."

// mediaCapability maps a requested web resource to camera or microphone.
func mediaCapability(c string) (string, bool) {
	name := strings.TrimPrefix(strings.ToUpper(strings.TrimSpace(c)), webkitResourcePrefix)
	switch name {
	case "CAMERA", "VIDEO_CAPTURE":
		return "camera", true
	case "MICROPHONE", "AUDIO_CAPTURE":
		return "microphone", true
	}
	return "", false
}

// Arbitrate decides a capability request from the conference page. Every
// capability must be camera or microphone, and the gate must be open.
func Arbitrate(s State, capabilities []string) Decision {
	if len(capabilities) == 0 {
		return Decision{Reason: "no capability requested"}
	}
	for _, c := range capabilities {
		if _, ok := mediaCapability(c); !ok {
			return Decision{Reason: "capability not allowed: " + c}
		}
	}
	if !s.CanEnterSession() {
		return Decision{Reason: "camera and microphone permissions and recording consent are required"}
	}
	return Decision{Grant: true}
}
