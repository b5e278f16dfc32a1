// Package controls describes the three camera buttons. It holds no state:
// the screen re-renders it with fresh Props after every change.
package controls

const (
	SwitchLabel        = "Switch Camera"
	CaptureLabel       = "Capture"
	DefaultRecordLabel = "Record"
	RecordingLabel     = "Recording"
)

type Action string

const (
	ActionSwitch  Action = "switch"
	ActionCapture Action = "capture"
	ActionRecord  Action = "record"
)

// Handler reacts to a button press. A nil Handler is a no-op.
type Handler func()

type Props struct {
	OnSwitch    Handler
	OnCapture   Handler
	OnRecording Handler
	// RecordingText labels the record button, DefaultRecordLabel when empty.
	RecordingText string
}

type Button struct {
	Action Action
	Label  string

	onPress Handler
}

func (b Button) Press() {
	if b.onPress != nil {
		b.onPress()
	}
}

func Render(p Props) []Button {
	recordLabel := p.RecordingText
	if recordLabel == "" {
		recordLabel = DefaultRecordLabel
	}

	return []Button{
		{Action: ActionSwitch, Label: SwitchLabel, onPress: p.OnSwitch},
		{Action: ActionCapture, Label: CaptureLabel, onPress: p.OnCapture},
		{Action: ActionRecord, Label: recordLabel, onPress: p.OnRecording},
	}
}

// Find returns the button bound to a, if rendered.
func Find(buttons []Button, a Action) (Button, bool) {
	for _, b := range buttons {
		if b.Action == a {
			return b, true
		}
	}
	return Button{}, false
}
