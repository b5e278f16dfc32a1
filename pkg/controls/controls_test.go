package controls

import (
	"testing"
)

func TestRenderLabels(t *testing.T) {
	buttons := Render(Props{})
	want := []string{SwitchLabel, CaptureLabel, DefaultRecordLabel}
	if len(buttons) != len(want) {
		t.Fatalf("got %d buttons", len(buttons))
	}
	for i, b := range buttons {
		if b.Label != want[i] {
			t.Fatalf("button %d label = %q, want %q", i, b.Label, want[i])
		}
		// nil handlers must be safe
		b.Press()
	}

	b, ok := Find(Render(Props{RecordingText: RecordingLabel}), ActionRecord)
	if !ok || b.Label != RecordingLabel {
		t.Fatalf("record button = %+v", b)
	}
}

func TestPressDispatch(t *testing.T) {
	var pressed []Action
	buttons := Render(Props{
		OnSwitch:    func() { pressed = append(pressed, ActionSwitch) },
		OnCapture:   func() { pressed = append(pressed, ActionCapture) },
		OnRecording: func() { pressed = append(pressed, ActionRecord) },
	})
	for _, a := range []Action{ActionRecord, ActionCapture, ActionSwitch, ActionCapture} {
		b, ok := Find(buttons, a)
		if !ok {
			t.Fatalf("%s not rendered", a)
		}
		b.Press()
	}
	want := []Action{ActionRecord, ActionCapture, ActionSwitch, ActionCapture}
	for i := range want {
		if pressed[i] != want[i] {
			t.Fatalf("pressed = %v", pressed)
		}
	}
}
