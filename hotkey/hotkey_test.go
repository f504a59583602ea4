package hotkey

import (
	"testing"
	"time"

	hook "github.com/robotn/gohook"
)

func TestParseKey(t *testing.T) {
	tests := []struct {
		name    string
		want    rune
		wantErr bool
	}{
		{name: "", want: ' '},
		{name: "space", want: ' '},
		{name: "Enter", want: '\r'},
		{name: "t", want: 't'},
		{name: "ض", want: 'ض'},
		{name: "f13", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseKey(tt.name)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseKey(%q) error = %v, wantErr %v", tt.name, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("ParseKey(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestTapListener_Filter(t *testing.T) {
	l := NewTapListener(' ', nil)
	now := time.Now()

	sequence := []struct {
		name    string
		ev      hook.Event
		wantTap bool
	}{
		{"space down", hook.Event{Kind: hook.KeyDown, Keychar: ' ', Rawcode: 49, When: now}, true},
		{"auto-repeat", hook.Event{Kind: hook.KeyDown, Keychar: ' ', Rawcode: 49}, false},
		{"other key up", hook.Event{Kind: hook.KeyUp, Rawcode: 12}, false},
		{"still held", hook.Event{Kind: hook.KeyDown, Keychar: ' ', Rawcode: 49}, false},
		{"space up", hook.Event{Kind: hook.KeyUp, Rawcode: 49}, false},
		{"other key down", hook.Event{Kind: hook.KeyDown, Keychar: 'a', Rawcode: 0}, false},
		{"space again", hook.Event{Kind: hook.KeyDown, Keychar: ' ', Rawcode: 49}, true},
	}

	var held uint16
	for _, step := range sequence {
		ts, tap := l.filter(step.ev, &held)
		if tap != step.wantTap {
			t.Errorf("%s: tap = %v, want %v", step.name, tap, step.wantTap)
		}
		if tap && ts.IsZero() {
			t.Errorf("%s: tap without timestamp", step.name)
		}
	}
}
