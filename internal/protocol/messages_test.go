package protocol

import (
	"errors"
	"testing"
)

func TestParseClientMessageDismiss(t *testing.T) {
	raw := []byte(`{"type":"client_control","action":"dismiss_notification","notification_id":7}`)
	msg, err := ParseClientMessage(raw)
	if err != nil {
		t.Fatalf("ParseClientMessage() error = %v", err)
	}

	control, ok := msg.(ClientControl)
	if !ok {
		t.Fatalf("message type = %T, want ClientControl", msg)
	}
	if control.Action != ActionDismissNotification || control.NotificationID != 7 {
		t.Fatalf("unexpected control: %+v", control)
	}
}

func TestParseClientMessageTouchSession(t *testing.T) {
	raw := []byte(`{"type":"client_control","action":"touch_session","session_id":"s1"}`)
	msg, err := ParseClientMessage(raw)
	if err != nil {
		t.Fatalf("ParseClientMessage() error = %v", err)
	}

	control, ok := msg.(ClientControl)
	if !ok {
		t.Fatalf("message type = %T, want ClientControl", msg)
	}
	if control.SessionID != "s1" {
		t.Fatalf("SessionID = %q, want %q", control.SessionID, "s1")
	}
}

func TestParseClientMessageRejectsUnknownType(t *testing.T) {
	_, err := ParseClientMessage([]byte(`{"type":"wat"}`))
	if !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("error = %v, want ErrUnsupportedType", err)
	}
}

func TestParseClientMessageRejectsInvalidControls(t *testing.T) {
	cases := []string{
		`{"type":"client_control","action":"dismiss_notification"}`,
		`{"type":"client_control","action":"touch_session"}`,
		`{"type":"client_control","action":"reboot"}`,
	}
	for _, raw := range cases {
		if _, err := ParseClientMessage([]byte(raw)); err == nil {
			t.Fatalf("ParseClientMessage(%s) accepted invalid control", raw)
		}
	}
}
