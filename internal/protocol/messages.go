package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// MessageType identifies websocket payload variants on the UI feed.
type MessageType string

const (
	TypeClientControl MessageType = "client_control"
	TypeNotification  MessageType = "notification"
	TypeTaskSettled   MessageType = "task_settled"
	TypeSystemEvent   MessageType = "system_event"
	TypeErrorEvent    MessageType = "error_event"
)

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

// ClientControl is the only inbound message: UI-side actions that do not
// need a full HTTP round trip.
type ClientControl struct {
	Type           MessageType `json:"type"`
	SessionID      string      `json:"session_id"`
	Action         string      `json:"action"`
	NotificationID int64       `json:"notification_id,omitempty"`
}

const (
	ActionDismissNotification = "dismiss_notification"
	ActionClearNotifications  = "clear_notifications"
	ActionTouchSession        = "touch_session"
)

type NotificationEvent struct {
	Type     MessageType `json:"type"`
	ID       int64       `json:"id"`
	Title    string      `json:"title"`
	Message  string      `json:"message"`
	Severity string      `json:"severity"`
	TSMs     int64       `json:"ts_ms"`
}

type TaskSettledEvent struct {
	Type        MessageType `json:"type"`
	TaskID      int64       `json:"task_id"`
	TaskType    string      `json:"task_type"`
	Description string      `json:"description,omitempty"`
	Success     bool        `json:"success"`
	Message     string      `json:"message,omitempty"`
	TSMs        int64       `json:"ts_ms"`
}

type SystemEvent struct {
	Type   MessageType `json:"type"`
	Code   string      `json:"code"`
	Detail string      `json:"detail,omitempty"`
}

type ErrorEvent struct {
	Type   MessageType `json:"type"`
	Code   string      `json:"code"`
	Detail string      `json:"detail"`
}

func ParseClientMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeClientControl:
		var msg ClientControl
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		switch msg.Action {
		case ActionDismissNotification:
			if msg.NotificationID <= 0 {
				return nil, errors.New("dismiss_notification requires a positive notification_id")
			}
		case ActionClearNotifications:
		case ActionTouchSession:
			if msg.SessionID == "" {
				return nil, errors.New("touch_session requires a session_id")
			}
		default:
			return nil, fmt.Errorf("unknown control action %q", msg.Action)
		}
		return msg, nil
	default:
		return nil, ErrUnsupportedType
	}
}
