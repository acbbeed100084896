package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/numera-app/numera/internal/engine"
	"github.com/numera-app/numera/internal/notify"
	"github.com/numera-app/numera/internal/protocol"
)

// handleStream upgrades to a websocket and pushes notification and
// task-settled events to the UI. Writes stay single-threaded through the
// outbound channel; a saturated client loses events rather than stalling
// the daemon.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	notifications, unsubNotify := s.store.Subscribe()
	defer unsubNotify()
	events, unsubEvents := s.engine.Subscribe()
	defer unsubEvents()

	outbound := make(chan any, 256)

	// Greeting frame: lets the UI confirm the feed is live before any
	// notification or settle event arrives.
	enqueue(outbound, protocol.SystemEvent{
		Type: protocol.TypeSystemEvent,
		Code: "stream_connected",
	})

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-outbound:
				if !ok {
					return
				}
				_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
				if err := conn.WriteJSON(msg); err != nil {
					cancel()
					return
				}
			}
		}
	}()

	pumpDone := make(chan struct{})
	go func() {
		defer close(pumpDone)
		for {
			select {
			case <-ctx.Done():
				return
			case n, ok := <-notifications:
				if !ok {
					return
				}
				enqueue(outbound, notificationEvent(n))
			case evt, ok := <-events:
				if !ok {
					return
				}
				enqueue(outbound, taskSettledEvent(evt))
			}
		}
	}()

	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		return nil
	})

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if msgType != websocket.TextMessage {
			continue
		}
		parsed, err := protocol.ParseClientMessage(data)
		if err != nil {
			enqueue(outbound, protocol.ErrorEvent{
				Type:   protocol.TypeErrorEvent,
				Code:   "invalid_client_message",
				Detail: err.Error(),
			})
			continue
		}
		if control, ok := parsed.(protocol.ClientControl); ok {
			s.applyControl(outbound, control)
		}
	}

	cancel()
	<-pumpDone
	<-writerDone
}

func (s *Server) applyControl(outbound chan<- any, control protocol.ClientControl) {
	switch control.Action {
	case protocol.ActionDismissNotification:
		if !s.store.Dismiss(control.NotificationID) {
			enqueue(outbound, protocol.ErrorEvent{
				Type:   protocol.TypeErrorEvent,
				Code:   "notification_not_found",
				Detail: "no notification with that id",
			})
		}
	case protocol.ActionClearNotifications:
		s.store.Clear()
	case protocol.ActionTouchSession:
		if err := s.sessions.Touch(control.SessionID); err != nil {
			enqueue(outbound, protocol.ErrorEvent{
				Type:   protocol.TypeErrorEvent,
				Code:   "session_not_found",
				Detail: err.Error(),
			})
		}
	}
}

// enqueue drops when the outbound queue is saturated to keep websocket
// writes single-threaded and non-blocking.
func enqueue(outbound chan<- any, msg any) {
	select {
	case outbound <- msg:
	default:
	}
}

func notificationEvent(n notify.Notification) protocol.NotificationEvent {
	return protocol.NotificationEvent{
		Type:     protocol.TypeNotification,
		ID:       n.ID,
		Title:    n.Title,
		Message:  n.Message,
		Severity: string(n.Severity),
		TSMs:     n.CreatedAt.UnixMilli(),
	}
}

func taskSettledEvent(evt engine.Event) protocol.TaskSettledEvent {
	return protocol.TaskSettledEvent{
		Type:        protocol.TypeTaskSettled,
		TaskID:      int64(evt.TaskID),
		TaskType:    string(evt.Type),
		Description: evt.Description,
		Success:     evt.Success,
		Message:     evt.Message,
		TSMs:        evt.At.UnixMilli(),
	}
}
