package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/numera-app/numera/internal/config"
	"github.com/numera-app/numera/internal/engine"
	"github.com/numera-app/numera/internal/history"
	"github.com/numera-app/numera/internal/notify"
	"github.com/numera-app/numera/internal/session"
	"github.com/numera-app/numera/internal/task"
)

type fakeBackend struct {
	nextID  atomic.Int64
	mu      sync.Mutex
	pingErr error
}

func (f *fakeBackend) StartTask(ctx context.Context, method, path string, payload any) (task.ID, error) {
	return task.ID(f.nextID.Add(1)), nil
}

func (f *fakeBackend) Ping(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pingErr
}

func (f *fakeBackend) setPingErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pingErr = err
}

func newTestServer(t *testing.T) (*httptest.Server, *notify.Store) {
	t.Helper()
	ts, _, store := newTestServerBackend(t)
	return ts, store
}

func newTestServerBackend(t *testing.T) (*httptest.Server, *fakeBackend, *notify.Store) {
	t.Helper()
	cfg := config.Config{
		SessionInactivityTimeout: 2 * time.Minute,
		AllowAnyOrigin:           true,
	}
	sessions := session.NewManager(cfg.SessionInactivityTimeout, nil)
	store := notify.NewStore(nil)
	journal := history.NewJournal(nil)
	eng := engine.New(nil, task.NewRegistry(), journal, nil)
	fb := &fakeBackend{}
	srv := New(cfg, sessions, eng, store, journal, fb, nil)

	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts, fb, store
}

func TestLoginAndLogout(t *testing.T) {
	ts, _ := newTestServer(t)

	body, _ := json.Marshal(map[string]string{"username": "alice"})
	res, err := http.Post(ts.URL+"/v1/session", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("login request error = %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("login status = %d, want %d", res.StatusCode, http.StatusCreated)
	}

	var created map[string]any
	if err := json.NewDecoder(res.Body).Decode(&created); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	sessionID, _ := created["session_id"].(string)
	if sessionID == "" {
		t.Fatalf("missing session_id in login response: %+v", created)
	}

	dup, err := http.Post(ts.URL+"/v1/session", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("duplicate login request error = %v", err)
	}
	dup.Body.Close()
	if dup.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate login status = %d, want %d", dup.StatusCode, http.StatusConflict)
	}

	out, err := http.Post(ts.URL+"/v1/session/"+sessionID+"/logout", "application/json", nil)
	if err != nil {
		t.Fatalf("logout request error = %v", err)
	}
	out.Body.Close()
	if out.StatusCode != http.StatusOK {
		t.Fatalf("logout status = %d, want %d", out.StatusCode, http.StatusOK)
	}
}

func TestStartTaskAndSnapshot(t *testing.T) {
	ts, _ := newTestServer(t)

	body := strings.NewReader(`{"description":"query all balances"}`)
	res, err := http.Post(ts.URL+"/v1/tasks/query_balances", "application/json", body)
	if err != nil {
		t.Fatalf("start task request error = %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusAccepted {
		t.Fatalf("start status = %d, want %d", res.StatusCode, http.StatusAccepted)
	}

	var rec task.Record
	if err := json.NewDecoder(res.Body).Decode(&rec); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	if !rec.ID.Valid() || rec.Type != task.TypeQueryBalances {
		t.Fatalf("unexpected record: %+v", rec)
	}

	dup, err := http.Post(ts.URL+"/v1/tasks/query_balances", "application/json", nil)
	if err != nil {
		t.Fatalf("duplicate start request error = %v", err)
	}
	dup.Body.Close()
	if dup.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate start status = %d, want %d", dup.StatusCode, http.StatusConflict)
	}

	snap, err := http.Get(ts.URL + "/v1/tasks")
	if err != nil {
		t.Fatalf("snapshot request error = %v", err)
	}
	defer snap.Body.Close()
	var listed struct {
		Tasks []task.Record `json:"tasks"`
	}
	if err := json.NewDecoder(snap.Body).Decode(&listed); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if len(listed.Tasks) != 1 || listed.Tasks[0].ID != rec.ID {
		t.Fatalf("snapshot = %+v, want the one started task", listed.Tasks)
	}
}

func TestStartTaskRejectsUnknownType(t *testing.T) {
	ts, _ := newTestServer(t)

	res, err := http.Post(ts.URL+"/v1/tasks/mine_bitcoin", "application/json", nil)
	if err != nil {
		t.Fatalf("request error = %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusNotFound)
	}
}

func TestCancelTask(t *testing.T) {
	ts, _ := newTestServer(t)

	res, err := http.Post(ts.URL+"/v1/tasks/trade_history", "application/json", nil)
	if err != nil {
		t.Fatalf("start request error = %v", err)
	}
	res.Body.Close()

	cancelRes, err := http.Post(ts.URL+"/v1/tasks/trade_history/cancel", "application/json", nil)
	if err != nil {
		t.Fatalf("cancel request error = %v", err)
	}
	cancelRes.Body.Close()
	if cancelRes.StatusCode != http.StatusOK {
		t.Fatalf("cancel status = %d, want %d", cancelRes.StatusCode, http.StatusOK)
	}

	again, err := http.Post(ts.URL+"/v1/tasks/trade_history/cancel", "application/json", nil)
	if err != nil {
		t.Fatalf("second cancel request error = %v", err)
	}
	again.Body.Close()
	if again.StatusCode != http.StatusNotFound {
		t.Fatalf("second cancel status = %d, want %d", again.StatusCode, http.StatusNotFound)
	}
}

func TestNotificationEndpoints(t *testing.T) {
	ts, store := newTestServer(t)

	n := store.Push("Backend error", "eth node timeout", notify.SeverityError)

	res, err := http.Get(ts.URL + "/v1/notifications")
	if err != nil {
		t.Fatalf("list request error = %v", err)
	}
	defer res.Body.Close()
	var listed struct {
		Notifications []notify.Notification `json:"notifications"`
	}
	if err := json.NewDecoder(res.Body).Decode(&listed); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(listed.Notifications) != 1 || listed.Notifications[0].ID != n.ID {
		t.Fatalf("list = %+v", listed.Notifications)
	}

	dis, err := http.Post(fmt.Sprintf("%s/v1/notifications/%d/dismiss", ts.URL, n.ID), "application/json", nil)
	if err != nil {
		t.Fatalf("dismiss request error = %v", err)
	}
	dis.Body.Close()
	if dis.StatusCode != http.StatusOK {
		t.Fatalf("dismiss status = %d, want %d", dis.StatusCode, http.StatusOK)
	}

	missing, err := http.Post(ts.URL+"/v1/notifications/9999/dismiss", "application/json", nil)
	if err != nil {
		t.Fatalf("missing dismiss request error = %v", err)
	}
	missing.Body.Close()
	if missing.StatusCode != http.StatusNotFound {
		t.Fatalf("missing dismiss status = %d, want %d", missing.StatusCode, http.StatusNotFound)
	}
}

func TestStreamPushesNotifications(t *testing.T) {
	ts, store := newTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/stream"
	conn, res, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("ws dial error = %v", err)
	}
	defer conn.Close()
	res.Body.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var hello struct {
		Type string `json:"type"`
		Code string `json:"code"`
	}
	if err := conn.ReadJSON(&hello); err != nil {
		t.Fatalf("ReadJSON() greeting error = %v", err)
	}
	if hello.Type != "system_event" || hello.Code != "stream_connected" {
		t.Fatalf("greeting = %+v", hello)
	}

	// Let the subscription register before pushing.
	time.Sleep(20 * time.Millisecond)
	store.Push("Backend warning", "stale exchange rates", notify.SeverityWarning)

	var evt struct {
		Type     string `json:"type"`
		Title    string `json:"title"`
		Severity string `json:"severity"`
	}
	if err := conn.ReadJSON(&evt); err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	if evt.Type != "notification" || evt.Severity != "warning" {
		t.Fatalf("event = %+v", evt)
	}
}

func TestStreamDismissControl(t *testing.T) {
	ts, store := newTestServer(t)
	n := store.Push("Backend error", "boom", notify.SeverityError)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/stream"
	conn, res, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("ws dial error = %v", err)
	}
	defer conn.Close()
	res.Body.Close()

	msg := fmt.Sprintf(`{"type":"client_control","action":"dismiss_notification","notification_id":%d}`, n.ID)
	if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
		t.Fatalf("WriteMessage() error = %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(store.List()) == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("dismiss control did not remove the notification")
}

func TestReadyzReflectsBackendLiveness(t *testing.T) {
	ts, fb, _ := newTestServerBackend(t)

	res, err := http.Get(ts.URL + "/readyz")
	if err != nil {
		t.Fatalf("readyz request error = %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("readyz status = %d, want %d", res.StatusCode, http.StatusOK)
	}

	fb.setPingErr(errors.New("connection refused"))
	down, err := http.Get(ts.URL + "/readyz")
	if err != nil {
		t.Fatalf("readyz request error = %v", err)
	}
	down.Body.Close()
	if down.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("readyz status with dead backend = %d, want %d", down.StatusCode, http.StatusServiceUnavailable)
	}
}

func TestHealthz(t *testing.T) {
	ts, _ := newTestServer(t)

	res, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("healthz request error = %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("healthz status = %d, want %d", res.StatusCode, http.StatusOK)
	}
	var health map[string]any
	if err := json.NewDecoder(res.Body).Decode(&health); err != nil {
		t.Fatalf("decode healthz: %v", err)
	}
	if health["history_backend"] != "in-memory" {
		t.Fatalf("history_backend = %v, want in-memory", health["history_backend"])
	}
}
