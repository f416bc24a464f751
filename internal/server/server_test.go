package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/iabetor/emotts/internal/history"
)

// fakeAPI 模拟语音服务；sayText 会阻塞到 stopUtterance 被调用。
type fakeAPI struct {
	mu       sync.Mutex
	emotion  string
	voice    string
	speaking bool
	stop     chan struct{}
	said     []string
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{emotion: "NONE", voice: "cmu-slt-hsmm", stop: make(chan struct{}, 1)}
}

func (f *fakeAPI) SayTextWait(ctx context.Context, text string, wait bool) bool {
	f.mu.Lock()
	f.said = append(f.said, text)
	f.speaking = true
	f.mu.Unlock()
	if wait {
		select {
		case <-f.stop:
		case <-ctx.Done():
		case <-time.After(5 * time.Second):
		}
		f.mu.Lock()
		f.speaking = false
		f.mu.Unlock()
	}
	return text != ""
}

func (f *fakeAPI) IsSpeaking() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.speaking
}

func (f *fakeAPI) StopUtterance() bool {
	select {
	case f.stop <- struct{}{}:
		return true
	default:
		return false
	}
}

func (f *fakeAPI) SetEmotion(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch strings.ToUpper(name) {
	case "NONE", "STRESS", "ANGER", "CONFUSION", "CUSTOM1":
		f.emotion = strings.ToUpper(name)
		return true
	}
	return false
}

func (f *fakeAPI) GetEmotion() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.emotion
}

func (f *fakeAPI) SetVoice(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.voice = name
}

func (f *fakeAPI) GetVoice() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.voice
}

func (f *fakeAPI) History(limit int) ([]history.Utterance, error) {
	return []history.Utterance{{ID: "u1", Text: "hello", Style: "NONE", Outcome: history.OutcomeCompleted, Duration: 1200 * time.Millisecond}}, nil
}

func (f *fakeAPI) Help() string { return "sayText: ..." }

func startTestServer(t *testing.T, api SpeechAPI) (*Server, *websocket.Conn, string) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	s := New("", api)
	ts := httptest.NewServer(s.Handler(ctx))
	t.Cleanup(ts.Close)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return s, conn, ts.URL
}

type rawResponse struct {
	ID     json.RawMessage `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  string          `json:"error"`
}

func call(t *testing.T, conn *websocket.Conn, msg string) rawResponse {
	t.Helper()
	if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	return read(t, conn)
}

func read(t *testing.T, conn *websocket.Conn) rawResponse {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var resp rawResponse
	if err := conn.ReadJSON(&resp); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	return resp
}

func TestServer_EmotionRoundTrip(t *testing.T) {
	_, conn, _ := startTestServer(t, newFakeAPI())

	resp := call(t, conn, `{"id":1,"method":"setEmotion","params":{"name":"anger"}}`)
	if string(resp.ID) != "1" || string(resp.Result) != "true" {
		t.Fatalf("setEmotion response = %+v", resp)
	}
	resp = call(t, conn, `{"id":"two","method":"getEmotion"}`)
	if string(resp.ID) != `"two"` || string(resp.Result) != `"ANGER"` {
		t.Fatalf("getEmotion response = %+v", resp)
	}
	resp = call(t, conn, `{"id":3,"method":"setEmotion","params":{"name":"bogus"}}`)
	if string(resp.Result) != "false" {
		t.Fatalf("unknown emotion should return false, got %s", resp.Result)
	}
}

func TestServer_Voice(t *testing.T) {
	_, conn, _ := startTestServer(t, newFakeAPI())

	resp := call(t, conn, `{"id":1,"method":"setVoice","params":{"name":"cmu-rms-hsmm"}}`)
	if string(resp.Result) != `"cmu-rms-hsmm"` {
		t.Fatalf("setVoice response = %+v", resp)
	}
	resp = call(t, conn, `{"id":2,"method":"setVoice","params":{}}`)
	if resp.Error == "" {
		t.Fatal("setVoice without name should fail")
	}
}

func TestServer_Errors(t *testing.T) {
	_, conn, _ := startTestServer(t, newFakeAPI())

	resp := call(t, conn, `{"id":1,"method":"dance"}`)
	if !strings.Contains(resp.Error, "dance") {
		t.Errorf("unknown method error = %q", resp.Error)
	}
	resp = call(t, conn, `not json`)
	if resp.Error == "" {
		t.Error("malformed request should produce an error")
	}
}

func TestServer_StopWhileBlockingSay(t *testing.T) {
	api := newFakeAPI()
	_, conn, _ := startTestServer(t, api)

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"id":1,"method":"sayText","params":{"text":"hello"}}`)); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for !api.IsSpeaking() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"id":2,"method":"stopUtterance"}`)); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	first := read(t, conn)
	second := read(t, conn)
	if string(first.ID) != "2" || string(first.Result) != "true" {
		t.Errorf("expected stopUtterance reply first, got %+v", first)
	}
	if string(second.ID) != "1" || string(second.Result) != "true" {
		t.Errorf("expected sayText reply second, got %+v", second)
	}
}

func TestServer_SayTextWaitNonBlocking(t *testing.T) {
	api := newFakeAPI()
	_, conn, _ := startTestServer(t, api)

	resp := call(t, conn, `{"id":1,"method":"sayTextWait","params":{"text":"hi","wait":false}}`)
	if string(resp.Result) != "true" {
		t.Fatalf("sayTextWait response = %+v", resp)
	}
	resp = call(t, conn, `{"id":2,"method":"isSpeaking"}`)
	if string(resp.Result) != "true" {
		t.Errorf("isSpeaking = %s, want true", resp.Result)
	}
}

func TestServer_History(t *testing.T) {
	_, conn, _ := startTestServer(t, newFakeAPI())

	resp := call(t, conn, `{"id":1,"method":"history","params":{"limit":5}}`)
	var views []UtteranceView
	if err := json.Unmarshal(resp.Result, &views); err != nil {
		t.Fatalf("decode history: %v (%s)", err, resp.Result)
	}
	if len(views) != 1 || views[0].ID != "u1" || views[0].DurationMs != 1200 {
		t.Errorf("history = %+v", views)
	}
}

func TestServer_Health(t *testing.T) {
	_, _, base := startTestServer(t, newFakeAPI())

	resp, err := http.Get(base + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz failed: %v", err)
	}
	defer resp.Body.Close()

	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if body["emotion"] != "NONE" || body["speaking"] != false {
		t.Errorf("health = %v", body)
	}
}

func TestServer_PublishEvent(t *testing.T) {
	s, conn, _ := startTestServer(t, newFakeAPI())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.broadcastLoop(ctx)

	// 等待连接注册完成
	call(t, conn, `{"id":0,"method":"isSpeaking"}`)

	s.Publish("state", map[string]string{"from": "Idle", "to": "Compiling"})

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var ev struct {
		Event string            `json:"event"`
		Data  map[string]string `json:"data"`
	}
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read event failed: %v", err)
	}
	if ev.Event != "state" || ev.Data["to"] != "Compiling" {
		t.Errorf("event = %+v", ev)
	}
}
