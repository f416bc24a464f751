package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/iabetor/emotts/internal/history"
	"github.com/iabetor/emotts/internal/logger"
)

// SpeechAPI 是服务端分发调用的目标，speech.Service 实现了它。
type SpeechAPI interface {
	SayTextWait(ctx context.Context, text string, wait bool) bool
	IsSpeaking() bool
	StopUtterance() bool
	SetEmotion(name string) bool
	GetEmotion() string
	SetVoice(name string)
	GetVoice() string
	History(limit int) ([]history.Utterance, error)
	Help() string
}

// Server 暴露 /ws 调用端点：客户端发送 {"id","method","params"}，
// 服务端回复 {"id","result","error"}；另外向所有客户端推送 {"event","data"} 事件。
type Server struct {
	addr     string
	api      SpeechAPI
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*wsClient]struct{}
	httpSrv *http.Server

	events chan Event
}

type wsClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsClient) writeJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.conn.WriteJSON(v)
}

// Request 是一次远程调用。
type Request struct {
	ID     json.RawMessage `json:"id,omitempty"`
	Method string          `json:"method"`
	Params Params          `json:"params"`
}

// Params 是所有调用共用的参数集合，各方法只读取自己需要的字段。
type Params struct {
	Text  string `json:"text"`
	Wait  *bool  `json:"wait"`
	Name  string `json:"name"`
	Limit int    `json:"limit"`
}

// Response 是调用结果。
type Response struct {
	ID     json.RawMessage `json:"id,omitempty"`
	Result any             `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// Event 是服务端主动推送的通知，例如状态变化。
type Event struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// UtteranceView 是话语日志的 JSON 表示。
type UtteranceView struct {
	ID         string `json:"id"`
	Text       string `json:"text"`
	Style      string `json:"style"`
	Dialect    string `json:"dialect"`
	Voice      string `json:"voice"`
	Engine     string `json:"engine"`
	Outcome    string `json:"outcome"`
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"duration_ms"`
	CreatedAt  string `json:"created_at"`
}

// New 创建服务，addr 形如 "127.0.0.1:59126"。
func New(addr string, api SpeechAPI) *Server {
	return &Server{
		addr: addr,
		api:  api,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[*wsClient]struct{}),
		events:  make(chan Event, 64),
	}
}

// Handler 返回路由，供 Start 和测试使用。
func (s *Server) Handler(ctx context.Context) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		s.handleWS(ctx, w, r)
	})
	mux.HandleFunc("/healthz", s.handleHealth)
	return mux
}

// Start 启动 HTTP 服务并阻塞到 ctx 取消。
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(ctx),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.mu.Lock()
	s.httpSrv = srv
	s.mu.Unlock()

	go s.broadcastLoop(ctx)
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warnf("[server] 关闭失败: %v", err)
		}
		s.closeClients()
	}()

	logger.Infof("[server] 监听 %s (/ws)", s.addr)
	err := srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Publish 把事件放入广播队列，队列满时丢弃，不会阻塞调用方。
func (s *Server) Publish(event string, data any) {
	select {
	case s.events <- Event{Event: event, Data: data}:
	default:
		logger.Debugf("[server] 事件队列已满，丢弃 %s", event)
	}
}

func (s *Server) broadcastLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-s.events:
			s.broadcast(ev)
		}
	}
}

func (s *Server) broadcast(ev Event) {
	s.mu.RLock()
	clients := make([]*wsClient, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.RUnlock()

	for _, c := range clients {
		if err := c.writeJSON(ev); err != nil {
			logger.Debugf("[server] 推送失败，移除客户端: %v", err)
			s.removeClient(c)
		}
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"speaking": s.api.IsSpeaking(),
		"emotion":  s.api.GetEmotion(),
		"voice":    s.api.GetVoice(),
	})
}

func (s *Server) handleWS(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warnf("[server] websocket 升级失败: %v", err)
		return
	}

	client := &wsClient{conn: conn}
	s.mu.Lock()
	s.clients[client] = struct{}{}
	count := len(s.clients)
	s.mu.Unlock()

	logger.Infof("[server] 新连接 %s (%d 个客户端)", r.RemoteAddr, count)
	go s.handleClient(ctx, client)
}

// handleClient 读取调用并逐个在独立 goroutine 中执行，
// 这样阻塞的 sayText 不会挡住同一连接上的 stopUtterance。
func (s *Server) handleClient(ctx context.Context, client *wsClient) {
	var calls sync.WaitGroup
	defer func() {
		calls.Wait()
		s.removeClient(client)
	}()

	for {
		if ctx.Err() != nil {
			return
		}
		msgType, data, err := client.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debugf("[server] 读取失败: %v", err)
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		var req Request
		if err := json.Unmarshal(data, &req); err != nil {
			client.writeJSON(Response{Error: "请求格式错误: " + err.Error()})
			continue
		}

		calls.Add(1)
		go func() {
			defer calls.Done()
			resp := s.Call(ctx, req)
			if err := client.writeJSON(resp); err != nil {
				logger.Debugf("[server] 回复失败: %v", err)
			}
		}()
	}
}

// Call 执行一次调用。
func (s *Server) Call(ctx context.Context, req Request) Response {
	resp := Response{ID: req.ID}
	result, err := s.dispatch(ctx, req)
	if err != nil {
		resp.Error = err.Error()
		return resp
	}
	resp.Result = result
	return resp
}

func (s *Server) dispatch(ctx context.Context, req Request) (any, error) {
	p := req.Params
	switch req.Method {
	case "sayText":
		return s.api.SayTextWait(ctx, p.Text, true), nil
	case "sayTextWait":
		wait := true
		if p.Wait != nil {
			wait = *p.Wait
		}
		return s.api.SayTextWait(ctx, p.Text, wait), nil
	case "isSpeaking":
		return s.api.IsSpeaking(), nil
	case "stopUtterance":
		return s.api.StopUtterance(), nil
	case "setEmotion":
		return s.api.SetEmotion(p.Name), nil
	case "getEmotion":
		return s.api.GetEmotion(), nil
	case "setVoice":
		if strings.TrimSpace(p.Name) == "" {
			return nil, fmt.Errorf("缺少参数 name")
		}
		s.api.SetVoice(p.Name)
		return s.api.GetVoice(), nil
	case "getVoice":
		return s.api.GetVoice(), nil
	case "history":
		entries, err := s.api.History(p.Limit)
		if err != nil {
			return nil, err
		}
		views := make([]UtteranceView, 0, len(entries))
		for _, u := range entries {
			views = append(views, UtteranceView{
				ID:         u.ID,
				Text:       u.Text,
				Style:      u.Style,
				Dialect:    u.Dialect,
				Voice:      u.Voice,
				Engine:     u.Engine,
				Outcome:    u.Outcome,
				Error:      u.Error,
				DurationMs: u.Duration.Milliseconds(),
				CreatedAt:  u.CreatedAt.Format(time.RFC3339),
			})
		}
		return views, nil
	case "help":
		return s.api.Help(), nil
	}
	return nil, fmt.Errorf("未知方法: %s", req.Method)
}

func (s *Server) removeClient(c *wsClient) {
	s.mu.Lock()
	_, ok := s.clients[c]
	delete(s.clients, c)
	count := len(s.clients)
	s.mu.Unlock()
	if ok {
		c.conn.Close()
		logger.Infof("[server] 连接关闭 (%d 个客户端)", count)
	}
}

func (s *Server) closeClients() {
	s.mu.RLock()
	clients := make([]*wsClient, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.RUnlock()
	for _, c := range clients {
		s.removeClient(c)
	}
}
