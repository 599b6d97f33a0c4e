// Package dashboard 是展示层协作方：通过 HTTP/WebSocket 对外提供
// 只读组合快照与分类日志流，并接收 start/stop/trim 三个命令。
// 它从不触碰交易状态，只调用引擎暴露的命令方法。
package dashboard

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"rit-market-maker/internal/store"
)

// Controller 引擎对展示层暴露的命令面。
type Controller interface {
	Start(ctx context.Context) error
	Stop() error
	RequestTrim()
}

type Config struct {
	Addr         string
	PushInterval time.Duration
}

// Server 展示层服务。
type Server struct {
	cfg      Config
	store    *store.Store
	ctrl     Controller
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

// push 推送给 WebSocket 订阅者的一帧。
type push struct {
	Snapshot store.Snapshot   `json:"snapshot"`
	Logs     []store.LogEntry `json:"logs,omitempty"`
}

func New(cfg Config, st *store.Store, ctrl Controller, logger *zap.Logger) *Server {
	if cfg.PushInterval <= 0 {
		cfg.PushInterval = 200 * time.Millisecond
	}
	return &Server{
		cfg:    cfg,
		store:  st,
		ctrl:   ctrl,
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Run 启动 HTTP 服务并随 ctx 取消而优雅关闭。
func (s *Server) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/commands/start", s.command("start"))
	mux.HandleFunc("/commands/stop", s.command("stop"))
	mux.HandleFunc("/commands/trim", s.command("trim"))

	srv := &http.Server{Addr: s.cfg.Addr, Handler: mux}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.store.Latest())
}

// command 把展示层按钮映射为引擎命令。
func (s *Server) command(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var err error
		switch name {
		case "start":
			err = s.ctrl.Start(context.Background())
		case "stop":
			err = s.ctrl.Stop()
		case "trim":
			s.ctrl.RequestTrim()
		}
		if err != nil {
			s.logger.Warn("command failed", zap.String("command", name), zap.Error(err))
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// handleWS 以固定间隔向订阅者推送快照与新日志行。
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// 读循环只用于感知对端关闭
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(s.cfg.PushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			frame := push{
				Snapshot: s.store.Latest(),
				Logs:     s.store.DrainLogs(64),
			}
			if err := conn.WriteJSON(frame); err != nil {
				return
			}
		}
	}
}
