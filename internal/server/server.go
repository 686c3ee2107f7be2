// Package server exposes the bot over HTTP and a websocket for a UI.
package server

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"colorbot/internal/service"
	"colorbot/internal/websocket"
)

type Server struct {
	bot   *service.Bot
	wsHub *websocket.Hub
}

func New(bot *service.Bot, wsHub *websocket.Hub) *Server {
	return &Server{
		bot:   bot,
		wsHub: wsHub,
	}
}

// Handler returns the routed handler wrapped in CORSMiddleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/ws", s.wsHub.HandleWebSocket)
	mux.HandleFunc("GET /ping", PingHandler)
	mux.HandleFunc("GET /config", s.ConfigHandler)

	mux.HandleFunc("POST /script/run", s.ScriptRunHandler)
	mux.HandleFunc("POST /script/check", s.ScriptCheckHandler)
	mux.HandleFunc("POST /script/cancel", s.ScriptCancelHandler)
	mux.HandleFunc("GET /script/state", s.ScriptStateHandler)
	mux.HandleFunc("GET /script/examples", s.ScriptExamplesHandler)
	mux.HandleFunc("GET /script/task/{id}", s.ScriptTaskHandler)

	mux.HandleFunc("POST /monitor/start", s.MonitorStartHandler)
	mux.HandleFunc("POST /monitor/stop", s.MonitorStopHandler)
	mux.HandleFunc("GET /monitor/state", s.MonitorStateHandler)

	mux.HandleFunc("GET /target", s.TargetHandler)
	mux.HandleFunc("POST /target", s.SetTargetHandler)
	mux.HandleFunc("GET /verify", s.VerifyHandler)
	mux.HandleFunc("GET /cursor", s.CursorHandler)
	mux.HandleFunc("GET /color", s.ColorHandler)
	mux.HandleFunc("GET /screenshot", s.ScreenshotHandler)
	mux.HandleFunc("GET /picker", s.PickerHandler)

	mux.HandleFunc("GET /cooldowns", s.CooldownsHandler)
	mux.HandleFunc("POST /cooldowns", s.SetCooldownHandler)

	return CORSMiddleware(mux)
}

// Start serves on the configured address until ctx ends.
func (s *Server) Start(ctx context.Context) error {
	bindAddr := s.bot.Config().Addr()
	srv := &http.Server{
		Addr:              bindAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	hubCtx, stopHub := context.WithCancel(ctx)
	defer stopHub()
	go s.wsHub.Run(hubCtx)

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Server starting on %s", bindAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	log.Printf("Server stopped")
	return nil
}
