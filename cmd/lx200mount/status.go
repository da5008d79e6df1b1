package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/altazimuth/lx200bridge/mount"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

// Server exposes the mount status over HTTP and a WebSocket, with a
// small command vocabulary on the socket.
type Server struct {
	mu   sync.Mutex
	ctrl *mount.Controller

	statusMu   sync.RWMutex
	statusCond *sync.Cond
	status     mount.Status
}

func NewServer() *Server {
	s := &Server{}
	s.statusCond = sync.NewCond(s.statusMu.RLocker())
	return s
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func (s *Server) statusCallback(status mount.Status) {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	s.status = status
	s.statusCond.Broadcast()
}

func (s *Server) StatusHandler(w http.ResponseWriter, r *http.Request) {
	s.statusMu.RLock()
	status := s.status
	s.statusMu.RUnlock()
	w.Header().Set("Content-Type", "application/json")
	data, err := json.Marshal(status)
	if err != nil {
		log.Print(err)
		return
	}
	w.Write(data)
}

type Command struct {
	Command string  `json:"command"`
	RA      float64 `json:"ra"`
	Dec     float64 `json:"dec"`
}

func (s *Server) StatusSocketHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println(err)
		return
	}

	// Read and process incoming messages
	go func() {
		for {
			var msg Command
			if err := conn.ReadJSON(&msg); err != nil {
				cancel()
				conn.Close()
				break
			}
			s.mu.Lock()
			switch msg.Command {
			case "set_target":
				if err := s.ctrl.SlewTo(msg.RA, msg.Dec); err != nil {
					log.Printf("set_target: %v", err)
				}
			case "sync":
				s.ctrl.Sync(msg.RA, msg.Dec)
			case "stop":
				s.ctrl.AbortSlew()
			}
			s.mu.Unlock()
		}
	}()

	go func() {
		<-ctx.Done()
		conn.Close()
		s.statusCond.Broadcast()
	}()

	send := func(status mount.Status) bool {
		data, err := json.Marshal(status)
		if err != nil {
			log.Print(err)
			return false
		}
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return false
		}
		return true
	}

	s.statusMu.RLock()
	last := s.status
	s.statusMu.RUnlock()
	if !send(last) {
		return
	}

	for {
		s.statusMu.RLock()
		for s.status == last && ctx.Err() == nil {
			s.statusCond.Wait()
		}
		status := s.status
		s.statusMu.RUnlock()
		if ctx.Err() != nil {
			return
		}
		if !send(status) {
			return
		}
		last = status
	}
}

// ListenHTTP serves /api/status and /api/ws until the context is
// canceled.
func (s *Server) ListenHTTP(ctx context.Context, addr string) error {
	r := mux.NewRouter()
	r.HandleFunc("/api/status", s.StatusHandler)
	r.HandleFunc("/api/ws", s.StatusSocketHandler)
	srv := &http.Server{
		Handler:     r,
		Addr:        addr,
		ReadTimeout: 15 * time.Second,
	}
	go func() {
		<-ctx.Done()
		srv.Close()
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
