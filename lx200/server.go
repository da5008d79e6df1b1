// Package lx200 serves the Meade LX200 command protocol over TCP,
// translating between the wire commands and the mount controller.
package lx200

import (
	"bufio"
	"context"
	"io"
	"log"
	"net"
	"time"

	"github.com/altazimuth/lx200bridge/mount"
)

// DefaultAddr is the listen address planetarium clients expect.
const DefaultAddr = ":11880"

// replyGap is the pause between the multiple replies some commands
// produce; older clients drop back-to-back writes.
const replyGap = 10 * time.Millisecond

type Server struct {
	ctrl *mount.Controller
}

func NewServer(ctrl *mount.Controller) *Server {
	return &Server{ctrl: ctrl}
}

// Listen accepts LX200 clients on addr until the context is canceled.
// It returns once the listener is up; client connections run in their
// own goroutines.
func (s *Server) Listen(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		log.Print("shutdown; closing lx200 socket")
		ln.Close()
	}()
	go func() {
		for ctx.Err() == nil {
			conn, err := ln.Accept()
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				log.Printf("failed to accept: %v", err)
				continue
			}
			go s.handle(ctx, conn)
		}
	}()
	return nil
}

func (s *Server) handle(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-ctx.Done()
		conn.Close()
	}()
	log.Printf("accepted connection from %v", conn.RemoteAddr())

	r := &responder{ctrl: s.ctrl}
	scanner := bufio.NewScanner(conn)
	scanner.Split(scanFrames)
	for scanner.Scan() {
		frame := scanner.Text()
		replies, ok := r.handle(frame)
		if !ok {
			// A bad frame never closes the connection and never
			// touches the mount state.
			log.Printf("%v: ignoring unknown command %q", conn.RemoteAddr(), frame)
			continue
		}
		for i, reply := range replies {
			if i > 0 {
				time.Sleep(replyGap)
			}
			if _, err := io.WriteString(conn, reply); err != nil {
				log.Printf("writing to %v: %v", conn.RemoteAddr(), err)
				return
			}
		}
	}
	if err := scanner.Err(); err != nil {
		log.Printf("reading from %v: %v", conn.RemoteAddr(), err)
	}
}
