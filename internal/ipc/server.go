// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/smart-refresh/daemon/internal/log"
)

// connRateLimit bounds how many requests a single connection may issue per
// second; a misbehaving or malicious frontend client gets throttled rather
// than allowed to spin the engine lock.
const (
	connRateLimit = rate.Limit(50)
	connBurst     = 20
)

// Server accepts connections on a Unix domain socket and serves the
// newline-delimited JSON command protocol.
type Server struct {
	path string
	deps Deps

	mu       sync.Mutex
	listener net.Listener
}

// NewServer constructs a Server bound to path (not yet listening).
func NewServer(path string, deps Deps) *Server {
	return &Server{path: path, deps: deps}
}

// Listen removes any stale socket file and binds the listener. It must be
// called before Run, and its error is fatal to startup.
func (s *Server) Listen() error {
	if err := removeStaleSocket(s.path); err != nil {
		return fmt.Errorf("ipc: removing stale socket: %w", err)
	}

	ln, err := net.Listen("unix", s.path)
	if err != nil {
		return fmt.Errorf("ipc: bind %s: %w", s.path, err)
	}

	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	return nil
}

func removeStaleSocket(path string) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return os.Remove(path)
}

// Run accepts connections until ctx is canceled or the listener errors.
// Each connection is served on its own goroutine; Run itself blocks.
func (s *Server) Run(ctx context.Context) error {
	logger := log.WithComponent("ipc")

	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()
	if ln == nil {
		return errors.New("ipc: Listen must be called before Run")
	}

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logger.Error().Err(err).Msg("error accepting IPC connection")
			return err
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			connID := uuid.NewString()
			if err := s.handleConnection(ctx, conn, connID); err != nil {
				logger.Warn().Str(log.FieldConnID, connID).Err(err).Msg("error handling IPC connection")
			}
		}()
	}
}

// Close closes the listener and removes the socket file.
func (s *Server) Close() error {
	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()

	if ln != nil {
		_ = ln.Close()
	}
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (s *Server) handleConnection(ctx context.Context, conn net.Conn, connID string) error {
	defer conn.Close()

	// Closing the connection on cancellation unblocks a pending read.
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	limiter := rate.NewLimiter(connRateLimit, connBurst)
	reader := bufio.NewReader(conn)

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		line, err := reader.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			return err
		}

		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}

		if err := limiter.Wait(ctx); err != nil {
			return err
		}

		response := s.handleLine(trimmed, connID)

		encoded, err := json.Marshal(response)
		if err != nil {
			return fmt.Errorf("ipc: encode response: %w", err)
		}
		if _, err := conn.Write(append(encoded, '\n')); err != nil {
			return err
		}
	}
}

func (s *Server) handleLine(line, connID string) any {
	var req request
	if err := json.Unmarshal([]byte(line), &req); err != nil {
		log.WithComponent("ipc").Warn().Str(log.FieldConnID, connID).Err(err).Msg("invalid IPC request")
		return map[string]string{"error": fmt.Sprintf("invalid command: %v", err)}
	}
	return s.deps.Handle(req)
}
