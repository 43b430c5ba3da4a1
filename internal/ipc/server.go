// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package ipc serves the Unix-domain socket: newline-delimited JSON,
// bidirectional, many requests in flight per connection, correlated by a
// client-generated request id.
package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/reveries-sh/reveries/internal/consolidation"
	"github.com/reveries-sh/reveries/internal/conversation"
	"github.com/reveries-sh/reveries/internal/embeddings"
	"github.com/reveries-sh/reveries/internal/experience"
	"github.com/reveries-sh/reveries/internal/graph"
	"github.com/reveries-sh/reveries/internal/monologue"
)

// maxMessageSize bounds one request line. Oversized requests get an error
// response; the connection stays open.
const maxMessageSize = 1 << 20

// Server accepts client connections on the daemon socket
type Server struct {
	socketPath string
	log        *slog.Logger

	handler   *conversation.Handler
	monologue *monologue.Manager
	engine    *consolidation.Engine
	graph     *graph.Graph
	db        *gorm.DB
	embed     embeddings.Client

	startedAt time.Time
	shutdown  func()

	listener net.Listener
	connsMu  sync.Mutex
	conns    map[*client]struct{}
	wg       sync.WaitGroup
}

// client is one connected socket with serialized writes. The id only
// exists for log correlation.
type client struct {
	id      string
	conn    net.Conn
	writeMu sync.Mutex

	mu        sync.Mutex
	streaming bool // subscribed to the monologue stream
}

// NewServer wires the IPC surface. shutdown is invoked on a shutdown
// request; it must not block.
func NewServer(socketPath string, handler *conversation.Handler, m *monologue.Manager, engine *consolidation.Engine, g *graph.Graph, db *gorm.DB, embed embeddings.Client, log *slog.Logger, shutdown func()) *Server {
	s := &Server{
		socketPath: socketPath,
		log:        log,
		handler:    handler,
		monologue:  m,
		engine:     engine,
		graph:      g,
		db:         db,
		embed:      embed,
		startedAt:  time.Now(),
		shutdown:   shutdown,
		conns:      make(map[*client]struct{}),
	}
	// proactive messages go to clients watching the monologue stream;
	// a disconnected client simply misses them
	m.OnProactive(s.broadcastProactive)
	return s
}

// Start listens on the socket and serves connections until ctx is done
func (s *Server) Start(ctx context.Context) error {
	if err := os.Remove(s.socketPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove stale socket: %w", err)
	}

	ln, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("failed to listen on socket: %w", err)
	}
	s.listener = ln
	s.log.Info("listening", "socket", s.socketPath)

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	go s.acceptLoop(ctx)
	return nil
}

// Close stops accepting, closes every connection and removes the socket
func (s *Server) Close() {
	if s.listener != nil {
		s.listener.Close()
	}

	s.connsMu.Lock()
	for c := range s.conns {
		c.conn.Close()
	}
	s.connsMu.Unlock()

	s.wg.Wait()
	os.Remove(s.socketPath)
}

func (s *Server) acceptLoop(ctx context.Context) {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.log.Warn("accept failed", "error", err)
			continue
		}

		c := &client{id: uuid.NewString(), conn: conn}
		s.connsMu.Lock()
		s.conns[c] = struct{}{}
		s.connsMu.Unlock()
		s.log.Debug("client connected", "client", c.id)

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.serve(ctx, c)
		}()
	}
}

func (s *Server) serve(ctx context.Context, c *client) {
	defer func() {
		s.connsMu.Lock()
		delete(s.conns, c)
		s.connsMu.Unlock()
		c.conn.Close()
		s.log.Debug("client disconnected", "client", c.id)
	}()

	reader := bufio.NewReader(c.conn)
	var unsubscribe func()
	defer func() {
		if unsubscribe != nil {
			unsubscribe()
		}
	}()

	for {
		line, tooLong, err := readLine(reader, maxMessageSize)
		if err != nil {
			if err != io.EOF && ctx.Err() == nil {
				s.log.Debug("connection read failed", "error", err)
			}
			return
		}
		if tooLong {
			s.send(c, Response{Type: ResponseError, Message: "message exceeds 1 MiB limit"})
			continue
		}
		if len(line) == 0 {
			continue
		}

		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			s.send(c, Response{Type: ResponseError, Message: "malformed JSON: " + err.Error()})
			continue
		}

		switch req.Type {
		case RequestChat:
			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				s.handleChat(ctx, c, req)
			}()
		case RequestStatus:
			s.handleStatus(c, req)
		case RequestConsolidate:
			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				s.handleConsolidate(ctx, c, req)
			}()
		case RequestMonologueStream:
			if unsubscribe == nil {
				unsubscribe = s.subscribeMonologue(c, req)
			}
			c.mu.Lock()
			c.streaming = true
			c.mu.Unlock()
			s.send(c, Response{Type: ResponseOK, RequestID: req.RequestID})
		case RequestMemoryStats:
			s.send(c, Response{Type: ResponseOK, RequestID: req.RequestID, Data: s.memoryStats()})
		case RequestMemorySearch:
			s.handleSearch(c, req)
		case RequestShutdown:
			s.send(c, Response{Type: ResponseOK, RequestID: req.RequestID})
			s.log.Info("shutdown requested over socket")
			s.shutdown()
		default:
			s.send(c, Response{
				Type:      ResponseError,
				RequestID: req.RequestID,
				Message:   fmt.Sprintf("unknown request type %q", req.Type),
			})
		}
	}
}

func (s *Server) handleChat(ctx context.Context, c *client, req Request) {
	if req.Message == "" {
		s.send(c, Response{Type: ResponseError, RequestID: req.RequestID, Message: "chat requires a message"})
		return
	}
	conversationID := req.ConversationID
	if conversationID == "" {
		conversationID = "default"
	}

	err := s.handler.Handle(ctx, req.Message, conversationID, func(chunk string) error {
		return s.send(c, Response{Type: ResponseChatChunk, RequestID: req.RequestID, Content: chunk})
	})
	if err != nil {
		s.send(c, Response{Type: ResponseError, RequestID: req.RequestID, Message: err.Error()})
		return
	}
	s.send(c, Response{Type: ResponseChatDone, RequestID: req.RequestID})
}

func (s *Server) handleStatus(c *client, req Request) {
	stats := s.memoryStats()
	resp := Response{
		Type:           ResponseStatus,
		RequestID:      req.RequestID,
		UptimeMS:       time.Since(s.startedAt).Milliseconds(),
		MonologueState: string(s.monologue.State()),
		MemoryStats:    &stats,
	}
	if last := s.engine.LastRun(); !last.IsZero() {
		resp.LastConsolidation = last.Format(time.RFC3339)
	}
	s.send(c, resp)
}

func (s *Server) handleConsolidate(ctx context.Context, c *client, req Request) {
	if err := s.engine.Run(ctx); err != nil {
		s.send(c, Response{Type: ResponseError, RequestID: req.RequestID, Message: err.Error()})
		return
	}
	s.send(c, Response{Type: ResponseOK, RequestID: req.RequestID, Data: s.memoryStats()})
}

// handleSearch scores every episode by similarity weighted with salience
func (s *Server) handleSearch(c *client, req Request) {
	if req.Query == "" {
		s.send(c, Response{Type: ResponseError, RequestID: req.RequestID, Message: "memory_search requires a query"})
		return
	}

	vec, err := s.embed.Embed(req.Query)
	if err != nil {
		s.send(c, Response{Type: ResponseError, RequestID: req.RequestID, Message: "embedding failed: " + err.Error()})
		return
	}

	neighbors := s.graph.FindNearest(vec, 10)
	results := make([]SearchResult, 0, len(neighbors))
	for _, nb := range neighbors {
		node := s.graph.GetNode(nb.ID)
		if node == nil {
			continue
		}
		results = append(results, SearchResult{
			ID:         node.ID,
			Summary:    node.Summary,
			Topics:     node.Topics,
			Similarity: nb.Similarity,
			Salience:   node.Salience,
			Score:      nb.Similarity * node.Salience,
		})
	}
	s.send(c, Response{Type: ResponseOK, RequestID: req.RequestID, Data: results})
}

func (s *Server) subscribeMonologue(c *client, req Request) func() {
	return s.monologue.Subscribe(func(token string) {
		s.send(c, Response{Type: ResponseMonologueChunk, RequestID: req.RequestID, Content: token})
	})
}

// broadcastProactive delivers a reach-out to every client watching the
// monologue stream
func (s *Server) broadcastProactive(content string) {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	for c := range s.conns {
		c.mu.Lock()
		streaming := c.streaming
		c.mu.Unlock()
		if streaming {
			s.send(c, Response{Type: ResponseProactiveMessage, Content: content})
		}
	}
}

func (s *Server) memoryStats() MemoryStats {
	_, unprocessed, err := experience.Counts(s.db)
	if err != nil {
		s.log.Warn("failed to count experiences", "error", err)
	}
	return MemoryStats{
		RawBufferCount: unprocessed,
		EpisodeCount:   s.graph.NodeCount(),
		LinkCount:      s.graph.LinkCount(),
	}
}

func (s *Server) send(c *client, resp Response) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := c.conn.Write(data); err != nil {
		return err
	}
	return nil
}

// readLine reads one newline-terminated record. When the line exceeds the
// limit it is drained and reported tooLong instead of failing the
// connection.
func readLine(r *bufio.Reader, limit int) (line []byte, tooLong bool, err error) {
	for {
		chunk, err := r.ReadSlice('\n')
		line = append(line, chunk...)

		if err == nil {
			// strip the newline
			line = line[:len(line)-1]
			if len(line) > limit {
				return nil, true, nil
			}
			return line, false, nil
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			if len(line) > limit {
				// drain the rest of the oversized record
				if derr := drainLine(r); derr != nil {
					return nil, false, derr
				}
				return nil, true, nil
			}
			continue
		}
		if err == io.EOF && len(line) > 0 {
			if len(line) > limit {
				return nil, true, nil
			}
			return line, false, nil
		}
		return nil, false, err
	}
}

func drainLine(r *bufio.Reader) error {
	for {
		_, err := r.ReadSlice('\n')
		if err == nil {
			return nil
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		return err
	}
}
