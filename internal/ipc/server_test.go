// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reveries-sh/reveries/internal/breaker"
	"github.com/reveries-sh/reveries/internal/consolidation"
	"github.com/reveries-sh/reveries/internal/conversation"
	"github.com/reveries-sh/reveries/internal/database"
	"github.com/reveries-sh/reveries/internal/embeddings"
	"github.com/reveries-sh/reveries/internal/experience"
	"github.com/reveries-sh/reveries/internal/gaps"
	"github.com/reveries-sh/reveries/internal/graph"
	"github.com/reveries-sh/reveries/internal/llm"
	"github.com/reveries-sh/reveries/internal/monologue"
	"github.com/reveries-sh/reveries/internal/selfmodel"
)

// testServer wires a full daemon stack over mocks and serves it on a
// temporary socket
func testServer(t *testing.T, chat llm.Chat) (*Server, string) {
	t.Helper()
	dir := t.TempDir()
	db, err := database.Connect(&database.Config{
		Type:       "sqlite",
		SQLitePath: filepath.Join(dir, "test.db"),
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	embed := &embeddings.MockClient{}
	g := graph.New()
	self, err := selfmodel.NewManager(db)
	require.NoError(t, err)
	encoder := experience.NewEncoder(db, embed)
	cb := breaker.New(db, log, 0.6, 3)

	m := monologue.NewManager(db, g, chat, embed, self, cb, encoder, log, monologue.Options{
		MaxTokensPerCycle:    400,
		IdleInterval:         time.Hour,
		PartnerIdleThreshold: 5 * time.Minute,
		ReachOutCooldown:     30 * time.Minute,
	})
	engine := consolidation.New(db, g, chat, embed, self, log, consolidation.Options{
		MergeThreshold:      0.85,
		HalfLifeDays:        7,
		MinimumSalience:     0.05,
		MinimumLinkStrength: 0.05,
	})
	handler := conversation.NewHandler(g, chat, embed, self, encoder,
		gaps.NewTracker(db), m, log, conversation.Options{
			RetrieveLimit:       5,
			MaxHops:             3,
			DecayPerHop:         0.5,
			ActivationThreshold: 0.01,
			MaxHistoryTurns:     10,
		})

	socketPath := filepath.Join(dir, "test.sock")
	s := NewServer(socketPath, handler, m, engine, g, db, embed, log, func() {})

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.Start(ctx))
	t.Cleanup(func() {
		cancel()
		s.Close()
	})
	return s, socketPath
}

func dial(t *testing.T, socketPath string) (net.Conn, *bufio.Reader) {
	t.Helper()
	conn, err := net.Dial("unix", socketPath)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn, bufio.NewReaderSize(conn, maxMessageSize+4096)
}

func sendRequest(t *testing.T, conn net.Conn, req Request) {
	t.Helper()
	data, err := json.Marshal(req)
	require.NoError(t, err)
	_, err = conn.Write(append(data, '\n'))
	require.NoError(t, err)
}

func readResponse(t *testing.T, r *bufio.Reader) Response {
	t.Helper()
	line, err := r.ReadString('\n')
	require.NoError(t, err)
	var resp Response
	require.NoError(t, json.Unmarshal([]byte(line), &resp))
	return resp
}

func TestStatusOnFreshDaemon(t *testing.T) {
	_, socketPath := testServer(t, &llm.MockChat{})
	conn, r := dial(t, socketPath)

	sendRequest(t, conn, Request{Type: RequestStatus, RequestID: "r1"})
	resp := readResponse(t, r)

	assert.Equal(t, ResponseStatus, resp.Type)
	assert.Equal(t, "r1", resp.RequestID)
	assert.Equal(t, "quiescent", resp.MonologueState)
	assert.GreaterOrEqual(t, resp.UptimeMS, int64(0))
	require.NotNil(t, resp.MemoryStats)
	assert.Zero(t, resp.MemoryStats.EpisodeCount)
	assert.Zero(t, resp.MemoryStats.RawBufferCount)
	assert.Empty(t, resp.LastConsolidation)
}

func TestChatStreamsChunksThenDone(t *testing.T) {
	chat := &llm.MockChat{
		StreamFunc: func(ctx context.Context, system string, messages []llm.Message, onToken func(string) error) error {
			for _, tok := range []string{"Hello ", "there."} {
				if err := onToken(tok); err != nil {
					return err
				}
			}
			return nil
		},
	}
	_, socketPath := testServer(t, chat)
	conn, r := dial(t, socketPath)

	sendRequest(t, conn, Request{Type: RequestChat, RequestID: "c1", Message: "hi"})

	var chunks []string
	for {
		resp := readResponse(t, r)
		require.Equal(t, "c1", resp.RequestID)
		if resp.Type == ResponseChatDone {
			break
		}
		require.Equal(t, ResponseChatChunk, resp.Type)
		chunks = append(chunks, resp.Content)
	}
	assert.Equal(t, "Hello there.", strings.Join(chunks, ""))
}

func TestChatWithoutMessageErrors(t *testing.T) {
	_, socketPath := testServer(t, &llm.MockChat{})
	conn, r := dial(t, socketPath)

	sendRequest(t, conn, Request{Type: RequestChat, RequestID: "c1"})
	resp := readResponse(t, r)
	assert.Equal(t, ResponseError, resp.Type)
	assert.Equal(t, "c1", resp.RequestID)
}

func TestMalformedJSONKeepsConnectionOpen(t *testing.T) {
	_, socketPath := testServer(t, &llm.MockChat{})
	conn, r := dial(t, socketPath)

	_, err := conn.Write([]byte("this is not json\n"))
	require.NoError(t, err)
	resp := readResponse(t, r)
	assert.Equal(t, ResponseError, resp.Type)
	assert.Contains(t, resp.Message, "malformed JSON")

	// the same connection still serves requests
	sendRequest(t, conn, Request{Type: RequestStatus, RequestID: "r2"})
	resp = readResponse(t, r)
	assert.Equal(t, ResponseStatus, resp.Type)
}

func TestOversizedMessageErrorsWithoutDisconnect(t *testing.T) {
	_, socketPath := testServer(t, &llm.MockChat{})
	conn, r := dial(t, socketPath)

	huge := strings.Repeat("x", maxMessageSize+100)
	_, err := conn.Write([]byte(huge + "\n"))
	require.NoError(t, err)

	resp := readResponse(t, r)
	assert.Equal(t, ResponseError, resp.Type)
	assert.Contains(t, resp.Message, "1 MiB")

	sendRequest(t, conn, Request{Type: RequestStatus, RequestID: "r2"})
	resp = readResponse(t, r)
	assert.Equal(t, ResponseStatus, resp.Type)
}

func TestUnknownRequestType(t *testing.T) {
	_, socketPath := testServer(t, &llm.MockChat{})
	conn, r := dial(t, socketPath)

	sendRequest(t, conn, Request{Type: "frobnicate", RequestID: "r1"})
	resp := readResponse(t, r)
	assert.Equal(t, ResponseError, resp.Type)
	assert.Contains(t, resp.Message, "frobnicate")
}

func TestMemorySearch(t *testing.T) {
	s, socketPath := testServer(t, &llm.MockChat{})
	now := time.Now()
	s.graph.AddNode(&graph.Node{
		ID:             "ep1",
		Summary:        "talked about the garden",
		Embedding:      make([]float32, 8),
		Salience:       0.7,
		CreatedAt:      now,
		LastAccessedAt: now,
	})

	conn, r := dial(t, socketPath)
	sendRequest(t, conn, Request{Type: RequestMemorySearch, RequestID: "s1", Query: "garden"})

	resp := readResponse(t, r)
	require.Equal(t, ResponseOK, resp.Type)

	data, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	var results []SearchResult
	require.NoError(t, json.Unmarshal(data, &results))
	require.Len(t, results, 1)
	assert.Equal(t, "ep1", results[0].ID)
	assert.Equal(t, "talked about the garden", results[0].Summary)
}

func TestConsolidateReturnsStats(t *testing.T) {
	_, socketPath := testServer(t, &llm.MockChat{})
	conn, r := dial(t, socketPath)

	sendRequest(t, conn, Request{Type: RequestConsolidate, RequestID: "k1"})
	resp := readResponse(t, r)
	assert.Equal(t, ResponseOK, resp.Type)
	assert.Equal(t, "k1", resp.RequestID)
}

func TestShutdownInvokesCallback(t *testing.T) {
	called := make(chan struct{})
	// build a dedicated server so the shutdown callback is observable
	dir := t.TempDir()
	db, err := database.Connect(&database.Config{
		Type:       "sqlite",
		SQLitePath: filepath.Join(dir, "test.db"),
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	embed := &embeddings.MockClient{}
	g := graph.New()
	self, err := selfmodel.NewManager(db)
	require.NoError(t, err)
	encoder := experience.NewEncoder(db, embed)
	m := monologue.NewManager(db, g, &llm.MockChat{}, embed, self,
		breaker.New(db, log, 0.6, 3), encoder, log, monologue.Options{
			MaxTokensPerCycle: 400,
			IdleInterval:      time.Hour,
			ReachOutCooldown:  30 * time.Minute,
		})
	engine := consolidation.New(db, g, &llm.MockChat{}, embed, self, log, consolidation.Options{
		MergeThreshold: 0.85, HalfLifeDays: 7,
		MinimumSalience: 0.05, MinimumLinkStrength: 0.05,
	})
	handler := conversation.NewHandler(g, &llm.MockChat{}, embed, self, encoder,
		gaps.NewTracker(db), m, log, conversation.Options{MaxHistoryTurns: 10})

	socketPath := filepath.Join(dir, "test.sock")
	s := NewServer(socketPath, handler, m, engine, g, db, embed, log, func() { close(called) })
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.Start(ctx))
	t.Cleanup(func() {
		cancel()
		s.Close()
	})

	conn, r := dial(t, socketPath)
	sendRequest(t, conn, Request{Type: RequestShutdown, RequestID: "q1"})
	resp := readResponse(t, r)
	assert.Equal(t, ResponseOK, resp.Type)

	select {
	case <-called:
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown callback never invoked")
	}
}
