// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package llm provides clients for the conversation and abstraction models.
// Both speak the OpenAI-compatible chat completions protocol; the streaming
// path parses server-sent events token by token.
package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrStopStream may be returned by an OnToken callback to end a stream
// cleanly without surfacing an error to the caller.
var ErrStopStream = errors.New("stop stream")

// Message is a single chat turn
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Chat is the contract the core demands of the conversation model.
type Chat interface {
	// Stream sends a system preamble plus messages and invokes onToken for
	// every content delta, in model order. A callback returning ErrStopStream
	// terminates the stream without error.
	Stream(ctx context.Context, system string, messages []Message, onToken func(string) error) error

	// Complete sends a non-streaming request and returns the full reply.
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// Client implements Chat against an OpenAI-compatible endpoint
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

// NewClient creates a chat client. The streaming path carries no overall
// timeout; the HTTP client's native transport timeout is the contract.
func NewClient(baseURL, apiKey, model string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		model:   model,
		httpClient: &http.Client{
			Transport: &http.Transport{
				ResponseHeaderTimeout: 60 * time.Second,
			},
		},
	}
}

type chatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream"`
}

type chatChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

type chatResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
}

type chatErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Stream sends the conversation to the model and feeds each content delta
// to onToken as it arrives.
func (c *Client) Stream(ctx context.Context, system string, messages []Message, onToken func(string) error) error {
	msgs := make([]Message, 0, len(messages)+1)
	if system != "" {
		msgs = append(msgs, Message{Role: "system", Content: system})
	}
	msgs = append(msgs, messages...)

	resp, err := c.post(ctx, chatRequest{Model: c.model, Messages: msgs, Stream: true})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return readAPIError(resp)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()

		// SSE framing: blank lines separate events, comment lines start
		// with a colon. Only data fields carry chunks.
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}
		data, ok := strings.CutPrefix(line, "data:")
		if !ok {
			continue
		}
		data = strings.TrimSpace(data)
		if data == "[DONE]" {
			return nil
		}

		var chunk chatChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			// Tolerate malformed keep-alive frames
			continue
		}
		for _, choice := range chunk.Choices {
			if choice.Delta.Content == "" {
				continue
			}
			if err := onToken(choice.Delta.Content); err != nil {
				if errors.Is(err, ErrStopStream) {
					return nil
				}
				return err
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("stream read failed: %w", err)
	}
	return nil
}

// Complete sends a non-streaming request and returns the full reply content
func (c *Client) Complete(ctx context.Context, system, prompt string) (string, error) {
	msgs := []Message{}
	if system != "" {
		msgs = append(msgs, Message{Role: "system", Content: system})
	}
	msgs = append(msgs, Message{Role: "user", Content: prompt})

	resp, err := c.post(ctx, chatRequest{Model: c.model, Messages: msgs})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", readAPIError(resp)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("no completion returned")
	}

	return parsed.Choices[0].Message.Content, nil
}

func (c *Client) post(ctx context.Context, reqBody chatRequest) (*http.Response, error) {
	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/chat/completions", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	return resp, nil
}

func readAPIError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	var errResp chatErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		return fmt.Errorf("chat API error: %s", errResp.Error.Message)
	}
	return fmt.Errorf("chat API error: status %d", resp.StatusCode)
}

// MockChat is a mock implementation for testing
type MockChat struct {
	StreamFunc    func(ctx context.Context, system string, messages []Message, onToken func(string) error) error
	CompleteFunc  func(ctx context.Context, system, prompt string) (string, error)
	StreamCalls   int
	CompleteCalls int
}

// Stream calls the mock function, or streams nothing
func (m *MockChat) Stream(ctx context.Context, system string, messages []Message, onToken func(string) error) error {
	m.StreamCalls++
	if m.StreamFunc != nil {
		return m.StreamFunc(ctx, system, messages, onToken)
	}
	return nil
}

// Complete calls the mock function, or returns an empty reply
func (m *MockChat) Complete(ctx context.Context, system, prompt string) (string, error) {
	m.CompleteCalls++
	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, system, prompt)
	}
	return "", nil
}
