package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"lumen-hq/relay/pkg/agent"
	"lumen-hq/relay/pkg/config"
	"lumen-hq/relay/pkg/engine"
	"lumen-hq/relay/pkg/oai"
	"lumen-hq/relay/pkg/server/middleware"
)

// SessionIDHeader carries the agent session identifier. The request's
// "user" field is the fallback.
const SessionIDHeader = "X-Session-ID"

func (s *Server) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	var req oai.ChatCompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "Invalid JSON in request body.")
		return
	}
	if req.Model == "" {
		badRequest(w, "The model field is required.")
		return
	}
	if len(req.Messages) == 0 {
		badRequest(w, "The messages field must not be empty.")
		return
	}

	start := time.Now()
	outcome := "ok"
	defer func() {
		s.metrics.RecordRequest(req.Model, outcome, time.Since(start).Seconds())
	}()

	var err error
	if agentCfg, isAgent := s.cfg.Agents[req.Model]; isAgent {
		err = s.runAgent(w, r, req, agentCfg)
	} else {
		err = s.runCompletion(w, r, req)
	}
	if err != nil {
		outcome = "error"
		writeError(w, s.logger, err)
	}
}

// runCompletion serves a plain (non-agent) alias.
func (s *Server) runCompletion(w http.ResponseWriter, r *http.Request, req oai.ChatCompletionRequest) error {
	ctx := r.Context()
	opts := engine.RequestOptions{UserKey: middleware.GetUserKey(ctx)}

	route, err := s.router.Resolve(ctx, req.Model)
	if err != nil {
		return err
	}

	if !req.Stream {
		if s.cache != nil {
			if cached, ok := s.cache.Lookup(ctx, req.Model, req); ok {
				writeJSON(w, cached)
				return nil
			}
		}
		resp, err := s.engine.Chat(ctx, route, req, opts)
		if err != nil {
			return err
		}
		if s.cache != nil {
			s.cache.Store(ctx, req.Model, req, resp)
		}
		writeJSON(w, resp)
		return nil
	}

	stream, err := s.engine.ChatStream(ctx, route, req, opts)
	if err != nil {
		return err
	}
	defer stream.Close()

	sse, err := newSSEWriter(w)
	if err != nil {
		return err
	}
	for {
		chunk, recvErr := stream.Recv()
		if recvErr == io.EOF {
			break
		}
		if recvErr != nil {
			// Bytes are on the wire; the broken connection is the signal.
			s.logger.Warn("stream aborted", "model", req.Model, "error", recvErr)
			return nil
		}
		if err := sse.Send(chunk); err != nil {
			s.logger.Debug("client disconnected mid-stream", "model", req.Model)
			return nil
		}
	}
	sse.Done()
	return nil
}

// runAgent dispatches to the alias's reasoning driver. Agents always
// execute as a streaming loop; unary callers get the collected result.
func (s *Server) runAgent(w http.ResponseWriter, r *http.Request, req oai.ChatCompletionRequest, agentCfg config.AgentConfig) error {
	ctx := r.Context()
	driver, ok := s.drivers[req.Model]
	if !ok {
		return errors.New("agent driver not initialized")
	}

	sessionID := r.Header.Get(SessionIDHeader)
	if sessionID == "" {
		sessionID = req.User
	}
	if sessionID != "" && s.session != nil {
		lease, err := s.session.AcquireLease(ctx, sessionID)
		if err != nil {
			return err
		}
		defer lease.Release(ctx)
	}

	run := agent.Run{
		Agent:     req.Model,
		SessionID: sessionID,
		Config:    agentCfg,
		Messages:  req.Messages,
		UserKey:   middleware.GetUserKey(ctx),
	}

	if req.Stream {
		sse, err := newSSEWriter(w)
		if err != nil {
			return err
		}
		if err := driver.Execute(ctx, run, sse.Send); err != nil {
			if !sse.Started() {
				return err
			}
			s.logger.Warn("agent run aborted mid-stream", "agent", req.Model, "error", err)
			return nil
		}
		sse.Done()
		return nil
	}

	// Unary: collect the emitted chunks into one response.
	var content strings.Builder
	finish := oai.FinishReasonStop
	err := driver.Execute(ctx, run, func(chunk oai.ChatCompletionChunk) error {
		for _, choice := range chunk.Choices {
			content.WriteString(choice.Delta.Content)
			if choice.FinishReason != "" {
				finish = choice.FinishReason
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	writeJSON(w, &oai.ChatCompletionResponse{
		ID:      oai.NewChunkID(),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   req.Model,
		Choices: []oai.ChatCompletionChoice{{
			Message:      oai.Message{Role: oai.RoleAssistant, Content: content.String()},
			FinishReason: finish,
		}},
	})
	return nil
}

func (s *Server) handleCancelSession(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	if sessionID == "" {
		badRequest(w, "Session ID is required.")
		return
	}
	if s.session == nil {
		badRequest(w, "Session state is not configured.")
		return
	}
	if err := s.session.Cancel(r.Context(), sessionID); err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, map[string]string{"status": "cancelling", "session_id": sessionID})
}
