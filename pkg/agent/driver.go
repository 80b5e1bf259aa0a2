package agent

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"lumen-hq/relay/pkg/config"
	"lumen-hq/relay/pkg/engine"
	"lumen-hq/relay/pkg/oai"
	"lumen-hq/relay/pkg/router"
	"lumen-hq/relay/pkg/session"
	"lumen-hq/relay/pkg/telemetry/metrics"
	"lumen-hq/relay/pkg/tools"
)

// DefaultMaxIterations bounds the reasoning loop when the agent
// configuration does not.
const DefaultMaxIterations = 10

// Emit delivers one chunk to the client stream. A non-nil error means the
// client is gone and the run should stop.
type Emit func(chunk oai.ChatCompletionChunk) error

// Deps are the collaborators shared by every driver.
type Deps struct {
	Engine  *engine.Engine
	Router  *router.Router
	Tools   *tools.Orchestrator
	Session *session.Store
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// Run is one agent invocation.
type Run struct {
	// Agent is the public agent alias, used for logs and metrics.
	Agent string

	// SessionID scopes leases and task state. Empty disables both.
	SessionID string

	// Config is the agent's declarative configuration.
	Config config.AgentConfig

	// Messages is the client conversation.
	Messages []oai.Message

	// UserKey is the caller's own upstream credential, if supplied.
	UserKey string
}

// Driver executes one agent run, emitting chunks as they become available.
type Driver interface {
	Execute(ctx context.Context, run Run, emit Emit) error
}

// NewDriver selects the driver for a reasoning mode. Configuration
// validation guarantees the mode is known before requests arrive.
func NewDriver(mode string, deps Deps) (Driver, error) {
	if deps.Metrics == nil {
		deps.Metrics = metrics.New()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	switch mode {
	case config.ReasoningModeNative:
		return &NativeDriver{deps: deps}, nil
	case config.ReasoningModeReAct:
		return &ReActDriver{deps: deps}, nil
	default:
		return nil, fmt.Errorf("agent: unknown reasoning mode %q", mode)
	}
}

// maxIterations resolves the loop bound for a run.
func maxIterations(cfg config.AgentConfig) int {
	if cfg.MaxIterations > 0 {
		return cfg.MaxIterations
	}
	return DefaultMaxIterations
}

// textChunk builds a plain content chunk attributed to the agent alias.
func textChunk(agent, text string) oai.ChatCompletionChunk {
	return oai.TextChunk(agent, text)
}

// cancelled checks the session's cancel flag between iterations.
func cancelled(ctx context.Context, store *session.Store, sessionID string) bool {
	if store == nil || sessionID == "" {
		return false
	}
	state, err := store.LoadTask(ctx, sessionID)
	return err == nil && state.Cancelled
}

// waitingSchedule streams reassurance messages while a tool call runs
// long. It returns a stop function; stopping before the first delay means
// nothing is emitted. When any waiting text was streamed, stop emits one
// "\n\n" separator so the model's next output starts on a fresh line.
func waitingSchedule(agent string, schedule []config.WaitingMessage, emit Emit) (stop func()) {
	if len(schedule) == 0 {
		return func() {}
	}
	done := make(chan struct{})
	emitted := make(chan bool, 1)
	go func() {
		count := 0
		defer func() { emitted <- count > 0 }()
		start := time.Now()
		for _, w := range schedule {
			wait := w.After - time.Since(start)
			if wait < 0 {
				wait = 0
			}
			select {
			case <-done:
				return
			case <-time.After(wait):
				text := w.Text
				if count > 0 {
					text = "\n" + text
				}
				if emit(textChunk(agent, text)) != nil {
					return
				}
				count++
			}
		}
	}()
	var once sync.Once
	return func() {
		once.Do(func() {
			close(done)
			if <-emitted {
				emit(textChunk(agent, "\n\n"))
			}
		})
	}
}
