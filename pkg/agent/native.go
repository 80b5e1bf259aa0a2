package agent

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"

	"lumen-hq/relay/pkg/engine"
	"lumen-hq/relay/pkg/oai"
	"lumen-hq/relay/pkg/providers"
)

// toolRetryMessage is appended as a synthetic user turn when the provider
// rejects the model's own tool call, giving the model one chance to
// re-issue it correctly.
const toolRetryMessage = "Your previous tool call was rejected by the " +
	"provider as malformed. Re-issue it with arguments that are valid JSON " +
	"matching the tool's schema exactly."

// iterationLimitNotice closes a run that hit the loop bound without a
// final answer.
const iterationLimitNotice = "\n\n[Reached the reasoning iteration limit " +
	"before completing the task.]"

// NativeDriver runs the provider tool-calling loop: stream a completion,
// execute any tool calls it requests, feed the results back, repeat until
// the model answers in plain text.
type NativeDriver struct {
	deps Deps
}

func (d *NativeDriver) Execute(ctx context.Context, run Run, emit Emit) error {
	msgs := make([]oai.Message, 0, len(run.Messages)+1)
	if run.Config.SystemPrompt != "" {
		msgs = append(msgs, oai.Message{Role: oai.RoleSystem, Content: run.Config.SystemPrompt})
	}
	msgs = append(msgs, run.Messages...)

	var defs []oai.Tool
	toolsEnabled := run.Config.ToolsEnabled == nil || *run.Config.ToolsEnabled
	if toolsEnabled && d.deps.Tools != nil {
		defs = d.deps.Tools.Definitions()
	}

	iterations := 0
	recovered := false
	limit := maxIterations(run.Config)
	defer func() {
		d.deps.Metrics.RecordAgentIterations(run.Agent, iterations)
	}()

	for iterations < limit {
		iterations++

		if cancelled(ctx, d.deps.Session, run.SessionID) {
			d.deps.Session.ClearTask(ctx, run.SessionID)
			return emit(oai.FinishChunk(run.Agent, oai.FinishReasonStop))
		}

		route, err := d.deps.Router.Resolve(ctx, run.Config.Model)
		if err != nil {
			return err
		}
		body := oai.ChatCompletionRequest{Messages: msgs, Stream: true, Tools: defs}

		stream, err := d.deps.Engine.ChatStream(ctx, route, body, engine.RequestOptions{
			UserKey:      run.UserKey,
			DisableTools: !toolsEnabled,
		})
		if err != nil {
			// A provider can reject the model's own previous tool call at
			// validation time. One synthetic user turn usually recovers it.
			if isToolUseFailure(err) && !recovered {
				recovered = true
				d.deps.Logger.Warn("recovering rejected tool call", "agent", run.Agent)
				msgs = append(msgs, oai.Message{Role: oai.RoleUser, Content: toolRetryMessage})
				continue
			}
			return err
		}
		recovered = false

		col := newCollector(run.Agent, emit)
		recvErr := drainStream(stream, col)
		stream.Close()
		if recvErr != nil {
			return recvErr
		}
		if err := col.closeThink(); err != nil {
			return err
		}

		calls := col.toolCalls()
		if len(calls) == 0 {
			// The answer already streamed through the collector.
			return emit(oai.FinishChunk(run.Agent, oai.FinishReasonStop))
		}

		msgs = append(msgs, oai.Message{
			Role:      oai.RoleAssistant,
			Content:   col.content.String(),
			ToolCalls: calls,
		})
		msgs = append(msgs, d.dispatchAll(ctx, run, calls, emit)...)
	}

	if err := emit(textChunk(run.Agent, iterationLimitNotice)); err != nil {
		return err
	}
	return emit(oai.FinishChunk(run.Agent, oai.FinishReasonLength))
}

// dispatchAll runs the requested tool calls in parallel and returns their
// tool-role result messages in call order. Tool failures become
// observations, never driver errors: the model sees them and adapts.
func (d *NativeDriver) dispatchAll(ctx context.Context, run Run, calls []oai.ToolCall, emit Emit) []oai.Message {
	stop := waitingSchedule(run.Agent, run.Config.Waiting, emit)
	defer stop()

	results := make([]string, len(calls))
	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(i int, call oai.ToolCall) {
			defer wg.Done()
			out, err := d.deps.Tools.Dispatch(ctx, call.Function.Name, call.Function.Arguments)
			if err != nil {
				d.deps.Logger.Warn("tool call failed",
					"agent", run.Agent, "tool", call.Function.Name, "error", err)
				out = "Error: " + err.Error()
			}
			results[i] = out
		}(i, call)
	}
	wg.Wait()

	msgs := make([]oai.Message, len(calls))
	for i, call := range calls {
		msgs[i] = oai.Message{
			Role:       oai.RoleTool,
			ToolCallID: call.ID,
			Name:       call.Function.Name,
			Content:    results[i],
		}
	}
	return msgs
}

// drainStream feeds every chunk into the collector until the stream ends.
func drainStream(stream providers.Stream, col *collector) error {
	for {
		chunk, err := stream.Recv()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if err := col.feed(chunk); err != nil {
			return err
		}
	}
}

// isToolUseFailure detects a provider validation rejection caused by the
// model's previous tool call rather than the client's request.
func isToolUseFailure(err error) bool {
	var badReq *providers.BadRequestError
	if !errors.As(err, &badReq) {
		return false
	}
	body := strings.ToLower(badReq.Body + badReq.Message)
	return strings.Contains(body, "tool_use_failed") ||
		strings.Contains(body, "tool_call_failed") ||
		strings.Contains(body, "failed_generation")
}
