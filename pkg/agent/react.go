package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"lumen-hq/relay/pkg/engine"
	"lumen-hq/relay/pkg/oai"
	"lumen-hq/relay/pkg/providers"
)

// reactProtocol is appended to the agent's system prompt. The tag set is
// deliberately tiny; parseTurn tolerates the ways models bend it.
const reactProtocol = `
You work in explicit reasoning turns. In every reply use these tags:

<THOUGHT title="Phase N: short label">your reasoning for this turn</THOUGHT>
<DRAFT>the full current draft of your answer</DRAFT>
<ACTION>{"tool_name": "the_tool", "arguments": {"arg": "value"}}</ACTION>
<FINAL_ANSWER>the complete answer, only when the task is done</FINAL_ANSWER>

Rules:
- Exactly one ACTION or one FINAL_ANSWER per reply, never both.
- The ACTION body must be a JSON object with "tool_name" and "arguments"
  matching the tool's schema.
- After an ACTION you will receive an <OBSERVATION> block with the tool's
  output.
- Keep the DRAFT updated so the task can resume if interrupted.`

// EmptyOutputError means the model produced unparsable output three turns
// in a row and the run cannot make progress.
type EmptyOutputError struct {
	Agent string
}

func (e *EmptyOutputError) Error() string {
	return fmt.Sprintf("agent %q produced no parsable output in three consecutive turns", e.Agent)
}

// formatRetryMessage nudges a model that broke the tag protocol.
const formatRetryMessage = "Your reply did not follow the required tags. " +
	"Respond again using THOUGHT, DRAFT, and exactly one ACTION or FINAL_ANSWER."

// ReActDriver runs the scratchpad protocol for models without reliable
// native tool calling. Each iteration is a unary completion parsed with
// the fuzzy tag parser; tool output returns as an OBSERVATION turn.
type ReActDriver struct {
	deps Deps
}

func (d *ReActDriver) Execute(ctx context.Context, run Run, emit Emit) error {
	system := strings.TrimSpace(run.Config.SystemPrompt) + "\n" + reactProtocol
	if toolList := d.toolList(run); toolList != "" {
		system += "\n\nAvailable tools:\n" + toolList
	}

	msgs := []oai.Message{{Role: oai.RoleSystem, Content: system}}
	msgs = append(msgs, run.Messages...)

	draft, phase := d.resumeTask(ctx, run, &msgs)

	iterations := 0
	emptyTurns := 0
	formatRejects := 0
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

		raw, err := d.complete(ctx, run, msgs)
		if err != nil {
			var badReq *providers.BadRequestError
			if !errors.As(err, &badReq) {
				return err
			}
			// The rejected payload often carries the generation that
			// failed provider-side validation; salvage it when possible.
			if salvaged := salvageGeneration(badReq.Body); salvaged != "" {
				d.deps.Logger.Warn("salvaged rejected generation", "agent", run.Agent)
				raw = salvaged
			} else {
				formatRejects++
				if formatRejects >= 2 {
					return err
				}
				msgs = append(msgs, oai.Message{Role: oai.RoleUser, Content: formatRetryMessage})
				continue
			}
		}

		turn := parseTurn(raw)
		if turn.Empty() {
			text := strings.TrimSpace(raw)
			if text == "" {
				emptyTurns++
				if emptyTurns >= 3 {
					return &EmptyOutputError{Agent: run.Agent}
				}
				msgs = append(msgs, oai.Message{Role: oai.RoleUser, Content: formatRetryMessage})
				continue
			}
			// Nothing parsed from a non-trivial reply: the model ignored
			// the tags, but its prose is still reasoning. Treat it as a
			// thought rather than stalling on format retries.
			turn.Thought = text
		}
		emptyTurns = 0
		formatRejects = 0

		if turn.Thought != "" {
			if p := phaseFromTitle(turn.ThoughtTitle); p > phase {
				phase = p
			}
			if err := emit(textChunk(run.Agent, "<think>"+turn.Thought+"</think>\n\n")); err != nil {
				return err
			}
		}
		if turn.Draft != "" {
			draft = turn.Draft
		}
		d.saveTask(ctx, run, draft, phase)

		if turn.Final != "" {
			if err := emit(textChunk(run.Agent, turn.Final)); err != nil {
				return err
			}
			if run.SessionID != "" && d.deps.Session != nil {
				d.deps.Session.ClearTask(ctx, run.SessionID)
			}
			return emit(oai.FinishChunk(run.Agent, oai.FinishReasonStop))
		}

		msgs = append(msgs, oai.Message{Role: oai.RoleAssistant, Content: raw})
		if turn.ActionTool != "" {
			observation := d.observe(ctx, run, turn, emit)
			msgs = append(msgs, oai.Message{
				Role:    oai.RoleUser,
				Content: "<OBSERVATION>" + observation + "</OBSERVATION>",
			})
			continue
		}
		// Thought or draft only: ask the model to keep going.
		msgs = append(msgs, oai.Message{Role: oai.RoleUser, Content: "Continue."})
	}

	// Out of iterations: the draft is the best answer there is.
	if draft != "" {
		if err := emit(textChunk(run.Agent, draft+iterationLimitNotice)); err != nil {
			return err
		}
	} else if err := emit(textChunk(run.Agent, iterationLimitNotice)); err != nil {
		return err
	}
	return emit(oai.FinishChunk(run.Agent, oai.FinishReasonLength))
}

// complete runs one unary reasoning turn and returns the raw model text.
func (d *ReActDriver) complete(ctx context.Context, run Run, msgs []oai.Message) (string, error) {
	route, err := d.deps.Router.Resolve(ctx, run.Config.Model)
	if err != nil {
		return "", err
	}
	// The scratchpad lives in the text channel: no provider-side tools,
	// and no JSON response mode that would break the tag protocol.
	resp, err := d.deps.Engine.Chat(ctx, route, oai.ChatCompletionRequest{Messages: msgs},
		engine.RequestOptions{
			UserKey:           run.UserKey,
			DisableTools:      true,
			ForceTextResponse: true,
		})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.ContentText(), nil
}

// observe dispatches the turn's action and echoes a short observation to
// the client. Tool failures are observations too; the model decides what
// to do with them.
func (d *ReActDriver) observe(ctx context.Context, run Run, turn parsedTurn, emit Emit) string {
	stop := waitingSchedule(run.Agent, run.Config.Waiting, emit)
	defer stop()

	observation, err := d.deps.Tools.Dispatch(ctx, turn.ActionTool, turn.ActionArgs)
	if err != nil {
		d.deps.Logger.Warn("action failed",
			"agent", run.Agent, "tool", turn.ActionTool, "error", err)
		observation = "Error: " + err.Error()
	}
	echo := observation
	if len(echo) > 200 {
		echo = echo[:200] + "…"
	}
	if emitErr := emit(textChunk(run.Agent, "<OBSERVATION>"+echo+"</OBSERVATION>\n\n")); emitErr != nil {
		d.deps.Logger.Debug("client gone during observation echo", "agent", run.Agent)
	}
	return observation
}

// resumeTask loads persisted draft/phase and, when present, reminds the
// model where the previous turn stopped.
func (d *ReActDriver) resumeTask(ctx context.Context, run Run, msgs *[]oai.Message) (string, int) {
	if run.SessionID == "" || d.deps.Session == nil {
		return "", 0
	}
	state, err := d.deps.Session.LoadTask(ctx, run.SessionID)
	if err != nil || state.Draft == "" {
		return "", 0
	}
	*msgs = append(*msgs, oai.Message{
		Role: oai.RoleUser,
		Content: fmt.Sprintf(
			"Resuming an interrupted task at phase %d. Current draft:\n%s",
			state.Phase, state.Draft),
	})
	return state.Draft, state.Phase
}

func (d *ReActDriver) saveTask(ctx context.Context, run Run, draft string, phase int) {
	if run.SessionID == "" || d.deps.Session == nil || draft == "" {
		return
	}
	if err := d.deps.Session.SaveTask(ctx, run.SessionID, draft, phase); err != nil {
		d.deps.Logger.Warn("draft save failed", "agent", run.Agent, "error", err)
	}
}

// toolList renders the active tools for the system prompt.
func (d *ReActDriver) toolList(run Run) string {
	enabled := run.Config.ToolsEnabled == nil || *run.Config.ToolsEnabled
	if !enabled || d.deps.Tools == nil {
		return ""
	}
	var b strings.Builder
	for _, def := range d.deps.Tools.Definitions() {
		fmt.Fprintf(&b, "- %s", def.Function.Name)
		if def.Function.Description != "" {
			fmt.Fprintf(&b, ": %s", def.Function.Description)
		}
		if len(def.Function.Parameters) > 0 {
			if schema, err := json.Marshal(def.Function.Parameters); err == nil {
				fmt.Fprintf(&b, " (arguments: %s)", schema)
			}
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

var failedGenerationRe = regexp.MustCompile(`(?s)"failed_generation"\s*:\s*("(?:[^"\\]|\\.)*")`)

// salvageGeneration digs the rejected model output out of a provider 400
// body. Providers nest it at different depths, so a JSON walk is tried
// first and a raw regex second.
func salvageGeneration(body string) string {
	var decoded any
	if err := json.Unmarshal([]byte(body), &decoded); err == nil {
		if found := findKey(decoded, "failed_generation"); found != "" {
			return found
		}
	}
	if m := failedGenerationRe.FindStringSubmatch(body); m != nil {
		if unquoted, err := strconv.Unquote(m[1]); err == nil {
			return unquoted
		}
	}
	return ""
}

// findKey walks decoded JSON for the first string value under key.
func findKey(v any, key string) string {
	switch node := v.(type) {
	case map[string]any:
		if s, ok := node[key].(string); ok {
			return s
		}
		for _, child := range node {
			if found := findKey(child, key); found != "" {
				return found
			}
		}
	case []any:
		for _, child := range node {
			if found := findKey(child, key); found != "" {
				return found
			}
		}
	}
	return ""
}
