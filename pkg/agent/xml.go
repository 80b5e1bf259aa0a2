package agent

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

// Scratchpad tag names. Models reproduce these approximately, so parsing
// is deliberately forgiving: any case, sloppy attributes, and unclosed
// tags (content then runs to the next tag or end of text).
const (
	tagThought = "THOUGHT"
	tagDraft   = "DRAFT"
	tagAction  = "ACTION"
	tagFinal   = "FINAL_ANSWER"
)

// parsedTurn is one model output decoded from the scratchpad protocol.
type parsedTurn struct {
	// Thought is the reasoning text, if any.
	Thought string

	// ThoughtTitle is the THOUGHT tag's title attribute.
	ThoughtTitle string

	// Draft is the updated answer draft, if the model emitted one.
	Draft string

	// ActionTool and ActionArgs describe a requested tool call.
	ActionTool string
	ActionArgs string

	// Final is the final answer, terminating the run.
	Final string
}

// Empty reports whether nothing recognizable was parsed.
func (p *parsedTurn) Empty() bool {
	return p.Thought == "" && p.Draft == "" && p.ActionTool == "" && p.Final == ""
}

var (
	openTagRe  = regexp.MustCompile(`(?is)<\s*(THOUGHT|DRAFT|ACTION|FINAL_ANSWER)\b([^>]*)>`)
	titleRe    = regexp.MustCompile(`(?is)title\s*=\s*"([^"]*)"`)
	toolAttrRe = regexp.MustCompile(`(?is)tool\s*=\s*"([^"]*)"`)
	numberRe   = regexp.MustCompile(`\d+`)
)

// parseTurn extracts the scratchpad tags from raw model output. The last
// occurrence of each tag wins, matching how models restate tags when they
// correct themselves.
func parseTurn(raw string) parsedTurn {
	var turn parsedTurn
	matches := openTagRe.FindAllStringSubmatchIndex(raw, -1)
	for i, m := range matches {
		tag := strings.ToUpper(raw[m[2]:m[3]])
		attrs := raw[m[4]:m[5]]
		bodyStart := m[1]
		bodyEnd := len(raw)
		if i+1 < len(matches) {
			bodyEnd = matches[i+1][0]
		}
		body := raw[bodyStart:bodyEnd]
		body = trimCloseTag(body, tag)

		switch tag {
		case tagThought:
			turn.Thought = body
			if tm := titleRe.FindStringSubmatch(attrs); tm != nil {
				turn.ThoughtTitle = strings.TrimSpace(tm[1])
			}
		case tagDraft:
			turn.Draft = body
		case tagAction:
			turn.ActionTool, turn.ActionArgs = parseAction(attrs, body)
		case tagFinal:
			turn.Final = body
		}
	}
	return turn
}

// parseAction decodes an ACTION tag. The body is a JSON object carrying
// tool_name and arguments; a tool="..." attribute is tolerated too, in
// which case the whole body is the arguments.
func parseAction(attrs, body string) (tool, args string) {
	if tm := toolAttrRe.FindStringSubmatch(attrs); tm != nil {
		return strings.TrimSpace(tm[1]), body
	}
	var envelope struct {
		ToolName  string          `json:"tool_name"`
		Arguments json.RawMessage `json:"arguments"`
	}
	if err := json.Unmarshal([]byte(body), &envelope); err != nil || envelope.ToolName == "" {
		// Unrecognizable action payloads stay in ActionArgs so the
		// caller can decide what to do with them.
		return "", body
	}
	args = "{}"
	if len(envelope.Arguments) > 0 {
		args = string(envelope.Arguments)
	}
	return envelope.ToolName, args
}

// trimCloseTag strips the closing tag (and anything after it) from body,
// tolerating its absence.
func trimCloseTag(body, tag string) string {
	closeRe := regexp.MustCompile(`(?is)</\s*` + tag + `\s*>`)
	if loc := closeRe.FindStringIndex(body); loc != nil {
		body = body[:loc[0]]
	}
	return strings.TrimSpace(body)
}

// phaseFromTitle extracts the reasoning phase from a THOUGHT title like
// "Phase 3: verify results". The highest number in the title wins.
func phaseFromTitle(title string) int {
	phase := 0
	for _, d := range numberRe.FindAllString(title, -1) {
		if n, err := strconv.Atoi(d); err == nil && n > phase {
			phase = n
		}
	}
	return phase
}
