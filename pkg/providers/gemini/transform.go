package gemini

import (
	"context"
	"encoding/json"
	"strings"

	"lumen-hq/relay/pkg/oai"
)

// placeholderTurn keeps the contents list valid when the conversation does
// not start or end with a user turn, which Gemini requires.
const placeholderTurn = "..."

// buildRequest translates an OpenAI-shaped request into a Gemini
// generateContent body. Thought signatures stored for earlier tool calls
// are reattached here.
func (a *Adapter) buildRequest(ctx context.Context, body oai.ChatCompletionRequest) generateRequest {
	req := generateRequest{
		GenerationConfig: buildGenerationConfig(body),
		Tools:            buildTools(body.Tools),
	}

	// Map tool call ids to function names; functionResponse parts must
	// name the function, but the OpenAI tool message only carries the id.
	callNames := make(map[string]string)
	for _, msg := range body.Messages {
		for _, call := range msg.ToolCalls {
			callNames[call.ID] = call.Function.Name
		}
	}

	var system []string
	for _, msg := range body.Messages {
		switch msg.Role {
		case oai.RoleSystem:
			system = append(system, msg.ContentText())
		case oai.RoleAssistant:
			req.Contents = append(req.Contents, a.assistantContent(ctx, msg))
		case oai.RoleTool:
			req.Contents = append(req.Contents, toolContent(msg, callNames))
		default:
			req.Contents = append(req.Contents, userContent(msg))
		}
	}
	if len(system) > 0 {
		req.SystemInstruction = &content{
			Parts: []part{{Text: strings.Join(system, "\n\n")}},
		}
	}

	if len(req.Contents) == 0 || req.Contents[0].Role != "user" {
		req.Contents = append([]content{{
			Role:  "user",
			Parts: []part{{Text: placeholderTurn}},
		}}, req.Contents...)
	}
	if last := req.Contents[len(req.Contents)-1]; last.Role == "model" {
		req.Contents = append(req.Contents, content{
			Role:  "user",
			Parts: []part{{Text: placeholderTurn}},
		})
	}
	return req
}

func (a *Adapter) assistantContent(ctx context.Context, msg oai.Message) content {
	c := content{Role: "model"}

	text := msg.ContentText()
	signature, text := extractSignature(text)
	if text != "" {
		c.Parts = append(c.Parts, part{Text: text})
	}

	for i, call := range msg.ToolCalls {
		args := map[string]any{}
		if call.Function.Arguments != "" {
			// A model that emitted unparsable arguments still gets its
			// call echoed; Gemini treats empty args as no arguments.
			_ = json.Unmarshal([]byte(call.Function.Arguments), &args)
		}
		p := part{FunctionCall: &functionCall{Name: call.Function.Name, Args: args}}
		if stored := a.signatures.load(ctx, call.ID); stored != "" {
			p.ThoughtSignature = stored
		} else if i == 0 && signature != "" {
			p.ThoughtSignature = signature
		}
		c.Parts = append(c.Parts, p)
	}
	if len(c.Parts) == 0 {
		c.Parts = []part{{Text: placeholderTurn}}
	}
	return c
}

func toolContent(msg oai.Message, callNames map[string]string) content {
	name := callNames[msg.ToolCallID]
	if name == "" {
		name = msg.Name
	}

	response := map[string]any{}
	text := msg.ContentText()
	if err := json.Unmarshal([]byte(text), &response); err != nil || len(response) == 0 {
		response = map[string]any{"result": text}
	}
	return content{
		Role:  "user",
		Parts: []part{{FunctionResponse: &functionResponse{Name: name, Response: response}}},
	}
}

func userContent(msg oai.Message) content {
	c := content{Role: "user"}
	parts, ok := msg.Content.([]any)
	if !ok {
		return content{Role: "user", Parts: []part{{Text: msg.ContentText()}}}
	}
	for _, item := range parts {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		switch m["type"] {
		case "text":
			if text, ok := m["text"].(string); ok {
				c.Parts = append(c.Parts, part{Text: text})
			}
		case "image_url":
			if p, ok := imagePart(m); ok {
				c.Parts = append(c.Parts, p)
			}
		}
	}
	if len(c.Parts) == 0 {
		c.Parts = []part{{Text: placeholderTurn}}
	}
	return c
}

// imagePart converts an OpenAI image_url part: inline data URLs become
// inlineData blobs, remote URLs become fileData references.
func imagePart(m map[string]any) (part, bool) {
	imageURL, ok := m["image_url"].(map[string]any)
	if !ok {
		return part{}, false
	}
	rawURL, _ := imageURL["url"].(string)
	if rest, ok := strings.CutPrefix(rawURL, "data:"); ok {
		mimeType, payload, found := strings.Cut(rest, ";base64,")
		if !found {
			return part{}, false
		}
		return part{InlineData: &blob{MimeType: mimeType, Data: payload}}, true
	}
	if rawURL == "" {
		return part{}, false
	}
	return part{FileData: &fileData{FileURI: rawURL}}, true
}

func buildTools(tools []oai.Tool) []tool {
	if len(tools) == 0 {
		return nil
	}
	declarations := make([]functionDeclaration, 0, len(tools))
	for _, t := range tools {
		declarations = append(declarations, functionDeclaration{
			Name:        t.Function.Name,
			Description: t.Function.Description,
			Parameters:  t.Function.Parameters,
		})
	}
	return []tool{{FunctionDeclarations: declarations}}
}

func buildGenerationConfig(body oai.ChatCompletionRequest) *generationConfig {
	if body.Temperature == nil && body.TopP == nil && body.MaxTokens == nil && len(body.Stop) == 0 {
		return nil
	}
	return &generationConfig{
		Temperature:     body.Temperature,
		TopP:            body.TopP,
		MaxOutputTokens: body.MaxTokens,
		StopSequences:   body.Stop,
	}
}

// mapFinishReason translates Gemini finish reasons to the OpenAI wire.
func mapFinishReason(reason string, sawToolCall bool) string {
	switch reason {
	case "":
		return ""
	case "STOP":
		if sawToolCall {
			return oai.FinishReasonToolCalls
		}
		return oai.FinishReasonStop
	case "MAX_TOKENS":
		return oai.FinishReasonLength
	case "SAFETY", "RECITATION", "BLOCKLIST", "PROHIBITED_CONTENT":
		return oai.FinishReasonContentFilter
	default:
		return oai.FinishReasonStop
	}
}
