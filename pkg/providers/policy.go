package providers

import (
	"strings"

	"lumen-hq/relay/pkg/oai"
)

// Policy is the per-attempt request shaping applied just before dispatch.
// Values are computed by the engine from the agent configuration and the
// provider's quirks; Apply enforces them on the payload.
type Policy struct {
	// ToolsEnabled exposes tool parameters to the provider. When false,
	// every tool-related field is removed: a request that declares no
	// tools must not steer tool choice or parallelism either.
	ToolsEnabled bool

	// ForceTextResponse pins response_format to plain text. ReAct agents
	// set this: their protocol lives in the text channel and a JSON mode
	// would break the scratchpad.
	ForceTextResponse bool

	// StripParams lists payload fields the target provider rejects.
	StripParams []string
}

// Models that reject parallel tool calls regardless of provider.
var noParallelToolModels = []string{"gpt-oss"}

// Apply enforces the policy on req in place.
func Apply(req *oai.ChatCompletionRequest, p Policy) {
	if !p.ToolsEnabled {
		req.Tools = nil
		req.ToolChoice = nil
		req.ParallelToolCalls = nil
	}
	if p.ForceTextResponse {
		req.ResponseFormat = &oai.ResponseFormat{Type: "text"}
	}
	if req.ParallelToolCalls != nil && rejectsParallelTools(req.Model) {
		req.ParallelToolCalls = nil
	}
	for _, param := range p.StripParams {
		stripParam(req, param)
	}
}

func rejectsParallelTools(model string) bool {
	for _, fragment := range noParallelToolModels {
		if strings.Contains(model, fragment) {
			return true
		}
	}
	return false
}

func stripParam(req *oai.ChatCompletionRequest, param string) {
	switch param {
	case "temperature":
		req.Temperature = nil
	case "top_p":
		req.TopP = nil
	case "max_tokens":
		req.MaxTokens = nil
	case "stop":
		req.Stop = nil
	case "response_format":
		req.ResponseFormat = nil
	case "parallel_tool_calls":
		req.ParallelToolCalls = nil
	case "tools":
		req.Tools = nil
		req.ToolChoice = nil
	case "user":
		req.User = ""
	}
}
