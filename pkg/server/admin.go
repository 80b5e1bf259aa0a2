package server

import (
	"encoding/json"
	"net/http"
	"sort"
)

// adminTool is one row in the admin tool listing, covering both builtin
// natives and MCP-discovered tools.
type adminTool struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Source      string `json:"source"`
	Server      string `json:"server,omitempty"`
	Enabled     bool   `json:"enabled"`
	Online      bool   `json:"online"`
}

func (s *Server) handleKeyStatus(w http.ResponseWriter, r *http.Request) {
	if s.pool == nil {
		writeJSON(w, map[string]any{"pools": []any{}})
		return
	}
	status := s.pool.Status()
	sort.Slice(status, func(i, j int) bool { return status[i].Provider < status[j].Provider })
	writeJSON(w, map[string]any{"pools": status})
}

func (s *Server) handleMCPServers(w http.ResponseWriter, r *http.Request) {
	if s.mcp == nil {
		writeJSON(w, map[string]any{"servers": []any{}})
		return
	}
	writeJSON(w, map[string]any{"servers": s.mcp.Servers()})
}

func (s *Server) handleListTools(w http.ResponseWriter, r *http.Request) {
	var rows []adminTool
	for _, native := range s.natives {
		rows = append(rows, adminTool{
			Name:        native.Name(),
			Description: native.Description(),
			Source:      "native",
			Enabled:     s.toolToggles == nil || s.toolToggles.Enabled(native.Name()),
			Online:      true,
		})
	}
	if s.mcp != nil {
		for _, tool := range s.mcp.Tools() {
			rows = append(rows, adminTool{
				Name:        tool.Name,
				Description: tool.Description,
				Source:      "mcp",
				Server:      tool.Server,
				Enabled:     tool.Enabled,
				Online:      tool.Online,
			})
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Name < rows[j].Name })
	writeJSON(w, map[string]any{"tools": rows})
}

func (s *Server) handleToggleTool(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	var body struct {
		Enabled *bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Enabled == nil {
		badRequest(w, `Expected a JSON body like {"enabled": false}.`)
		return
	}

	// MCP tools first; unknown there may still be a native toggle.
	if s.mcp != nil && s.isMCPTool(name) {
		if err := s.mcp.SetToolEnabled(name, *body.Enabled); err != nil {
			writeError(w, s.logger, err)
			return
		}
		writeJSON(w, map[string]any{"name": name, "enabled": *body.Enabled})
		return
	}
	if s.toolToggles != nil && s.isNative(name) {
		if err := s.toolToggles.SetEnabled(name, *body.Enabled); err != nil {
			writeError(w, s.logger, err)
			return
		}
		writeJSON(w, map[string]any{"name": name, "enabled": *body.Enabled})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusNotFound)
	_ = json.NewEncoder(w).Encode(errorResponse{Error: errorBody{
		Message: "No tool named " + name + ".",
		Type:    "invalid_request_error",
		Code:    "tool_not_found",
	}})
}

func (s *Server) isMCPTool(name string) bool {
	for _, tool := range s.mcp.Tools() {
		if tool.Name == name {
			return true
		}
	}
	return false
}

func (s *Server) isNative(name string) bool {
	for _, native := range s.natives {
		if native.Name() == name {
			return true
		}
	}
	return false
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	// Per-provider credential readiness, probed without consuming a key.
	providers := make(map[string]bool, len(s.cfg.Providers))
	if s.pool != nil {
		for name := range s.cfg.Providers {
			_, ok := s.pool.VerificationKey(name)
			providers[name] = ok
		}
	}
	writeJSON(w, map[string]any{
		"status":    "ok",
		"providers": providers,
	})
}
