package server

import (
	"net/http"
	"sort"
	"time"

	"lumen-hq/relay/pkg/oai"
)

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	created := time.Now().Unix()
	cards := make([]oai.ModelCard, 0, len(s.cfg.Aliases)+len(s.cfg.Agents))

	for _, alias := range s.router.Aliases() {
		cards = append(cards, oai.ModelCard{
			ID:      alias,
			Object:  "model",
			Created: created,
			OwnedBy: "relay",
		})
	}
	for name, agentCfg := range s.cfg.Agents {
		cards = append(cards, oai.ModelCard{
			ID:            name,
			Object:        "model",
			Created:       created,
			OwnedBy:       "relay",
			IsAgent:       true,
			ReasoningMode: agentCfg.Mode,
		})
	}
	sort.Slice(cards, func(i, j int) bool { return cards[i].ID < cards[j].ID })

	writeJSON(w, oai.ModelList{Object: "list", Data: cards})
}
