package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"lumen-hq/relay/pkg/engine"
	"lumen-hq/relay/pkg/oai"
	"lumen-hq/relay/pkg/server/middleware"
)

// maxAudioUpload bounds transcription uploads. 25 MB matches the common
// provider limit.
const maxAudioUpload = 25 << 20

func (s *Server) handleEmbeddings(w http.ResponseWriter, r *http.Request) {
	var req oai.EmbeddingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "Invalid JSON in request body.")
		return
	}
	if req.Model == "" {
		badRequest(w, "The model field is required.")
		return
	}

	route, err := s.router.Resolve(r.Context(), req.Model)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	resp, err := s.engine.Embeddings(r.Context(), route, req,
		engine.RequestOptions{UserKey: middleware.GetUserKey(r.Context())})
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, resp)
}

func (s *Server) handleSpeech(w http.ResponseWriter, r *http.Request) {
	var req oai.SpeechRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "Invalid JSON in request body.")
		return
	}
	if req.Model == "" || req.Input == "" {
		badRequest(w, "The model and input fields are required.")
		return
	}

	route, err := s.router.Resolve(r.Context(), req.Model)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	audio, contentType, err := s.engine.Speech(r.Context(), route, req,
		engine.RequestOptions{UserKey: middleware.GetUserKey(r.Context())})
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(audio)))
	_, _ = w.Write(audio)
}

func (s *Server) handleTranscriptions(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxAudioUpload); err != nil {
		badRequest(w, "Expected a multipart form with a file field.")
		return
	}
	model := r.FormValue("model")
	if model == "" {
		badRequest(w, "The model field is required.")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		badRequest(w, "The file field is required.")
		return
	}
	defer file.Close()

	route, err := s.router.Resolve(r.Context(), model)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	resp, err := s.engine.Transcribe(r.Context(), route, file, header.Filename,
		engine.RequestOptions{UserKey: middleware.GetUserKey(r.Context())})
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, resp)
}
