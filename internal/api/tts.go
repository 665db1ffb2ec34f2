package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/tahcohcat/vocalize-web/internal/logger"
	"github.com/tahcohcat/vocalize-web/internal/mediasession"
	"github.com/tahcohcat/vocalize-web/internal/tts"
)

const ttsTimeout = 30 * time.Second

type TTSHandler struct {
	synth   mediasession.Synthesizer
	catalog mediasession.VoiceCatalog
	logger  *logger.Log
}

func NewTTSHandler(synth mediasession.Synthesizer, catalog mediasession.VoiceCatalog) *TTSHandler {
	return &TTSHandler{
		synth:   synth,
		catalog: catalog,
		logger:  logger.New().Named("tts"),
	}
}

// GET /api/v1/voices - List the synthesizer's voices
func (th *TTSHandler) ListVoices(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), ttsTimeout)
	defer cancel()

	voices, err := th.catalog.ListVoices(ctx)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"voices": voices})
}

// POST /api/v1/tts/synthesize - Synthesize text, answering base64 audio
func (th *TTSHandler) Synthesize(w http.ResponseWriter, r *http.Request) {
	var req mediasession.SynthesisRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, mediasession.ValidationError("invalid request body"))
		return
	}

	req = tts.Normalize(req)
	if err := tts.Validate(req); err != nil {
		writeError(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), ttsTimeout)
	defer cancel()

	resp, err := th.synth.Synthesize(ctx, req)
	if err != nil {
		th.logger.Warn("synthesis failed", zap.String("voice", req.VoiceName), zap.Error(err))
		writeError(w, err)
		return
	}

	w.Header().Set("Cache-Control", "no-cache")
	writeJSON(w, http.StatusOK, resp)
}

func (th *TTSHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/voices", th.ListVoices).Methods("GET")
	r.HandleFunc("/tts/synthesize", th.Synthesize).Methods("POST")
}
