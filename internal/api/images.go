package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/tahcohcat/vocalize-web/internal/imagen"
	"github.com/tahcohcat/vocalize-web/internal/mediasession"
)

// ImageGenerator is satisfied by *imagen.Generator.
type ImageGenerator interface {
	Generate(ctx context.Context, req imagen.Request) ([]imagen.Prediction, error)
}

type ImageHandler struct {
	generator ImageGenerator
}

func NewImageHandler(generator ImageGenerator) *ImageHandler {
	return &ImageHandler{generator: generator}
}

// POST /api/v1/images/generate - Generate images from a prompt
func (ih *ImageHandler) Generate(w http.ResponseWriter, r *http.Request) {
	var req imagen.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, mediasession.ValidationError("invalid request body"))
		return
	}

	predictions, err := ih.generator.Generate(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"predictions": predictions})
}

func (ih *ImageHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/images/generate", ih.Generate).Methods("POST")
}
