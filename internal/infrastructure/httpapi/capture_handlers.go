package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/sniaff-suite/sniaff-mitmdump-mcp/internal/usecase"
)

type captureStateDTO struct {
	State    string           `json:"state"`
	File     string           `json:"file"`
	Counters usecase.Counters `json:"counters"`
}

type captureConfigureDTO struct {
	File string `json:"file"`
}

// handleCapture is the runtime endpoint for the capture lifecycle:
// GET returns state, target file and counters; PUT reconfigures the output
// path without losing records already queued.
func (d *Deps) handleCapture(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(captureStateDTO{
			State:    string(d.Capture.State()),
			File:     d.Capture.Path(),
			Counters: d.Capture.Stats(),
		})
	case http.MethodPut, http.MethodPost:
		var in captureConfigureDTO
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			writeError(w, http.StatusBadRequest, "BAD_JSON", "invalid json", nil)
			return
		}
		if strings.TrimSpace(in.File) == "" {
			writeError(w, http.StatusBadRequest, "BAD_VALUE", "file must be a non-empty path", nil)
			return
		}
		if err := d.Capture.Configure(in.File); err != nil {
			writeError(w, http.StatusUnprocessableEntity, "CONFIGURE_FAILED", err.Error(), map[string]any{"file": in.File})
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(captureStateDTO{
			State:    string(d.Capture.State()),
			File:     d.Capture.Path(),
			Counters: d.Capture.Stats(),
		})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}
