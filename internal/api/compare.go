package api

import (
	"errors"
	"net/http"

	"github.com/driftguard-ai/driftguard/internal/engine"
)

// handleCompare implements POST /v1/compare: standalone semantic
// similarity between two texts, independent of any stored baseline.
func (d *Dependencies) handleCompare(w http.ResponseWriter, r *http.Request) {
	var req CompareRequest
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}

	result, err := d.Compare.Compare(req.TextA, req.TextB, req.Method, req.IncludeAnalysis)
	if err != nil {
		if errors.Is(err, engine.ErrConfig) {
			writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: err.Error()})
			return
		}
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "comparison failed"})
		return
	}
	writeJSON(w, http.StatusOK, result)
}
