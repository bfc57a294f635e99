package api

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/driftguard-ai/driftguard/internal/store"
)

func (d *Dependencies) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	projectID := r.PathValue("project_id")
	cfg, err := d.Store.GetConfig(r.Context(), projectID)
	if err != nil {
		d.Logger.Error("failed to get config", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to get config"})
		return
	}
	if cfg == nil {
		writeJSON(w, http.StatusNotFound, ErrorResp{Detail: "Config not found."})
		return
	}
	writeJSON(w, http.StatusOK, configToResp(cfg))
}

func (d *Dependencies) handleReplaceConfig(w http.ResponseWriter, r *http.Request) {
	projectID := r.PathValue("project_id")

	var req UpdateConfigReq
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}

	ec := req.EngineConfig
	if ec == nil {
		ec = json.RawMessage(`{}`)
	}

	cfg, err := d.Store.ReplaceConfig(r.Context(), projectID, store.ReplaceConfigParams{
		EngineConfig:       ec,
		ThresholdOverrides: req.ThresholdOverrides,
	})
	if err != nil {
		d.Logger.Error("failed to replace config", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to replace config"})
		return
	}
	if cfg == nil {
		writeJSON(w, http.StatusNotFound, ErrorResp{Detail: "Config not found."})
		return
	}
	writeJSON(w, http.StatusOK, configToResp(cfg))
}

func (d *Dependencies) handleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	projectID := r.PathValue("project_id")

	var req UpdateConfigReq
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}

	params := store.UpdateConfigParams{}
	if req.EngineConfig != nil {
		params.EngineConfig = &req.EngineConfig
	}
	if req.ThresholdOverrides != nil {
		params.ThresholdOverrides = &req.ThresholdOverrides
	}

	cfg, err := d.Store.UpdateConfig(r.Context(), projectID, params)
	if err != nil {
		d.Logger.Error("failed to update config", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to update config"})
		return
	}
	if cfg == nil {
		writeJSON(w, http.StatusNotFound, ErrorResp{Detail: "Config not found."})
		return
	}
	writeJSON(w, http.StatusOK, configToResp(cfg))
}

func configToResp(c *store.AnalysisConfig) ConfigResp {
	ec := c.EngineConfig
	if ec == nil {
		ec = json.RawMessage(`{}`)
	}
	return ConfigResp{
		ID:                 c.ID,
		ProjectID:          c.ProjectID,
		EngineConfig:       ec,
		ThresholdOverrides: c.ThresholdOverrides,
		CreatedAt:          c.CreatedAt,
		UpdatedAt:          c.UpdatedAt,
	}
}
