package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// AnalysisConfig represents a row in the analysis_configs table: the
// per-project engine settings (drift mode, anomaly method, fields) plus
// optional per-project threshold overrides.
type AnalysisConfig struct {
	ID                 string
	ProjectID          string
	EngineConfig       json.RawMessage // JSONB — raw bytes
	ThresholdOverrides json.RawMessage // nullable JSONB
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// UpdateConfigParams holds optional fields for partial config updates.
type UpdateConfigParams struct {
	EngineConfig       *json.RawMessage // nil = don't change
	ThresholdOverrides *json.RawMessage // nil = don't change
}

// ReplaceConfigParams holds fields for a full config replace.
type ReplaceConfigParams struct {
	EngineConfig       json.RawMessage
	ThresholdOverrides json.RawMessage // may be nil
}

// GetConfig returns the analysis config for a project, or nil if not found.
func (s *Store) GetConfig(ctx context.Context, projectID string) (*AnalysisConfig, error) {
	var c AnalysisConfig
	err := s.db.QueryRowContext(ctx, `
		SELECT id, project_id, engine_config, COALESCE(threshold_overrides, 'null'::jsonb), created_at, updated_at
		FROM analysis_configs WHERE project_id = $1`, projectID,
	).Scan(&c.ID, &c.ProjectID, &c.EngineConfig, &c.ThresholdOverrides,
		&c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("GetConfig: %w", err)
	}
	return &c, nil
}

// UpdateConfig applies a partial update to a config. Only non-nil fields are changed.
func (s *Store) UpdateConfig(ctx context.Context, projectID string, params UpdateConfigParams) (*AnalysisConfig, error) {
	var c AnalysisConfig
	err := s.db.QueryRowContext(ctx, `
		UPDATE analysis_configs SET
			engine_config       = COALESCE($2, engine_config),
			threshold_overrides = COALESCE($3, threshold_overrides),
			updated_at          = now()
		WHERE project_id = $1
		RETURNING id, project_id, engine_config, COALESCE(threshold_overrides, 'null'::jsonb), created_at, updated_at`,
		projectID, nullableJSON(params.EngineConfig), nullableJSON(params.ThresholdOverrides),
	).Scan(&c.ID, &c.ProjectID, &c.EngineConfig, &c.ThresholdOverrides,
		&c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("UpdateConfig: %w", err)
	}
	return &c, nil
}

// ReplaceConfig fully replaces a project's analysis configuration.
func (s *Store) ReplaceConfig(ctx context.Context, projectID string, params ReplaceConfigParams) (*AnalysisConfig, error) {
	ec := params.EngineConfig
	if ec == nil {
		ec = json.RawMessage(`{}`)
	}

	var c AnalysisConfig
	err := s.db.QueryRowContext(ctx, `
		UPDATE analysis_configs SET
			engine_config       = $2,
			threshold_overrides = $3,
			updated_at          = now()
		WHERE project_id = $1
		RETURNING id, project_id, engine_config, COALESCE(threshold_overrides, 'null'::jsonb), created_at, updated_at`,
		projectID, ec, nullableRaw(params.ThresholdOverrides),
	).Scan(&c.ID, &c.ProjectID, &c.EngineConfig, &c.ThresholdOverrides,
		&c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ReplaceConfig: %w", err)
	}
	return &c, nil
}

// nullableJSON returns nil (SQL NULL) if the pointer is nil, otherwise the raw bytes.
func nullableJSON(v *json.RawMessage) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

// nullableRaw returns nil (SQL NULL) if the raw message is nil or empty.
func nullableRaw(v json.RawMessage) interface{} {
	if v == nil {
		return nil
	}
	return v
}
