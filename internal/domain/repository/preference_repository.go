package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"challenge_gateway/internal/common"
	"challenge_gateway/internal/domain/model"
)

// PreferenceRepository persists per-device UI state: panel layouts and the
// MCQ answer sheet of each challenge.
type PreferenceRepository interface {
	GetLayout(ctx context.Context, deviceID, groupID string) (*model.PanelLayout, error)
	SaveLayout(ctx context.Context, deviceID string, layout model.PanelLayout) error
	GetMCQSheet(ctx context.Context, deviceID string, challengeID int64) (*model.MCQSheet, error)
	SaveMCQSheet(ctx context.Context, deviceID string, challengeID int64, sheet model.MCQSheet) error
}

type pgPreferenceRepository struct {
	db *sql.DB
}

func NewPgPreferenceRepository(db *sql.DB) PreferenceRepository {
	return &pgPreferenceRepository{db: db}
}

func layoutKey(groupID string) string { return "layout:" + groupID }

func mcqKey(challengeID int64) string { return fmt.Sprintf("mcq:%d", challengeID) }

func (r *pgPreferenceRepository) get(ctx context.Context, deviceID, key string, dst interface{}) error {
	query := `SELECT value FROM client_preferences WHERE device_id = $1 AND pref_key = $2`
	var raw []byte
	if err := r.db.QueryRowContext(ctx, query, deviceID, key).Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return common.ErrNotFound
		}
		return err
	}
	return json.Unmarshal(raw, dst)
}

func (r *pgPreferenceRepository) put(ctx context.Context, deviceID, key string, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	query := `INSERT INTO client_preferences (device_id, pref_key, value, updated_at)
	          VALUES ($1, $2, $3, NOW())
	          ON CONFLICT (device_id, pref_key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`
	_, err = r.db.ExecContext(ctx, query, deviceID, key, raw)
	return err
}

func (r *pgPreferenceRepository) GetLayout(ctx context.Context, deviceID, groupID string) (*model.PanelLayout, error) {
	var sizes []float64
	if err := r.get(ctx, deviceID, layoutKey(groupID), &sizes); err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("pgPreferenceRepository.GetLayout: %w", err)
	}
	return &model.PanelLayout{GroupID: groupID, Sizes: sizes}, nil
}

func (r *pgPreferenceRepository) SaveLayout(ctx context.Context, deviceID string, layout model.PanelLayout) error {
	if err := r.put(ctx, deviceID, layoutKey(layout.GroupID), layout.Sizes); err != nil {
		return fmt.Errorf("pgPreferenceRepository.SaveLayout: %w", err)
	}
	return nil
}

func (r *pgPreferenceRepository) GetMCQSheet(ctx context.Context, deviceID string, challengeID int64) (*model.MCQSheet, error) {
	var sheet model.MCQSheet
	if err := r.get(ctx, deviceID, mcqKey(challengeID), &sheet); err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("pgPreferenceRepository.GetMCQSheet: %w", err)
	}
	if sheet.Answers == nil {
		sheet.Answers = map[int64]model.MCQAnswer{}
	}
	return &sheet, nil
}

func (r *pgPreferenceRepository) SaveMCQSheet(ctx context.Context, deviceID string, challengeID int64, sheet model.MCQSheet) error {
	if err := r.put(ctx, deviceID, mcqKey(challengeID), sheet); err != nil {
		return fmt.Errorf("pgPreferenceRepository.SaveMCQSheet: %w", err)
	}
	return nil
}
