package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"

	"challenge_gateway/internal/common"
	"challenge_gateway/internal/domain/model"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	selectPref = regexp.QuoteMeta(`SELECT value FROM client_preferences WHERE device_id = $1 AND pref_key = $2`)
	upsertPref = regexp.QuoteMeta(`INSERT INTO client_preferences (device_id, pref_key, value, updated_at)`)
)

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return db, mock
}

func TestPreferenceRepositoryLayout(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPgPreferenceRepository(db)
	ctx := context.Background()

	mock.ExpectExec(upsertPref).
		WithArgs("dev-1", "layout:coding-problems", []byte(`[40,60]`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.SaveLayout(ctx, "dev-1", model.PanelLayout{GroupID: "coding-problems", Sizes: []float64{40, 60}}))

	mock.ExpectQuery(selectPref).
		WithArgs("dev-1", "layout:coding-problems").
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow([]byte(`[40,60]`)))
	layout, err := repo.GetLayout(ctx, "dev-1", "coding-problems")
	require.NoError(t, err)
	assert.Equal(t, []float64{40, 60}, layout.Sizes)
}

func TestPreferenceRepositoryNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPgPreferenceRepository(db)

	mock.ExpectQuery(selectPref).WithArgs("dev-1", "mcq:7").WillReturnError(sql.ErrNoRows)
	_, err := repo.GetMCQSheet(context.Background(), "dev-1", 7)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestPreferenceRepositoryMCQSheet(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPgPreferenceRepository(db)
	ctx := context.Background()

	mock.ExpectQuery(selectPref).
		WithArgs("dev-1", "mcq:7").
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow([]byte(`{"answers":{"11":{"question_id":11,"selected_option_id":3,"text_answer":null}},"submitted":true}`)))

	sheet, err := repo.GetMCQSheet(ctx, "dev-1", 7)
	require.NoError(t, err)
	assert.True(t, sheet.Submitted)
	require.Contains(t, sheet.Answers, int64(11))
	assert.Equal(t, int64(3), *sheet.Answers[11].SelectedOptionID)

	mock.ExpectExec(upsertPref).WillReturnError(errors.New("connection reset"))
	err = repo.SaveMCQSheet(ctx, "dev-1", 7, *sheet)
	assert.ErrorContains(t, err, "pgPreferenceRepository.SaveMCQSheet")
}
