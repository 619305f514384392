package repository

import (
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	apperrors "github.com/nexusrag/backend-go/internal/errors"
	"github.com/nexusrag/backend-go/internal/models"
)

func newMockRepo(t *testing.T) (*DocumentRepository, sqlmock.Sqlmock) {
	t.Helper()

	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{
		Conn:                 sqlDB,
		PreferSimpleProtocol: true,
	}), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	return NewDocumentRepository(db), mock
}

func TestDocumentRepository_GetByID(t *testing.T) {
	repo, mock := newMockRepo(t)

	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"id", "name", "storage_key", "page_count", "chunk_count",
		"size_bytes", "status", "progress", "error_message", "created_at", "updated_at",
	}).AddRow("doc-1", "report.pdf", "doc-1.pdf", 12, 48, int64(1024),
		models.StatusReady, 100, "", now, now)

	mock.ExpectQuery(`SELECT \* FROM "documents" WHERE id = \$1`).
		WithArgs("doc-1", 1).
		WillReturnRows(rows)

	doc, err := repo.GetByID("doc-1")
	require.NoError(t, err)
	assert.Equal(t, "report.pdf", doc.Name)
	assert.Equal(t, 12, doc.PageCount)
	assert.Equal(t, models.StatusReady, doc.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentRepository_GetByID_NotFound(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`SELECT \* FROM "documents"`).
		WithArgs("missing", 1).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.GetByID("missing")
	require.Error(t, err)

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.ErrCodeNotFound, appErr.Code)
}

func TestDocumentRepository_List(t *testing.T) {
	repo, mock := newMockRepo(t)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "name", "status", "created_at", "updated_at"}).
		AddRow("doc-2", "later.pdf", models.StatusReady, now, now).
		AddRow("doc-1", "earlier.pdf", models.StatusProcessing, now.Add(-time.Hour), now)

	mock.ExpectQuery(`SELECT \* FROM "documents" ORDER BY created_at DESC`).
		WillReturnRows(rows)

	docs, err := repo.List()
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "later.pdf", docs[0].Name)
}

func TestDocumentRepository_UpdateFields_NotFound(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "documents" SET`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	err := repo.UpdateFields("missing", map[string]interface{}{"status": models.StatusReady})
	require.Error(t, err)

	var appErr *apperrors.AppError
	assert.ErrorAs(t, err, &appErr)
}

func TestDocumentRepository_Delete(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM "documents" WHERE id = \$1`).
		WithArgs("doc-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Delete("doc-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentRepository_CountByStatus(t *testing.T) {
	repo, mock := newMockRepo(t)

	rows := sqlmock.NewRows([]string{"status", "count"}).
		AddRow(models.StatusReady, 3).
		AddRow(models.StatusFailed, 1)

	mock.ExpectQuery(`SELECT status, count\(\*\) as count FROM "documents" GROUP BY`).
		WillReturnRows(rows)

	counts, err := repo.CountByStatus()
	require.NoError(t, err)
	assert.Equal(t, int64(3), counts[models.StatusReady])
	assert.Equal(t, int64(1), counts[models.StatusFailed])
}
