package repository_test

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"profiledrive/internal/domain"
	"profiledrive/internal/repository"
)

var archiveCols = []string{"id", "owner_id", "kind", "sub_type", "object_key", "created_at"}

func TestArchiveCreate(t *testing.T) {
	db, mock := newMock(t)
	repo := repository.NewArchiveRepository(db)
	at := time.Date(2024, 3, 7, 10, 0, 0, 0, time.UTC)

	entry := &domain.ArchiveEntry{
		OwnerID:   "42",
		Kind:      domain.KindProfilePicture,
		ObjectKey: "42/archive/1_a.jpg",
		CreatedAt: at,
	}

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO archive_entries (owner_id, kind, sub_type, object_key, created_at)")).
		WithArgs("42", "profile_picture", "", "42/archive/1_a.jpg", at).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(7)))

	require.NoError(t, repo.Create(context.Background(), entry))
	assert.Equal(t, int64(7), entry.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestArchiveCreateDuplicateKey(t *testing.T) {
	db, mock := newMock(t)
	repo := repository.NewArchiveRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO archive_entries")).
		WillReturnError(&pq.Error{Code: "23505"})

	err := repo.Create(context.Background(), &domain.ArchiveEntry{OwnerID: "42", ObjectKey: "dup"})
	assert.ErrorContains(t, err, "already exists")
}

func TestArchiveLatest(t *testing.T) {
	db, mock := newMock(t)
	repo := repository.NewArchiveRepository(db)
	at := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta("LIMIT 1")).
		WithArgs("42", "profile_picture", "").
		WillReturnRows(sqlmock.NewRows(archiveCols).AddRow(int64(9), "42", "profile_picture", "", "42/archive/9.jpg", at))

	entry, err := repo.Latest(context.Background(), picRef)
	require.NoError(t, err)
	assert.Equal(t, int64(9), entry.ID)
	assert.Equal(t, "42/archive/9.jpg", entry.ObjectKey)
}

func TestArchiveLatestEmpty(t *testing.T) {
	db, mock := newMock(t)
	repo := repository.NewArchiveRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM archive_entries")).
		WillReturnRows(sqlmock.NewRows(archiveCols))

	_, err := repo.Latest(context.Background(), picRef)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestArchiveList(t *testing.T) {
	db, mock := newMock(t)
	repo := repository.NewArchiveRepository(db)
	at := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta("LIMIT $4")).
		WithArgs("42", "profile_picture", "", 10).
		WillReturnRows(sqlmock.NewRows(archiveCols).
			AddRow(int64(2), "42", "profile_picture", "", "42/archive/2.jpg", at).
			AddRow(int64(1), "42", "profile_picture", "", "42/archive/1.jpg", at.Add(-time.Hour)))

	entries, err := repo.List(context.Background(), picRef, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, int64(2), entries[0].ID)
}

func TestArchiveGetAndDelete(t *testing.T) {
	db, mock := newMock(t)
	repo := repository.NewArchiveRepository(db)
	at := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta("WHERE id = $1 AND owner_id = $2")).
		WithArgs(int64(3), "42").
		WillReturnRows(sqlmock.NewRows(archiveCols).AddRow(int64(3), "42", "profile_picture", "", "42/archive/3.jpg", at))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM archive_entries WHERE id = $1 AND owner_id = $2")).
		WithArgs(int64(3), "42").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM archive_entries")).
		WithArgs(int64(3), "42").
		WillReturnResult(sqlmock.NewResult(0, 0))

	entry, err := repo.Get(context.Background(), "42", 3)
	require.NoError(t, err)
	assert.Equal(t, "42/archive/3.jpg", entry.ObjectKey)

	require.NoError(t, repo.Delete(context.Background(), "42", 3))
	assert.ErrorIs(t, repo.Delete(context.Background(), "42", 3), repository.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}
