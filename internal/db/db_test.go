package db

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"escrowline/internal/domain"
)

func TestPathUsesWorkspaceDir(t *testing.T) {
	assert.Equal(t, filepath.Join("ws", ".escrowline", "escrowline.db"), Path("ws"))
	assert.Equal(t, filepath.Join(".", ".escrowline", "escrowline.db"), Path(""))
}

func TestRunTxRetriesConflicts(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	mock.ExpectBegin()
	mock.ExpectRollback()
	mock.ExpectBegin()
	mock.ExpectCommit()

	calls := 0
	retries, err := RunTx(context.Background(), conn, 3, func(tx *sql.Tx) error {
		calls++
		if calls == 1 {
			return domain.ErrConflict
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, retries)
	assert.Equal(t, 2, calls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunTxReturnsBusinessErrorsWithoutRetry(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	mock.ExpectBegin()
	mock.ExpectRollback()

	calls := 0
	_, err = RunTx(context.Background(), conn, 5, func(tx *sql.Tx) error {
		calls++
		return domain.ErrInvalidState
	})
	assert.ErrorIs(t, err, domain.ErrInvalidState)
	assert.Equal(t, 1, calls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunTxGivesUpAfterAttempts(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	for i := 0; i < 2; i++ {
		mock.ExpectBegin()
		mock.ExpectRollback()
	}

	retries, err := RunTx(context.Background(), conn, 2, func(tx *sql.Tx) error {
		return domain.ErrConflict
	})
	assert.ErrorIs(t, err, domain.ErrConflict)
	assert.Equal(t, 1, retries)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunTxSurfacesBeginFailure(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	boom := errors.New("disk gone")
	mock.ExpectBegin().WillReturnError(boom)

	_, err = RunTx(context.Background(), conn, 3, func(tx *sql.Tx) error { return nil })
	assert.ErrorIs(t, err, boom)
}
