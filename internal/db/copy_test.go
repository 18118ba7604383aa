package db

import (
	"context"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var unitColumns = []string{"id", "listing_id", "rent"}

func TestCopyFrom_EmptyRows(t *testing.T) {
	n, err := CopyFrom(context.TODO(), nil, "units", unitColumns, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestCopyFrom_Success(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"units"}, unitColumns).WillReturnResult(2)

	rows := [][]any{{"u1", "l1", 1450.0}, {"u2", "l1", 1725.0}}
	n, err := CopyFrom(context.Background(), mock, "units", unitColumns, rows)
	assert.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCopyFrom_Error(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"units"}, unitColumns).WillReturnError(fmt.Errorf("copy failed"))

	_, err = CopyFrom(context.Background(), mock, "units", unitColumns, [][]any{{"u1", "l1", 900.0}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COPY INTO units")
	assert.NoError(t, mock.ExpectationsWereMet())
}
