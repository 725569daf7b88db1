// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CareDesk Contributors

package bootstrap

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caredesk/caredesk/pkg/errutil"
)

func TestNewProvisioner_NilConnection(t *testing.T) {
	p, err := NewProvisioner(nil)
	require.Error(t, err)
	assert.Nil(t, p)
	assert.Contains(t, err.Error(), "database connection is required")
}

func TestProvisioner_EnsureDatabase(t *testing.T) {
	tests := []struct {
		name      string
		setupMock func(mock pgxmock.PgxPoolIface)
		wantErr   bool
		wantCode  string
	}{
		{
			name: "creates database when absent",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`SELECT 1 FROM pg_database WHERE datname = \$1`).
					WithArgs("analytics").
					WillReturnRows(pgxmock.NewRows([]string{"?column?"}))
				mock.ExpectExec(`CREATE DATABASE "analytics"`).
					WillReturnResult(pgxmock.NewResult("CREATE", 1))
			},
		},
		{
			name: "skips existing database",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`SELECT 1 FROM pg_database WHERE datname = \$1`).
					WithArgs("analytics").
					WillReturnRows(pgxmock.NewRows([]string{"?column?"}).AddRow(1))
			},
		},
		{
			name: "tolerates duplicate creation race",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`SELECT 1 FROM pg_database WHERE datname = \$1`).
					WithArgs("analytics").
					WillReturnRows(pgxmock.NewRows([]string{"?column?"}))
				mock.ExpectExec(`CREATE DATABASE "analytics"`).
					WillReturnError(&pgconn.PgError{Code: pgerrcode.DuplicateDatabase})
			},
		},
		{
			name: "creation failure propagates",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`SELECT 1 FROM pg_database WHERE datname = \$1`).
					WithArgs("analytics").
					WillReturnRows(pgxmock.NewRows([]string{"?column?"}))
				mock.ExpectExec(`CREATE DATABASE "analytics"`).
					WillReturnError(&pgconn.PgError{Code: pgerrcode.InsufficientPrivilege})
			},
			wantErr:  true,
			wantCode: "PROVISION_FAILED",
		},
		{
			name: "catalog check failure propagates",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`SELECT 1 FROM pg_database WHERE datname = \$1`).
					WithArgs("analytics").
					WillReturnError(errors.New("connection refused"))
			},
			wantErr:  true,
			wantCode: "PROVISION_CHECK_FAILED",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			require.NoError(t, err, "failed to create mock")
			defer mock.Close()

			tt.setupMock(mock)

			p, err := NewProvisioner(mock)
			require.NoError(t, err)

			err = p.Ensure(context.Background(), Target{Name: "analytics", Kind: KindDatabase})
			if tt.wantErr {
				require.Error(t, err)
				errutil.AssertErrorCode(t, err, tt.wantCode)
			} else {
				require.NoError(t, err)
			}

			assert.NoError(t, mock.ExpectationsWereMet(), "unfulfilled expectations")
		})
	}
}

// Ensuring the same target twice produces exactly one creation side effect
// and no error on the second invocation.
func TestProvisioner_EnsureDatabase_Idempotent(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`SELECT 1 FROM pg_database WHERE datname = \$1`).
		WithArgs("caredesk").
		WillReturnRows(pgxmock.NewRows([]string{"?column?"}))
	mock.ExpectExec(`CREATE DATABASE "caredesk"`).
		WillReturnResult(pgxmock.NewResult("CREATE", 1))
	mock.ExpectQuery(`SELECT 1 FROM pg_database WHERE datname = \$1`).
		WithArgs("caredesk").
		WillReturnRows(pgxmock.NewRows([]string{"?column?"}).AddRow(1))

	p, err := NewProvisioner(mock)
	require.NoError(t, err)

	target := Target{Name: "caredesk", Kind: KindDatabase}
	require.NoError(t, p.Ensure(context.Background(), target))
	require.NoError(t, p.Ensure(context.Background(), target))

	assert.NoError(t, mock.ExpectationsWereMet(), "second ensure must not issue a second CREATE")
}

func TestProvisioner_EnsureExtension(t *testing.T) {
	tests := []struct {
		name      string
		setupMock func(mock pgxmock.PgxPoolIface)
		wantErr   bool
		wantCode  string
	}{
		{
			name: "creates extension when absent",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`SELECT 1 FROM pg_extension WHERE extname = \$1`).
					WithArgs("vector").
					WillReturnRows(pgxmock.NewRows([]string{"?column?"}))
				mock.ExpectExec(`CREATE EXTENSION "vector"`).
					WillReturnResult(pgxmock.NewResult("CREATE", 1))
			},
		},
		{
			name: "skips existing extension",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`SELECT 1 FROM pg_extension WHERE extname = \$1`).
					WithArgs("vector").
					WillReturnRows(pgxmock.NewRows([]string{"?column?"}).AddRow(1))
			},
		},
		{
			name: "tolerates duplicate creation race",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`SELECT 1 FROM pg_extension WHERE extname = \$1`).
					WithArgs("vector").
					WillReturnRows(pgxmock.NewRows([]string{"?column?"}))
				mock.ExpectExec(`CREATE EXTENSION "vector"`).
					WillReturnError(&pgconn.PgError{Code: pgerrcode.DuplicateObject})
			},
		},
		{
			name: "creation failure propagates",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`SELECT 1 FROM pg_extension WHERE extname = \$1`).
					WithArgs("vector").
					WillReturnRows(pgxmock.NewRows([]string{"?column?"}))
				mock.ExpectExec(`CREATE EXTENSION "vector"`).
					WillReturnError(&pgconn.PgError{Code: pgerrcode.UndefinedFile})
			},
			wantErr:  true,
			wantCode: "PROVISION_FAILED",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			require.NoError(t, err)
			defer mock.Close()

			tt.setupMock(mock)

			p, err := NewProvisioner(mock)
			require.NoError(t, err)

			err = p.Ensure(context.Background(), Target{Name: "vector", Kind: KindExtension})
			if tt.wantErr {
				require.Error(t, err)
				errutil.AssertErrorCode(t, err, tt.wantCode)
			} else {
				require.NoError(t, err)
			}

			assert.NoError(t, mock.ExpectationsWereMet(), "unfulfilled expectations")
		})
	}
}

func TestProvisioner_OnOpObservesOutcomes(t *testing.T) {
	tests := []struct {
		name      string
		target    Target
		setupMock func(mock pgxmock.PgxPoolIface)
		wantOps   [][2]string
	}{
		{
			name:   "database created",
			target: Target{Name: "analytics", Kind: KindDatabase},
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`SELECT 1 FROM pg_database WHERE datname = \$1`).
					WithArgs("analytics").
					WillReturnRows(pgxmock.NewRows([]string{"?column?"}))
				mock.ExpectExec(`CREATE DATABASE "analytics"`).
					WillReturnResult(pgxmock.NewResult("CREATE", 1))
			},
			wantOps: [][2]string{{"database", OutcomeCreated}},
		},
		{
			name:   "database already present",
			target: Target{Name: "analytics", Kind: KindDatabase},
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`SELECT 1 FROM pg_database WHERE datname = \$1`).
					WithArgs("analytics").
					WillReturnRows(pgxmock.NewRows([]string{"?column?"}).AddRow(1))
			},
			wantOps: [][2]string{{"database", OutcomeExists}},
		},
		{
			name:   "database duplicate race counts as exists",
			target: Target{Name: "analytics", Kind: KindDatabase},
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`SELECT 1 FROM pg_database WHERE datname = \$1`).
					WithArgs("analytics").
					WillReturnRows(pgxmock.NewRows([]string{"?column?"}))
				mock.ExpectExec(`CREATE DATABASE "analytics"`).
					WillReturnError(&pgconn.PgError{Code: pgerrcode.DuplicateDatabase})
			},
			wantOps: [][2]string{{"database", OutcomeExists}},
		},
		{
			name:   "database creation failure",
			target: Target{Name: "analytics", Kind: KindDatabase},
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`SELECT 1 FROM pg_database WHERE datname = \$1`).
					WithArgs("analytics").
					WillReturnRows(pgxmock.NewRows([]string{"?column?"}))
				mock.ExpectExec(`CREATE DATABASE "analytics"`).
					WillReturnError(&pgconn.PgError{Code: pgerrcode.InsufficientPrivilege})
			},
			wantOps: [][2]string{{"database", OutcomeFailed}},
		},
		{
			name:   "extension created",
			target: Target{Name: "vector", Kind: KindExtension},
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`SELECT 1 FROM pg_extension WHERE extname = \$1`).
					WithArgs("vector").
					WillReturnRows(pgxmock.NewRows([]string{"?column?"}))
				mock.ExpectExec(`CREATE EXTENSION "vector"`).
					WillReturnResult(pgxmock.NewResult("CREATE", 1))
			},
			wantOps: [][2]string{{"extension", OutcomeCreated}},
		},
		{
			name:   "extension catalog check failure",
			target: Target{Name: "vector", Kind: KindExtension},
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`SELECT 1 FROM pg_extension WHERE extname = \$1`).
					WithArgs("vector").
					WillReturnError(errors.New("connection refused"))
			},
			wantOps: [][2]string{{"extension", OutcomeFailed}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			require.NoError(t, err)
			defer mock.Close()

			tt.setupMock(mock)

			p, err := NewProvisioner(mock)
			require.NoError(t, err)

			var ops [][2]string
			p.OnOp = func(kind, outcome string) {
				ops = append(ops, [2]string{kind, outcome})
			}

			_ = p.Ensure(context.Background(), tt.target)
			assert.Equal(t, tt.wantOps, ops)
			assert.NoError(t, mock.ExpectationsWereMet(), "unfulfilled expectations")
		})
	}
}

func TestProvisioner_Ensure_InvalidName(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	p, err := NewProvisioner(mock)
	require.NoError(t, err)

	err = p.Ensure(context.Background(), Target{Name: `foo"; DROP TABLE users;--`, Kind: KindDatabase})
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "PROVISION_INVALID_NAME")
	assert.NoError(t, mock.ExpectationsWereMet(), "no statement may reach the database")
}

func TestProvisioner_EnsureAll_StopsAtFirstFailure(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`SELECT 1 FROM pg_database WHERE datname = \$1`).
		WithArgs("first").
		WillReturnRows(pgxmock.NewRows([]string{"?column?"}))
	mock.ExpectExec(`CREATE DATABASE "first"`).
		WillReturnError(&pgconn.PgError{Code: pgerrcode.InsufficientPrivilege})

	p, err := NewProvisioner(mock)
	require.NoError(t, err)

	targets := []Target{
		{Name: "first", Kind: KindDatabase},
		{Name: "second", Kind: KindDatabase},
	}
	err = p.EnsureAll(context.Background(), targets)
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "PROVISION_FAILED")
	assert.NoError(t, mock.ExpectationsWereMet(), "second target must not be attempted")
}
