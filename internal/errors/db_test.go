package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestMapDBError_NilError(t *testing.T) {
	if err := MapDBError(nil); err != nil {
		t.Errorf("MapDBError(nil) = %v, want nil", err)
	}
}

func TestMapDBError_ContextErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode ErrorCode
	}{
		{name: "deadline exceeded", err: context.DeadlineExceeded, wantCode: ErrCodeTimeout},
		{name: "canceled", err: context.Canceled, wantCode: ErrCodeCanceled},
		{name: "wrapped deadline", err: fmt.Errorf("query: %w", context.DeadlineExceeded), wantCode: ErrCodeTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := MapDBError(tt.err)
			if GetCode(err) != tt.wantCode {
				t.Errorf("MapDBError() code = %v, want %v", GetCode(err), tt.wantCode)
			}
			if !errors.Is(err, tt.err) && !errors.Is(err, errors.Unwrap(tt.err)) {
				t.Errorf("MapDBError() should keep the cause")
			}
		})
	}
}

func TestMapDBError_NoRows(t *testing.T) {
	err := MapDBError(pgx.ErrNoRows)
	if !IsNotFound(err) {
		t.Errorf("MapDBError(pgx.ErrNoRows) should be NotFound, got %v", GetCode(err))
	}
}

func TestMapDBError_PgErrors(t *testing.T) {
	tests := []struct {
		name     string
		code     string
		wantCode ErrorCode
	}{
		{name: "connection failure", code: pgerrcode.ConnectionFailure, wantCode: ErrCodeUnavailable},
		{name: "admin shutdown", code: pgerrcode.AdminShutdown, wantCode: ErrCodeUnavailable},
		{name: "query canceled", code: pgerrcode.QueryCanceled, wantCode: ErrCodeTimeout},
		{name: "undefined table", code: pgerrcode.UndefinedTable, wantCode: ErrCodeInternal},
		{name: "undefined function", code: pgerrcode.UndefinedFunction, wantCode: ErrCodeInternal},
		{name: "insufficient privilege", code: pgerrcode.InsufficientPrivilege, wantCode: ErrCodeInternal},
		{name: "other", code: pgerrcode.DivisionByZero, wantCode: ErrCodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pgErr := &pgconn.PgError{Code: tt.code, TableName: "tdf_objects"}
			err := MapDBError(fmt.Errorf("select vehicles: %w", pgErr))
			if GetCode(err) != tt.wantCode {
				t.Errorf("MapDBError() code = %v, want %v", GetCode(err), tt.wantCode)
			}
			var got *pgconn.PgError
			if !errors.As(err, &got) {
				t.Errorf("MapDBError() should keep the PgError cause")
			}
		})
	}
}

func TestMapDBError_UndefinedTableCarriesTable(t *testing.T) {
	err := MapDBError(&pgconn.PgError{Code: pgerrcode.UndefinedTable, TableName: "tdf_objects"})
	if GetField(err) != "tdf_objects" {
		t.Errorf("GetField() = %q, want tdf_objects", GetField(err))
	}
}

func TestMapDBError_Unrecognized(t *testing.T) {
	orig := errors.New("something else")
	if got := MapDBError(orig); got != orig {
		t.Errorf("MapDBError() = %v, want original error", got)
	}
}
