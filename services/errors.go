package services

import (
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"
)

type FailureKind string

const (
	KindInvalidReading       FailureKind = "invalid_reading"
	KindMissingPeriod        FailureKind = "missing_period"
	KindMissingAssociate     FailureKind = "missing_associate"
	KindMissingHydrometer    FailureKind = "missing_hydrometer"
	KindMissingInvoice       FailureKind = "missing_invoice"
	KindInvalidPayment       FailureKind = "invalid_payment"
	KindDuplicatePeriodCode  FailureKind = "duplicate_period_code"
	KindReferentialIntegrity FailureKind = "referential_integrity"
	KindTransactionConflict  FailureKind = "transaction_conflict"
)

// Failure is the structured error the core returns to its callers. Every
// failure is recoverable by the operator correcting input and retrying;
// nothing in this package panics or returns opaque wrapped driver errors
// for validation problems.
type Failure struct {
	Kind   FailureKind `json:"kind"`
	Detail string      `json:"detail"`
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s: %s", f.Kind, f.Detail)
}

func NewFailure(kind FailureKind, format string, args ...interface{}) *Failure {
	return &Failure{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// AsFailure unwraps a Failure from err, if there is one.
func AsFailure(err error) (*Failure, bool) {
	var f *Failure
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}

// wrapDBError turns a write-collision driver error into a transaction_conflict
// failure the caller is expected to retry wholesale. Anything else passes
// through untouched.
func wrapDBError(err error) error {
	if err == nil {
		return nil
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		if sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked {
			return NewFailure(KindTransactionConflict, "concurrent write collision, retry the operation: %v", err)
		}
	}
	return err
}
