package adapter

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/leapstack-labs/atlas/pkg/core"
)

// sqlStater is implemented by driver errors that carry a SQLSTATE code,
// such as *pgconn.PgError.
type sqlStater interface {
	SQLState() string
}

// Classify maps a driver error onto the core taxonomy: session loss becomes
// a ConnectionError, everything else the server rejected a QueryError.
// Context cancellation is passed through unchanged.
func Classify(op, stmt string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}
	if IsConnectionLoss(err) {
		return &core.ConnectionError{Op: op, Err: err}
	}

	qe := &core.QueryError{Statement: stmt, Err: err}
	var s sqlStater
	if errors.As(err, &s) {
		qe.Code = s.SQLState()
	}
	return qe
}

// IsConnectionLoss reports whether err means the session is gone.
func IsConnectionLoss(err error) bool {
	if errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, net.ErrClosed) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne)
}
