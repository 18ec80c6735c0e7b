package database

import (
	"context"

	"github.com/Aleph-Alpha/sqlexec/v1/statement"
)

// Logger is the logging contract shared by the client and everything it builds.
// *logger.Logger satisfies it.
type Logger interface {
	Info(msg string, err error, fields ...map[string]interface{})
	Debug(msg string, err error, fields ...map[string]interface{})
	Warn(msg string, err error, fields ...map[string]interface{})
	Error(msg string, err error, fields ...map[string]interface{})
	Fatal(msg string, err error, fields ...map[string]interface{})
}

// Preparer is what application code needs from a Client: a fresh statement
// handle per execution. Depend on it instead of *Client to substitute the
// database in tests.
type Preparer interface {
	Prepare(ctx context.Context, sqlText string) (*statement.Handle, error)
}

var _ Preparer = (*Client)(nil)
