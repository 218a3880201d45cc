package database

import (
	"errors"

	"github.com/lib/pq"
)

const codeCheckViolation = "23514"

// IsCheckViolation reports whether err is a Postgres CHECK constraint failure,
// such as a balance dropping below zero.
func IsCheckViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == codeCheckViolation
}
