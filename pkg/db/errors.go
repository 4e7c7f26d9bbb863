/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package db

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// PostgreSQL SQLSTATE codes worth calling out in diagnostics.
const (
	sqlstateDeadlockDetected    = "40P01"
	sqlstateSerializationFailed = "40001"
	sqlstateStatementTimeout    = "57014"
	sqlstateConnectionClass     = "08"
	sqlstateUniqueViolation     = "23505"
)

var (
	ErrNodeKeyRequired       = errors.New("node hypervisor and pci address are required")
	ErrNodeModelRequired     = errors.New("node gpu model is required")
	ErrAssignmentKeyRequired = errors.New("assignment ip, project and instance are required")
	ErrAssignmentWindow      = errors.New("assignment start and end dates are required")
	ErrBookingKeyRequired    = errors.New("booking project and start date are required")
	ErrBookingWindow         = errors.New("booking end date is required")
	ErrLinkKeyRequired       = errors.New("link requires both an assignment and a node key")
	ErrLockNotHeld           = errors.New("gpudb advisory lock is held by another run")
)

// StoreWriteError reports a failed tracking store statement. SQLState is
// empty when the failure did not come from the server.
type StoreWriteError struct {
	Op        string
	Key       string
	SQLState  string
	Transient bool
	Err       error
}

func (e *StoreWriteError) Error() string {
	var b strings.Builder

	fmt.Fprintf(&b, "gpudb %s", e.Op)

	if e.Key != "" {
		fmt.Fprintf(&b, " [%s]", e.Key)
	}

	if e.SQLState != "" {
		fmt.Fprintf(&b, " (sqlstate %s)", e.SQLState)
	}

	fmt.Fprintf(&b, ": %v", e.Err)

	return b.String()
}

func (e *StoreWriteError) Unwrap() error {
	return e.Err
}

func newStoreWriteError(op, key string, err error) error {
	if err == nil {
		return nil
	}

	var existing *StoreWriteError
	if errors.As(err, &existing) {
		return err
	}

	code, transient := classifyPGError(err)

	return &StoreWriteError{
		Op:        op,
		Key:       key,
		SQLState:  code,
		Transient: transient,
		Err:       err,
	}
}

// classifyPGError returns the SQLSTATE of err and whether a later run is
// likely to succeed without operator action.
func classifyPGError(err error) (string, bool) {
	if err == nil {
		return "", false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == sqlstateDeadlockDetected,
			pgErr.Code == sqlstateSerializationFailed,
			pgErr.Code == sqlstateStatementTimeout,
			strings.HasPrefix(pgErr.Code, sqlstateConnectionClass):
			return pgErr.Code, true
		}

		return pgErr.Code, false
	}

	if pgconn.SafeToRetry(err) || pgconn.Timeout(err) {
		return "", true
	}

	msg := strings.ToLower(err.Error())

	switch {
	case strings.Contains(msg, "deadlock detected"):
		return sqlstateDeadlockDetected, true
	case strings.Contains(msg, "could not serialize access"):
		return sqlstateSerializationFailed, true
	case strings.Contains(msg, "statement timeout"):
		return sqlstateStatementTimeout, true
	default:
		return "", false
	}
}
