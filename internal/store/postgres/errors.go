// Copyright 2026 The Loom Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package postgres

import (
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/loomworks/loom/internal/tenancy"
)

// Constraint names from the initial schema that carry domain meaning.
const (
	constraintUserEmail        = "users_email_key"
	constraintOrganizationSlot = "organizations_slot_key"
)

// mapError translates PostgreSQL errors into tenancy sentinel errors.
// Concurrent first-requests are resolved here: the losing insert trips a
// unique constraint, which must surface as a provisioning conflict (or a
// second-bootstrap rejection), never as a generic store failure.
func mapError(err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}

	switch pgErr.Code {
	case pgerrcode.UniqueViolation:
		switch pgErr.ConstraintName {
		case constraintUserEmail:
			return fmt.Errorf("%w: %s", tenancy.ErrProvisioningConflict, pgErr.ConstraintName)
		case constraintOrganizationSlot:
			return tenancy.ErrTenancyAlreadyInitialized
		}
		return fmt.Errorf("%w: %s", tenancy.ErrProvisioningConflict, pgErr.ConstraintName)

	case pgerrcode.CheckViolation:
		// organizations_slot_check also guards the single-organization
		// invariant.
		if pgErr.ConstraintName == "organizations_slot_check" {
			return tenancy.ErrTenancyAlreadyInitialized
		}
		return fmt.Errorf("check constraint violation: %s: %w", pgErr.ConstraintName, err)

	case pgerrcode.SerializationFailure, pgerrcode.DeadlockDetected:
		return fmt.Errorf("%w: %s", tenancy.ErrProvisioningConflict, pgErr.Code)

	case pgerrcode.ConnectionException,
		pgerrcode.ConnectionDoesNotExist,
		pgerrcode.ConnectionFailure,
		pgerrcode.CannotConnectNow,
		pgerrcode.SQLClientUnableToEstablishSQLConnection:
		return fmt.Errorf("database connection error: %w", err)

	case pgerrcode.QueryCanceled:
		return fmt.Errorf("query canceled: %w", err)

	default:
		return fmt.Errorf("postgres error [%s]: %s: %w", pgErr.Code, pgErr.Message, err)
	}
}
