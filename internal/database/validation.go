// Package database provides validation functionality for restored
// databases. A staged restore replaces the audit log wholesale, so the
// replacement is validated before the fleet trusts it: structural
// integrity, well-formed event rows, and a sane timestamp range.
package database

import (
	"database/sql"
	"fmt"
	"time"
)

// RestoreValidator validates a restored audit database before it is
// promoted into service.
type RestoreValidator struct {
	db *sql.DB // Connection to the candidate (restored) database
}

// ValidationResult contains the results of all validation checks.
// Used to report validation status and any issues found.
type ValidationResult struct {
	IsValid        bool     // True if all validations pass
	MalformedRows  []string // Audit rows with empty type or module (row ids)
	FutureRows     []string // Audit rows timestamped in the future (row ids)
	IntegrityError string   // Non-empty if PRAGMA integrity_check failed
}

// NewRestoreValidator creates a new validator over the candidate
// database connection.
func NewRestoreValidator(db *sql.DB) *RestoreValidator {
	return &RestoreValidator{db: db}
}

// ValidateIntegrity runs SQLite's own integrity check on the restored
// file. A restore that passes the tar checksum can still be a
// corrupted database if the backup was taken mid-write.
func (v *RestoreValidator) ValidateIntegrity() (string, error) {
	var result string
	if err := v.db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return "", fmt.Errorf("failed to run integrity check: %w", err)
	}
	if result != "ok" {
		return result, nil
	}
	return "", nil
}

// ValidateEventRows checks that every audit row carries a type and a
// module. Returns row ids of malformed rows.
func (v *RestoreValidator) ValidateEventRows() ([]string, error) {
	query := `
		SELECT id
		FROM audit_events
		WHERE event_type IS NULL OR event_type = ''
		   OR module IS NULL OR module = ''
	`

	rows, err := v.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit events: %w", err)
	}
	defer rows.Close()

	var malformed []string
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan row id: %w", err)
		}
		malformed = append(malformed, fmt.Sprintf("%d", id))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return malformed, nil
}

// ValidateTimestamps flags rows timestamped more than a day into the
// future — the signature of a backup taken on a host with a broken
// clock, which would poison time-ordered dashboard queries.
func (v *RestoreValidator) ValidateTimestamps() ([]string, error) {
	cutoff := time.Now().Add(24 * time.Hour).Unix()

	rows, err := v.db.Query(`SELECT id FROM audit_events WHERE ts > ?`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to query timestamps: %w", err)
	}
	defer rows.Close()

	var future []string
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan row id: %w", err)
		}
		future = append(future, fmt.Sprintf("%d", id))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return future, nil
}

// ValidateAll runs every check and aggregates the results.
func (v *RestoreValidator) ValidateAll() (*ValidationResult, error) {
	result := &ValidationResult{}

	integrity, err := v.ValidateIntegrity()
	if err != nil {
		return nil, err
	}
	result.IntegrityError = integrity

	malformed, err := v.ValidateEventRows()
	if err != nil {
		return nil, err
	}
	result.MalformedRows = malformed

	future, err := v.ValidateTimestamps()
	if err != nil {
		return nil, err
	}
	result.FutureRows = future

	result.IsValid = result.IntegrityError == "" &&
		len(result.MalformedRows) == 0 &&
		len(result.FutureRows) == 0
	return result, nil
}
