package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"invoice_integrity/internal/domain"
	"invoice_integrity/internal/repository"
)

type FraudAlertRepository struct {
	db *sql.DB
}

// Create stores the reasons as a JSON array.
func (r *FraudAlertRepository) Create(ctx context.Context, alert *domain.FraudAlert) error {
	reasons, err := json.Marshal(alert.Reasons)
	if err != nil {
		return fmt.Errorf("write fraud alert: encode reasons: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO fraud_alerts (id, invoice_id, severity, reasons, resolved, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		alert.ID,
		alert.InvoiceID,
		string(alert.Severity),
		string(reasons),
		alert.Resolved,
		formatTime(alert.CreatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: alert %s", repository.ErrDuplicate, alert.ID)
		}
		return fmt.Errorf("write fraud alert: %w", err)
	}
	return nil
}

func (r *FraudAlertRepository) GetByInvoiceID(ctx context.Context, invoiceID string) ([]*domain.FraudAlert, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, invoice_id, severity, reasons, resolved, created_at
		FROM fraud_alerts
		WHERE invoice_id = ?
		ORDER BY created_at ASC, id ASC
	`, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("query fraud alerts: %w", err)
	}
	defer rows.Close()

	alerts := []*domain.FraudAlert{}
	for rows.Next() {
		var (
			alert             domain.FraudAlert
			severity, reasons string
			createdAt         string
		)
		if err := rows.Scan(&alert.ID, &alert.InvoiceID, &severity, &reasons, &alert.Resolved, &createdAt); err != nil {
			return nil, fmt.Errorf("scan fraud alert: %w", err)
		}
		if err := json.Unmarshal([]byte(reasons), &alert.Reasons); err != nil {
			return nil, fmt.Errorf("decode reasons of %s: %w", alert.ID, err)
		}
		alert.Severity = domain.Severity(severity)
		if alert.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		alerts = append(alerts, &alert)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate fraud alerts: %w", err)
	}
	return alerts, nil
}

func (r *FraudAlertRepository) Resolve(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE fraud_alerts SET resolved = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("resolve fraud alert: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("resolve fraud alert: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: alert %s", repository.ErrNotFound, id)
	}
	return nil
}
