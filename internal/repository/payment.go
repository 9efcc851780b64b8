package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/mmeshcher/craftstore-system/internal/model"
)

// UpsertPayment сохраняет результат сверки платежа. Ключ идемпотентности —
// уникальное ограничение (order_id, method): повторная доставка того же
// уведомления обновляет существующую запись вместо вставки дубликата.
func (r *PostgresRepository) UpsertPayment(ctx context.Context, p *model.Payment) error {
	return r.withRetry(ctx, func() error {
		_, err := r.pool.Exec(ctx,
			`INSERT INTO payments (order_id, method, status, transaction_id, amount, currency, raw_response)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)
			 ON CONFLICT (order_id, method) DO UPDATE
			 SET status = EXCLUDED.status,
			     transaction_id = EXCLUDED.transaction_id,
			     amount = EXCLUDED.amount,
			     currency = EXCLUDED.currency,
			     raw_response = EXCLUDED.raw_response,
			     updated_at = now()`,
			p.OrderID, string(p.Method), string(p.Status), p.TransactionID,
			p.AmountCents, p.Currency, p.RawResponse,
		)
		if err != nil {
			return fmt.Errorf("upsert payment: %w", err)
		}
		return nil
	})
}

// GetPayment возвращает актуальную запись платежа для пары заказ+шлюз.
func (r *PostgresRepository) GetPayment(ctx context.Context, orderID int64, method model.PaymentMethod) (*model.Payment, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, order_id, method, status, transaction_id, amount, currency, raw_response, created_at, updated_at
		 FROM payments
		 WHERE order_id = $1 AND method = $2`,
		orderID, string(method),
	)

	var p model.Payment
	err := row.Scan(&p.ID, &p.OrderID, &p.Method, &p.Status, &p.TransactionID,
		&p.AmountCents, &p.Currency, &p.RawResponse, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		return nil, fmt.Errorf("get payment: %w", err)
	}

	return &p, nil
}

// GetStalePendingPayments возвращает платежи, оставшиеся в PENDING дольше
// указанного срока. Фоновый процесс сверки повторно запрашивает по ним
// статус у шлюза на случай потерянных уведомлений.
func (r *PostgresRepository) GetStalePendingPayments(ctx context.Context, olderThan time.Duration, limit int) ([]model.Payment, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, order_id, method, status, transaction_id, amount, currency, raw_response, created_at, updated_at
		 FROM payments
		 WHERE status = $1 AND transaction_id <> '' AND updated_at < now() - $2::interval
		 ORDER BY updated_at
		 LIMIT $3`,
		string(model.PaymentStatusPending), olderThan.String(), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("select stale payments: %w", err)
	}
	defer rows.Close()

	var res []model.Payment
	for rows.Next() {
		var p model.Payment
		if err := rows.Scan(&p.ID, &p.OrderID, &p.Method, &p.Status, &p.TransactionID,
			&p.AmountCents, &p.Currency, &p.RawResponse, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		res = append(res, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}
