package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mmeshcher/craftstore-system/internal/model"
)

// ErrCouponExists возвращается при попытке создать купон с уже существующим кодом.
var ErrCouponExists = errors.New("coupon code already exists")

const couponColumns = `id, code, type, value, min_amount, max_uses, used_count, is_active, starts_at, expires_at, created_at`

func scanCoupon(row pgx.Row) (*model.Coupon, error) {
	var c model.Coupon
	err := row.Scan(&c.ID, &c.Code, &c.Type, &c.Value, &c.MinAmountCents, &c.MaxUses,
		&c.UsedCount, &c.IsActive, &c.StartsAt, &c.ExpiresAt, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCouponNotFound
		}
		return nil, fmt.Errorf("scan coupon: %w", err)
	}
	return &c, nil
}

// GetCouponByCode возвращает купон по коду без учёта регистра.
func (r *PostgresRepository) GetCouponByCode(ctx context.Context, code string) (*model.Coupon, error) {
	return scanCoupon(r.pool.QueryRow(ctx,
		`SELECT `+couponColumns+` FROM coupons WHERE upper(code) = $1`,
		strings.ToUpper(strings.TrimSpace(code)),
	))
}

// ListCoupons возвращает все купоны для административного интерфейса.
func (r *PostgresRepository) ListCoupons(ctx context.Context) ([]model.Coupon, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+couponColumns+` FROM coupons ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("select coupons: %w", err)
	}
	defer rows.Close()

	var res []model.Coupon
	for rows.Next() {
		c, err := scanCoupon(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// CreateCoupon создаёт купон.
func (r *PostgresRepository) CreateCoupon(ctx context.Context, c *model.Coupon) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO coupons (code, type, value, min_amount, max_uses, is_active, starts_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id`,
		strings.ToUpper(strings.TrimSpace(c.Code)), string(c.Type), c.Value,
		c.MinAmountCents, c.MaxUses, c.IsActive, c.StartsAt, c.ExpiresAt,
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return 0, fmt.Errorf("%w: %s", ErrCouponExists, c.Code)
		}
		return 0, fmt.Errorf("insert coupon: %w", err)
	}
	return id, nil
}

// UpdateCoupon обновляет правило купона. Счётчик использований не трогается.
func (r *PostgresRepository) UpdateCoupon(ctx context.Context, c *model.Coupon) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE coupons
		 SET type = $2, value = $3, min_amount = $4, max_uses = $5, is_active = $6,
		     starts_at = $7, expires_at = $8
		 WHERE id = $1`,
		c.ID, string(c.Type), c.Value, c.MinAmountCents, c.MaxUses, c.IsActive, c.StartsAt, c.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("update coupon: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrCouponNotFound
	}
	return nil
}

// DeleteCoupon удаляет купон.
func (r *PostgresRepository) DeleteCoupon(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM coupons WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete coupon: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrCouponNotFound
	}
	return nil
}
