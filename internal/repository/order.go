package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mmeshcher/craftstore-system/internal/model"
)

// CreateOrderParams описывает агрегат заказа, сохраняемый одной транзакцией.
type CreateOrderParams struct {
	Number         string
	UserID         int64
	Address        model.Address
	Items          []model.OrderItem
	PaymentMethod  model.PaymentMethod
	ShippingMethod string
	SubtotalCents  int64
	ShippingCents  int64
	TaxCents       int64
	DiscountCents  int64
	TotalCents     int64
	CouponCode     string
	// CouponID задан, если к заказу применён купон: его счётчик использований
	// инкрементируется условно в той же транзакции.
	CouponID *int64
}

// CreateOrder атомарно сохраняет адрес, заказ и его позиции, списывает остатки
// товаров и инкрементирует счётчик купона. Любая ошибка откатывает всё целиком.
// Списание остатка выполняется условным UPDATE с проверкой затронутых строк,
// что исключает продажу сверх остатка при конкурентных оформлениях.
func (r *PostgresRepository) CreateOrder(ctx context.Context, p CreateOrderParams) (int64, error) {
	var orderID int64

	err := r.withRetry(ctx, func() error {
		var txErr error
		orderID, txErr = r.createOrderTx(ctx, p)
		return txErr
	})
	if err != nil {
		return 0, err
	}

	return orderID, nil
}

func (r *PostgresRepository) createOrderTx(ctx context.Context, p CreateOrderParams) (int64, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var addressID int64
	err = tx.QueryRow(ctx,
		`INSERT INTO addresses (first_name, last_name, phone, street, city, state, zip_code, country)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id`,
		p.Address.FirstName, p.Address.LastName, p.Address.Phone, p.Address.Street,
		p.Address.City, p.Address.State, p.Address.ZipCode, p.Address.Country,
	).Scan(&addressID)
	if err != nil {
		return 0, fmt.Errorf("insert address: %w", err)
	}

	var orderID int64
	err = tx.QueryRow(ctx,
		`INSERT INTO orders (number, user_id, address_id, payment_method, shipping_method,
		                     subtotal, shipping, tax, discount, total, coupon_code)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 RETURNING id`,
		p.Number, p.UserID, addressID, string(p.PaymentMethod), p.ShippingMethod,
		p.SubtotalCents, p.ShippingCents, p.TaxCents, p.DiscountCents, p.TotalCents, p.CouponCode,
	).Scan(&orderID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return 0, ErrOrderNumberTaken
		}
		return 0, fmt.Errorf("insert order: %w", err)
	}

	for _, it := range p.Items {
		tag, err := tx.Exec(ctx,
			`UPDATE products SET stock = stock - $2 WHERE id = $1 AND stock >= $2`,
			it.ProductID, it.Quantity,
		)
		if err != nil {
			return 0, fmt.Errorf("decrement stock: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return 0, fmt.Errorf("%w: %s", ErrInsufficientStock, it.ProductName)
		}

		_, err = tx.Exec(ctx,
			`INSERT INTO order_items (order_id, product_id, product_name, price, quantity)
			 VALUES ($1, $2, $3, $4, $5)`,
			orderID, it.ProductID, it.ProductName, it.PriceCents, it.Quantity,
		)
		if err != nil {
			return 0, fmt.Errorf("insert order item: %w", err)
		}
	}

	if p.CouponID != nil {
		tag, err := tx.Exec(ctx,
			`UPDATE coupons SET used_count = used_count + 1
			 WHERE id = $1 AND (max_uses IS NULL OR used_count < max_uses)`,
			*p.CouponID,
		)
		if err != nil {
			return 0, fmt.Errorf("increment coupon usage: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return 0, ErrCouponExhausted
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}

	return orderID, nil
}

func scanOrder(row pgx.Row) (*model.Order, error) {
	var o model.Order
	err := row.Scan(&o.ID, &o.Number, &o.UserID, &o.Status, &o.PaymentStatus,
		&o.PaymentMethod, &o.ShippingMethod, &o.SubtotalCents, &o.ShippingCents,
		&o.TaxCents, &o.DiscountCents, &o.TotalCents, &o.CouponCode, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("scan order: %w", err)
	}
	return &o, nil
}

const orderColumns = `id, number, user_id, status, payment_status, payment_method, shipping_method,
	subtotal, shipping, tax, discount, total, coupon_code, created_at, updated_at`

// GetOrderByID возвращает заказ с позициями и адресом доставки.
func (r *PostgresRepository) GetOrderByID(ctx context.Context, id int64) (*model.Order, error) {
	o, err := scanOrder(r.pool.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}

	if err := r.loadOrderDetails(ctx, o); err != nil {
		return nil, err
	}

	return o, nil
}

// GetOrderByNumber возвращает заказ по его человекочитаемому номеру.
func (r *PostgresRepository) GetOrderByNumber(ctx context.Context, number string) (*model.Order, error) {
	return scanOrder(r.pool.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE number = $1`, number))
}

// GetOrderByTransactionID ищет заказ по идентификатору транзакции ранее
// сохранённого платежа указанного шлюза. Используется при разборе IPN,
// когда шлюз не вернул исходный номер заказа.
func (r *PostgresRepository) GetOrderByTransactionID(ctx context.Context, method model.PaymentMethod, transactionID string) (*model.Order, error) {
	return scanOrder(r.pool.QueryRow(ctx,
		`SELECT o.id, o.number, o.user_id, o.status, o.payment_status, o.payment_method,
		        o.shipping_method, o.subtotal, o.shipping, o.tax, o.discount, o.total,
		        o.coupon_code, o.created_at, o.updated_at
		 FROM orders o
		 JOIN payments p ON p.order_id = o.id
		 WHERE p.method = $1 AND p.transaction_id = $2
		 ORDER BY p.updated_at DESC
		 LIMIT 1`,
		string(method), transactionID))
}

func (r *PostgresRepository) loadOrderDetails(ctx context.Context, o *model.Order) error {
	rows, err := r.pool.Query(ctx,
		`SELECT id, order_id, product_id, product_name, price, quantity
		 FROM order_items WHERE order_id = $1 ORDER BY id`,
		o.ID,
	)
	if err != nil {
		return fmt.Errorf("select order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var it model.OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.ProductName, &it.PriceCents, &it.Quantity); err != nil {
			return fmt.Errorf("scan order item: %w", err)
		}
		o.Items = append(o.Items, it)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("rows error: %w", err)
	}

	var a model.Address
	err = r.pool.QueryRow(ctx,
		`SELECT a.id, a.first_name, a.last_name, a.phone, a.street, a.city, a.state, a.zip_code, a.country
		 FROM addresses a
		 JOIN orders o ON o.address_id = a.id
		 WHERE o.id = $1`,
		o.ID,
	).Scan(&a.ID, &a.FirstName, &a.LastName, &a.Phone, &a.Street, &a.City, &a.State, &a.ZipCode, &a.Country)
	if err != nil {
		return fmt.Errorf("select order address: %w", err)
	}
	o.Address = &a

	err = r.pool.QueryRow(ctx, `SELECT email FROM users WHERE id = $1`, o.UserID).Scan(&o.UserEmail)
	if err != nil {
		return fmt.Errorf("select order user email: %w", err)
	}

	return nil
}

// UpdateOrderPaymentState сохраняет новые статусы заказа и оплаты, вычисленные сверкой платежа.
func (r *PostgresRepository) UpdateOrderPaymentState(ctx context.Context, orderID int64, status model.OrderStatus, paymentStatus model.PaymentStatus) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE orders SET status = $2, payment_status = $3, updated_at = now() WHERE id = $1`,
		orderID, string(status), string(paymentStatus),
	)
	if err != nil {
		return fmt.Errorf("update order payment state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}

// UpdateOrderStatus устанавливает статус заказа вручную. Только для административного интерфейса:
// статусы SHIPPED, DELIVERED и REFUNDED достижимы исключительно этим путём.
func (r *PostgresRepository) UpdateOrderStatus(ctx context.Context, orderID int64, status model.OrderStatus) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE orders SET status = $2, updated_at = now() WHERE id = $1`,
		orderID, string(status),
	)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}

// ListOrders возвращает заказы для административного интерфейса, опционально по статусу.
func (r *PostgresRepository) ListOrders(ctx context.Context, status model.OrderStatus, limit, offset int) ([]model.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders`
	args := []any{}
	if status != "" {
		query += ` WHERE status = $1`
		args = append(args, string(status))
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT %d OFFSET %d`, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select orders: %w", err)
	}
	defer rows.Close()

	var res []model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// GetOrdersByUser возвращает заказы пользователя для страницы истории покупок.
func (r *PostgresRepository) GetOrdersByUser(ctx context.Context, userID int64) ([]model.Order, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE user_id = $1 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("select user orders: %w", err)
	}
	defer rows.Close()

	var res []model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// DeleteOrder удаляет заказ вместе с позициями, платежами и адресом.
// Доступно только администратору.
func (r *PostgresRepository) DeleteOrder(ctx context.Context, orderID int64) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var addressID int64
	err = tx.QueryRow(ctx, `SELECT address_id FROM orders WHERE id = $1`, orderID).Scan(&addressID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrOrderNotFound
		}
		return fmt.Errorf("select order address id: %w", err)
	}

	// Позиции и платежи удаляются каскадно по внешнему ключу.
	if _, err := tx.Exec(ctx, `DELETE FROM orders WHERE id = $1`, orderID); err != nil {
		return fmt.Errorf("delete order: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM addresses WHERE id = $1`, addressID); err != nil {
		return fmt.Errorf("delete address: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}
