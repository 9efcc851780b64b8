package repository

import (
	"context"
	"fmt"

	"github.com/mmeshcher/craftstore-system/internal/model"
)

// GetCartItems возвращает содержимое серверной корзины пользователя.
func (r *PostgresRepository) GetCartItems(ctx context.Context, userID int64) ([]model.CartItem, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT product_id, quantity FROM cart_items WHERE user_id = $1 ORDER BY product_id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("select cart items: %w", err)
	}
	defer rows.Close()

	var items []model.CartItem
	for rows.Next() {
		var it model.CartItem
		if err := rows.Scan(&it.ProductID, &it.Quantity); err != nil {
			return nil, fmt.Errorf("scan cart item: %w", err)
		}
		items = append(items, it)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return items, nil
}

// SetCartItem устанавливает количество товара в корзине пользователя.
// При quantity <= 0 позиция удаляется.
func (r *PostgresRepository) SetCartItem(ctx context.Context, userID, productID int64, quantity int) error {
	if quantity <= 0 {
		return r.RemoveCartItem(ctx, userID, productID)
	}

	_, err := r.pool.Exec(ctx,
		`INSERT INTO cart_items (user_id, product_id, quantity)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (user_id, product_id) DO UPDATE SET quantity = EXCLUDED.quantity`,
		userID, productID, quantity,
	)
	if err != nil {
		return fmt.Errorf("set cart item: %w", err)
	}
	return nil
}

// RemoveCartItem удаляет позицию из корзины пользователя.
func (r *PostgresRepository) RemoveCartItem(ctx context.Context, userID, productID int64) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM cart_items WHERE user_id = $1 AND product_id = $2`,
		userID, productID,
	)
	if err != nil {
		return fmt.Errorf("remove cart item: %w", err)
	}
	return nil
}

// ClearCart очищает корзину пользователя. Вызывается после успешного оформления заказа.
func (r *PostgresRepository) ClearCart(ctx context.Context, userID int64) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM cart_items WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}

// MergeCart сливает клиентскую корзину в серверную, суммируя количество по товарам.
// Используется при входе пользователя с локально накопленной корзиной.
func (r *PostgresRepository) MergeCart(ctx context.Context, userID int64, items []model.CartItem) error {
	if len(items) == 0 {
		return nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, it := range items {
		if it.Quantity <= 0 {
			continue
		}
		_, err := tx.Exec(ctx,
			`INSERT INTO cart_items (user_id, product_id, quantity)
			 VALUES ($1, $2, $3)
			 ON CONFLICT (user_id, product_id) DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity`,
			userID, it.ProductID, it.Quantity,
		)
		if err != nil {
			return fmt.Errorf("merge cart item: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}
