package repository

import (
	"context"
	"fmt"

	"github.com/mmeshcher/craftstore-system/internal/model"
)

// SalesSummary — сводка продаж для административной панели.
type SalesSummary struct {
	RevenueCents   int64
	OrdersByStatus map[model.OrderStatus]int
	TopProducts    []ProductSales
}

// ProductSales — продажи одного товара.
type ProductSales struct {
	ProductID    int64
	ProductName  string
	Quantity     int64
	RevenueCents int64
}

// GetSalesSummary собирает сводку продаж: выручку по оплаченным заказам,
// количество заказов по статусам и самые продаваемые товары.
func (r *PostgresRepository) GetSalesSummary(ctx context.Context, topLimit int) (*SalesSummary, error) {
	s := &SalesSummary{OrdersByStatus: make(map[model.OrderStatus]int)}

	err := r.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(total), 0)
		 FROM orders
		 WHERE payment_status = $1`,
		string(model.PaymentStatusCompleted),
	).Scan(&s.RevenueCents)
	if err != nil {
		return nil, fmt.Errorf("sum revenue: %w", err)
	}

	rows, err := r.pool.Query(ctx, `SELECT status, COUNT(*) FROM orders GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count orders: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan order count: %w", err)
		}
		s.OrdersByStatus[model.OrderStatus(status)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	topRows, err := r.pool.Query(ctx,
		`SELECT oi.product_id, oi.product_name, SUM(oi.quantity), SUM(oi.price * oi.quantity)
		 FROM order_items oi
		 JOIN orders o ON o.id = oi.order_id
		 WHERE o.payment_status = $1
		 GROUP BY oi.product_id, oi.product_name
		 ORDER BY SUM(oi.quantity) DESC
		 LIMIT $2`,
		string(model.PaymentStatusCompleted), topLimit,
	)
	if err != nil {
		return nil, fmt.Errorf("select top products: %w", err)
	}
	defer topRows.Close()

	for topRows.Next() {
		var p ProductSales
		if err := topRows.Scan(&p.ProductID, &p.ProductName, &p.Quantity, &p.RevenueCents); err != nil {
			return nil, fmt.Errorf("scan product sales: %w", err)
		}
		s.TopProducts = append(s.TopProducts, p)
	}
	if err := topRows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return s, nil
}
