package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/mmeshcher/craftstore-system/internal/model"
)

// ListProducts возвращает витринные представления активных товаров,
// при необходимости отфильтрованные по категории.
func (r *PostgresRepository) ListProducts(ctx context.Context, categorySlug string) ([]model.ProductView, error) {
	query := `SELECT p.id, p.name, p.description, p.price, p.stock, p.image_url,
		 COALESCE(c.name, ''), COALESCE(a.name, '')
		 FROM products p
		 LEFT JOIN categories c ON c.id = p.category_id
		 LEFT JOIN artisans a ON a.id = p.artisan_id
		 WHERE p.is_active`
	args := []any{}
	if categorySlug != "" {
		query += ` AND c.slug = $1`
		args = append(args, categorySlug)
	}
	query += ` ORDER BY p.created_at DESC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select products: %w", err)
	}
	defer rows.Close()

	var res []model.ProductView
	for rows.Next() {
		var (
			v          model.ProductView
			priceCents int64
		)
		if err := rows.Scan(&v.ID, &v.Name, &v.Description, &priceCents, &v.Stock, &v.ImageURL, &v.CategoryName, &v.ArtisanName); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		v.Price = model.FloatFromCents(priceCents)
		res = append(res, v)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// GetProductView возвращает витринное представление одного товара.
func (r *PostgresRepository) GetProductView(ctx context.Context, id int64) (*model.ProductView, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT p.id, p.name, p.description, p.price, p.stock, p.image_url,
		 COALESCE(c.name, ''), COALESCE(a.name, '')
		 FROM products p
		 LEFT JOIN categories c ON c.id = p.category_id
		 LEFT JOIN artisans a ON a.id = p.artisan_id
		 WHERE p.id = $1 AND p.is_active`,
		id,
	)

	var (
		v          model.ProductView
		priceCents int64
	)
	err := row.Scan(&v.ID, &v.Name, &v.Description, &priceCents, &v.Stock, &v.ImageURL, &v.CategoryName, &v.ArtisanName)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("get product view: %w", err)
	}
	v.Price = model.FloatFromCents(priceCents)

	return &v, nil
}

// GetProduct возвращает товар по идентификатору с актуальной ценой и остатком.
// Используется сервисом оформления заказа для повторной валидации корзины.
func (r *PostgresRepository) GetProduct(ctx context.Context, id int64) (*model.Product, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, name, description, price, stock, is_active, category_id, artisan_id, image_url, created_at
		 FROM products WHERE id = $1`,
		id,
	)

	var p model.Product
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.PriceCents, &p.Stock, &p.IsActive,
		&p.CategoryID, &p.ArtisanID, &p.ImageURL, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("get product: %w", err)
	}

	return &p, nil
}

// ListCategories возвращает все категории каталога.
func (r *PostgresRepository) ListCategories(ctx context.Context) ([]model.Category, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, slug FROM categories ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("select categories: %w", err)
	}
	defer rows.Close()

	var res []model.Category
	for rows.Next() {
		var c model.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Slug); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		res = append(res, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// CreateProduct создаёт товар каталога.
func (r *PostgresRepository) CreateProduct(ctx context.Context, p *model.Product) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO products (name, description, price, stock, is_active, category_id, artisan_id, image_url)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id`,
		p.Name, p.Description, p.PriceCents, p.Stock, p.IsActive, p.CategoryID, p.ArtisanID, p.ImageURL,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert product: %w", err)
	}
	return id, nil
}

// UpdateProduct обновляет товар каталога.
func (r *PostgresRepository) UpdateProduct(ctx context.Context, p *model.Product) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE products
		 SET name = $2, description = $3, price = $4, stock = $5, is_active = $6,
		     category_id = $7, artisan_id = $8, image_url = $9
		 WHERE id = $1`,
		p.ID, p.Name, p.Description, p.PriceCents, p.Stock, p.IsActive, p.CategoryID, p.ArtisanID, p.ImageURL,
	)
	if err != nil {
		return fmt.Errorf("update product: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrProductNotFound
	}
	return nil
}

// DeleteProduct удаляет товар каталога.
func (r *PostgresRepository) DeleteProduct(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrProductNotFound
	}
	return nil
}
