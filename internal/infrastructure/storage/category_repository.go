package storage

import (
	"context"
	"database/sql"
	"fmt"

	"TrendsScanner/internal/domain"
	"TrendsScanner/internal/ports"
)

// CategoryRepository reads the seeded categories.
type CategoryRepository struct {
	db *sql.DB
}

var _ ports.CategoryRepository = (*CategoryRepository)(nil)

// NewCategoryRepository wires a sql.DB implementation.
func NewCategoryRepository(db *sql.DB) *CategoryRepository {
	return &CategoryRepository{db: db}
}

// ListCategories returns every category ordered by name.
func (r *CategoryRepository) ListCategories(ctx context.Context) ([]domain.Category, error) {
	query, args, err := psql.Select("id", "name", "slug").
		From("categories").
		OrderBy("name").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list categories: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query categories: %w", err)
	}
	defer rows.Close()

	var out []domain.Category
	for rows.Next() {
		var c domain.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Slug); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return out, nil
}
