package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/aluiziolira/go-bookstore-crawler/models"
	"github.com/aluiziolira/go-bookstore-crawler/parser"
)

// ReplaceAll swaps the entire contents of a collection for the given
// item set inside one transaction: delete, then bulk insert. The crawl
// owns the collection wholesale, so there is no incremental merge.
func (s *Store) ReplaceAll(ctx context.Context, collection string, items []*models.EnrichedItem) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM books WHERE collection = ?`, collection); err != nil {
		return 0, fmt.Errorf("clear collection %s: %w", collection, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO books (
			id, collection, category, title, price, price_value,
			image_url, detail_url, description, catalog_code, product_type,
			price_excl_tax, price_incl_tax, tax, availability, review_count,
			in_stock, scraped_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, item := range items {
		if item == nil {
			continue
		}
		row := toStored(collection, item)
		if _, err := stmt.ExecContext(ctx,
			row.ID, row.Collection, row.Category, row.Title, row.Price, row.PriceValue,
			row.ImageURL, row.DetailURL, row.Description, row.CatalogCode, row.ProductType,
			row.PriceExclTax, row.PriceInclTax, row.Tax, row.Availability, row.ReviewCount,
			row.InStock, row.ScrapedAt,
		); err != nil {
			return 0, fmt.Errorf("insert %q: %w", row.Title, err)
		}
		inserted++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}
	return inserted, nil
}

func toStored(collection string, item *models.EnrichedItem) models.StoredItem {
	row := models.StoredItem{
		ID:         uuid.NewString(),
		Collection: collection,
		Category:   item.Category,
		Title:      item.Title,
		Price:      item.Price,
		PriceValue: parser.PriceValue(item.Price),
		ImageURL:   item.ImageURL,
		DetailURL:  item.DetailURL,
		ScrapedAt:  item.ScrapedAt,
	}
	if d := item.Detail; d != nil {
		row.Description = d.Description
		row.CatalogCode = d.CatalogCode
		row.ProductType = d.ProductType
		row.PriceExclTax = d.PriceExclTax
		row.PriceInclTax = d.PriceInclTax
		row.Tax = d.Tax
		row.Availability = d.Availability
		row.ReviewCount = d.ReviewCount
		row.InStock = parser.InStock(d.Availability)
	}
	return row
}

// ListOptions filters and paginates book listings.
type ListOptions struct {
	Category string
	MinPrice float64
	MaxPrice float64
	Page     int
	Limit    int
}

const bookColumns = `
	id, category, title, price, price_value, image_url, detail_url,
	description, catalog_code, product_type, price_excl_tax,
	price_incl_tax, tax, availability, review_count, in_stock, scraped_at`

// ListBooks returns one page of books plus the total match count.
func (s *Store) ListBooks(ctx context.Context, collection string, opts ListOptions) ([]models.StoredItem, int, error) {
	where := []string{"collection = ?"}
	args := []any{collection}

	if opts.Category != "" {
		where = append(where, "category = ?")
		args = append(args, opts.Category)
	}
	if opts.MinPrice > 0 {
		where = append(where, "price_value >= ?")
		args = append(args, opts.MinPrice)
	}
	if opts.MaxPrice > 0 {
		where = append(where, "price_value <= ?")
		args = append(args, opts.MaxPrice)
	}
	clause := strings.Join(where, " AND ")

	var total int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM books WHERE `+clause, args...,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count books: %w", err)
	}

	if opts.Limit <= 0 {
		opts.Limit = 50
	}
	if opts.Page <= 0 {
		opts.Page = 1
	}
	offset := (opts.Page - 1) * opts.Limit

	query := `SELECT ` + bookColumns + ` FROM books WHERE ` + clause +
		` ORDER BY title LIMIT ? OFFSET ?`
	rows, err := s.db.QueryContext(ctx, query, append(args, opts.Limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list books: %w", err)
	}
	defer rows.Close()

	var items []models.StoredItem
	for rows.Next() {
		item, err := scanBook(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, item)
	}
	return items, total, rows.Err()
}

// GetBook fetches one book by ID, returning nil when it does not exist.
func (s *Store) GetBook(ctx context.Context, collection, id string) (*models.StoredItem, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+bookColumns+` FROM books WHERE collection = ? AND id = ?`,
		collection, id,
	)
	item, err := scanBook(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &item, nil
}

// Categories returns the distinct category labels in a collection.
func (s *Store) Categories(ctx context.Context, collection string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT category FROM books WHERE collection = ? ORDER BY category`,
		collection,
	)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var categories []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

// CategoryStats aggregates the collection per category. Placeholder
// prices (stored as 0) are excluded from the price aggregates via
// NULLIF so they do not drag the averages down.
func (s *Store) CategoryStats(ctx context.Context, collection string) ([]models.CategoryStats, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT
			category,
			COUNT(*) AS total_items,
			COALESCE(ROUND(AVG(NULLIF(price_value, 0)), 2), 0) AS average_price,
			COALESCE(MIN(NULLIF(price_value, 0)), 0) AS min_price,
			COALESCE(MAX(NULLIF(price_value, 0)), 0) AS max_price,
			COALESCE(SUM(in_stock), 0) AS total_in_stock
		FROM books
		WHERE collection = ?
		GROUP BY category
		ORDER BY total_items DESC, category
	`, collection)
	if err != nil {
		return nil, fmt.Errorf("category stats: %w", err)
	}
	defer rows.Close()

	var stats []models.CategoryStats
	for rows.Next() {
		var st models.CategoryStats
		if err := rows.Scan(&st.Category, &st.TotalItems, &st.AveragePrice, &st.MinPrice, &st.MaxPrice, &st.TotalInStock); err != nil {
			return nil, fmt.Errorf("scan category stats: %w", err)
		}
		stats = append(stats, st)
	}
	return stats, rows.Err()
}

// Overview summarizes the whole collection.
func (s *Store) Overview(ctx context.Context, collection string) (models.OverviewStats, error) {
	var overview models.OverviewStats
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COUNT(DISTINCT category),
			COALESCE(ROUND(AVG(NULLIF(price_value, 0)), 2), 0),
			COALESCE(SUM(in_stock), 0)
		FROM books
		WHERE collection = ?
	`, collection).Scan(&overview.TotalItems, &overview.TotalCategories, &overview.AveragePrice, &overview.TotalInStock)
	if err != nil {
		return models.OverviewStats{}, fmt.Errorf("overview stats: %w", err)
	}
	return overview, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBook(row rowScanner) (models.StoredItem, error) {
	var item models.StoredItem
	err := row.Scan(
		&item.ID, &item.Category, &item.Title, &item.Price, &item.PriceValue,
		&item.ImageURL, &item.DetailURL, &item.Description, &item.CatalogCode,
		&item.ProductType, &item.PriceExclTax, &item.PriceInclTax, &item.Tax,
		&item.Availability, &item.ReviewCount, &item.InStock, &item.ScrapedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return item, err
		}
		return item, fmt.Errorf("scan book: %w", err)
	}
	return item, nil
}
