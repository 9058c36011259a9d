package pipeline

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/aluiziolira/go-scrape-chocolate/models"
)

// SQLiteWriter stores products in a single-file SQLite database.
// Rows keep emission order through the autoincrement id. Products are not
// deduplicated, and incomplete ones are stored as they arrive.
type SQLiteWriter struct {
	db   *sql.DB
	path string
	rows int
	mu   sync.Mutex
}

// NewSQLiteWriter opens (or creates) the database at filename and ensures
// the products table exists.
func NewSQLiteWriter(filename string) (*SQLiteWriter, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", filename+"?mode=rwc")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// SQLite only supports one writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	schema := `
	CREATE TABLE IF NOT EXISTS products (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT,
		price TEXT,
		url TEXT,
		page_url TEXT,
		scraped_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_products_page ON products(page_url);
	`
	if _, err := db.ExecContext(context.Background(), schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create products table: %w", err)
	}

	return &SQLiteWriter{db: db, path: filename}, nil
}

// Write inserts one batch inside a transaction.
func (sw *SQLiteWriter) Write(products []*models.Product) error {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	ctx := context.Background()
	tx, err := sw.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin sqlite transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO products (name, price, url, page_url, scraped_at)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare sqlite insert: %w", err)
	}
	defer stmt.Close()

	for _, product := range products {
		name := sql.NullString{}
		if product.Name != nil {
			name = sql.NullString{String: *product.Name, Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, name, product.Price, product.URL, product.PageURL, product.ScrapedAt.UTC()); err != nil {
			return fmt.Errorf("insert product %s: %w", product.URL, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit sqlite transaction: %w", err)
	}
	sw.rows += len(products)
	return nil
}

// Close closes the database handle.
func (sw *SQLiteWriter) Close() error {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	return sw.db.Close()
}

// Validate ensures this run stored at least one product.
func (sw *SQLiteWriter) Validate() error {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	if sw.rows == 0 {
		return fmt.Errorf("sqlite database %s has no new products", sw.path)
	}
	return nil
}
