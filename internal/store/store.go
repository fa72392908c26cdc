package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/evimparca-cloud/stock-sub001/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// ErrOrderExists is returned when an order with the same marketplace
// order id has already been created. The unique index on
// orders(marketplace_order_id) is the concurrency gate: the first writer
// wins creation, every later writer observes this error.
var ErrOrderExists = errors.New("order already exists")

const uniqueViolation = "23505"

type Store struct {
	db *sqlx.DB
}

// NewStore creates a new database store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// NewStoreWithDB wraps an existing connection, used by tests.
func NewStoreWithDB(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// GetDB returns the underlying database connection
func (s *Store) GetDB() *sqlx.DB {
	return s.db
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation
}

// GetProductByID retrieves a product by ID
func (s *Store) GetProductByID(ctx context.Context, id int64) (*models.Product, error) {
	var product models.Product
	err := s.db.GetContext(ctx, &product, "SELECT * FROM products WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("product %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// GetProductBySKU retrieves a product by SKU
func (s *Store) GetProductBySKU(ctx context.Context, sku string) (*models.Product, error) {
	var product models.Product
	err := s.db.GetContext(ctx, &product, "SELECT * FROM products WHERE sku = $1", sku)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("product %s: %w", sku, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// GetProductByIdentifier retrieves a product whose SKU or location code
// equals the given marketplace identifier.
func (s *Store) GetProductByIdentifier(ctx context.Context, identifier string) (*models.Product, error) {
	var product models.Product
	err := s.db.GetContext(ctx, &product,
		"SELECT * FROM products WHERE sku = $1 OR location = $1 ORDER BY (sku = $1) DESC LIMIT 1", identifier)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("product %s: %w", identifier, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// CreateProduct inserts a product.
func (s *Store) CreateProduct(ctx context.Context, p *models.Product) error {
	query := `
		INSERT INTO products (sku, name, stock_quantity, price, location, metadata, requires_review)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at`

	return s.db.GetContext(ctx, p, query,
		p.SKU, p.Name, p.StockQuantity, p.Price, p.Location, p.Metadata, p.RequiresReview)
}

// EnsurePlaceholderProduct creates the placeholder product for an
// unmatched line, or returns the existing one. Idempotent under
// concurrent callers: insertion races resolve through the unique index
// on sku and a re-read.
func (s *Store) EnsurePlaceholderProduct(ctx context.Context, sku, name string) (*models.Product, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (sku, name, stock_quantity, price, location, metadata, requires_review)
		VALUES ($1, $2, 0, 0, '', '', TRUE)
		ON CONFLICT (sku) DO NOTHING`, sku, name)
	if err != nil {
		return nil, fmt.Errorf("failed to create placeholder product: %w", err)
	}
	return s.GetProductBySKU(ctx, sku)
}

// GetMappingByID retrieves a mapping by ID
func (s *Store) GetMappingByID(ctx context.Context, id int64) (*models.ProductMapping, error) {
	var m models.ProductMapping
	err := s.db.GetContext(ctx, &m, "SELECT * FROM product_mappings WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("mapping %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// GetMappingByRemoteSKU retrieves the mapping a marketplace uses for a
// remote SKU.
func (s *Store) GetMappingByRemoteSKU(ctx context.Context, marketplaceID, remoteSKU string) (*models.ProductMapping, error) {
	var m models.ProductMapping
	err := s.db.GetContext(ctx, &m,
		"SELECT * FROM product_mappings WHERE marketplace_id = $1 AND remote_sku = $2", marketplaceID, remoteSKU)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("mapping %s/%s: %w", marketplaceID, remoteSKU, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// GetMappingForProduct retrieves the mapping between a product and a
// marketplace.
func (s *Store) GetMappingForProduct(ctx context.Context, productID int64, marketplaceID string) (*models.ProductMapping, error) {
	var m models.ProductMapping
	err := s.db.GetContext(ctx, &m,
		"SELECT * FROM product_mappings WHERE product_id = $1 AND marketplace_id = $2", productID, marketplaceID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("mapping %d/%s: %w", productID, marketplaceID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// EnsureMapping creates a mapping or returns the existing one for the
// (product, marketplace) pair. Never deletes or downgrades an existing
// mapping.
func (s *Store) EnsureMapping(ctx context.Context, m *models.ProductMapping) (*models.ProductMapping, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO product_mappings (product_id, marketplace_id, remote_sku, remote_product_id, sync_stock)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (product_id, marketplace_id) DO NOTHING`,
		m.ProductID, m.MarketplaceID, m.RemoteSKU, m.RemoteProductID, m.SyncStock)
	if err != nil {
		return nil, fmt.Errorf("failed to create mapping: %w", err)
	}
	return s.GetMappingForProduct(ctx, m.ProductID, m.MarketplaceID)
}

// ListProductsRequiringReview returns placeholder products awaiting
// operator review.
func (s *Store) ListProductsRequiringReview(ctx context.Context, limit int) ([]models.Product, error) {
	var products []models.Product
	err := s.db.SelectContext(ctx, &products,
		"SELECT * FROM products WHERE requires_review ORDER BY created_at DESC LIMIT $1", limit)
	return products, err
}
