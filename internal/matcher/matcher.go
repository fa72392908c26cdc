package matcher

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/evimparca-cloud/stock-sub001/internal/models"
	"github.com/evimparca-cloud/stock-sub001/internal/store"
	"github.com/evimparca-cloud/stock-sub001/internal/util"

	"go.uber.org/zap"
)

// Matcher resolves marketplace line items to product mappings. An
// unmatched line never aborts ingestion: it degrades to a placeholder
// product with a non-syncing mapping, flagged for operator review.
type Matcher struct {
	store  *store.Store
	logger *zap.Logger
}

// NewMatcher creates a new matcher
func NewMatcher(st *store.Store) *Matcher {
	return &Matcher{
		store:  st,
		logger: util.GetLogger(),
	}
}

// Resolve maps a remote line item to a ProductMapping. Lookup order:
// local product by SKU or location code, then an existing mapping by
// remote SKU, then placeholder creation. The returned error is only
// ever a storage failure; "no match" is not an error.
func (m *Matcher) Resolve(ctx context.Context, marketplaceID string, line models.RemoteLine) (*models.ProductMapping, error) {
	identifier := line.Barcode
	if identifier == "" {
		identifier = line.RemoteProductID
	}
	if identifier == "" {
		// A line with no identifier at all still gets recorded.
		identifier = "UNKNOWN"
	}

	product, err := m.store.GetProductByIdentifier(ctx, identifier)
	switch {
	case err == nil:
		return m.ensureMapping(ctx, product.ID, marketplaceID, identifier, line.RemoteProductID, true)
	case !errors.Is(err, store.ErrNotFound):
		return nil, fmt.Errorf("product lookup failed: %w", err)
	}

	mapping, err := m.store.GetMappingByRemoteSKU(ctx, marketplaceID, identifier)
	switch {
	case err == nil:
		return mapping, nil
	case !errors.Is(err, store.ErrNotFound):
		return nil, fmt.Errorf("mapping lookup failed: %w", err)
	}

	return m.createPlaceholder(ctx, marketplaceID, identifier, line)
}

// createPlaceholder creates (or reuses) the placeholder product and its
// non-syncing mapping for an unmatched identifier. The deterministic
// placeholder SKU makes repeated unmatched lines converge on one row.
func (m *Matcher) createPlaceholder(ctx context.Context, marketplaceID, identifier string, line models.RemoteLine) (*models.ProductMapping, error) {
	sku := PlaceholderSKU(identifier)
	name := line.ProductName
	if name == "" {
		name = identifier
	}
	name += " [unmatched]"

	product, err := m.store.EnsurePlaceholderProduct(ctx, sku, name)
	if err != nil {
		return nil, fmt.Errorf("placeholder creation failed: %w", err)
	}

	util.UnmatchedLinesTotal.Inc()
	m.logger.Warn("Unmatched line resolved to placeholder",
		zap.String("marketplace_id", marketplaceID),
		zap.String("identifier", identifier),
		zap.String("placeholder_sku", sku))

	return m.ensureMapping(ctx, product.ID, marketplaceID, identifier, line.RemoteProductID, false)
}

func (m *Matcher) ensureMapping(ctx context.Context, productID int64, marketplaceID, remoteSKU, remoteProductID string, syncStock bool) (*models.ProductMapping, error) {
	mapping, err := m.store.EnsureMapping(ctx, &models.ProductMapping{
		ProductID:       productID,
		MarketplaceID:   marketplaceID,
		RemoteSKU:       remoteSKU,
		RemoteProductID: remoteProductID,
		SyncStock:       syncStock,
	})
	if err != nil {
		return nil, fmt.Errorf("mapping creation failed: %w", err)
	}
	return mapping, nil
}

// PlaceholderSKU derives the deterministic SKU used for the placeholder
// product of an unmatched remote identifier.
func PlaceholderSKU(identifier string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '-'
		}
	}, identifier)
	return "UNMATCHED-" + strings.ToUpper(cleaned)
}
