package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/evimparca-cloud/stock-sub001/internal/models"
	"github.com/evimparca-cloud/stock-sub001/internal/util"

	"go.uber.org/zap"
)

// HTTPMarketplaceClient is a MarketplaceClient talking to the
// marketplace integration gateway, which handles signing and pagination
// and exposes normalized package payloads.
type HTTPMarketplaceClient struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
}

// NewHTTPMarketplaceClient creates a new marketplace client
func NewHTTPMarketplaceClient(baseURL string) *HTTPMarketplaceClient {
	return &HTTPMarketplaceClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
		logger:  util.GetLogger(),
	}
}

// FetchPackagesByStatus fetches one page of packages in the given
// remote status.
func (c *HTTPMarketplaceClient) FetchPackagesByStatus(ctx context.Context, marketplaceID, remoteStatus string) ([]models.RemotePackage, error) {
	u := fmt.Sprintf("%s/marketplaces/%s/packages?status=%s",
		c.baseURL, url.PathEscape(marketplaceID), url.QueryEscape(remoteStatus))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("marketplace fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("marketplace fetch returned status %d", resp.StatusCode)
	}

	var raw []json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode package list: %w", err)
	}

	packages := make([]models.RemotePackage, 0, len(raw))
	for _, msg := range raw {
		pkg, err := models.ParseRemotePackage(msg)
		if err != nil {
			c.logger.Warn("Skipping malformed package payload",
				zap.String("marketplace_id", marketplaceID), zap.Error(err))
			continue
		}
		packages = append(packages, *pkg)
	}

	return packages, nil
}
