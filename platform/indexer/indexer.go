package indexer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/tokengate/tokengate/verification/domain"
)

const httpTimeout = 15 * time.Second

var httpClient = &http.Client{Timeout: httpTimeout}

// Client implements platform.AssetSource against an OpenSea-style holdings
// endpoint. The engine fetches the full asset list once per attempt, so this
// client follows pagination internally.
type Client struct {
	baseURL string
	apiKey  string
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{baseURL: baseURL, apiKey: apiKey}
}

type assetDTO struct {
	Collection string `json:"collection"`
	Traits     []struct {
		TraitType string `json:"trait_type"`
		Value     string `json:"value"`
	} `json:"traits"`
}

type assetsPage struct {
	NFTs []assetDTO `json:"nfts"`
	Next string     `json:"next"`
}

func (c *Client) GetAssets(ctx context.Context, address string) ([]domain.Asset, error) {
	var assets []domain.Asset
	cursor := ""

	for {
		page, err := c.fetchPage(ctx, address, cursor)
		if err != nil {
			return nil, err
		}
		for _, dto := range page.NFTs {
			attrs := make(map[string]string, len(dto.Traits))
			for _, t := range dto.Traits {
				attrs[t.TraitType] = t.Value
			}
			assets = append(assets, domain.Asset{Slug: dto.Collection, Attributes: attrs})
		}
		if page.Next == "" {
			break
		}
		cursor = page.Next
	}

	return assets, nil
}

func (c *Client) fetchPage(ctx context.Context, address, cursor string) (*assetsPage, error) {
	targetURL := fmt.Sprintf("%s/chain/ethereum/account/%s/nfts", c.baseURL, url.PathEscape(address))
	if cursor != "" {
		targetURL += "?next=" + url.QueryEscape(cursor)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-KEY", c.apiKey)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("asset lookup failed: status=%d body=%s", resp.StatusCode, string(data[:min(len(data), 512)]))
	}

	var page assetsPage
	if err := json.Unmarshal(data, &page); err != nil {
		return nil, fmt.Errorf("asset lookup: malformed response: %w", err)
	}
	return &page, nil
}
