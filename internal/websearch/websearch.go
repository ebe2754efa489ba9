// Package websearch is a thin client for the Brave web search API.
package websearch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

const defaultBaseURL = "https://api.search.brave.com/res/v1"

// Result is one ranked search hit.
type Result struct {
	Title       string
	URL         string
	Description string
	Snippets    []string
	// Score falls off with rank: 1.0 for the first hit, then 1/rank.
	Score float64
}

type Client struct {
	http    *http.Client
	baseURL string
	apiKey  string
}

func New(httpClient *http.Client, baseURL, apiKey string) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("search api key is required")
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{http: httpClient, baseURL: strings.TrimRight(baseURL, "/"), apiKey: apiKey}, nil
}

type braveResponse struct {
	Web struct {
		Results []struct {
			Title         string   `json:"title"`
			URL           string   `json:"url"`
			Description   string   `json:"description"`
			ExtraSnippets []string `json:"extra_snippets"`
		} `json:"results"`
	} `json:"web"`
}

// Search runs a web search and returns up to limit ranked results.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	if c == nil {
		return nil, fmt.Errorf("search client is not configured")
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("query is required")
	}
	if limit <= 0 {
		limit = 3
	}

	q := url.Values{}
	q.Set("q", query)
	q.Set("count", fmt.Sprintf("%d", limit))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/web/search?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("web search: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("web search: status %d", resp.StatusCode)
	}

	var parsed braveResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("web search: decode: %w", err)
	}

	results := make([]Result, 0, limit)
	for i, hit := range parsed.Web.Results {
		if i >= limit {
			break
		}
		results = append(results, Result{
			Title:       hit.Title,
			URL:         hit.URL,
			Description: hit.Description,
			Snippets:    hit.ExtraSnippets,
			Score:       1.0 / float64(i+1),
		})
	}
	return results, nil
}
