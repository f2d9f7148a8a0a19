// Package notion is a minimal client for the pieces of the Notion API
// the export flow needs: OAuth token exchange, database discovery, and
// page creation.
package notion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const (
	defaultBaseURL = "https://api.notion.com/v1"
	apiVersion     = "2022-06-28"
)

// TokenResponse is the result of an OAuth code exchange.
type TokenResponse struct {
	AccessToken   string `json:"access_token"`
	WorkspaceID   string `json:"workspace_id"`
	WorkspaceName string `json:"workspace_name"`
	BotID         string `json:"bot_id"`
}

// Property describes one property of a Notion database schema.
type Property struct {
	ID       string          `json:"id"`
	Type     string          `json:"type"`
	Relation *RelationConfig `json:"relation,omitempty"`
}

// RelationConfig is the target of a relation property.
type RelationConfig struct {
	DatabaseID string `json:"database_id"`
}

// Database is a Notion database visible to the integration.
type Database struct {
	ID         string              `json:"id"`
	Title      string              `json:"title"`
	Properties map[string]Property `json:"properties"`
}

// Page is a created Notion page.
type Page struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// Client calls the Notion API.
// Use this interface for dependency injection to enable mocking in tests.
type Client interface {
	// ExchangeCode trades an OAuth authorization code for a workspace
	// access token using the integration's basic-auth credentials.
	ExchangeCode(ctx context.Context, code, redirectURI string) (*TokenResponse, error)

	// SearchDatabases lists the databases the token can access.
	SearchDatabases(ctx context.Context, token string) ([]Database, error)

	// RetrieveDatabase fetches one database including its property
	// schema, used to discover the relation property linking tasks back
	// to epics.
	RetrieveDatabase(ctx context.Context, token, databaseID string) (*Database, error)

	// CreatePage creates a page in a database with a title, markdown
	// body, and optional relation links to other pages.
	CreatePage(ctx context.Context, token string, req *CreatePageRequest) (*Page, error)
}

// CreatePageRequest describes a page to create.
type CreatePageRequest struct {
	DatabaseID string
	Title      string
	Markdown   string

	// RelationProperty and RelationPageIDs link the new page to pages
	// in a related database (task rows pointing at their epic row).
	RelationProperty string
	RelationPageIDs  []string
}

type client struct {
	baseURL      string
	clientID     string
	clientSecret string
	httpClient   *http.Client
	logger       *zap.Logger
}

// NewClient creates a Notion API client.
func NewClient(clientID, clientSecret string, logger *zap.Logger) Client {
	return &client{
		baseURL:      defaultBaseURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		logger:       logger.Named("notion"),
	}
}

// NewClientWithBaseURL creates a client against a custom endpoint.
// Used by tests to point at a local server.
func NewClientWithBaseURL(baseURL, clientID, clientSecret string, logger *zap.Logger) Client {
	c := NewClient(clientID, clientSecret, logger).(*client)
	c.baseURL = baseURL
	return c
}

func (c *client) ExchangeCode(ctx context.Context, code, redirectURI string) (*TokenResponse, error) {
	payload := map[string]string{
		"grant_type":   "authorization_code",
		"code":         code,
		"redirect_uri": redirectURI,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/oauth/token", bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(c.clientID, c.clientSecret)
	req.Header.Set("Content-Type", "application/json")

	var token TokenResponse
	if err := c.do(req, &token); err != nil {
		return nil, fmt.Errorf("oauth token exchange: %w", err)
	}
	return &token, nil
}

func (c *client) SearchDatabases(ctx context.Context, token string) ([]Database, error) {
	payload := map[string]any{
		"filter":    map[string]string{"property": "object", "value": "database"},
		"page_size": 100,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/search", bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	c.setHeaders(req, token)

	var result struct {
		Results []struct {
			ID    string `json:"id"`
			Title []struct {
				PlainText string `json:"plain_text"`
			} `json:"title"`
			Properties map[string]Property `json:"properties"`
		} `json:"results"`
	}
	if err := c.do(req, &result); err != nil {
		return nil, fmt.Errorf("search databases: %w", err)
	}

	databases := make([]Database, 0, len(result.Results))
	for _, r := range result.Results {
		var title string
		for _, t := range r.Title {
			title += t.PlainText
		}
		databases = append(databases, Database{ID: r.ID, Title: title, Properties: r.Properties})
	}
	return databases, nil
}

func (c *client) RetrieveDatabase(ctx context.Context, token, databaseID string) (*Database, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/databases/"+databaseID, nil)
	if err != nil {
		return nil, err
	}
	c.setHeaders(req, token)

	var result struct {
		ID    string `json:"id"`
		Title []struct {
			PlainText string `json:"plain_text"`
		} `json:"title"`
		Properties map[string]Property `json:"properties"`
	}
	if err := c.do(req, &result); err != nil {
		return nil, fmt.Errorf("retrieve database %s: %w", databaseID, err)
	}

	var title string
	for _, t := range result.Title {
		title += t.PlainText
	}
	return &Database{ID: result.ID, Title: title, Properties: result.Properties}, nil
}

func (c *client) CreatePage(ctx context.Context, token string, pageReq *CreatePageRequest) (*Page, error) {
	properties := map[string]any{
		"Name": map[string]any{
			"title": []map[string]any{
				{"text": map[string]string{"content": pageReq.Title}},
			},
		},
	}
	if pageReq.RelationProperty != "" && len(pageReq.RelationPageIDs) > 0 {
		relations := make([]map[string]string, 0, len(pageReq.RelationPageIDs))
		for _, id := range pageReq.RelationPageIDs {
			relations = append(relations, map[string]string{"id": id})
		}
		properties[pageReq.RelationProperty] = map[string]any{"relation": relations}
	}

	payload := map[string]any{
		"parent":     map[string]string{"database_id": pageReq.DatabaseID},
		"properties": properties,
		"children":   markdownToBlocks(pageReq.Markdown),
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/pages", bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	c.setHeaders(req, token)

	var page Page
	if err := c.do(req, &page); err != nil {
		return nil, fmt.Errorf("create page in %s: %w", pageReq.DatabaseID, err)
	}
	return &page, nil
}

func (c *client) setHeaders(req *http.Request, token string) {
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Notion-Version", apiVersion)
}

func (c *client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("notion request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("notion API error",
			zap.Int("status", resp.StatusCode),
			zap.String("path", req.URL.Path))
		return &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("parse notion response: %w", err)
		}
	}
	return nil
}

// APIError is a non-200 Notion response.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("notion HTTP %d: %s", e.StatusCode, e.Body)
}

// Ensure client implements Client at compile time.
var _ Client = (*client)(nil)
