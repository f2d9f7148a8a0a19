package notion

import "context"

// MockClient is a configurable mock for testing export flows.
// Set the function fields to control behavior in tests.
type MockClient struct {
	ExchangeCodeFunc     func(ctx context.Context, code, redirectURI string) (*TokenResponse, error)
	SearchDatabasesFunc  func(ctx context.Context, token string) ([]Database, error)
	RetrieveDatabaseFunc func(ctx context.Context, token, databaseID string) (*Database, error)
	CreatePageFunc       func(ctx context.Context, token string, req *CreatePageRequest) (*Page, error)

	// Call tracking for verification
	ExchangeCodeCalls     int
	SearchDatabasesCalls  int
	RetrieveDatabaseCalls int
	CreatePageCalls       int

	// CreatedPages records every CreatePage request.
	CreatedPages []*CreatePageRequest
}

func (m *MockClient) ExchangeCode(ctx context.Context, code, redirectURI string) (*TokenResponse, error) {
	m.ExchangeCodeCalls++
	if m.ExchangeCodeFunc != nil {
		return m.ExchangeCodeFunc(ctx, code, redirectURI)
	}
	return &TokenResponse{AccessToken: "mock-token"}, nil
}

func (m *MockClient) SearchDatabases(ctx context.Context, token string) ([]Database, error) {
	m.SearchDatabasesCalls++
	if m.SearchDatabasesFunc != nil {
		return m.SearchDatabasesFunc(ctx, token)
	}
	return nil, nil
}

func (m *MockClient) RetrieveDatabase(ctx context.Context, token, databaseID string) (*Database, error) {
	m.RetrieveDatabaseCalls++
	if m.RetrieveDatabaseFunc != nil {
		return m.RetrieveDatabaseFunc(ctx, token, databaseID)
	}
	return &Database{ID: databaseID}, nil
}

func (m *MockClient) CreatePage(ctx context.Context, token string, req *CreatePageRequest) (*Page, error) {
	m.CreatePageCalls++
	m.CreatedPages = append(m.CreatedPages, req)
	if m.CreatePageFunc != nil {
		return m.CreatePageFunc(ctx, token, req)
	}
	return &Page{ID: "mock-page", URL: "https://notion.so/mock-page"}, nil
}

var _ Client = (*MockClient)(nil)
