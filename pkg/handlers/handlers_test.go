package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/epicdraft-inc/epicdraft-engine/pkg/auth"
	"github.com/epicdraft-inc/epicdraft-engine/pkg/llm"
	"github.com/epicdraft-inc/epicdraft-engine/pkg/repositories"
	"github.com/epicdraft-inc/epicdraft-engine/pkg/services"
	"github.com/epicdraft-inc/epicdraft-engine/pkg/storage"
	"github.com/epicdraft-inc/epicdraft-engine/pkg/testhelpers"
)

const testOrg = "acme"

// testServer wires real services over in-memory repositories behind the
// real auth middleware with signature verification disabled. The tenant
// middleware is a pass-through since no database is involved.
type testServer struct {
	mux       *http.ServeMux
	projectID uuid.UUID
	projects  *repositories.MemoryProjectRepository
	epics     *repositories.MemoryEpicRepository
	files     *repositories.MemoryDesignFileRepository
	store     *storage.MemoryStore
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	logger := zap.NewNop()

	projects := repositories.NewMemoryProjectRepository()
	epics := repositories.NewMemoryEpicRepository()
	files := repositories.NewMemoryDesignFileRepository()
	artifacts := repositories.NewMemoryArtifactRepository()
	store := storage.NewMemoryStore()

	jwksClient, err := auth.NewJWKSClient(&auth.JWKSConfig{EnableVerification: false})
	if err != nil {
		t.Fatalf("failed to create JWKS client: %v", err)
	}
	authMiddleware := auth.NewMiddleware(auth.NewAuthService(jwksClient, logger), logger)
	passthrough := TenantMiddleware(func(next http.HandlerFunc) http.HandlerFunc { return next })

	projectService := services.NewProjectService(projects, logger)
	epicService := services.NewEpicService(epics, files, artifacts, projects, store, logger)
	uploadService := services.NewUploadService(epics, files, projects, store, logger)
	analyzeService := services.NewAnalyzeService(epics, files, store, &llm.MockVisionClient{}, logger)

	mux := http.NewServeMux()
	NewProjectsHandler(projectService, logger).RegisterRoutes(mux, authMiddleware, passthrough)
	NewEpicsHandler(epicService, logger).RegisterRoutes(mux, authMiddleware, passthrough)
	NewFilesHandler(uploadService, logger).RegisterRoutes(mux, authMiddleware, passthrough)
	NewAnalyzeHandler(analyzeService, logger).RegisterRoutes(mux, authMiddleware, passthrough)

	return &testServer{
		mux:       mux,
		projectID: uuid.New(),
		projects:  projects,
		epics:     epics,
		files:     files,
		store:     store,
	}
}

// do performs an authenticated request against the test mux.
func (s *testServer) do(t *testing.T, method, path string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Authorization", testhelpers.GenerateTestJWTWithBearer("user-1", testOrg, s.projectID.String(), "dev@acme.test"))
	req.Header.Set(auth.OrgSlugHeader, testOrg)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) doJSON(t *testing.T, method, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()

	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("failed to marshal request body: %v", err)
	}
	return s.do(t, method, path, bytes.NewReader(data))
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var out T
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatalf("failed to decode response body %q: %v", rec.Body.String(), err)
	}
	return out
}

// provision registers the test project through the real endpoint.
func (s *testServer) provision(t *testing.T) {
	t.Helper()

	rec := s.doJSON(t, http.MethodPost, "/api/projects", map[string]string{"name": "Acme App"})
	if rec.Code != http.StatusOK {
		t.Fatalf("provision returned %d: %s", rec.Code, rec.Body.String())
	}
}
