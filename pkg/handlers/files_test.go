package handlers

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/epicdraft-inc/epicdraft-engine/pkg/auth"
	"github.com/epicdraft-inc/epicdraft-engine/pkg/models"
	"github.com/epicdraft-inc/epicdraft-engine/pkg/testhelpers"
)

// uploadScreenshots posts a multipart request with the given filenames.
func (s *testServer) uploadScreenshots(t *testing.T, epicID string, filenames ...string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	for _, name := range filenames {
		part, err := writer.CreateFormFile("files", name)
		if err != nil {
			t.Fatalf("failed to create form file: %v", err)
		}
		if _, err := part.Write([]byte("png-bytes-" + name)); err != nil {
			t.Fatalf("failed to write form file: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("failed to close multipart writer: %v", err)
	}

	path := "/api/projects/" + s.projectID.String() + "/epics/" + epicID + "/files"
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Authorization", testhelpers.GenerateTestJWTWithBearer("user-1", testOrg, s.projectID.String(), ""))
	req.Header.Set(auth.OrgSlugHeader, testOrg)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) createEpic(t *testing.T) models.Epic {
	t.Helper()

	rec := s.doJSON(t, http.MethodPost, "/api/projects/"+s.projectID.String()+"/epics", map[string]string{
		"name": "Checkout",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create epic returned %d: %s", rec.Code, rec.Body.String())
	}
	return decodeBody[models.Epic](t, rec)
}

func TestUploadScreenshots_StoresAndLists(t *testing.T) {
	srv := newTestServer(t)
	srv.provision(t)
	epic := srv.createEpic(t)

	rec := srv.uploadScreenshots(t, epic.ID.String(), "home.png", "cart.png")
	if rec.Code != http.StatusCreated {
		t.Fatalf("upload returned %d: %s", rec.Code, rec.Body.String())
	}
	uploaded := decodeBody[[]models.DesignFile](t, rec)
	if len(uploaded) != 2 {
		t.Fatalf("uploaded %d files, want 2", len(uploaded))
	}
	for _, f := range uploaded {
		if !strings.Contains(f.ObjectKey, testOrg+"/") {
			t.Errorf("object key %q missing org prefix", f.ObjectKey)
		}
		if strings.Contains(f.ObjectKey, f.Filename) {
			t.Errorf("object key %q leaks the original filename", f.ObjectKey)
		}
	}

	if got := len(srv.store.Keys()); got != 2 {
		t.Errorf("store holds %d objects, want 2", got)
	}

	rec = srv.do(t, http.MethodGet, "/api/projects/"+srv.projectID.String()+"/epics/"+epic.ID.String()+"/files", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list returned %d: %s", rec.Code, rec.Body.String())
	}
	listed := decodeBody[[]models.DesignFile](t, rec)
	if len(listed) != 2 {
		t.Fatalf("listed %d files, want 2", len(listed))
	}
}

func TestUploadScreenshots_RejectsEmptyForm(t *testing.T) {
	srv := newTestServer(t)
	srv.provision(t)
	epic := srv.createEpic(t)

	rec := srv.uploadScreenshots(t, epic.ID.String())
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty upload, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestDeleteFile_RemovesRowAndObject(t *testing.T) {
	srv := newTestServer(t)
	srv.provision(t)
	epic := srv.createEpic(t)

	rec := srv.uploadScreenshots(t, epic.ID.String(), "home.png")
	if rec.Code != http.StatusCreated {
		t.Fatalf("upload returned %d: %s", rec.Code, rec.Body.String())
	}
	uploaded := decodeBody[[]models.DesignFile](t, rec)

	path := "/api/projects/" + srv.projectID.String() + "/epics/" + epic.ID.String() + "/files/" + uploaded[0].ID.String()
	rec = srv.do(t, http.MethodDelete, path, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete returned %d: %s", rec.Code, rec.Body.String())
	}

	if got := len(srv.store.Keys()); got != 0 {
		t.Errorf("store still holds %d objects after delete", got)
	}
}

func TestBulkDelete_RemovesRowsAndObjects(t *testing.T) {
	srv := newTestServer(t)
	srv.provision(t)
	epic := srv.createEpic(t)

	rec := srv.uploadScreenshots(t, epic.ID.String(), "home.png", "cart.png", "pay.png")
	if rec.Code != http.StatusCreated {
		t.Fatalf("upload returned %d: %s", rec.Code, rec.Body.String())
	}
	uploaded := decodeBody[[]models.DesignFile](t, rec)

	base := "/api/projects/" + srv.projectID.String() + "/epics/" + epic.ID.String() + "/files"
	rec = srv.doJSON(t, http.MethodPost, base+"/bulk-delete", map[string]any{
		"file_ids": []string{uploaded[0].ID.String(), uploaded[1].ID.String()},
	})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("bulk delete returned %d: %s", rec.Code, rec.Body.String())
	}

	if got := len(srv.store.Keys()); got != 1 {
		t.Errorf("store holds %d objects after bulk delete, want 1", got)
	}

	rec = srv.do(t, http.MethodGet, base, nil)
	listed := decodeBody[[]models.DesignFile](t, rec)
	if len(listed) != 1 || listed[0].ID != uploaded[2].ID {
		t.Errorf("expected only %s to remain", uploaded[2].Filename)
	}
}

func TestBulkDelete_RequiresIDs(t *testing.T) {
	srv := newTestServer(t)
	srv.provision(t)
	epic := srv.createEpic(t)

	base := "/api/projects/" + srv.projectID.String() + "/epics/" + epic.ID.String() + "/files"
	rec := srv.doJSON(t, http.MethodPost, base+"/bulk-delete", map[string]any{"file_ids": []string{}})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty id list, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestReorder_ReturnsPipelineOrder(t *testing.T) {
	srv := newTestServer(t)
	srv.provision(t)
	epic := srv.createEpic(t)

	rec := srv.uploadScreenshots(t, epic.ID.String(), "home.png", "cart.png")
	if rec.Code != http.StatusCreated {
		t.Fatalf("upload returned %d: %s", rec.Code, rec.Body.String())
	}
	uploaded := decodeBody[[]models.DesignFile](t, rec)

	base := "/api/projects/" + srv.projectID.String() + "/epics/" + epic.ID.String() + "/files"
	rec = srv.doJSON(t, http.MethodPost, base+"/reorder", map[string]any{
		"files": []map[string]any{
			{"id": uploaded[1].ID.String(), "order_index": 0},
			{"id": uploaded[0].ID.String(), "order_index": 1},
		},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("reorder returned %d: %s", rec.Code, rec.Body.String())
	}
	reordered := decodeBody[[]models.DesignFile](t, rec)
	if len(reordered) != 2 {
		t.Fatalf("reorder returned %d files, want 2", len(reordered))
	}
	if reordered[0].ID != uploaded[1].ID {
		t.Errorf("expected %s first after reorder", uploaded[1].Filename)
	}
}
