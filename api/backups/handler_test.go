package backups

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	corebackups "mdip/core/backups"
	"mdip/core/utils"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

type fakeService struct {
	createErr error
	actor     string
	label     string
}

func (f *fakeService) CreateBackup(_ context.Context, actor, label string) (*corebackups.Artifact, error) {
	f.actor, f.label = actor, label
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &corebackups.Artifact{Manifest: corebackups.Manifest{Filename: "backup_x.db", CreatedAt: time.Now().UTC(), DBEngine: "sqlite"}}, nil
}

func (f *fakeService) List(context.Context) ([]corebackups.Artifact, error) {
	return []corebackups.Artifact{{Manifest: corebackups.Manifest{Filename: "backup_x.db"}}}, nil
}

func (f *fakeService) Prune(context.Context, string) (int, error) { return 3, nil }

func newRouter(svc ServicePort, denied bool) http.Handler {
	r := chi.NewRouter()
	RegisterRoutes(r, RouteDeps{
		RequireAdmin: func(next http.HandlerFunc) http.HandlerFunc {
			return func(w http.ResponseWriter, req *http.Request) {
				if denied {
					http.Error(w, "forbidden", http.StatusForbidden)
					return
				}
				next(w, req)
			}
		},
		Handler: NewHandler(svc, utils.NewNopLogger()),
	})
	return r
}

func TestRoutesGoThroughAdminGuard(t *testing.T) {
	h := newRouter(&fakeService{}, true)
	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/backups/"},
		{http.MethodPost, "/backups/"},
		{http.MethodPost, "/backups/prune"},
	} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(tc.method, tc.path, nil))
		require.Equalf(t, http.StatusForbidden, rec.Code, "%s %s", tc.method, tc.path)
	}
}

func TestCreateListPrune(t *testing.T) {
	svc := &fakeService{}
	h := newRouter(svc, false)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/backups/", strings.NewReader(`{"label":"nightly"}`)))
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Equal(t, "nightly", svc.label)
	require.Equal(t, "system", svc.actor)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/backups/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Items []artifactDTO `json:"items"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Items, 1)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/backups/prune", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"removed":3}`, rec.Body.String())
}

func TestCreateBusyIsConflict(t *testing.T) {
	h := newRouter(&fakeService{createErr: corebackups.ErrBusy}, false)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/backups/", nil))
	require.Equal(t, http.StatusConflict, rec.Code)
}
