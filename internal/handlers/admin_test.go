package handlers_test

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheKaroKaro/IDExpatsInMY/internal/handlers"
	appmiddleware "github.com/TheKaroKaro/IDExpatsInMY/internal/middleware"
	"github.com/TheKaroKaro/IDExpatsInMY/internal/store"
	"github.com/TheKaroKaro/IDExpatsInMY/internal/turnstile"
)

const (
	testPassword  = "hunter2"
	testJWTSecret = "test-secret"
)

func newAdmin(t *testing.T) (*fakeStore, *store.Client, *handlers.Admin) {
	t.Helper()
	fs, st := testStore(t)
	admin := handlers.NewAdmin(st, map[string]string{
		"listings": "Contacts",
		"articles": "Articles",
		"comments": "Comments",
	}, "Articles", testPassword, testJWTSecret)
	return fs, st, admin
}

func TestAdminLogin(t *testing.T) {
	_, _, admin := newAdmin(t)

	rec := postJSON(admin.Login, "/api/admin/login", `{"password": "wrong"}`)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = postJSON(admin.Login, "/api/admin/login", fmt.Sprintf(`{"password": %q}`, testPassword))
	require.Equal(t, http.StatusOK, rec.Code)
	token, _ := decodeBody(t, rec)["token"].(string)
	assert.NotEmpty(t, token)
}

func TestAdminLoginUnconfigured(t *testing.T) {
	_, st := testStore(t)
	admin := handlers.NewAdmin(st, nil, "Articles", "", "")

	rec := postJSON(admin.Login, "/api/admin/login", `{"password": "anything"}`)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestJWTAuthGuardsModeration(t *testing.T) {
	_, _, admin := newAdmin(t)

	guarded := appmiddleware.JWTAuth([]byte(testJWTSecret))(http.HandlerFunc(admin.Pending))

	req := httptest.NewRequest(http.MethodGet, "/api/admin/pending?type=listings", nil)
	rec := httptest.NewRecorder()
	guarded.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	login := postJSON(admin.Login, "/api/admin/login", fmt.Sprintf(`{"password": %q}`, testPassword))
	token := decodeBody(t, login)["token"].(string)

	req = httptest.NewRequest(http.MethodGet, "/api/admin/pending?type=listings", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	guarded.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

// A submission stays invisible to the public list until the moderation actor
// approves it.
func TestModerationFlipsPublicVisibility(t *testing.T) {
	fs, st, admin := newAdmin(t)
	listings := handlers.NewCollection(st, appmiddleware.NewMemoryLimiter(time.Minute),
		turnstile.NewVerifier(""), handlers.ListingsDescriptor("Contacts", "Ratings"))

	submit := postJSON(listings.Submit, "/api/listings", `{
		"fields": {"Name": "Bengkel Pak Agus", "Category": "Repair", "Description": "D", "SubmittedBy": "S"}
	}`)
	require.Equal(t, http.StatusOK, submit.Code, submit.Body.String())
	id := decodeBody(t, submit)["record"].(map[string]any)["id"].(string)

	list := getJSON(listings.List, "/api/listings")
	assert.NotContains(t, list.Body.String(), id, "pending submissions are not public")

	pending := getJSON(admin.Pending, "/api/admin/pending?type=listings")
	require.Equal(t, http.StatusOK, pending.Code)
	assert.Contains(t, pending.Body.String(), id)

	moderate := postJSON(admin.Moderate, "/api/admin/moderate",
		fmt.Sprintf(`{"type": "listings", "id": %q, "status": "Approved"}`, id))
	require.Equal(t, http.StatusOK, moderate.Code, moderate.Body.String())

	approved, _ := fs.get("Contacts", id)
	assert.Equal(t, "Approved", approved.Fields["Status"])

	list = getJSON(listings.List, "/api/listings")
	assert.Contains(t, list.Body.String(), id, "approved records become public")
}

func TestModerateValidation(t *testing.T) {
	fs, _, admin := newAdmin(t)
	listing := fs.seed("Contacts", store.Fields{"Status": "Pending"})

	rec := postJSON(admin.Moderate, "/api/admin/moderate",
		fmt.Sprintf(`{"type": "listings", "id": %q, "status": "Published"}`, listing.ID))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postJSON(admin.Moderate, "/api/admin/moderate",
		fmt.Sprintf(`{"type": "unknown", "id": %q, "status": "Approved"}`, listing.ID))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	unchanged, _ := fs.get("Contacts", listing.ID)
	assert.Equal(t, "Pending", unchanged.Fields["Status"])
}

func TestFeatureClearsPreviousArticle(t *testing.T) {
	fs, _, admin := newAdmin(t)
	first := fs.seed("Articles", store.Fields{"Title": "First", "Featured": true, "Status": "Approved"})
	second := fs.seed("Articles", store.Fields{"Title": "Second", "Featured": false, "Status": "Approved"})

	rec := postJSON(admin.Feature, "/api/admin/feature", fmt.Sprintf(`{"id": %q}`, second.ID))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	oldRec, _ := fs.get("Articles", first.ID)
	newRec, _ := fs.get("Articles", second.ID)
	assert.Equal(t, false, oldRec.Fields["Featured"])
	assert.Equal(t, true, newRec.Fields["Featured"])
}

func TestFeatureRequiresID(t *testing.T) {
	_, _, admin := newAdmin(t)

	rec := postJSON(admin.Feature, "/api/admin/feature", `{}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "id is required"))
}
