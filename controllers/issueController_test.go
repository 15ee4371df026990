package controllers_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"civicfeed-be/controllers"
	"civicfeed-be/engine/memstore"
	"civicfeed-be/middlewares"
	"civicfeed-be/routes"
	authUtils "civicfeed-be/utils"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const testSecret = "test-secret"

type testServer struct {
	router *gin.Engine
	store  *memstore.Store
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	controllers.RegisterValidators()

	store := memstore.New()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	r := gin.New()
	r.Use(middlewares.RequestID())
	auth := middlewares.AuthMiddleware(testSecret)
	routes.IssueRoutes(r, controllers.NewIssueController(store, log), auth, middlewares.IssueRateLimiter(nil, "test", 0))
	routes.AuthRoutes(r, controllers.NewAuthController(store, testSecret, log), auth)

	return &testServer{router: r, store: store}
}

func (ts *testServer) token(t *testing.T, userID primitive.ObjectID, role string) string {
	t.Helper()
	token, err := authUtils.GenerateToken(testSecret, userID.Hex(), role)
	require.NoError(t, err)
	return token
}

func (ts *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), "body: %s", w.Body.String())
	return out
}

func issueBody(lat, lon float64) map[string]any {
	return map[string]any{
		"title":       "Streetlight out near junction",
		"description": "Dark stretch at night, needs attention.",
		"category":    "SAFETY",
		"location":    map[string]any{"latitude": lat, "longitude": lon},
		"address":     "8th Main Rd",
		"city":        "Bengaluru",
	}
}

func createIssueID(t *testing.T, ts *testServer, token string, lat, lon float64) string {
	t.Helper()
	w := ts.do(t, http.MethodPost, "/api/issues", token, issueBody(lat, lon))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	data := decode(t, w)["data"].(map[string]any)
	return data["id"].(string)
}

func TestIssueLifecycleOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	reporter := primitive.NewObjectID()
	reporterToken := ts.token(t, reporter, "citizen")

	// Report an issue at the city center.
	id := createIssueID(t, ts, reporterToken, 12.9716, 77.5946)

	// A nearby feed query finds it.
	w := ts.do(t, http.MethodGet, "/api/issues/feed?latitude=12.97&longitude=77.59&radius=5", reporterToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	data := decode(t, w)["data"].(map[string]any)
	issues := data["issues"].([]any)
	require.Len(t, issues, 1)
	first := issues[0].(map[string]any)
	assert.Equal(t, id, first["id"])
	assert.Equal(t, true, first["isUserIssue"])
	assert.Equal(t, "SAFETY", first["category"])

	// A tight radius around a far point excludes it.
	w = ts.do(t, http.MethodGet, "/api/issues/feed?latitude=13.20&longitude=77.90&radius=2", reporterToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	data = decode(t, w)["data"].(map[string]any)
	assert.Empty(t, data["issues"])

	// Two users upvote; a repeat toggle from the second removes theirs.
	voterA := ts.token(t, primitive.NewObjectID(), "citizen")
	voterB := ts.token(t, primitive.NewObjectID(), "citizen")

	w = ts.do(t, http.MethodPost, "/api/issues/"+id+"/upvote", voterA, nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = ts.do(t, http.MethodPost, "/api/issues/"+id+"/upvote", voterB, nil)
	require.Equal(t, http.StatusOK, w.Code)
	res := decode(t, w)
	toggle := res["data"].(map[string]any)
	assert.Equal(t, true, toggle["upvoted"])
	assert.EqualValues(t, 2, toggle["upvoteCount"])

	w = ts.do(t, http.MethodPost, "/api/issues/"+id+"/upvote", voterB, nil)
	require.Equal(t, http.StatusOK, w.Code)
	res = decode(t, w)
	assert.Equal(t, "Upvote removed", res["message"])
	toggle = res["data"].(map[string]any)
	assert.Equal(t, false, toggle["upvoted"])
	assert.EqualValues(t, 1, toggle["upvoteCount"])

	// Comment and read the detail back.
	w = ts.do(t, http.MethodPost, "/api/issues/"+id+"/comment", voterA, map[string]any{"comment": "Same here every evening"})
	require.Equal(t, http.StatusCreated, w.Code)

	w = ts.do(t, http.MethodGet, "/api/issues/"+id, reporterToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	data = decode(t, w)["data"].(map[string]any)
	assert.EqualValues(t, 1, data["upvoteCount"])
	assert.EqualValues(t, 1, data["commentCount"])
	comments := data["commentDetails"].([]any)
	require.Len(t, comments, 1)
	assert.Equal(t, "Same here every evening", comments[0].(map[string]any)["comment"])
}

func TestCreateIssueValidationOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	token := ts.token(t, primitive.NewObjectID(), "citizen")

	// Latitude out of range is a 400 with the envelope error set.
	w := ts.do(t, http.MethodPost, "/api/issues", token, issueBody(91, 77.59))
	require.Equal(t, http.StatusBadRequest, w.Code)
	res := decode(t, w)
	assert.Equal(t, false, res["success"])
	assert.NotEmpty(t, res["error"])

	// Missing location block.
	body := issueBody(12.97, 77.59)
	delete(body, "location")
	w = ts.do(t, http.MethodPost, "/api/issues", token, body)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Unknown category is rejected by the binding validator.
	body = issueBody(12.97, 77.59)
	body["category"] = "POTHOLES"
	w = ts.do(t, http.MethodPost, "/api/issues", token, body)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestErrorStatusesOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	token := ts.token(t, primitive.NewObjectID(), "citizen")

	// Malformed object ID.
	w := ts.do(t, http.MethodGet, "/api/issues/not-an-id", token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Well-formed but unknown ID.
	w = ts.do(t, http.MethodGet, "/api/issues/"+primitive.NewObjectID().Hex(), token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// Missing token.
	w = ts.do(t, http.MethodGet, "/api/issues/feed", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// Another citizen's private issue is a 403.
	ownerToken := ts.token(t, primitive.NewObjectID(), "citizen")
	body := issueBody(12.97, 77.59)
	body["visibility"] = "PRIVATE"
	w = ts.do(t, http.MethodPost, "/api/issues", ownerToken, body)
	require.Equal(t, http.StatusCreated, w.Code)
	privateID := decode(t, w)["data"].(map[string]any)["id"].(string)

	w = ts.do(t, http.MethodGet, "/api/issues/"+privateID, token, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestStatusTransitionOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	reporter := primitive.NewObjectID()
	reporterToken := ts.token(t, reporter, "citizen")
	adminToken := ts.token(t, primitive.NewObjectID(), "admin")

	id := createIssueID(t, ts, reporterToken, 12.9716, 77.5946)

	// The reporter cannot drive the state machine.
	w := ts.do(t, http.MethodPatch, "/api/issues/"+id+"/status", reporterToken, map[string]any{"status": "RESOLVED"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = ts.do(t, http.MethodPatch, "/api/issues/"+id+"/status", adminToken, map[string]any{"status": "RESOLVED"})
	require.Equal(t, http.StatusOK, w.Code)
	data := decode(t, w)["data"].(map[string]any)
	assert.Equal(t, "RESOLVED", data["status"])
	assert.NotNil(t, data["resolvedAt"])

	// RESOLVED -> IN_PROGRESS is not a legal edge.
	w = ts.do(t, http.MethodPatch, "/api/issues/"+id+"/status", adminToken, map[string]any{"status": "IN_PROGRESS"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// A value outside the enum never reaches the engine.
	w = ts.do(t, http.MethodPatch, "/api/issues/"+id+"/status", adminToken, map[string]any{"status": "DONE"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUpdateAndDeleteOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	reporter := primitive.NewObjectID()
	reporterToken := ts.token(t, reporter, "citizen")
	strangerToken := ts.token(t, primitive.NewObjectID(), "citizen")

	id := createIssueID(t, ts, reporterToken, 12.9716, 77.5946)

	w := ts.do(t, http.MethodPut, "/api/issues/"+id, strangerToken, map[string]any{"title": "Hijacked"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = ts.do(t, http.MethodPut, "/api/issues/"+id, reporterToken, map[string]any{"title": "Streetlight out, pole 14"})
	require.Equal(t, http.StatusOK, w.Code)
	data := decode(t, w)["data"].(map[string]any)
	assert.Equal(t, "Streetlight out, pole 14", data["title"])

	// Status is not an updatable field on this route; a body carrying
	// only unknown fields is an empty patch.
	w = ts.do(t, http.MethodPut, "/api/issues/"+id, reporterToken, map[string]any{"status": "RESOLVED"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(t, http.MethodPut, "/api/issues/"+id, reporterToken, map[string]any{"status": "RESOLVED", "description": "Still dark at night"})
	require.Equal(t, http.StatusOK, w.Code)
	data = decode(t, w)["data"].(map[string]any)
	assert.Equal(t, "OPEN", data["status"])
	assert.Equal(t, "Still dark at night", data["description"])

	w = ts.do(t, http.MethodDelete, "/api/issues/"+id, strangerToken, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = ts.do(t, http.MethodDelete, "/api/issues/"+id, reporterToken, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = ts.do(t, http.MethodGet, "/api/issues/"+id, reporterToken, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMyIssuesAndStatsOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	alice := ts.token(t, primitive.NewObjectID(), "citizen")
	bob := ts.token(t, primitive.NewObjectID(), "citizen")

	for i := 0; i < 3; i++ {
		createIssueID(t, ts, alice, 12.9716, 77.5946+float64(i)*0.001)
	}
	createIssueID(t, ts, bob, 12.9716, 77.5946)

	w := ts.do(t, http.MethodGet, "/api/issues/my", alice, nil)
	require.Equal(t, http.StatusOK, w.Code)
	data := decode(t, w)["data"].(map[string]any)
	assert.Len(t, data["issues"], 3)
	pagination := data["pagination"].(map[string]any)
	assert.EqualValues(t, 3, pagination["total"])

	w = ts.do(t, http.MethodGet, "/api/issues?myIssues=true", alice, nil)
	require.Equal(t, http.StatusOK, w.Code)
	data = decode(t, w)["data"].(map[string]any)
	assert.Len(t, data["issues"], 3)

	w = ts.do(t, http.MethodGet, "/api/issues/stats/summary", alice, nil)
	require.Equal(t, http.StatusOK, w.Code)
	data = decode(t, w)["data"].(map[string]any)
	summary := data["summary"].(map[string]any)
	assert.EqualValues(t, 4, summary["total"])
	assert.EqualValues(t, 4, summary["open"])
}

func TestPaginationParamsOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	token := ts.token(t, primitive.NewObjectID(), "citizen")

	for i := 0; i < 5; i++ {
		createIssueID(t, ts, token, 12.9716, 77.5946+float64(i)*0.001)
	}

	w := ts.do(t, http.MethodGet, "/api/issues?page=2&limit=2", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	data := decode(t, w)["data"].(map[string]any)
	assert.Len(t, data["issues"], 2)
	pagination := data["pagination"].(map[string]any)
	assert.EqualValues(t, 5, pagination["total"])
	assert.EqualValues(t, 3, pagination["totalPages"])
	assert.Equal(t, true, pagination["hasNextPage"])
	assert.Equal(t, true, pagination["hasPrevPage"])

	w = ts.do(t, http.MethodGet, "/api/issues?page=0", token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = ts.do(t, http.MethodGet, "/api/issues?limit=abc", token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Limits above the cap are clamped, not rejected.
	w = ts.do(t, http.MethodGet, fmt.Sprintf("/api/issues?limit=%d", 5000), token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	data = decode(t, w)["data"].(map[string]any)
	pagination = data["pagination"].(map[string]any)
	assert.EqualValues(t, 100, pagination["limit"])
}

func TestAuthFlowOverHTTP(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/api/auth/register", "", map[string]any{
		"name":     "Asha",
		"email":    "asha@example.com",
		"password": "hunter22",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	// Duplicate registration fails.
	w = ts.do(t, http.MethodPost, "/api/auth/register", "", map[string]any{
		"name":     "Imposter",
		"email":    "asha@example.com",
		"password": "hunter22",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(t, http.MethodPost, "/api/auth/login", "", map[string]any{
		"email":    "asha@example.com",
		"password": "wrong-password",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = ts.do(t, http.MethodPost, "/api/auth/login", "", map[string]any{
		"email":    "asha@example.com",
		"password": "hunter22",
	})
	require.Equal(t, http.StatusOK, w.Code)
	data := decode(t, w)["data"].(map[string]any)
	token := data["token"].(string)
	require.NotEmpty(t, token)

	w = ts.do(t, http.MethodGet, "/api/auth/me", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	data = decode(t, w)["data"].(map[string]any)
	assert.Equal(t, "Asha", data["name"])
	assert.Equal(t, "asha@example.com", data["email"])
}
