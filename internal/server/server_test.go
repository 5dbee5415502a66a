package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"gigline/internal/db"
	"gigline/internal/domain"
	"gigline/internal/engine"
	"gigline/internal/migrate"
	"gigline/internal/notify"
	"gigline/internal/repo"
)

const testJWTSecret = "test-secret"

type testServer struct {
	URL    string
	Notify *notify.Dispatcher
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	logger := log.New(io.Discard, "", 0)
	dispatcher := notify.New(repo.Repo{DB: conn}, logger, 2, 64)
	e := engine.New(conn, dispatcher)
	handler, err := New(Config{
		Engine:   e,
		Notify:   dispatcher,
		BasePath: "/v1",
		Auth: AuthConfig{
			JWTSecret:              testJWTSecret,
			AllowLegacyActorHeader: true,
			Logger:                 logger,
		},
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		Notify: dispatcher,
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func asActor(id, role string) map[string]string {
	return map[string]string{"X-Actor-Id": id, "X-Actor-Role": role}
}

func errorCode(t *testing.T, data []byte) string {
	t.Helper()
	var envelope struct {
		Error struct {
			Code    string         `json:"code"`
			Message string         `json:"message"`
			Details map[string]any `json:"details"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal error envelope: %v (%s)", err, string(data))
	}
	return envelope.Error.Code
}

func TestHealthRequiresNoAuth(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health status %d: %s", res.StatusCode, string(data))
	}
}

func TestUnauthenticatedRequestsRejected(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/projects", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status %d: %s", res.StatusCode, string(data))
	}
	if code := errorCode(t, data); code != "unauthorized" {
		t.Fatalf("code = %q", code)
	}
}

func TestJWTAuthentication(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  "alice",
		"name": "Alice",
		"role": "poster",
		"exp":  time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(testJWTSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/projects", map[string]any{
		"title":  "Paint the fence",
		"budget": 150,
	}, map[string]string{"Authorization": "Bearer " + token})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create status %d: %s", res.StatusCode, string(data))
	}
	var p domain.Project
	if err := json.Unmarshal(data, &p); err != nil {
		t.Fatalf("unmarshal project: %v", err)
	}
	if p.PosterID != "alice" {
		t.Fatalf("poster = %q, want alice (from token subject)", p.PosterID)
	}

	bad, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "alice"}).SignedString([]byte("wrong-secret"))
	if err != nil {
		t.Fatalf("sign bad token: %v", err)
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/projects", nil, map[string]string{"Authorization": "Bearer " + bad})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("forged token status %d: %s", res.StatusCode, string(data))
	}
}

func TestProjectQuoteApprovalFlow(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/projects", map[string]any{
		"title":       "Build a deck",
		"description": "Cedar, 20 square meters",
		"budget":      2000,
	}, asActor("alice", "poster"))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create project status %d: %s", res.StatusCode, string(data))
	}
	var project domain.Project
	if err := json.Unmarshal(data, &project); err != nil {
		t.Fatalf("unmarshal project: %v", err)
	}

	var winner domain.Quote
	for _, quote := range []struct {
		provider string
		amount   float64
	}{{"bob", 1800}, {"carol", 1950}} {
		res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/projects/"+project.ID+"/quotes", map[string]any{
			"amount": quote.amount,
		}, asActor(quote.provider, "provider"))
		if res.StatusCode != http.StatusCreated {
			t.Fatalf("quote from %s status %d: %s", quote.provider, res.StatusCode, string(data))
		}
		if quote.provider == "bob" {
			if err := json.Unmarshal(data, &winner); err != nil {
				t.Fatalf("unmarshal quote: %v", err)
			}
		}
	}

	// Only the poster can read the ledger.
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/projects/"+project.ID+"/quotes", nil, asActor("bob", "provider"))
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("provider listing status %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/projects/"+project.ID+"/quotes", nil, asActor("alice", "poster"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("poster listing status %d: %s", res.StatusCode, string(data))
	}
	var listing struct {
		Items []domain.Quote `json:"items"`
	}
	if err := json.Unmarshal(data, &listing); err != nil {
		t.Fatalf("unmarshal listing: %v", err)
	}
	if len(listing.Items) != 2 {
		t.Fatalf("listed %d quotes, want 2", len(listing.Items))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/projects/"+project.ID+"/approve", map[string]any{
		"quote_id": winner.ID,
	}, asActor("alice", "poster"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("approve status %d: %s", res.StatusCode, string(data))
	}
	var result domain.ApprovalResult
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("unmarshal approval: %v", err)
	}
	if result.Project.Status != domain.ProjectAssigned || len(result.Rejected) != 1 {
		t.Fatalf("unexpected approval result: %+v", result)
	}

	// A second approval conflicts and reports the current status.
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/projects/"+project.ID+"/approve", map[string]any{
		"quote_id": winner.ID,
	}, asActor("alice", "poster"))
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("second approve status %d: %s", res.StatusCode, string(data))
	}
	if code := errorCode(t, data); code != "conflict" {
		t.Fatalf("second approve code = %q", code)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/projects/"+project.ID+"/complete", nil, asActor("alice", "poster"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("complete status %d: %s", res.StatusCode, string(data))
	}
}

func TestDuplicateQuoteAndWithdraw(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	_, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/projects", map[string]any{
		"title":  "Tile the bathroom",
		"budget": 900,
	}, asActor("alice", "poster"))
	var project domain.Project
	if err := json.Unmarshal(data, &project); err != nil {
		t.Fatalf("unmarshal project: %v", err)
	}

	_, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/projects/"+project.ID+"/quotes", map[string]any{
		"amount": 850,
	}, asActor("bob", "provider"))
	var quote domain.Quote
	if err := json.Unmarshal(data, &quote); err != nil {
		t.Fatalf("unmarshal quote: %v", err)
	}

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/projects/"+project.ID+"/quotes", map[string]any{
		"amount": 800,
	}, asActor("bob", "provider"))
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate status %d: %s", res.StatusCode, string(data))
	}
	if code := errorCode(t, data); code != "duplicate_quote" {
		t.Fatalf("duplicate code = %q", code)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/quotes/"+quote.ID+"/withdraw", nil, asActor("bob", "provider"))
	if res.StatusCode != http.StatusNoContent {
		t.Fatalf("withdraw status %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/projects/"+project.ID+"/quotes", map[string]any{
		"amount": 800,
	}, asActor("bob", "provider"))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("resubmit status %d: %s", res.StatusCode, string(data))
	}
}

func TestConversationEndpoints(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	_, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/projects", map[string]any{
		"title":  "Mow the lawn",
		"budget": 50,
	}, asActor("alice", "poster"))
	var project domain.Project
	if err := json.Unmarshal(data, &project); err != nil {
		t.Fatalf("unmarshal project: %v", err)
	}

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/conversations/resolve", map[string]any{
		"project_id":    project.ID,
		"other_user_id": "bob",
	}, asActor("alice", "poster"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("resolve status %d: %s", res.StatusCode, string(data))
	}
	var first domain.ConversationView
	if err := json.Unmarshal(data, &first); err != nil {
		t.Fatalf("unmarshal conversation: %v", err)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/conversations/resolve", map[string]any{
		"project_id":    project.ID,
		"other_user_id": "alice",
	}, asActor("bob", "provider"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("reverse resolve status %d: %s", res.StatusCode, string(data))
	}
	var second domain.ConversationView
	if err := json.Unmarshal(data, &second); err != nil {
		t.Fatalf("unmarshal second: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("resolve not idempotent: %s vs %s", first.ID, second.ID)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/conversations/"+first.ID+"/messages", map[string]any{
		"text": "When can you start?",
	}, asActor("alice", "poster"))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("post message status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/conversations/"+first.ID+"/messages", nil, asActor("mallory", "provider"))
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("outsider read status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/conversations/"+first.ID+"/messages", nil, asActor("bob", "provider"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("messages status %d: %s", res.StatusCode, string(data))
	}
	var msgs struct {
		Items []domain.Message `json:"items"`
	}
	if err := json.Unmarshal(data, &msgs); err != nil {
		t.Fatalf("unmarshal messages: %v", err)
	}
	if len(msgs.Items) != 1 || msgs.Items[0].Text != "When can you start?" {
		t.Fatalf("unexpected messages: %+v", msgs.Items)
	}

	// Display data comes from the authenticated principal upserts.
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/conversations", nil, asActor("bob", "provider"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list conversations status %d: %s", res.StatusCode, string(data))
	}
}

func TestNotificationEndpoints(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	_, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/projects", map[string]any{
		"title":  "Clean the gutters",
		"budget": 120,
	}, asActor("alice", "poster"))
	var project domain.Project
	if err := json.Unmarshal(data, &project); err != nil {
		t.Fatalf("unmarshal project: %v", err)
	}
	doJSON(t, client, http.MethodPost, srv.URL+"/v1/projects/"+project.ID+"/quotes", map[string]any{
		"amount": 100,
	}, asActor("bob", "provider"))
	srv.Notify.Flush()

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v1/notifications", nil, asActor("alice", "poster"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list status %d: %s", res.StatusCode, string(data))
	}
	var listing struct {
		Items []domain.Notification `json:"items"`
	}
	if err := json.Unmarshal(data, &listing); err != nil {
		t.Fatalf("unmarshal notifications: %v", err)
	}
	if len(listing.Items) != 1 {
		t.Fatalf("alice has %d notifications, want 1", len(listing.Items))
	}
	id := listing.Items[0].ID

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/notifications/counts", nil, asActor("alice", "poster"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("counts status %d: %s", res.StatusCode, string(data))
	}
	var counts domain.NotificationCounts
	if err := json.Unmarshal(data, &counts); err != nil {
		t.Fatalf("unmarshal counts: %v", err)
	}
	if counts.Unread != 1 {
		t.Fatalf("unread = %d, want 1", counts.Unread)
	}

	// Another user cannot touch alice's record.
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/notifications/"+id+"/read", nil, asActor("bob", "provider"))
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("foreign read status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/notifications/"+id+"/read", nil, asActor("alice", "poster"))
	if res.StatusCode != http.StatusNoContent {
		t.Fatalf("mark read status %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodDelete, srv.URL+"/v1/notifications/"+id, nil, asActor("alice", "poster"))
	if res.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/notifications", nil, asActor("alice", "poster"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("relist status %d: %s", res.StatusCode, string(data))
	}
	if err := json.Unmarshal(data, &listing); err != nil {
		t.Fatalf("unmarshal relist: %v", err)
	}
	if len(listing.Items) != 0 {
		t.Fatalf("deleted notification still listed: %+v", listing.Items)
	}
}

func TestAPIKeyRoundTrip(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/apikeys", map[string]any{
		"name": "automation",
	}, asActor("alice", "poster"))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create key status %d: %s", res.StatusCode, string(data))
	}
	var created APIKeyCreatedResponse
	if err := json.Unmarshal(data, &created); err != nil {
		t.Fatalf("unmarshal key: %v", err)
	}
	if created.Key == "" {
		t.Fatal("plaintext key missing from create response")
	}

	// The raw key authenticates as its owner.
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/projects?mine=true", nil, map[string]string{"X-Api-Key": created.Key})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("key auth status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodDelete, srv.URL+"/v1/apikeys/"+created.ID, nil, asActor("alice", "poster"))
	if res.StatusCode != http.StatusNoContent {
		t.Fatalf("revoke status %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/projects", nil, map[string]string{"X-Api-Key": created.Key})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("revoked key status %d: %s", res.StatusCode, string(data))
	}
}
