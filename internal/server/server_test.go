package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"escrowline/internal/attachments"
	"escrowline/internal/config"
	"escrowline/internal/db"
	"escrowline/internal/domain"
	"escrowline/internal/engine"
	"escrowline/internal/migrate"
)

const testSecret = "test-secret"

type testServer struct {
	URL    string
	Engine engine.Engine
	client *http.Client
}

func newTestServer(t *testing.T, mutate func(*Config)) *testServer {
	t.Helper()
	workspace := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(context.Background(), conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, config.Default())
	store, err := attachments.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("file store: %v", err)
	}
	e.Attachments = store
	cfg := Config{
		Engine:   e,
		BasePath: "/v1",
		Auth:     AuthConfig{JWTSecret: testSecret, AllowLegacyActorHeader: true, EnableDevLogin: true},
		Log:      zerolog.Nop(),
	}
	if mutate != nil {
		mutate(&cfg)
	}
	handler, err := New(cfg)
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	srv := httptest.NewServer(handler)
	t.Cleanup(func() {
		srv.Close()
		conn.Close()
	})
	return &testServer{URL: srv.URL, Engine: e, client: srv.Client()}
}

func as(actor string) map[string]string {
	return map[string]string{"X-Actor-Id": actor}
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	reader := bytes.NewReader(nil)
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
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

func expectStatus(t *testing.T, res *http.Response, data []byte, want int) {
	t.Helper()
	if res.StatusCode != want {
		t.Fatalf("status %d, want %d: %s", res.StatusCode, want, string(data))
	}
}

func errorCode(t *testing.T, data []byte) string {
	t.Helper()
	var env struct {
		Error apiErrorBody `json:"error"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("unmarshal error envelope: %v: %s", err, string(data))
	}
	return env.Error.Code
}

func createBody(currency string) map[string]any {
	return map[string]any{
		"project_id":    "project-1",
		"freelancer_id": "bob",
		"title":         "Company site",
		"terms":         map[string]any{"currency": currency, "payment_type": "fixed"},
		"milestones": []map[string]any{
			{"id": "m1", "title": "Design", "amount": 1000},
			{"id": "m2", "title": "Build", "amount": 2000},
		},
		"payment_method": map[string]any{"type": "card", "brand": "visa", "last4": "4242"},
	}
}

func (s *testServer) createContract(t *testing.T) string {
	t.Helper()
	res, data := doJSON(t, s.client, http.MethodPost, s.URL+"/v1/contracts", createBody("USD"), as("alice"))
	expectStatus(t, res, data, http.StatusCreated)
	var created CreateContractResponse
	require.NoError(t, json.Unmarshal(data, &created))
	require.True(t, created.Success)
	require.NotEmpty(t, created.PaymentID)
	return created.ContractID
}

func TestContractLifecycleOverHTTP(t *testing.T) {
	srv := newTestServer(t, nil)
	id := srv.createContract(t)
	base := srv.URL + "/v1/contracts/" + id

	res, data := doJSON(t, srv.client, http.MethodPost, base+"/accept", map[string]any{"comment": "deal"}, as("bob"))
	expectStatus(t, res, data, http.StatusOK)

	card := map[string]any{"payment_method": map[string]any{"type": "mtn_momo", "phone_number": "+237670000000"}}
	for _, ms := range []string{"m1", "m2"} {
		res, data = doJSON(t, srv.client, http.MethodPost, base+"/milestones/"+ms+"/fund", card, as("alice"))
		expectStatus(t, res, data, http.StatusOK)
		res, data = doJSON(t, srv.client, http.MethodPost, base+"/milestones/"+ms+"/submit", map[string]any{"comment": "ready"}, as("bob"))
		expectStatus(t, res, data, http.StatusOK)
		res, data = doJSON(t, srv.client, http.MethodPost, base+"/milestones/"+ms+"/approve", map[string]any{}, as("alice"))
		expectStatus(t, res, data, http.StatusOK)
	}
	var approved ApproveMilestoneResponse
	require.NoError(t, json.Unmarshal(data, &approved))
	require.True(t, approved.IsContractCompleted)
	require.Equal(t, 100, approved.Progress)

	res, data = doJSON(t, srv.client, http.MethodGet, base, nil, as("bob"))
	expectStatus(t, res, data, http.StatusOK)
	var c domain.Contract
	require.NoError(t, json.Unmarshal(data, &c))
	require.Equal(t, domain.ContractCompleted, c.Status)

	res, data = doJSON(t, srv.client, http.MethodGet, base+"/payments", nil, as("alice"))
	expectStatus(t, res, data, http.StatusOK)
	var payments PaymentList
	require.NoError(t, json.Unmarshal(data, &payments))
	require.Len(t, payments.Items, 2)
	for _, p := range payments.Items {
		require.Equal(t, domain.PaymentCompleted, p.Status)
	}

	res, data = doJSON(t, srv.client, http.MethodGet, base+"/events?type=contract_completed", nil, as("alice"))
	expectStatus(t, res, data, http.StatusOK)
	var evts paginatedEvents
	require.NoError(t, json.Unmarshal(data, &evts))
	require.Len(t, evts.Items, 1)

	res, data = doJSON(t, srv.client, http.MethodGet, srv.URL+"/v1/notifications?unread=true", nil, as("bob"))
	expectStatus(t, res, data, http.StatusOK)
	var notes NotificationList
	require.NoError(t, json.Unmarshal(data, &notes))
	require.NotEmpty(t, notes.Items)
	res, data = doJSON(t, srv.client, http.MethodPost, srv.URL+"/v1/notifications/"+notes.Items[0].ID+"/read", nil, as("bob"))
	expectStatus(t, res, data, http.StatusOK)
}

func TestErrorMapping(t *testing.T) {
	srv := newTestServer(t, nil)
	id := srv.createContract(t)
	base := srv.URL + "/v1/contracts/" + id

	res, data := doJSON(t, srv.client, http.MethodPost, base+"/accept", nil, as("alice"))
	expectStatus(t, res, data, http.StatusForbidden)
	require.Equal(t, "forbidden", errorCode(t, data))

	res, data = doJSON(t, srv.client, http.MethodPost, srv.URL+"/v1/contracts/nope/accept", nil, as("bob"))
	expectStatus(t, res, data, http.StatusNotFound)

	res, data = doJSON(t, srv.client, http.MethodPost, base+"/milestones/m1/submit", nil, as("bob"))
	expectStatus(t, res, data, http.StatusConflict)
	require.Equal(t, "invalid_state", errorCode(t, data))

	res, data = doJSON(t, srv.client, http.MethodPost, srv.URL+"/v1/contracts", createBody("ZZZ"), as("alice"))
	expectStatus(t, res, data, http.StatusBadRequest)

	res, data = doJSON(t, srv.client, http.MethodGet, base, nil, as("mallory"))
	expectStatus(t, res, data, http.StatusForbidden)

	res, data = doJSON(t, srv.client, http.MethodGet, base, nil, nil)
	expectStatus(t, res, data, http.StatusUnauthorized)

	res, data = doJSON(t, srv.client, http.MethodGet, srv.URL+"/v1/health", nil, nil)
	expectStatus(t, res, data, http.StatusOK)
}

func TestJWTAndAPIKeyAuth(t *testing.T) {
	srv := newTestServer(t, func(c *Config) { c.Auth.AllowLegacyActorHeader = false })

	res, data := doJSON(t, srv.client, http.MethodPost, srv.URL+"/v1/auth/dev/login", map[string]any{"actor_id": "alice"}, nil)
	expectStatus(t, res, data, http.StatusOK)
	var login DevLoginResponse
	require.NoError(t, json.Unmarshal(data, &login))
	bearer := map[string]string{"Authorization": "Bearer " + login.Token}

	res, data = doJSON(t, srv.client, http.MethodGet, srv.URL+"/v1/me", nil, bearer)
	expectStatus(t, res, data, http.StatusOK)
	var who WhoAmIResponse
	require.NoError(t, json.Unmarshal(data, &who))
	require.Equal(t, "alice", who.ActorID)
	require.Equal(t, "jwt", who.Source)

	res, data = doJSON(t, srv.client, http.MethodPost, srv.URL+"/v1/api-keys", map[string]any{"name": "ci"}, bearer)
	expectStatus(t, res, data, http.StatusCreated)
	var key APIKeyResponse
	require.NoError(t, json.Unmarshal(data, &key))
	require.NotEmpty(t, key.Key)

	res, data = doJSON(t, srv.client, http.MethodGet, srv.URL+"/v1/me", nil, map[string]string{"X-Api-Key": key.Key})
	expectStatus(t, res, data, http.StatusOK)
	require.NoError(t, json.Unmarshal(data, &who))
	require.Equal(t, "api_key", who.Source)

	res, data = doJSON(t, srv.client, http.MethodDelete, srv.URL+"/v1/api-keys/"+key.ID, nil, bearer)
	expectStatus(t, res, data, http.StatusNoContent)
	res, data = doJSON(t, srv.client, http.MethodGet, srv.URL+"/v1/me", nil, map[string]string{"X-Api-Key": key.Key})
	expectStatus(t, res, data, http.StatusUnauthorized)

	res, data = doJSON(t, srv.client, http.MethodGet, srv.URL+"/v1/me", nil, as("alice"))
	expectStatus(t, res, data, http.StatusUnauthorized)

	res, data = doJSON(t, srv.client, http.MethodGet, srv.URL+"/v1/me", nil, map[string]string{"Authorization": "Bearer garbage"})
	expectStatus(t, res, data, http.StatusUnauthorized)
}

func TestRateLimitPerActor(t *testing.T) {
	srv := newTestServer(t, func(c *Config) { c.RateLimit = RateLimitConfig{RPS: 0.001, Burst: 1} })

	res, data := doJSON(t, srv.client, http.MethodGet, srv.URL+"/v1/me", nil, as("alice"))
	expectStatus(t, res, data, http.StatusOK)
	res, data = doJSON(t, srv.client, http.MethodGet, srv.URL+"/v1/me", nil, as("alice"))
	expectStatus(t, res, data, http.StatusTooManyRequests)
	res, data = doJSON(t, srv.client, http.MethodGet, srv.URL+"/v1/me", nil, as("bob"))
	expectStatus(t, res, data, http.StatusOK)
}

func TestAttachmentUploadAndSubmit(t *testing.T) {
	srv := newTestServer(t, nil)
	id := srv.createContract(t)
	base := srv.URL + "/v1/contracts/" + id
	res, data := doJSON(t, srv.client, http.MethodPost, base+"/accept", nil, as("bob"))
	expectStatus(t, res, data, http.StatusOK)
	res, data = doJSON(t, srv.client, http.MethodPost, base+"/milestones/m1/fund",
		map[string]any{"payment_method": map[string]any{"type": "paypal", "email": "alice@example.com"}}, as("alice"))
	expectStatus(t, res, data, http.StatusOK)

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/v1/attachments", bytes.NewReader([]byte("wireframes v1")))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("X-Actor-Id", "bob")
	upload, err := srv.client.Do(req)
	require.NoError(t, err)
	body, _ := io.ReadAll(upload.Body)
	upload.Body.Close()
	expectStatus(t, upload, body, http.StatusCreated)
	var stored AttachmentResponse
	require.NoError(t, json.Unmarshal(body, &stored))

	submission := map[string]any{"submission": map[string]any{
		"files": []map[string]any{{"name": "wireframes.txt", "ref": stored.Ref}},
	}}
	res, data = doJSON(t, srv.client, http.MethodPost, base+"/milestones/m1/submit", submission, as("bob"))
	expectStatus(t, res, data, http.StatusOK)

	res, data = doJSON(t, srv.client, http.MethodGet, srv.URL+"/v1/attachments/"+stored.Ref, nil, as("alice"))
	expectStatus(t, res, data, http.StatusOK)
	require.Equal(t, "wireframes v1", string(data))
}

func TestWebhookDeliversSignedEvents(t *testing.T) {
	srv := newTestServer(t, nil)

	var mu sync.Mutex
	var got []webhookEvent
	var sigs []string
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var evt webhookEvent
		_ = json.Unmarshal(body, &evt)
		mu.Lock()
		got = append(got, evt)
		sigs = append(sigs, r.Header.Get("X-Escrowline-Signature"))
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer hook.Close()

	hooks := []config.WebhookConfig{{URL: hook.URL, Events: []string{domain.EventContractAccepted}, Secret: "s3cret"}}
	d := newWebhookDispatcher(srv.Engine.Repo, hooks, zerolog.Nop())
	ctx := context.Background()
	d.cursorFor(ctx, 0)

	id := srv.createContract(t)
	res, data := doJSON(t, srv.client, http.MethodPost, srv.URL+"/v1/contracts/"+id+"/accept", nil, as("bob"))
	expectStatus(t, res, data, http.StatusOK)

	d.dispatchAll(ctx)
	d.dispatchAll(ctx)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 1)
	require.Equal(t, domain.EventContractAccepted, got[0].Type)
	require.Equal(t, id, got[0].ContractID)
	payload, err := json.Marshal(got[0])
	require.NoError(t, err)
	require.Equal(t, signPayload("s3cret", payload), sigs[0])
}

func TestDevTokenRoundTrip(t *testing.T) {
	token, err := signDevToken(testSecret, "carol", time.Minute)
	require.NoError(t, err)
	p, err := authenticateJWT(token, testSecret)
	require.NoError(t, err)
	require.Equal(t, "carol", p.ActorID)

	_, err = authenticateJWT(token, "other-secret")
	require.Error(t, err)
	expired, err := signDevToken(testSecret, "carol", -time.Minute)
	require.NoError(t, err)
	_, err = authenticateJWT(expired, testSecret)
	require.Error(t, err)
}

func TestDisputesOverHTTP(t *testing.T) {
	srv := newTestServer(t, nil)
	id := srv.createContract(t)
	base := srv.URL + "/v1/contracts/" + id

	res, data := doJSON(t, srv.client, http.MethodPost, base+"/disputes", map[string]any{"reason": ""}, as("alice"))
	expectStatus(t, res, data, http.StatusBadRequest)

	res, data = doJSON(t, srv.client, http.MethodPost, base+"/disputes", map[string]any{"reason": "scope creep", "milestone_id": "m1"}, as("mallory"))
	expectStatus(t, res, data, http.StatusForbidden)

	res, data = doJSON(t, srv.client, http.MethodPost, base+"/disputes", map[string]any{"reason": "scope creep", "milestone_id": "m1", "user_type": "client"}, as("alice"))
	expectStatus(t, res, data, http.StatusCreated)
	var opened DisputeResponse
	require.NoError(t, json.Unmarshal(data, &opened))
	require.NotEmpty(t, opened.DisputeID)

	res, data = doJSON(t, srv.client, http.MethodGet, base+"/disputes", nil, as("bob"))
	expectStatus(t, res, data, http.StatusOK)
	var list DisputeList
	require.NoError(t, json.Unmarshal(data, &list))
	require.Len(t, list.Items, 1)
	require.Equal(t, opened.DisputeID, list.Items[0].ID)
	require.Equal(t, domain.RoleClient, list.Items[0].RaisedByRole)
}
