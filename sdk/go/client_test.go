package escrowlinesdk_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"escrowline/internal/config"
	"escrowline/internal/db"
	"escrowline/internal/domain"
	"escrowline/internal/engine"
	"escrowline/internal/migrate"
	"escrowline/internal/repo"
	"escrowline/internal/server"
	escrowlinesdk "escrowline/sdk/go"
)

func newClients(t *testing.T) (client, freelancer *escrowlinesdk.Client) {
	t.Helper()
	ctx := context.Background()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	require.NoError(t, migrate.Migrate(ctx, conn))
	e := engine.New(conn, config.Default())
	handler, err := server.New(server.Config{
		Engine: e,
		Auth:   server.AuthConfig{JWTSecret: "sdk-secret"},
		Log:    zerolog.Nop(),
	})
	require.NoError(t, err)
	srv := httptest.NewServer(handler)
	t.Cleanup(func() {
		srv.Close()
		conn.Close()
	})

	keyFor := func(actorID string) string {
		plain, err := repo.GenerateAPIKey()
		require.NoError(t, err)
		require.NoError(t, e.Repo.InsertAPIKey(ctx, nil, domain.APIKey{
			ID:        uuid.NewString(),
			ActorID:   actorID,
			KeyHash:   repo.HashAPIKey(plain),
			CreatedAt: time.Now().UTC().Format(time.RFC3339),
		}))
		return plain
	}
	client = escrowlinesdk.New(srv.URL)
	client.APIKey = keyFor("alice")
	freelancer = escrowlinesdk.New(srv.URL)
	freelancer.APIKey = keyFor("bob")
	return client, freelancer
}

func TestClientDrivesMilestoneToCompletion(t *testing.T) {
	ctx := context.Background()
	alice, bob := newClients(t)
	card := escrowlinesdk.PaymentMethod{Type: "card", Brand: "visa", Last4: "4242"}

	created, err := alice.CreateContract(ctx, escrowlinesdk.CreateContractRequest{
		ProjectID:     "proj-1",
		FreelancerID:  "bob",
		Title:         "Landing page",
		Terms:         escrowlinesdk.Terms{Currency: "USD", PaymentType: "fixed"},
		Milestones:    []escrowlinesdk.Milestone{{ID: "m1", Title: "Build", Amount: 5000}},
		PaymentMethod: card,
	})
	require.NoError(t, err)
	require.NotEmpty(t, created.ContractID)

	require.NoError(t, bob.AcceptContract(ctx, created.ContractID, "deal"))
	_, err = alice.FundMilestone(ctx, created.ContractID, "m1", card)
	require.NoError(t, err)
	require.NoError(t, bob.SubmitMilestone(ctx, created.ContractID, "m1", "done"))
	res, err := alice.ApproveMilestone(ctx, created.ContractID, "m1", "")
	require.NoError(t, err)
	assert.True(t, res.IsContractCompleted)
	assert.Equal(t, 100, res.Progress)

	c, err := bob.GetContract(ctx, created.ContractID)
	require.NoError(t, err)
	assert.Equal(t, "completed", c.Status)
	assert.Equal(t, int64(5000), c.Terms.Amount)

	payments, err := bob.Payments(ctx, created.ContractID)
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.Equal(t, "completed", payments[0].Status)
	assert.Equal(t, int64(500), payments[0].Amount.Fee)
	assert.Equal(t, int64(4500), payments[0].Amount.Net)

	evts, err := alice.Events(ctx, created.ContractID, "milestone_payment_released")
	require.NoError(t, err)
	assert.Len(t, evts, 1)

	notes, err := bob.Notifications(ctx, true, 10)
	require.NoError(t, err)
	require.NotEmpty(t, notes)
	require.NoError(t, bob.MarkNotificationRead(ctx, notes[0].ID))
}

func TestClientSurfacesErrorEnvelope(t *testing.T) {
	ctx := context.Background()
	alice, _ := newClients(t)

	_, err := alice.GetContract(ctx, "missing")
	var apiErr *escrowlinesdk.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "not_found", apiErr.Code)

	anon := escrowlinesdk.New(alice.BaseURL)
	_, err = anon.ListContracts(ctx, "")
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
}
