package repo_test

import (
	"context"
	"database/sql"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"escrowline/internal/db"
	"escrowline/internal/domain"
	"escrowline/internal/migrate"
	"escrowline/internal/repo"
)

func openRepo(t *testing.T) repo.Repo {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(context.Background(), conn))
	return repo.Repo{DB: conn}
}

func sampleContract(id, client, freelancer string) domain.Contract {
	return domain.Contract{
		ID:           id,
		ProjectID:    "proj-1",
		ClientID:     client,
		FreelancerID: freelancer,
		Title:        "Logo",
		Terms:        domain.Terms{Amount: 3000, Currency: "USD", PaymentType: domain.PaymentFixed},
		Milestones: []domain.Milestone{
			{ID: "m1", Title: "Sketch", Amount: 1000, Status: domain.MilestonePending},
			{ID: "m2", Title: "Final", Amount: 2000, Status: domain.MilestonePending},
		},
		Status:    domain.ContractPendingAcceptance,
		CreatedAt: "2024-01-01T00:00:00Z",
		UpdatedAt: "2024-01-01T00:00:00Z",
	}
}

func insert(t *testing.T, r repo.Repo, c domain.Contract) {
	t.Helper()
	ctx := context.Background()
	_, err := db.RunTx(ctx, r.DB, 1, func(tx *sql.Tx) error {
		return r.InsertContractTx(ctx, tx, c)
	})
	require.NoError(t, err)
}

func TestContractRoundTripStartsAtVersionOne(t *testing.T) {
	r := openRepo(t)
	insert(t, r, sampleContract("c1", "alice", "bob"))

	got, err := r.GetContract(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Version)
	assert.Equal(t, int64(3000), got.Terms.Amount)
	require.Len(t, got.Milestones, 2)
	assert.Equal(t, "m2", got.Milestones[1].ID)
	assert.Empty(t, got.ProposalID)
	assert.Nil(t, got.AcceptedAt)
}

func TestUpdateContractRejectsStaleVersion(t *testing.T) {
	ctx := context.Background()
	r := openRepo(t)
	insert(t, r, sampleContract("c1", "alice", "bob"))

	stale, err := r.GetContract(ctx, "c1")
	require.NoError(t, err)

	fresh := stale
	fresh.Status = domain.ContractActive
	_, err = db.RunTx(ctx, r.DB, 1, func(tx *sql.Tx) error {
		return r.UpdateContractTx(ctx, tx, fresh)
	})
	require.NoError(t, err)

	stale.Title = "Lost update"
	_, err = db.RunTx(ctx, r.DB, 1, func(tx *sql.Tx) error {
		return r.UpdateContractTx(ctx, tx, stale)
	})
	require.ErrorIs(t, err, domain.ErrConflict)

	got, err := r.GetContract(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Version)
	assert.Equal(t, "Logo", got.Title)
	assert.Equal(t, domain.ContractActive, got.Status)
}

func TestGetContractNotFound(t *testing.T) {
	r := openRepo(t)
	_, err := r.GetContract(context.Background(), "nope")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestListContractsFiltersByParty(t *testing.T) {
	ctx := context.Background()
	r := openRepo(t)
	insert(t, r, sampleContract("c1", "alice", "bob"))
	insert(t, r, sampleContract("c2", "carol", "alice"))
	insert(t, r, sampleContract("c3", "carol", "dave"))

	mine, err := r.ListContracts(ctx, repo.ContractFilters{PartyID: "alice"})
	require.NoError(t, err)
	ids := []string{}
	for _, c := range mine {
		ids = append(ids, c.ID)
	}
	assert.ElementsMatch(t, []string{"c1", "c2"}, ids)

	limited, err := r.ListContracts(ctx, repo.ContractFilters{ProjectID: "proj-1", Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestAPIKeyLifecycle(t *testing.T) {
	ctx := context.Background()
	r := openRepo(t)

	plain, err := repo.GenerateAPIKey()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(plain, "elk_"))
	other, err := repo.GenerateAPIKey()
	require.NoError(t, err)
	assert.NotEqual(t, plain, other)

	key := domain.APIKey{ID: "k1", ActorID: "alice", Name: "ci", KeyHash: repo.HashAPIKey(plain), CreatedAt: "2024-01-01T00:00:00Z"}
	require.NoError(t, r.InsertAPIKey(ctx, nil, key))
	require.ErrorIs(t, r.InsertAPIKey(ctx, nil, domain.APIKey{ID: "k2"}), domain.ErrInvalidInput)

	got, err := r.GetAPIKeyByHash(ctx, repo.HashAPIKey(plain))
	require.NoError(t, err)
	assert.Equal(t, "alice", got.ActorID)
	assert.Nil(t, got.LastUsedAt)

	_, err = r.GetAPIKeyByHash(ctx, repo.HashAPIKey(other))
	require.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, r.TouchAPIKey(ctx, "k1", "2024-01-02T00:00:00Z"))
	keys, err := r.ListAPIKeys(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, keys, 1)
	require.NotNil(t, keys[0].LastUsedAt)
	assert.Equal(t, "2024-01-02T00:00:00Z", *keys[0].LastUsedAt)

	require.ErrorIs(t, r.DeleteAPIKey(ctx, "k1", "mallory"), domain.ErrNotFound)
	require.NoError(t, r.DeleteAPIKey(ctx, "k1", "alice"))
	keys, err = r.ListAPIKeys(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, keys)
}
