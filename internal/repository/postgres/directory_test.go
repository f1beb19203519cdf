package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"connectai/internal/domain/call"
	"connectai/internal/testsupport"
	"connectai/internal/testsupport/seeds"
	"connectai/pkg/errors"
)

func TestDirectoryRepository_GetBusinessByDomain(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	testDB := testsupport.NewTestPostgres(t)
	defer testDB.Close()

	repo := NewDirectoryRepository(testDB.Tx())
	seeder := seeds.New(testDB.Tx())
	ctx := context.Background()

	domain := testsupport.UniqueDomain("lookup")
	_, err := seeder.Business().WithDomain(domain).WithName("Lookup Co").Insert()
	require.NoError(t, err)

	t.Run("finds business case-insensitively", func(t *testing.T) {
		b, err := repo.GetBusinessByDomain(ctx, domain)
		require.NoError(t, err)
		assert.Equal(t, "Lookup Co", b.Name)

		upper, err := repo.GetBusinessByDomain(ctx, "LOOKUP"+domain[6:])
		require.NoError(t, err)
		assert.Equal(t, b.ID, upper.ID)
	})

	t.Run("returns not found for unknown domain", func(t *testing.T) {
		_, err := repo.GetBusinessByDomain(ctx, "nobody.example")
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrNotFound))
	})

	t.Run("ignores inactive business", func(t *testing.T) {
		inactive := testsupport.UniqueDomain("inactive")
		_, err := seeder.Business().WithDomain(inactive).WithActive(false).Insert()
		require.NoError(t, err)

		_, err = repo.GetBusinessByDomain(ctx, inactive)
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrNotFound))
	})
}

func TestDirectoryRepository_ResolveAgent(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	testDB := testsupport.NewTestPostgres(t)
	defer testDB.Close()

	repo := NewDirectoryRepository(testDB.Tx())
	seeder := seeds.New(testDB.Tx())
	ctx := context.Background()

	domain := testsupport.UniqueDomain("resolve")
	business, err := seeder.Business().WithDomain(domain).Insert()
	require.NoError(t, err)

	reception, err := seeder.Agent().
		WithBusiness(business.ID).
		WithName("Reception").
		Insert()
	require.NoError(t, err)

	support, err := seeder.Agent().
		WithBusiness(business.ID).
		WithName("Support").
		Insert()
	require.NoError(t, err)

	supportLine := testsupport.UniquePhoneNumber()
	_, err = seeder.Route().
		WithBusiness(business.ID).
		WithAgent(support.ID).
		WithDialedPattern(supportLine).
		WithPriority(10).
		Insert()
	require.NoError(t, err)

	t.Run("route wins for matching dialed number", func(t *testing.T) {
		agent, err := repo.ResolveAgent(ctx, call.RouteHeaders{
			AccountDomain: domain,
			Dialed:        supportLine,
		})
		require.NoError(t, err)
		assert.Equal(t, support.ID, agent.ID)
	})

	t.Run("falls back to newest active agent without a route match", func(t *testing.T) {
		agent, err := repo.ResolveAgent(ctx, call.RouteHeaders{
			AccountDomain: domain,
			Dialed:        testsupport.UniquePhoneNumber(),
		})
		require.NoError(t, err)
		// Both agents are fallback candidates; the newest one wins.
		assert.Contains(t, []int64{reception.ID, support.ID}, agent.ID)
	})

	t.Run("skips routes pointing at inactive agents", func(t *testing.T) {
		ghost, err := seeder.Agent().
			WithBusiness(business.ID).
			WithName("Ghost").
			WithActive(false).
			Insert()
		require.NoError(t, err)

		ghostLine := testsupport.UniquePhoneNumber()
		_, err = seeder.Route().
			WithBusiness(business.ID).
			WithAgent(ghost.ID).
			WithDialedPattern(ghostLine).
			WithPriority(1).
			Insert()
		require.NoError(t, err)

		agent, err := repo.ResolveAgent(ctx, call.RouteHeaders{
			AccountDomain: domain,
			Dialed:        ghostLine,
		})
		require.NoError(t, err)
		assert.NotEqual(t, ghost.ID, agent.ID)
	})

	t.Run("fails for unknown domain", func(t *testing.T) {
		_, err := repo.ResolveAgent(ctx, call.RouteHeaders{AccountDomain: "nobody.example"})
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrNotFound))
	})
}
