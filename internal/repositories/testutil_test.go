package repositories

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/swap-market/backend/internal/db"
	"github.com/swap-market/backend/internal/models"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
)

// setupTestDB starts a postgres container and applies the migrations.
// Skipped in -short mode and when no container runtime is available.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres container test in -short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("swap_market_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err, "failed to start postgres container")
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := db.NewPostgresPool(ctx, dsn, 5, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	migrations := filepath.Join(findProjectRoot(t), "migrations")
	require.NoError(t, db.RunMigrations(ctx, pool, migrations, zap.NewNop()))
	// повторный прогон ничего не применяет
	require.NoError(t, db.RunMigrations(ctx, pool, migrations, zap.NewNop()))
	return pool
}

// findProjectRoot walks up from the working directory to go.mod.
func findProjectRoot(t *testing.T) string {
	t.Helper()
	dir, err := os.Getwd()
	require.NoError(t, err)
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatal("could not find project root (go.mod)")
		}
		dir = parent
	}
}

type fixtures struct {
	users    *UserRepo
	products *ProductRepo
	swaps    *SwapRepo
}

func newFixtures(pool *pgxpool.Pool) *fixtures {
	return &fixtures{users: NewUserRepo(pool), products: NewProductRepo(pool), swaps: NewSwapRepo(pool)}
}

func (f *fixtures) user(t *testing.T) *models.User {
	t.Helper()
	u := &models.User{Email: uuid.NewString() + "@example.com"}
	require.NoError(t, f.users.Create(context.Background(), u))
	return u
}

func (f *fixtures) product(t *testing.T, owner *models.User) *models.Product {
	t.Helper()
	p := &models.Product{OwnerID: owner.ID, Title: "lamp"}
	require.NoError(t, f.products.Create(context.Background(), p))
	return p
}

func (f *fixtures) swap(t *testing.T, status models.SwapStatus, createdAt time.Time) *models.Swap {
	t.Helper()
	from, to := f.user(t), f.user(t)
	s := &models.Swap{
		FromUserID:         from.ID,
		ToUserID:           to.ID,
		OfferingProductID:  f.product(t, from).ID,
		RequestedProductID: f.product(t, to).ID,
		Status:             status,
		CreatedAt:          createdAt,
	}
	require.NoError(t, f.swaps.Create(context.Background(), s))
	return s
}
