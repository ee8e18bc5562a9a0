package postgres_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"
	"github.com/tendant/content-ledger/pkg/contentledger"
	"github.com/tendant/content-ledger/pkg/contentledger/repo/postgres"
	"github.com/tendant/content-ledger/pkg/contentledger/repo/repotest"
)

// Each test gets its own schema so the contract runs against empty tables.
func TestPostgresRepository(t *testing.T) {
	databaseURL := os.Getenv("CONTENT_LEDGER_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("CONTENT_LEDGER_TEST_DATABASE_URL not set")
	}

	n := 0
	repotest.Run(t, func(t *testing.T) contentledger.Repository {
		ctx := context.Background()
		n++
		schema := fmt.Sprintf("ledger_test_%d_%d", time.Now().UnixNano(), n)

		require.NoError(t, postgres.Migrate(ctx, databaseURL, schema))
		repo, err := postgres.Open(ctx, databaseURL, schema)
		require.NoError(t, err)

		t.Cleanup(func() {
			repo.Close()
			conn, err := pgx.Connect(ctx, databaseURL)
			if err != nil {
				return
			}
			defer conn.Close(ctx)
			conn.Exec(ctx, "DROP SCHEMA "+pgx.Identifier{schema}.Sanitize()+" CASCADE")
		})
		return repo
	})
}
