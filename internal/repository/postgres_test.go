package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"mcpflow/backend/internal/engine"
	"mcpflow/backend/pkg/models"
)

func TestPostgresStore(t *testing.T) {
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("test-db"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2)),
	)
	if err != nil {
		t.Fatal(err)
	}
	defer func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Fatalf("failed to terminate container: %s", err)
		}
	}()

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatal(err)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		t.Fatal(err)
	}
	defer pool.Close()

	store := NewPostgresStore(pool)
	require.NoError(t, store.EnsureSchema(ctx))

	org := &models.Organization{ID: uuid.New().String(), Name: "Acme", Domain: "acme.test"}
	require.NoError(t, store.CreateOrganization(ctx, org))

	principal := models.Principal{
		UserID:         "alex@acme.test",
		Email:          "alex@acme.test",
		OrganizationID: org.ID,
	}
	outsider := models.Principal{
		UserID:         "mallory@other.test",
		Email:          "mallory@other.test",
		OrganizationID: uuid.New().String(),
	}

	t.Run("organizations", func(t *testing.T) {
		got, err := store.GetOrganizationByDomain(ctx, "acme.test")
		require.NoError(t, err)
		assert.Equal(t, org.ID, got.ID)

		_, err = store.GetOrganizationByDomain(ctx, "nope.test")
		assert.True(t, errors.Is(err, engine.ErrNotFound))
	})

	srv := &models.ToolServer{
		ID:             uuid.New().String(),
		Name:           "local-tools",
		URL:            "http://localhost:9000/sse",
		OrganizationID: &org.ID,
		CreatedAt:      time.Now().UTC(),
	}

	t.Run("tool servers", func(t *testing.T) {
		require.NoError(t, store.CreateToolServer(ctx, srv))

		got, err := store.GetToolServer(ctx, srv.ID)
		require.NoError(t, err)
		assert.Equal(t, srv.Name, got.Name)
		require.NotNil(t, got.OrganizationID)
		assert.Equal(t, org.ID, *got.OrganizationID)

		listed, err := store.ListToolServers(ctx, principal)
		require.NoError(t, err)
		assert.Len(t, listed, 1)

		listed, err = store.ListToolServers(ctx, outsider)
		require.NoError(t, err)
		assert.Empty(t, listed)
	})

	now := time.Now().UTC().Truncate(time.Millisecond)
	def := &models.WorkflowDefinition{
		ID:             uuid.New().String(),
		OrganizationID: &org.ID,
		Name:           "issue digest",
		Category:       "reporting",
		Nodes: []models.Node{
			{
				ID:     "fetch",
				Type:   models.NodeTypeFetch,
				Config: models.FetchConfig{ServerID: srv.ID, ToolName: "list_issues"},
			},
			{
				ID:     "save",
				Type:   models.NodeTypeAction,
				Config: models.ActionConfig{Action: models.ActionSave},
				Inputs: []string{"fetch"},
			},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	t.Run("workflow round trip preserves typed node configs", func(t *testing.T) {
		require.NoError(t, store.CreateWorkflow(ctx, def))

		got, err := store.GetWorkflow(ctx, def.ID)
		require.NoError(t, err)
		assert.Equal(t, def.Name, got.Name)
		require.Len(t, got.Nodes, 2)

		cfg, ok := got.Nodes[0].Config.(models.FetchConfig)
		require.True(t, ok, "expected FetchConfig, got %T", got.Nodes[0].Config)
		assert.Equal(t, "list_issues", cfg.ToolName)
		assert.Equal(t, []string{"fetch"}, got.Nodes[1].Inputs)
	})

	t.Run("workflow listing scopes and filters", func(t *testing.T) {
		listed, err := store.ListWorkflows(ctx, principal, "")
		require.NoError(t, err)
		assert.Len(t, listed, 1)

		listed, err = store.ListWorkflows(ctx, principal, "reporting")
		require.NoError(t, err)
		assert.Len(t, listed, 1)

		listed, err = store.ListWorkflows(ctx, principal, "other")
		require.NoError(t, err)
		assert.Empty(t, listed)

		listed, err = store.ListWorkflows(ctx, outsider, "")
		require.NoError(t, err)
		assert.Empty(t, listed)
	})

	t.Run("workflow update and delete", func(t *testing.T) {
		def.Name = "issue digest v2"
		def.UpdatedAt = time.Now().UTC()
		require.NoError(t, store.UpdateWorkflow(ctx, def))

		got, err := store.GetWorkflow(ctx, def.ID)
		require.NoError(t, err)
		assert.Equal(t, "issue digest v2", got.Name)

		missing := *def
		missing.ID = uuid.New().String()
		assert.True(t, errors.Is(store.UpdateWorkflow(ctx, &missing), engine.ErrNotFound))
		assert.True(t, errors.Is(store.DeleteWorkflow(ctx, missing.ID), engine.ErrNotFound))
	})

	t.Run("execution ledger", func(t *testing.T) {
		rec := &models.ExecutionRecord{
			ID:             uuid.New().String(),
			WorkflowID:     def.ID,
			OrganizationID: &org.ID,
			Status:         models.ExecutionStatusRunning,
			StartedAt:      now,
		}
		require.NoError(t, store.CreateExecution(ctx, rec))

		// Entries appended one at a time land in order.
		done := now.Add(time.Second)
		require.NoError(t, store.AppendNodeLog(ctx, rec.ID, models.NodeExecutionLog{
			NodeID: "fetch", Status: models.NodeStatusCompleted, StartedAt: now, CompletedAt: &done,
			Output: []any{"i1", "i2"},
		}))
		require.NoError(t, store.AppendNodeLog(ctx, rec.ID, models.NodeExecutionLog{
			NodeID: "save", Status: models.NodeStatusCompleted, StartedAt: done, CompletedAt: &done,
		}))

		got, err := store.GetExecution(ctx, rec.ID)
		require.NoError(t, err)
		require.Len(t, got.Logs, 2)
		assert.Equal(t, "fetch", got.Logs[0].NodeID)
		assert.Equal(t, "save", got.Logs[1].NodeID)

		// Terminal update persists status, ledger, and result together.
		rec.Status = models.ExecutionStatusCompleted
		rec.CompletedAt = &done
		rec.Logs = got.Logs
		rec.Result = []any{"i1", "i2"}
		require.NoError(t, store.UpdateExecution(ctx, rec))

		got, err = store.GetExecution(ctx, rec.ID)
		require.NoError(t, err)
		assert.Equal(t, models.ExecutionStatusCompleted, got.Status)
		assert.Equal(t, []any{"i1", "i2"}, got.Result)

		byWorkflow, err := store.ListExecutionsByWorkflow(ctx, def.ID)
		require.NoError(t, err)
		assert.Len(t, byWorkflow, 1)

		byOwner, err := store.ListExecutionsByOwner(ctx, principal)
		require.NoError(t, err)
		assert.Len(t, byOwner, 1)

		byOwner, err = store.ListExecutionsByOwner(ctx, outsider)
		require.NoError(t, err)
		assert.Empty(t, byOwner)

		_, err = store.GetExecution(ctx, uuid.New().String())
		assert.True(t, errors.Is(err, engine.ErrNotFound))
	})
}
