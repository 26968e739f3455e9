package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"mcpflow/backend/internal/config"
	"mcpflow/backend/internal/logging"
	"mcpflow/backend/internal/repository"
	"mcpflow/backend/pkg/models"
)

func main() {
	ctx := context.Background()
	logger := logging.NewLogger()

	cfg, err := config.LoadConfig("")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.DB.Host, cfg.DB.Port, cfg.DB.User, cfg.DB.Password, cfg.DB.Name, cfg.DB.SSLMode,
	)
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		log.Fatalf("Failed to connect to DB: %v", err)
	}
	defer pool.Close()

	store := repository.NewPostgresStore(pool)
	if err := store.EnsureSchema(ctx); err != nil {
		log.Fatalf("Failed to apply schema: %v", err)
	}

	// 1. Ensure the local dev organization exists
	domain := "localhost"
	org, err := store.GetOrganizationByDomain(ctx, domain)
	if err != nil {
		logger.Info("Creating default organization", "domain", domain)
		org = &models.Organization{
			ID:     uuid.New().String(),
			Name:   "Local Dev Org",
			Domain: domain,
		}
		if err := store.CreateOrganization(ctx, org); err != nil {
			log.Fatalf("Failed to create organization: %v", err)
		}
	} else {
		logger.Info("Found existing organization", "id", org.ID)
	}

	principal := models.Principal{
		UserID:         "dev@localhost",
		Email:          "dev@localhost",
		OrganizationID: org.ID,
	}

	// 2. Ensure a local tool server is registered
	servers, err := store.ListToolServers(ctx, principal)
	if err != nil {
		log.Fatalf("Failed to list tool servers: %v", err)
	}
	var toolServer *models.ToolServer
	for _, s := range servers {
		if s.Name == "local-tools" {
			toolServer = s
			break
		}
	}
	if toolServer == nil {
		toolServer = &models.ToolServer{
			ID:             uuid.New().String(),
			Name:           "local-tools",
			URL:            "http://localhost:9000/sse",
			OrganizationID: &org.ID,
			CreatedAt:      time.Now().UTC(),
		}
		if err := store.CreateToolServer(ctx, toolServer); err != nil {
			log.Fatalf("Failed to create tool server: %v", err)
		}
		logger.Info("Seeded tool server", "name", toolServer.Name, "id", toolServer.ID)
	} else {
		logger.Info("Found existing tool server", "id", toolServer.ID)
	}

	// 3. Check for existing workflows to prevent duplicates
	existing, err := store.ListWorkflows(ctx, principal, "")
	if err != nil {
		log.Fatalf("Failed to list existing workflows: %v", err)
	}
	existingMap := make(map[string]bool)
	for _, w := range existing {
		existingMap[w.Name] = true
	}

	// 4. Create seed workflows
	now := time.Now().UTC()
	workflows := []*models.WorkflowDefinition{
		{
			ID:             uuid.New().String(),
			OrganizationID: &org.ID,
			Name:           "Issue Digest",
			Description:    "Fetches open issues, keeps the high-priority ones, and summarizes them.",
			Category:       "reporting",
			Nodes: []models.Node{
				{
					ID:   "fetch_issues",
					Type: models.NodeTypeFetch,
					Config: models.FetchConfig{
						ServerID: toolServer.ID,
						ToolName: "list_issues",
						Parameters: map[string]any{
							"state": "open",
						},
					},
				},
				{
					ID:   "high_priority",
					Type: models.NodeTypeFilter,
					Config: models.FilterConfig{
						Conditions: []models.FilterCondition{
							{Field: "priority", Operator: models.OperatorGt, Value: 2},
						},
					},
					Inputs: []string{"fetch_issues"},
				},
				{
					ID:   "summarize",
					Type: models.NodeTypeTransform,
					Config: models.TransformConfig{
						Prompt: "Summarize the following issues as a short status digest.",
					},
					Inputs: []string{"high_priority"},
				},
				{
					ID:   "notify_team",
					Type: models.NodeTypeAction,
					Config: models.ActionConfig{
						Action:  models.ActionNotify,
						Message: "Daily issue digest is ready",
					},
					Inputs: []string{"summarize"},
				},
			},
			CreatedAt: now,
			UpdatedAt: now,
		},
		{
			ID:             uuid.New().String(),
			OrganizationID: &org.ID,
			Name:           "Source Merge",
			Description:    "Fetches records from two tools and deduplicates them by id.",
			Category:       "data",
			Nodes: []models.Node{
				{
					ID:   "fetch_a",
					Type: models.NodeTypeFetch,
					Config: models.FetchConfig{
						ServerID: toolServer.ID,
						ToolName: "list_records",
						Parameters: map[string]any{
							"source": "a",
						},
					},
				},
				{
					ID:   "fetch_b",
					Type: models.NodeTypeFetch,
					Config: models.FetchConfig{
						ServerID: toolServer.ID,
						ToolName: "list_records",
						Parameters: map[string]any{
							"source": "b",
						},
					},
				},
				{
					ID:   "combine",
					Type: models.NodeTypeMerge,
					Config: models.MergeConfig{
						Strategy: models.MergeStrategyDeduplicate,
						Key:      "id",
					},
					Inputs: []string{"fetch_a", "fetch_b"},
				},
				{
					ID:   "save_result",
					Type: models.NodeTypeAction,
					Config: models.ActionConfig{
						Action: models.ActionSave,
					},
					Inputs: []string{"combine"},
				},
			},
			CreatedAt: now,
			UpdatedAt: now,
		},
	}

	for _, wf := range workflows {
		if existingMap[wf.Name] {
			logger.Info("Skipping existing workflow", "name", wf.Name)
			continue
		}
		if err := store.CreateWorkflow(ctx, wf); err != nil {
			log.Printf("Failed to create workflow %s: %v", wf.Name, err)
		} else {
			logger.Info("Seeded workflow", "name", wf.Name, "id", wf.ID)
		}
	}
	logger.Info("Seeding complete!")
}
