package auth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coreos/go-oidc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcpflow/backend/internal/config"
	"mcpflow/backend/internal/engine"
	"mcpflow/backend/pkg/models"
)

type noopLogger struct{}

func (noopLogger) Debug(msg string, args ...any) {}
func (noopLogger) Info(msg string, args ...any)  {}
func (noopLogger) Error(msg string, args ...any) {}

// mockKeySet satisfies oidc.KeySet to bypass signature verification.
type mockKeySet struct{}

func (m *mockKeySet) VerifySignature(ctx context.Context, jwtToken string) ([]byte, error) {
	parts := strings.Split(jwtToken, ".")
	if len(parts) != 3 {
		return nil, fmt.Errorf("malformed jwt")
	}
	return base64.RawURLEncoding.DecodeString(parts[1])
}

// orgRepo is a Repository fake that only implements organization storage;
// the middleware never touches the other methods.
type orgRepo struct {
	orgs    map[string]*models.Organization
	created []*models.Organization
	getErr  error
}

func newOrgRepo() *orgRepo {
	return &orgRepo{orgs: make(map[string]*models.Organization)}
}

func (r *orgRepo) GetOrganizationByDomain(ctx context.Context, domain string) (*models.Organization, error) {
	if r.getErr != nil {
		return nil, r.getErr
	}
	org, ok := r.orgs[domain]
	if !ok {
		return nil, fmt.Errorf("organization %q: %w", domain, engine.ErrNotFound)
	}
	return org, nil
}

func (r *orgRepo) CreateOrganization(ctx context.Context, org *models.Organization) error {
	r.orgs[org.Domain] = org
	r.created = append(r.created, org)
	return nil
}

func (r *orgRepo) CreateToolServer(ctx context.Context, srv *models.ToolServer) error { return nil }
func (r *orgRepo) GetToolServer(ctx context.Context, id string) (*models.ToolServer, error) {
	return nil, nil
}
func (r *orgRepo) ListToolServers(ctx context.Context, p models.Principal) ([]*models.ToolServer, error) {
	return nil, nil
}
func (r *orgRepo) CreateWorkflow(ctx context.Context, def *models.WorkflowDefinition) error {
	return nil
}
func (r *orgRepo) GetWorkflow(ctx context.Context, id string) (*models.WorkflowDefinition, error) {
	return nil, nil
}
func (r *orgRepo) ListWorkflows(ctx context.Context, p models.Principal, category string) ([]*models.WorkflowDefinition, error) {
	return nil, nil
}
func (r *orgRepo) UpdateWorkflow(ctx context.Context, def *models.WorkflowDefinition) error {
	return nil
}
func (r *orgRepo) DeleteWorkflow(ctx context.Context, id string) error { return nil }
func (r *orgRepo) CreateExecution(ctx context.Context, rec *models.ExecutionRecord) error {
	return nil
}
func (r *orgRepo) GetExecution(ctx context.Context, id string) (*models.ExecutionRecord, error) {
	return nil, nil
}
func (r *orgRepo) ListExecutionsByWorkflow(ctx context.Context, workflowID string) ([]*models.ExecutionRecord, error) {
	return nil, nil
}
func (r *orgRepo) ListExecutionsByOwner(ctx context.Context, p models.Principal) ([]*models.ExecutionRecord, error) {
	return nil, nil
}
func (r *orgRepo) UpdateExecution(ctx context.Context, rec *models.ExecutionRecord) error {
	return nil
}
func (r *orgRepo) AppendNodeLog(ctx context.Context, executionID string, entry models.NodeExecutionLog) error {
	return nil
}

func fakeJWT(t *testing.T, issuer, clientID, email string) string {
	t.Helper()
	claims := map[string]interface{}{
		"iss":   issuer,
		"aud":   clientID,
		"sub":   "test-user",
		"exp":   time.Now().Add(time.Hour).Unix(),
		"iat":   time.Now().Add(-1 * time.Minute).Unix(),
		"email": email,
	}
	header, _ := json.Marshal(map[string]interface{}{"alg": "RS256", "typ": "JWT", "kid": "test-key"})
	payload, _ := json.Marshal(claims)
	signature := base64.RawURLEncoding.EncodeToString([]byte("fakesignature"))
	return base64.RawURLEncoding.EncodeToString(header) + "." +
		base64.RawURLEncoding.EncodeToString(payload) + "." + signature
}

func TestRequireAuthBearerTokenExtractsPrincipal(t *testing.T) {
	repo := newOrgRepo()
	repo.orgs["acme.com"] = &models.Organization{ID: "org-123", Name: "acme.com", Domain: "acme.com"}

	issuer := "https://test-issuer.com"
	clientID := "test-client"
	verifier := oidc.NewVerifier(issuer, &mockKeySet{}, &oidc.Config{
		ClientID:          clientID,
		SkipClientIDCheck: true,
	})

	a := &Auth{apiVerifier: verifier, repo: repo}

	req := httptest.NewRequest("GET", "/api/v1/workflows", nil)
	req.Header.Set("Authorization", "Bearer "+fakeJWT(t, issuer, clientID, "user@acme.com"))
	rec := httptest.NewRecorder()

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := PrincipalFromContext(r.Context())
		require.True(t, ok, "principal should be in context")
		assert.Equal(t, "user@acme.com", p.Email)
		assert.Equal(t, "org-123", p.OrganizationID)
		w.WriteHeader(http.StatusOK)
	})

	a.RequireAuth(next).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Logf("Response Body: %s", rec.Body.String())
	}
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequireAuthBypassMode(t *testing.T) {
	repo := newOrgRepo()

	cfg := &config.Config{
		Environment:   "DEV",
		DevModeBypass: true,
	}
	a, err := New(context.Background(), cfg, repo, noopLogger{})
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/api/v1/workflows", nil)
	rec := httptest.NewRecorder()

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := PrincipalFromContext(r.Context())
		require.True(t, ok)
		assert.Equal(t, "dev@localhost", p.Email)
		w.WriteHeader(http.StatusOK)
	})

	a.RequireAuth(next).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	// The localhost organization was auto-provisioned.
	require.Len(t, repo.created, 1)
	assert.Equal(t, "localhost", repo.created[0].Domain)
}

func TestProvisionPrincipal(t *testing.T) {
	repo := newOrgRepo()

	t.Run("auto-provisions unknown domains", func(t *testing.T) {
		p, err := ProvisionPrincipal(context.Background(), repo, "founder@startup.io")
		require.NoError(t, err)
		assert.Equal(t, "founder@startup.io", p.UserID)
		assert.NotEmpty(t, p.OrganizationID)
		require.Len(t, repo.created, 1)
		assert.Equal(t, "startup.io", repo.created[0].Domain)
	})

	t.Run("reuses existing organizations", func(t *testing.T) {
		p, err := ProvisionPrincipal(context.Background(), repo, "cofounder@startup.io")
		require.NoError(t, err)
		assert.Equal(t, repo.created[0].ID, p.OrganizationID)
		assert.Len(t, repo.created, 1)
	})

	t.Run("rejects malformed emails", func(t *testing.T) {
		_, err := ProvisionPrincipal(context.Background(), repo, "not-an-email")
		assert.Error(t, err)
	})

	t.Run("lookup failures propagate without provisioning", func(t *testing.T) {
		broken := newOrgRepo()
		broken.getErr = fmt.Errorf("connection reset by peer")

		_, err := ProvisionPrincipal(context.Background(), broken, "founder@startup.io")
		require.Error(t, err)
		assert.ErrorContains(t, err, "connection reset")
		assert.Empty(t, broken.created, "a transient lookup failure must not create an organization")
	})
}
