package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/coreos/go-oidc"
	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"mcpflow/backend/internal/config"
	"mcpflow/backend/internal/engine"
	"mcpflow/backend/internal/repository"
	"mcpflow/backend/pkg/models"
)

// Logger defines the logging interface compatible with the application logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

type contextKey int

const principalKey contextKey = iota

// PrincipalFromContext returns the authenticated principal stored by
// RequireAuth.
func PrincipalFromContext(ctx context.Context) (models.Principal, bool) {
	p, ok := ctx.Value(principalKey).(models.Principal)
	return p, ok
}

// WithPrincipal returns a context carrying the given principal. Used by the
// MCP surface and by tests.
func WithPrincipal(ctx context.Context, p models.Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// Auth contains configuration and helpers for performing OpenID Connect
// authentication with an Okta tenant.
type Auth struct {
	oauth2Config *oauth2.Config
	verifier     *oidc.IDTokenVerifier
	apiVerifier  *oidc.IDTokenVerifier
	repo         repository.Repository
	logger       Logger
	devMode      bool
	authBypass   bool
}

// New creates a new Auth object using values from the application
// configuration. It establishes a connection to the provider and prepares an
// ID token verifier.
func New(ctx context.Context, cfg *config.Config, repo repository.Repository, logger Logger) (*Auth, error) {
	isDev := strings.ToUpper(cfg.Environment) == "DEV"
	shouldBypass := isDev && cfg.DevModeBypass

	var oauth2Config *oauth2.Config
	var verifier *oidc.IDTokenVerifier
	var apiVerifier *oidc.IDTokenVerifier

	if !shouldBypass {
		if cfg.Auth.OktaDomain == "" || cfg.Auth.ClientID == "" ||
			cfg.Auth.ClientSecret == "" || cfg.Auth.RedirectURL == "" {
			return nil, errors.New("auth configuration is incomplete")
		}

		provider, err := oidc.NewProvider(ctx, cfg.Auth.OktaDomain)
		if err != nil {
			return nil, err
		}

		oauth2Config = &oauth2.Config{
			ClientID:     cfg.Auth.ClientID,
			ClientSecret: cfg.Auth.ClientSecret,
			Endpoint:     provider.Endpoint(),
			RedirectURL:  cfg.Auth.RedirectURL,
			Scopes:       []string{ScopeOpenID, ScopeProfile, ScopeEmail},
		}

		verifier = provider.Verifier(&oidc.Config{ClientID: cfg.Auth.ClientID})

		// Separate verifier for Access Tokens (Bearer). ClientID check is
		// skipped because access tokens often carry a different audience
		// (e.g. "api://default").
		apiVerifier = provider.Verifier(&oidc.Config{SkipClientIDCheck: true})
	}

	return &Auth{
		oauth2Config: oauth2Config,
		verifier:     verifier,
		apiVerifier:  apiVerifier,
		repo:         repo,
		logger:       logger,
		devMode:      isDev,
		authBypass:   shouldBypass,
	}, nil
}

// LoginHandler initiates the OAuth2 authorization code flow by redirecting
// the user to the authorization endpoint. A random state value is stored in
// a cookie to mitigate CSRF attacks.
func (a *Auth) LoginHandler(w http.ResponseWriter, r *http.Request) {
	if a.authBypass {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	state, err := generateState()
	if err != nil {
		http.Error(w, "failed to generate state", http.StatusInternalServerError)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     "oauthstate",
		Value:    state,
		HttpOnly: true,
		Path:     "/",
		// For production you should set Secure: true and SameSite=strict
	})

	http.Redirect(w, r, a.oauth2Config.AuthCodeURL(state), http.StatusTemporaryRedirect)
}

// CallbackHandler handles the redirect back from the provider. It verifies
// the state parameter, exchanges the code for tokens, validates the ID
// token, and sets a session cookie containing the raw ID token.
func (a *Auth) CallbackHandler(w http.ResponseWriter, r *http.Request) {
	if a.authBypass {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	cookie, err := r.Cookie("oauthstate")
	if err != nil || r.URL.Query().Get("state") != cookie.Value {
		http.Error(w, "invalid state", http.StatusBadRequest)
		return
	}

	token, err := a.oauth2Config.Exchange(r.Context(), r.URL.Query().Get("code"))
	if err != nil {
		http.Error(w, "token exchange failed", http.StatusInternalServerError)
		return
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok {
		http.Error(w, "no id_token in token response", http.StatusInternalServerError)
		return
	}

	if _, err := a.verifier.Verify(r.Context(), rawIDToken); err != nil {
		http.Error(w, "failed to verify id token", http.StatusUnauthorized)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     "id_token",
		Value:    rawIDToken,
		HttpOnly: true,
		Path:     "/",
		// Secure: true,
	})

	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// RequireAuth is middleware that resolves the caller to a Principal and
// stores it in the request context. API clients authenticate with a Bearer
// token; browser sessions use the ID token cookie. The caller's
// organization is resolved from the email domain and auto-provisioned on
// first sight.
func (a *Auth) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var email string

		if a.authBypass {
			email = "dev@localhost"
		} else {
			var token *oidc.IDToken
			var err error

			if authHeader := r.Header.Get("Authorization"); strings.HasPrefix(authHeader, "Bearer ") {
				rawToken := strings.TrimPrefix(authHeader, "Bearer ")
				token, err = a.apiVerifier.Verify(r.Context(), rawToken)
				if err != nil {
					http.Error(w, "invalid token: "+err.Error(), http.StatusUnauthorized)
					return
				}
			} else {
				cookie, err := r.Cookie("id_token")
				if err != nil {
					http.Redirect(w, r, "/login", http.StatusSeeOther)
					return
				}
				token, err = a.verifier.Verify(r.Context(), cookie.Value)
				if err != nil {
					http.Error(w, "invalid token: "+err.Error(), http.StatusUnauthorized)
					return
				}
			}

			var claims struct {
				Email string `json:"email"`
			}
			if err := token.Claims(&claims); err != nil {
				http.Error(w, "failed to parse token claims", http.StatusUnauthorized)
				return
			}
			email = claims.Email
		}

		principal, err := ProvisionPrincipal(r.Context(), a.repo, email)
		if err != nil {
			if a.logger != nil {
				a.logger.Error("failed to provision principal", "email", email, "error", err)
			}
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), principal)))
	})
}

// ProvisionPrincipal resolves the principal for an authenticated email,
// auto-provisioning the organization for the email's domain on first sight.
func ProvisionPrincipal(ctx context.Context, repo repository.Repository, email string) (models.Principal, error) {
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return models.Principal{}, fmt.Errorf("invalid email format %q", email)
	}
	domain := parts[1]

	org, err := repo.GetOrganizationByDomain(ctx, domain)
	switch {
	case errors.Is(err, engine.ErrNotFound):
		org = &models.Organization{ID: uuid.New().String(), Name: domain, Domain: domain}
		if createErr := repo.CreateOrganization(ctx, org); createErr != nil {
			return models.Principal{}, fmt.Errorf("failed to provision organization: %w", createErr)
		}
	case err != nil:
		return models.Principal{}, fmt.Errorf("failed to look up organization for %q: %w", domain, err)
	}

	return models.Principal{
		UserID:         email,
		Email:          email,
		OrganizationID: org.ID,
	}, nil
}

// LogoutHandler clears the session cookie and redirects to the home page.
func (a *Auth) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:   "id_token",
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func generateState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}
