package api

import (
	"net/http"
	"os"
	"strings"
)

// SpecHandler serves the OpenAPI YAML spec with any runtime placeholders
// replaced. The file on disk still contains {oktaIssuer} so clients don't have
// to know the actual tenant or issuer URL; we substitute it here before returning.
func SpecHandler(oktaIssuer string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data, err := os.ReadFile("api/openapi.yaml")
		if err != nil {
			http.Error(w, "failed to load spec", http.StatusInternalServerError)
			return
		}
		spec := strings.ReplaceAll(string(data), "{oktaIssuer}", oktaIssuer)
		w.Header().Set("Content-Type", "application/yaml")
		w.Write([]byte(spec))
	}
}

// SwaggerHandler returns an HTTP handler that serves the Swagger UI. The page
// uses the official CDN-hosted assets so we don't need to check any static
// files into version control, and is configured with OAuth2 settings so that
// users can "Authorize" against the same Okta tenant used by the application.
func SwaggerHandler(oktaDomain, clientID string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		specURL := "/openapi.yaml"
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		oauth2Redirect := scheme + "://" + r.Host + "/docs/oauth2-redirect.html"

		html := strings.ReplaceAll(swaggerHTML, "${SPEC_URL}", specURL)
		html = strings.ReplaceAll(html, "${OAUTH2_REDIRECT}", oauth2Redirect)
		html = strings.ReplaceAll(html, "${OKTA_DOMAIN}", oktaDomain)
		html = strings.ReplaceAll(html, "${CLIENT_ID}", clientID)
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(html))
	}
}

// OAuthRedirectHandler serves the OAuth2 redirect page used by Swagger UI.
func OAuthRedirectHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	w.Write([]byte(oauthRedirectHTML))
}

const swaggerHTML = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8" />
  <title>Swagger UI</title>
  <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist/swagger-ui.css" />
</head>
<body>
  <div id="swagger-ui"></div>
  <script src="https://unpkg.com/swagger-ui-dist/swagger-ui-bundle.js"></script>
  <script>
  window.onload = function() {
    const ui = SwaggerUIBundle({
      url: "${SPEC_URL}",
      dom_id: '#swagger-ui',
      presets: [SwaggerUIBundle.presets.apis],
      layout: "BaseLayout",
      oauth2RedirectUrl: "${OAUTH2_REDIRECT}",
    });
    window.ui = ui;

    // initialize OAuth settings with client id (no secret, PKCE is used)
    ui.initOAuth({
      clientId: "${CLIENT_ID}",
      usePkceWithAuthorizationCodeGrant: true,
    });
  }
  </script>
</body>
</html>`

const oauthRedirectHTML = `<!DOCTYPE html>
<html lang="en">
<head><meta charset="UTF-8"/><title>OAuth2 Redirect</title></head>
<body>
<script>
if (window.opener && window.opener.swaggerUIRedirectCallback) {
  window.opener.swaggerUIRedirectCallback(window.location.href);
}
</script>
</body>
</html>`
