package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/sessions"
	"github.com/labstack/echo/v4"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
	"golang.org/x/oauth2/google"
)

// ErrStateMismatch is returned when the OAuth state round-tripped through
// the callback doesn't match the one this service's browser session set
// during login (a forged or replayed callback).
var ErrStateMismatch = errors.New("oauth state mismatch")

// oauthSessionName is the gorilla/sessions cookie name the login/callback
// pair uses to carry the CSRF state token across the redirect to the OAuth
// provider and back, instead of a server-side nonce table.
const oauthSessionName = "dataflow-oauth"

// Provider represents an OAuth provider
type Provider string

const (
	ProviderGoogle Provider = "google"
	ProviderGitHub Provider = "github"
)

// OAuthConfig holds OAuth configuration
type OAuthConfig struct {
	GoogleClientID     string
	GoogleClientSecret string
	GitHubClientID     string
	GitHubClientSecret string
	RedirectURL        string
	JWTSecret          string

	// Sessions backs the state cookie LoginHandler/CallbackHandler use to
	// defend against CSRF/replay on the OAuth redirect.
	Sessions sessions.Store
}

// OAuthManager manages OAuth providers
type OAuthManager struct {
	configs   map[Provider]*oauth2.Config
	jwtSecret []byte
	sessions  sessions.Store
}

// NewOAuthManager creates a new OAuth manager
func NewOAuthManager(config OAuthConfig) *OAuthManager {
	manager := &OAuthManager{
		configs:   make(map[Provider]*oauth2.Config),
		jwtSecret: []byte(config.JWTSecret),
		sessions:  config.Sessions,
	}

	// Setup Google OAuth
	if config.GoogleClientID != "" {
		manager.configs[ProviderGoogle] = &oauth2.Config{
			ClientID:     config.GoogleClientID,
			ClientSecret: config.GoogleClientSecret,
			RedirectURL:  config.RedirectURL + "/google/callback",
			Scopes: []string{
				"https://www.googleapis.com/auth/userinfo.email",
				"https://www.googleapis.com/auth/userinfo.profile",
			},
			Endpoint: google.Endpoint,
		}
	}

	// Setup GitHub OAuth
	if config.GitHubClientID != "" {
		manager.configs[ProviderGitHub] = &oauth2.Config{
			ClientID:     config.GitHubClientID,
			ClientSecret: config.GitHubClientSecret,
			RedirectURL:  config.RedirectURL + "/github/callback",
			Scopes:       []string{"user:email", "read:user"},
			Endpoint:     github.Endpoint,
		}
	}

	return manager
}

// LoginHandler returns OAuth login handler
func (m *OAuthManager) LoginHandler(provider Provider) echo.HandlerFunc {
	return func(c echo.Context) error {
		config, exists := m.configs[provider]
		if !exists {
			return echo.NewHTTPError(http.StatusBadRequest, "Provider not configured")
		}

		state, err := generateStateToken()
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, "Failed to generate state")
		}

		sess, err := m.sessions.Get(c.Request(), oauthSessionName)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, "Failed to open session")
		}
		sess.Options.MaxAge = 10 * 60 // state is only valid for the redirect round trip
		sess.Values["state"] = state
		sess.Values["provider"] = string(provider)
		if err := sess.Save(c.Request(), c.Response()); err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, "Failed to store state")
		}

		url := config.AuthCodeURL(state)
		return c.Redirect(http.StatusTemporaryRedirect, url)
	}
}

// CallbackHandler returns OAuth callback handler
func (m *OAuthManager) CallbackHandler(provider Provider) echo.HandlerFunc {
	return func(c echo.Context) error {
		config, exists := m.configs[provider]
		if !exists {
			return echo.NewHTTPError(http.StatusBadRequest, "Provider not configured")
		}

		state := c.QueryParam("state")
		if state == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "Missing state")
		}

		sess, err := m.sessions.Get(c.Request(), oauthSessionName)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "Invalid session")
		}
		storedState, _ := sess.Values["state"].(string)
		storedProvider, _ := sess.Values["provider"].(string)
		if storedState == "" || storedState != state || storedProvider != string(provider) {
			return echo.NewHTTPError(http.StatusBadRequest, ErrStateMismatch.Error())
		}

		// State is single-use: clear it before exchanging the code.
		delete(sess.Values, "state")
		delete(sess.Values, "provider")
		_ = sess.Save(c.Request(), c.Response())

		code := c.QueryParam("code")
		if code == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "Missing code")
		}

		token, err := config.Exchange(c.Request().Context(), code)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, "Failed to exchange token")
		}

		userInfo, err := m.getUserInfo(c.Request().Context(), provider, token)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, "Failed to get user info")
		}

		jwtToken, err := m.generateJWT(userInfo)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, "Failed to generate JWT")
		}

		return c.JSON(http.StatusOK, map[string]interface{}{
			"token":    jwtToken,
			"user":     userInfo,
			"provider": provider,
		})
	}
}

// UserInfo represents user information from OAuth
type UserInfo struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	Picture  string `json:"picture,omitempty"`
	Provider string `json:"provider"`
}

// getUserInfo fetches user info from OAuth provider
func (m *OAuthManager) getUserInfo(ctx context.Context, provider Provider, token *oauth2.Token) (*UserInfo, error) {
	config := m.configs[provider]
	client := config.Client(ctx, token)

	var userInfo UserInfo
	userInfo.Provider = string(provider)

	switch provider {
	case ProviderGoogle:
		resp, err := client.Get("https://www.googleapis.com/oauth2/v2/userinfo")
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		var googleUser struct {
			ID      string `json:"id"`
			Email   string `json:"email"`
			Name    string `json:"name"`
			Picture string `json:"picture"`
		}

		if err := json.NewDecoder(resp.Body).Decode(&googleUser); err != nil {
			return nil, err
		}

		userInfo.ID = googleUser.ID
		userInfo.Email = googleUser.Email
		userInfo.Name = googleUser.Name
		userInfo.Picture = googleUser.Picture

	case ProviderGitHub:
		resp, err := client.Get("https://api.github.com/user")
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		var githubUser struct {
			ID        int    `json:"id"`
			Login     string `json:"login"`
			Name      string `json:"name"`
			Email     string `json:"email"`
			AvatarURL string `json:"avatar_url"`
		}

		if err := json.NewDecoder(resp.Body).Decode(&githubUser); err != nil {
			return nil, err
		}

		userInfo.ID = fmt.Sprintf("%d", githubUser.ID)
		userInfo.Email = githubUser.Email
		userInfo.Name = githubUser.Name
		if userInfo.Name == "" {
			userInfo.Name = githubUser.Login
		}
		userInfo.Picture = githubUser.AvatarURL

		// GitHub might not return email in main response, fetch separately
		if userInfo.Email == "" {
			emailResp, err := client.Get("https://api.github.com/user/emails")
			if err == nil {
				defer emailResp.Body.Close()

				var emails []struct {
					Email    string `json:"email"`
					Primary  bool   `json:"primary"`
					Verified bool   `json:"verified"`
				}

				if err := json.NewDecoder(emailResp.Body).Decode(&emails); err == nil {
					for _, email := range emails {
						if email.Primary && email.Verified {
							userInfo.Email = email.Email
							break
						}
					}
				}
			}
		}
	}

	return &userInfo, nil
}

// generateJWT creates a JWT token for the user, carrying the pipeline
// registry viewer role by default; an operator grants elevated roles out of
// band (see middleware.RoleOperator).
func (m *OAuthManager) generateJWT(userInfo *UserInfo) (string, error) {
	claims := jwt.MapClaims{
		"user_id":  userInfo.ID,
		"email":    userInfo.Email,
		"name":     userInfo.Name,
		"provider": userInfo.Provider,
		"roles":    []string{"pipeline:viewer"},
		"exp":      time.Now().Add(24 * time.Hour).Unix(),
		"iat":      time.Now().Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.jwtSecret)
}

// generateStateToken generates a random state token
func generateStateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}
