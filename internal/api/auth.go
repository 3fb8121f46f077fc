package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/skohli/splitvoice/internal/ledger"
)

type Claims struct {
	SessionID string `json:"session_id"`
	jwt.RegisteredClaims
}

type sessionKeyType struct{}

var sessionKey = sessionKeyType{}

// handleLogin starts the Splitwise OAuth flow.
func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if a.oauthConfig.ClientID == "" || a.oauthConfig.ClientSecret == "" {
		http.Error(w, "OAuth not configured: set SPLITWISE_CONSUMER_KEY and SPLITWISE_CONSUMER_SECRET", http.StatusServiceUnavailable)
		return
	}
	state := generateRandomString(32)
	url := a.oauthConfig.AuthCodeURL(state)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"auth_url": url,
		"state":    state,
	})
}

func (a *API) handleCallback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "missing code", http.StatusBadRequest)
		return
	}

	token, err := a.oauthConfig.Exchange(r.Context(), code)
	if err != nil {
		http.Error(w, fmt.Sprintf("token exchange failed: %v", err), http.StatusBadGateway)
		return
	}

	a.respondWithSession(w, r.Context(), ledger.Credentials{AccessToken: token.AccessToken})
}

// handleConfigure creates a session from manually supplied credentials:
// either a consumer key/secret pair or a personal API key.
func (a *API) handleConfigure(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ConsumerKey    string `json:"consumer_key"`
		ConsumerSecret string `json:"consumer_secret"`
		APIKey         string `json:"api_key"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	creds := ledger.Credentials{
		ConsumerKey:    req.ConsumerKey,
		ConsumerSecret: req.ConsumerSecret,
		APIKey:         req.APIKey,
	}
	if creds.Token() == "" {
		http.Error(w, "api_key (or access token) is required", http.StatusBadRequest)
		return
	}
	a.respondWithSession(w, r.Context(), creds)
}

func (a *API) handleLoginWithToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.AccessToken == "" {
		http.Error(w, "access_token is required", http.StatusBadRequest)
		return
	}
	a.respondWithSession(w, r.Context(), ledger.Credentials{AccessToken: req.AccessToken})
}

func (a *API) respondWithSession(w http.ResponseWriter, ctx context.Context, creds ledger.Credentials) {
	sessionID, user, err := a.newSession(ctx, creds)
	if err != nil {
		status := http.StatusBadGateway
		if err == ledger.ErrNotConfigured {
			status = http.StatusBadRequest
		}
		http.Error(w, fmt.Sprintf("configuration failed: %v", err), status)
		return
	}

	tokenString, err := a.issueToken(sessionID)
	if err != nil {
		http.Error(w, "failed to create token", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"token":   tokenString,
		"user":    user.FullName(),
		"user_id": user.ID,
	})
}

func (a *API) issueToken(sessionID string) (string, error) {
	claims := &Claims{
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(24 * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	jwtToken := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return jwtToken.SignedString(a.jwtSecret)
}

// Middleware
func (a *API) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "missing authorization header", http.StatusUnauthorized)
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenString == authHeader {
			http.Error(w, "invalid authorization header", http.StatusUnauthorized)
			return
		}

		claims := &Claims{}
		token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method")
			}
			return a.jwtSecret, nil
		})

		if err != nil || !token.Valid {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}

		sess, ok := a.session(claims.SessionID)
		if !ok {
			http.Error(w, "session expired, configure again", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), sessionKey, sess)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func sessionFrom(r *http.Request) *userSession {
	return r.Context().Value(sessionKey).(*userSession)
}
