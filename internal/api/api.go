package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"

	"github.com/skohli/splitvoice/internal/agent"
	"github.com/skohli/splitvoice/internal/audit"
	"github.com/skohli/splitvoice/internal/config"
	"github.com/skohli/splitvoice/internal/directory"
	"github.com/skohli/splitvoice/internal/expense"
	"github.com/skohli/splitvoice/internal/ledger"
	"github.com/skohli/splitvoice/internal/transcribe"
)

type API struct {
	router      *mux.Router
	config      *config.Config
	store       *audit.Store // nil disables the audit log
	transcriber *transcribe.Client
	oauthConfig *oauth2.Config
	jwtSecret   []byte

	mu       sync.Mutex
	sessions map[string]*userSession
}

// userSession owns one caller's ledger client, directory cache and agent
// conversation. Sessions never share cached identities: credentials differ
// per caller.
type userSession struct {
	ledger   *ledger.Client
	dir      *directory.Directory
	expenses *expense.Service
	agent    *agent.Session
}

func New(cfg *config.Config, store *audit.Store, transcriber *transcribe.Client) *API {
	api := &API{
		router:      mux.NewRouter(),
		config:      cfg,
		store:       store,
		transcriber: transcriber,
		jwtSecret:   []byte(cfg.JWTSecret),
		sessions:    make(map[string]*userSession),
		oauthConfig: &oauth2.Config{
			ClientID:     cfg.SplitwiseConsumerKey,
			ClientSecret: cfg.SplitwiseConsumerSecret,
			RedirectURL:  cfg.SplitwiseRedirectURI,
			Endpoint: oauth2.Endpoint{
				AuthURL:  "https://secure.splitwise.com/oauth/authorize",
				TokenURL: "https://secure.splitwise.com/oauth/token",
			},
		},
	}

	api.setupRoutes()
	return api
}

func (a *API) setupRoutes() {
	// Auth endpoints
	a.router.HandleFunc("/api/auth/login", a.handleLogin).Methods("GET")
	a.router.HandleFunc("/api/auth/callback", a.handleCallback).Methods("GET")
	a.router.HandleFunc("/api/configure", a.handleConfigure).Methods("POST")
	a.router.HandleFunc("/api/login_with_token", a.handleLoginWithToken).Methods("POST")

	// Protected endpoints
	protected := a.router.PathPrefix("/api").Subrouter()
	protected.Use(a.authMiddleware)

	protected.HandleFunc("/friends", a.handleListFriends).Methods("GET")
	protected.HandleFunc("/expenses", a.handleAddExpense).Methods("POST")
	protected.HandleFunc("/expenses/{id}", a.handleDeleteExpense).Methods("DELETE")
	protected.HandleFunc("/command/text", a.handleTextCommand).Methods("POST")
	protected.HandleFunc("/command/voice", a.handleVoiceCommand).Methods("POST")
	protected.HandleFunc("/actions", a.handleListActions).Methods("GET")
}

func (a *API) Start() error {
	corsOptions := cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: false,
	}

	handler := cors.New(corsOptions).Handler(a.router)

	logrus.Infof("API server listening on http://%s", a.config.WebBind)
	return http.ListenAndServe(a.config.WebBind, handler)
}

// newSession builds a fully wired session around freshly configured
// credentials and verifies them with a current-user fetch.
func (a *API) newSession(ctx context.Context, creds ledger.Credentials) (string, ledger.User, error) {
	client := ledger.NewClient()
	client.Configure(creds)

	dir := directory.New(client)
	user, err := dir.CurrentUser(ctx)
	if err != nil {
		return "", ledger.User{}, err
	}

	// Preload the roster for the model's system prompt; failures leave the
	// lists empty and the model asks instead of guessing.
	promptCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	friends, err := dir.Friends(promptCtx)
	if err != nil {
		logrus.WithError(err).Warn("failed to preload friends")
	}
	groups, err := dir.Groups(promptCtx)
	if err != nil {
		logrus.WithError(err).Warn("failed to preload groups")
	}

	chat := agent.NewOpenAIChat(a.config.OpenAIKey, "", agent.BuildSystemPrompt(friends, groups))
	expenses := expense.NewService(dir, client)

	var recorder agent.Recorder
	if a.store != nil {
		recorder = a.store
	}
	sess := &userSession{
		ledger:   client,
		dir:      dir,
		expenses: expenses,
		agent:    agent.NewSession(chat, expenses, dir, recorder),
	}

	a.mu.Lock()
	a.sessions[sess.agent.ID] = sess
	a.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"session": sess.agent.ID,
		"user":    user.FullName(),
	}).Info("session created")
	return sess.agent.ID, user, nil
}

func (a *API) session(id string) (*userSession, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	s, ok := a.sessions[id]
	return s, ok
}
