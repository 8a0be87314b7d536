package server

import (
	"database/sql"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"fridgeio/internal/authn"
	"fridgeio/internal/backup"
	"fridgeio/internal/controller"
	"fridgeio/internal/docstore"
	"fridgeio/internal/email"
	"fridgeio/internal/favorites"
	"fridgeio/internal/handler"
	"fridgeio/internal/middleware"
	"fridgeio/internal/model"
	"fridgeio/internal/push"
	"fridgeio/internal/recipes"
	"fridgeio/internal/store"
	ws "fridgeio/internal/websocket"
)

// Config carries everything main reads from the environment.
type Config struct {
	Port            string
	DBPath          string
	DataDir         string
	RecipeAppID     string
	RecipeAppKey    string
	PostmarkToken   string
	PostmarkBaseURL string
	FromEmail       string
	VAPIDPublicKey  string
	VAPIDPrivateKey string
	VAPIDSubscriber string
	Backup          backup.Config
}

type Server struct {
	db            *sql.DB
	hub           *ws.Hub
	registry      *controller.Registry
	authH         *handler.AuthHandler
	groceryH      *handler.GroceryHandler
	listH         *handler.GroceryListHandler
	recipesH      *handler.RecipesHandler
	pushH         *handler.PushHandler
	systemH       *handler.SystemHandler
	sessionStore  *store.SessionStore
	pushStore     *store.PushStore
	rateLimiter   *middleware.RateLimiter
	backupManager *backup.Manager
	pushScheduler *push.Scheduler
	logger        *slog.Logger
}

func New(db *sql.DB, cfg Config, logger *slog.Logger) (*Server, error) {
	hub := ws.NewHub(logger.With("component", "websocket"))

	sessionStore := store.NewSessionStore(db)
	pushStore := store.NewPushStore(db)

	mailer := email.NewClient(cfg.PostmarkToken, cfg.FromEmail, cfg.PostmarkBaseURL)
	provider := authn.NewLocalProvider(db, mailer, logger.With("component", "authn"))

	docs := docstore.New(db, logger.With("component", "docstore"))
	registry := controller.NewRegistry(docs, provider, logger.With("component", "controller"))

	// Every controller entering the registry gets its notifications bridged
	// onto the owner's websocket room.
	registry.SetOnAdopt(func(identity string, c *controller.Controller) {
		c.AddListener(&controller.FuncListener{
			Cat: controller.CategoryGroceries,
			Groceries: func(groceries []model.Grocery) {
				hub.Publish(identity, ws.GroceriesMessage(groceries))
			},
		})
		c.AddListener(&controller.FuncListener{
			Cat: controller.CategoryGroceryLists,
			GroceryLists: func(lists []model.GroceryList) {
				hub.Publish(identity, ws.GroceryListsMessage(lists))
			},
		})
	})

	favStore, err := favorites.NewStore(filepath.Join(cfg.DataDir, "favorites"), logger.With("component", "favorites"))
	if err != nil {
		return nil, err
	}

	recipeClient := recipes.NewClient(cfg.RecipeAppID, cfg.RecipeAppKey)
	searcher := recipes.NewSearcher(recipeClient, logger.With("component", "recipes"))

	pushLogger := logger.With("component", "push")
	pushSvc := push.NewService(cfg.VAPIDPublicKey, cfg.VAPIDPrivateKey, cfg.VAPIDSubscriber, pushStore, pushLogger)
	pushSched := push.NewScheduler(docs, pushSvc, pushStore, time.Hour, pushLogger)

	backupMgr := backup.NewManager(cfg.Backup, db, logger.With("component", "backup"))

	return &Server{
		db:            db,
		hub:           hub,
		registry:      registry,
		authH:         handler.NewAuthHandler(registry, provider, sessionStore, pushStore, favStore, logger.With("component", "auth")),
		groceryH:      handler.NewGroceryHandler(registry, logger.With("component", "grocery")),
		listH:         handler.NewGroceryListHandler(registry, logger.With("component", "grocerylist")),
		recipesH:      handler.NewRecipesHandler(recipeClient, searcher, favStore, registry, logger.With("component", "recipes")),
		pushH:         handler.NewPushHandler(pushSvc, pushStore, logger.With("component", "push_handler")),
		systemH:       handler.NewSystemHandler(backupMgr, logger.With("component", "system")),
		sessionStore:  sessionStore,
		pushStore:     pushStore,
		rateLimiter:   middleware.NewRateLimiter(),
		backupManager: backupMgr,
		pushScheduler: pushSched,
		logger:        logger,
	}, nil
}

// Registry returns the controller registry for shutdown.
func (s *Server) Registry() *controller.Registry {
	return s.registry
}

// SessionStore returns the session store for cleanup tasks.
func (s *Server) SessionStore() *store.SessionStore {
	return s.sessionStore
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

// BackupManager returns the backup manager.
func (s *Server) BackupManager() *backup.Manager {
	return s.backupManager
}

// PushScheduler returns the expiry reminder scheduler.
func (s *Server) PushScheduler() *push.Scheduler {
	return s.pushScheduler
}

func (s *Server) Router() http.Handler {
	outerMux := http.NewServeMux()

	// Public routes (no auth required)
	outerMux.HandleFunc("POST /api/login", s.rateLimitedHandler(s.authH.Login))
	outerMux.HandleFunc("POST /api/signup", s.rateLimitedHandler(s.authH.Signup))
	outerMux.HandleFunc("POST /api/reset-password", s.rateLimitedHandler(s.authH.ResetPassword))
	outerMux.HandleFunc("POST /api/reset-password/confirm", s.rateLimitedHandler(s.authH.ConfirmReset))
	outerMux.HandleFunc("GET /health", s.systemH.Health)

	// Protected routes, wrapped with RequireAuth middleware
	protectedMux := http.NewServeMux()
	s.registerProtectedRoutes(protectedMux)

	authMiddleware := middleware.RequireAuth(s.sessionStore)
	outerMux.Handle("/", authMiddleware(protectedMux))

	return middleware.RequestLogger(s.logger.With("component", "http"))(outerMux)
}

func (s *Server) rateLimitedHandler(h http.HandlerFunc) http.HandlerFunc {
	keyFunc := func(r *http.Request) string {
		return middleware.ClientIP(r)
	}
	rl := middleware.RateLimit(s.rateLimiter, keyFunc, 10, time.Minute)
	return func(w http.ResponseWriter, r *http.Request) {
		rl(http.HandlerFunc(h)).ServeHTTP(w, r)
	}
}

func (s *Server) registerProtectedRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/logout", s.authH.Logout)
	mux.HandleFunc("DELETE /api/account", s.authH.DeleteAccount)

	// Grocery API routes
	mux.HandleFunc("GET /api/groceries", s.groceryH.List)
	mux.HandleFunc("POST /api/groceries", s.groceryH.Create)
	mux.HandleFunc("PUT /api/groceries/{id}", s.groceryH.Update)
	mux.HandleFunc("DELETE /api/groceries/{id}", s.groceryH.Delete)
	mux.HandleFunc("POST /api/groceries/{id}/move", s.groceryH.Move)

	// Grocery list API routes
	mux.HandleFunc("GET /api/grocery-lists", s.listH.List)
	mux.HandleFunc("POST /api/grocery-lists", s.listH.Create)
	mux.HandleFunc("PUT /api/grocery-lists/{id}", s.listH.Update)
	mux.HandleFunc("DELETE /api/grocery-lists/{id}", s.listH.Delete)

	// Recipe API routes
	mux.HandleFunc("GET /api/recipes/search", s.recipesH.Search)
	mux.HandleFunc("POST /api/recipes/pantry", s.recipesH.Pantry)
	mux.HandleFunc("GET /api/favorites", s.recipesH.Favorites)
	mux.HandleFunc("POST /api/favorites/toggle", s.recipesH.ToggleFavorite)

	// Push API routes
	mux.HandleFunc("GET /api/push/key", s.pushH.PublicKey)
	mux.HandleFunc("POST /api/push/subscribe", s.pushH.Subscribe)
	mux.HandleFunc("POST /api/push/unsubscribe", s.pushH.Unsubscribe)

	// Backup API routes
	mux.HandleFunc("GET /api/backup/status", s.systemH.BackupStatus)
	mux.HandleFunc("POST /api/backup/run", s.systemH.RunBackup)

	// Real-time sync
	mux.HandleFunc("GET /ws", ws.HandleWebSocket(s.hub, s.logger.With("component", "websocket")))
}
