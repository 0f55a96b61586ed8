package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	clerk "github.com/clerk/clerk-sdk-go/v2"
	gorilllaHandlers "github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"plankSquatAPI/handlers"
	"plankSquatAPI/internal/notification"
	"plankSquatAPI/middleware"
	"plankSquatAPI/services"

	_ "net/http/pprof"
)

var (
	dbPool              *pgxpool.Pool
	userService         *services.UserService
	notificationService *services.NotificationService
	syncService         *services.SyncService
	challengeService    *services.ChallengeService
	statsService        *services.StatsService
	attemptService      *services.AttemptService
	leaderboardService  *services.LeaderboardService
	teamService         *services.TeamService
	sessionManager      *services.PlankSessionManager
	fcmService          *notification.FCMService
)

func init() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	clerkSecretKey := os.Getenv("CLERK_SECRET_KEY")
	if clerkSecretKey == "" {
		log.Fatal("CLERK_SECRET_KEY environment variable is not set")
	}
	clerk.SetKey(clerkSecretKey)
	log.Println("Clerk initialized successfully")

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL environment variable is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	poolConfig, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		log.Fatal("Failed to parse database URL:", err)
	}

	poolConfig.MaxConns = 25
	poolConfig.MinConns = 5
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	dbPool, err = pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		log.Fatal("Failed to create connection pool:", err)
	}

	if err := dbPool.Ping(ctx); err != nil {
		log.Fatal("Failed to ping database:", err)
	}

	log.Println("Successfully connected to database")

	notificationService = services.NewNotificationService(dbPool)
	userService = services.NewUserService(dbPool)
	syncService = services.NewSyncService(dbPool, notificationService)
	challengeService = services.NewChallengeService(dbPool, syncService)
	statsService = services.NewStatsService(dbPool)
	attemptService = services.NewAttemptService(dbPool, statsService)
	leaderboardService = services.NewLeaderboardService(dbPool)
	teamService = services.NewTeamService(dbPool)
	sessionManager = services.NewPlankSessionManager(services.NewPlankRecorder(attemptService, statsService))

	// Stats writes invalidate the cached leaderboard for that challenge.
	statsService.SetBoardInvalidator(leaderboardService)

	fcmService, err = notification.NewFCMService("./serviceAccountKey.json")
	if err != nil {
		log.Printf("Warning: Could not initialize FCM: %v", err)
	} else {
		notificationService.SetPushProvider(fcmService)
		log.Println("FCM Push Provider initialized successfully")
	}

	middleware.InitPrometheus()
	middleware.RegisterSessionGauge(sessionManager.ActiveSessions)
}

func main() {
	defer func() {
		log.Println("Closing database connection pool...")
		dbPool.Close()
	}()

	userHandler := handlers.NewUserHandler(userService, statsService)
	challengeHandler := handlers.NewChallengeHandler(challengeService, userService)
	attemptHandler := handlers.NewAttemptHandler(challengeService, attemptService, userService)
	plankHandler := handlers.NewPlankHandler(challengeService, userService, sessionManager)
	leaderboardHandler := handlers.NewLeaderboardHandler(leaderboardService, challengeService, statsService, userService)
	teamHandler := handlers.NewTeamHandler(teamService)
	notificationHandler := handlers.NewNotificationHandler(notificationService, userService)
	webhookHandler := handlers.NewWebhookHandler(userService)

	r := mux.NewRouter()

	// WebSocket route skips the standard middleware chain; the handler does
	// its own auth via the Clerk middleware below.
	wsRouter := r.PathPrefix("/api/v1/plank/ws").Subrouter()
	wsRouter.Use(middleware.ClerkAuthMiddleware)
	wsRouter.HandleFunc("/{challengeId}", plankHandler.StartSession)

	standardRouter := r.PathPrefix("/").Subrouter()

	go middleware.CleanupVisitors()

	standardRouter.Use(middleware.RateLimitMiddleware)
	standardRouter.Use(middleware.MonitorMiddleware)

	standardRouter.Handle("/metrics", middleware.BasicAuthMiddleware(promhttp.Handler()))
	standardRouter.PathPrefix("/debug/pprof/").Handler(middleware.PprofSecurityMiddleware(http.DefaultServeMux))

	standardRouter.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := dbPool.Ping(ctx); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status": "unhealthy", "error": "database connection failed"}`))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status": "healthy", "service": "plankSquat-api"}`))
	}).Methods("GET")

	standardRouter.HandleFunc("/webhooks/clerk", webhookHandler.HandleClerkWebhook).Methods("POST")

	api := standardRouter.PathPrefix("/api/v1").Subrouter()

	protected := api.PathPrefix("").Subrouter()
	protected.Use(middleware.ClerkAuthMiddleware)

	protected.HandleFunc("/user", userHandler.GetProfile).Methods("GET")
	protected.HandleFunc("/user/update-profile", userHandler.UpdateProfile).Methods("PUT")
	protected.HandleFunc("/user/stats", userHandler.GetMyStats).Methods("GET")
	protected.HandleFunc("/user/delete-account", userHandler.DeleteAccount).Methods("DELETE")

	protected.HandleFunc("/challenges", challengeHandler.ListAvailable).Methods("GET")
	protected.HandleFunc("/challenges/mine", challengeHandler.GetMyChallenges).Methods("GET")
	protected.HandleFunc("/challenges/join", challengeHandler.Join).Methods("POST")
	protected.HandleFunc("/challenges/{id}", challengeHandler.GetChallenge).Methods("GET")

	protected.HandleFunc("/challenges/{challengeId}/today", attemptHandler.GetTodayStatus).Methods("GET")
	protected.HandleFunc("/challenges/{challengeId}/attempts", attemptHandler.ListAttempts).Methods("GET")
	protected.HandleFunc("/attempts/squats", attemptHandler.LogSquats).Methods("POST")

	protected.HandleFunc("/challenges/{challengeId}/leaderboard", leaderboardHandler.GetLeaderboard).Methods("GET")
	protected.HandleFunc("/challenges/{challengeId}/standing", leaderboardHandler.GetMyStanding).Methods("GET")

	protected.HandleFunc("/teams", teamHandler.ListTeams).Methods("GET")
	protected.HandleFunc("/teams/{id}", teamHandler.GetTeam).Methods("GET")

	protected.HandleFunc("/notifications", notificationHandler.ListNotifications).Methods("GET")
	protected.HandleFunc("/notifications/unread-count", notificationHandler.GetUnreadCount).Methods("GET")
	protected.HandleFunc("/notifications/{id}/read", notificationHandler.MarkAsRead).Methods("PUT")
	protected.HandleFunc("/notifications/read-all", notificationHandler.MarkAllAsRead).Methods("PUT")
	protected.HandleFunc("/notifications/register-device", notificationHandler.RegisterDevice).Methods("POST")

	// Admin routes: challenge and team management.
	admin := protected.PathPrefix("/admin").Subrouter()
	admin.Use(middleware.RequireAdmin(userService))

	admin.HandleFunc("/challenges", challengeHandler.CreateChallenge).Methods("POST")
	admin.HandleFunc("/challenges/{id}", challengeHandler.UpdateChallenge).Methods("PUT")
	admin.HandleFunc("/challenges/{id}/deactivate", challengeHandler.DeactivateChallenge).Methods("PUT")
	admin.HandleFunc("/challenges/{id}", challengeHandler.DeleteChallenge).Methods("DELETE")
	admin.HandleFunc("/teams", teamHandler.CreateTeam).Methods("POST")
	admin.HandleFunc("/teams/{id}", teamHandler.UpdateTeam).Methods("PUT")
	admin.HandleFunc("/teams/{id}", teamHandler.DeleteTeam).Methods("DELETE")

	corsHandler := gorilllaHandlers.CORS(
		gorilllaHandlers.AllowedOrigins([]string{"*"}),
		gorilllaHandlers.AllowedMethods([]string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
		gorilllaHandlers.AllowedHeaders([]string{"Content-Type", "Authorization", "X-Pprof-Secret"}),
		gorilllaHandlers.ExposedHeaders([]string{"Content-Length"}),
		gorilllaHandlers.AllowCredentials(),
	)

	port := os.Getenv("PORT")
	if port == "" {
		port = "3333"
	}
	port = ":" + port

	server := http.Server{
		Addr:         port,
		Handler:      corsHandler(r),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Printf("Starting server on port %s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Error starting server:", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)

	sig := <-sigChan
	log.Println("Got signal:", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	log.Println("Server shutdown complete")
}
