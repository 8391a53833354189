package main

import (
	"context"
	"net/http"
	"time"

	gorillaHandlers "github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"habitTrackerAPI/handlers"
	"habitTrackerAPI/middleware"
)

type pinger interface {
	Ping(ctx context.Context) error
}

type routerDeps struct {
	DB          pinger
	Auth        handlers.AuthService
	Habits      handlers.HabitService
	Friends     handlers.FriendService
	Devices     handlers.DeviceRegistrar
	Verifier    middleware.TokenVerifier
	RateLimiter *middleware.RateLimiter
	Registry    *prometheus.Registry
	MetricsUser string
	MetricsPass string
}

func newRouter(deps routerDeps) http.Handler {
	authHandler := handlers.NewAuthHandler(deps.Auth)
	habitHandler := handlers.NewHabitHandler(deps.Habits)
	friendHandler := handlers.NewFriendHandler(deps.Friends)
	notificationHandler := handlers.NewNotificationHandler(deps.Devices)
	metrics := middleware.NewMetrics(deps.Registry)

	r := mux.NewRouter()
	if deps.RateLimiter != nil {
		r.Use(deps.RateLimiter.Middleware)
	}
	r.Use(metrics.Monitor)

	r.Handle("/metrics", middleware.BasicAuth(deps.MetricsUser, deps.MetricsPass)(
		promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{}),
	)).Methods("GET")

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		w.Header().Set("Content-Type", "application/json")
		if err := deps.DB.Ping(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status": "unhealthy", "error": "database connection failed"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status": "healthy", "service": "habit-tracker-api"}`))
	}).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/auth/register", authHandler.Register).Methods("POST")
	api.HandleFunc("/auth/login", authHandler.Login).Methods("POST")

	// -------------------------------------------------------------------------
	// PROTECTED ROUTES (REQUIRE AUTH HEADER)
	// -------------------------------------------------------------------------
	protected := api.PathPrefix("").Subrouter()
	protected.Use(middleware.AuthMiddleware(deps.Verifier))

	protected.HandleFunc("/user", authHandler.Me).Methods("GET")

	protected.HandleFunc("/habits", habitHandler.ListHabits).Methods("GET")
	protected.HandleFunc("/habits", habitHandler.CreateHabit).Methods("POST")
	protected.HandleFunc("/habits/entries", habitHandler.ListEntries).Methods("GET")
	protected.HandleFunc("/habits/{id}", habitHandler.UpdateHabit).Methods("PUT")
	protected.HandleFunc("/habits/{id}", habitHandler.DeleteHabit).Methods("DELETE")
	protected.HandleFunc("/habits/{id}/entries", habitHandler.ListHabitEntries).Methods("GET")
	protected.HandleFunc("/habits/{id}/entries", habitHandler.ToggleEntry).Methods("POST")
	protected.HandleFunc("/dashboard-data", habitHandler.Dashboard).Methods("GET")

	protected.HandleFunc("/friends", friendHandler.GetFriends).Methods("GET")
	protected.HandleFunc("/friends", friendHandler.AddFriend).Methods("POST")
	protected.HandleFunc("/friends/requests", friendHandler.GetRequests).Methods("GET")
	protected.HandleFunc("/friends/{id}", friendHandler.RespondToRequest).Methods("PUT")
	protected.HandleFunc("/friends/{id}", friendHandler.RemoveFriend).Methods("DELETE")

	protected.HandleFunc("/notifications/devices", notificationHandler.RegisterDevice).Methods("POST")

	corsHandler := gorillaHandlers.CORS(
		gorillaHandlers.AllowedOrigins([]string{"*"}),
		gorillaHandlers.AllowedMethods([]string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
		gorillaHandlers.AllowedHeaders([]string{"Content-Type", "Authorization", "If-None-Match", "Cache-Control"}),
		gorillaHandlers.ExposedHeaders([]string{"Content-Length", "ETag"}),
	)
	return corsHandler(r)
}
