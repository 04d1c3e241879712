package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"saveher-server/config"
	"saveher-server/handlers"
	"saveher-server/middleware"
	"saveher-server/realtime"
	"saveher-server/services"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("configuration error: %v", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()
	middleware.SetLogger(sugar)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// MongoDB
	mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		sugar.Fatalw("mongodb connection failed", "error", err)
	}
	if err := mongoClient.Ping(ctx, nil); err != nil {
		sugar.Fatalw("failed to ping mongodb", "error", err)
	}
	db := mongoClient.Database(cfg.MongoDB)
	sugar.Infow("connected to mongodb", "database", cfg.MongoDB)

	// Redis
	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		sugar.Fatalw("failed to connect to redis", "error", err)
	}

	// Services
	presenceService := services.NewPresenceService(redisClient, sugar)
	userService := services.NewUserService(db.Collection("users"), redisClient, presenceService, sugar)
	if err := userService.EnsureIndexes(ctx); err != nil {
		sugar.Warnw("failed to create user indexes", "error", err)
	}

	hub := realtime.NewHub(presenceService, sugar)
	notifyService := services.NewNotifyService(hub, sugar)

	sosCollection := db.Collection("sos")
	if err := services.EnsureAlertIndexes(ctx, sosCollection); err != nil {
		sugar.Warnw("failed to create sos indexes", "error", err)
	}
	sosService := services.NewSOSService(
		services.NewMongoAlertStore(sosCollection),
		userService,
		presenceService,
		notifyService,
		cfg.AlertRadiusMeters,
		cfg.AllowMultipleActive,
		sugar,
	)

	storyService := services.NewStoryService(db.Collection("stories"), db.Collection("zone_alerts"), sugar)
	routeService := services.NewRouteService(cfg.SafeRouteURL, cfg.UpstreamTimeout, sugar)

	// Handlers
	authHandler := handlers.NewAuthHandler(userService, cfg.JWTSecret)
	userHandler := handlers.NewUserHandler(userService)
	sosHandler := handlers.NewSOSHandler(sosService, userService)
	storyHandler := handlers.NewStoryHandler(storyService)
	routeHandler := handlers.NewRouteHandler(routeService)
	wsHandler := handlers.NewWSHandler(hub, sosService, userService, cfg.JWTSecret, sugar)

	r := mux.NewRouter()
	r.Use(middleware.CORSMiddleware(cfg.AllowedOrigins))
	r.Use(middleware.ErrorMiddleware())

	// Public routes
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/register", authHandler.RegisterUser).Methods("POST", "OPTIONS")
	api.HandleFunc("/login", authHandler.LoginUser).Methods("PUT", "OPTIONS")
	api.HandleFunc("/register/anonymous_alert", storyHandler.ReportZone).Methods("POST", "OPTIONS")
	api.HandleFunc("/administrator_sos", storyHandler.ZoneAlerts).Methods("GET", "OPTIONS")

	// Authenticated routes
	auth := r.PathPrefix("/api").Subrouter()
	auth.Use(middleware.JWTMiddleware(cfg.JWTSecret))
	auth.HandleFunc("/user/{user_id}", userHandler.GetUser).Methods("GET", "OPTIONS")
	auth.HandleFunc("/user/{user_id}", userHandler.UpdateUser).Methods("PUT", "OPTIONS")

	auth.HandleFunc("/sos", sosHandler.TriggerSOS).Methods("POST", "OPTIONS")
	auth.HandleFunc("/sos/cancel", sosHandler.CancelSOS).Methods("POST", "OPTIONS")
	auth.HandleFunc("/is_sos/{user_id}", sosHandler.IsSOS).Methods("GET", "OPTIONS")
	auth.HandleFunc("/sos_accepted_count/{user_id}", sosHandler.AcceptedCount).Methods("GET", "OPTIONS")
	auth.HandleFunc("/sos/details/{user_id}", sosHandler.AlertDetails).Methods("GET", "OPTIONS")
	auth.HandleFunc("/sos/accepted", sosHandler.AcceptAlert).Methods("POST", "OPTIONS")
	auth.HandleFunc("/sos/rejected", sosHandler.RejectAlert).Methods("POST", "OPTIONS")
	auth.HandleFunc("/sos/accepted/{sos_id}", sosHandler.AcceptedResponders).Methods("GET", "OPTIONS")
	auth.HandleFunc("/active/location/{user_id}", sosHandler.OwnerLocation).Methods("GET", "OPTIONS")
	auth.HandleFunc("/active/location/meter/{user_id}", sosHandler.ActiveNearby).Methods("GET", "OPTIONS")

	auth.HandleFunc("/register/story", storyHandler.CreateStory).Methods("POST", "OPTIONS")
	auth.HandleFunc("/story", storyHandler.AllStories).Methods("GET", "OPTIONS")
	auth.HandleFunc("/story/{user_id}", storyHandler.StoriesByUser).Methods("GET", "OPTIONS")
	auth.HandleFunc("/story/{story_id}", storyHandler.DeleteStory).Methods("DELETE", "OPTIONS")

	auth.HandleFunc("/safe_route", routeHandler.SafeRoute).Methods("POST", "OPTIONS")

	// Realtime channel; the token rides a query parameter.
	r.HandleFunc("/ws", wsHandler.ServeWS).Methods("GET")

	sugar.Infow("server starting", "addr", cfg.ListenAddr)
	if err := http.ListenAndServe(cfg.ListenAddr, r); err != nil {
		sugar.Fatalw("server stopped", "error", err)
	}
}
