package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/TheKaroKaro/IDExpatsInMY/internal/config"
	"github.com/TheKaroKaro/IDExpatsInMY/internal/handlers"
	appmiddleware "github.com/TheKaroKaro/IDExpatsInMY/internal/middleware"
	"github.com/TheKaroKaro/IDExpatsInMY/internal/store"
	"github.com/TheKaroKaro/IDExpatsInMY/internal/turnstile"
)

func main() {
	cfg := config.Load()

	st := store.NewClient(cfg.StoreBaseURL, cfg.StoreBaseID, cfg.StoreAPIKey)
	limiter := appmiddleware.NewMemoryLimiter(time.Minute)
	verifier := turnstile.NewVerifier(cfg.TurnstileSecret)

	listings := handlers.NewCollection(st, limiter, verifier,
		handlers.ListingsDescriptor(cfg.ListingsTable, cfg.RatingsTable))
	articles := handlers.NewCollection(st, limiter, verifier,
		handlers.ArticlesDescriptor(cfg.ArticlesTable))
	comments := handlers.NewCollection(st, limiter, verifier,
		handlers.CommentsDescriptor(cfg.CommentsTable))
	ratings := handlers.NewRatings(st, limiter, verifier, cfg.RatingsTable, cfg.ListingsTable)
	admin := handlers.NewAdmin(st, map[string]string{
		"listings": cfg.ListingsTable,
		"articles": cfg.ArticlesTable,
		"comments": cfg.CommentsTable,
	}, cfg.ArticlesTable, cfg.AdminPassword, cfg.JWTSecret)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.New(cors.Options{
		AllowedOrigins:   cfg.CorsAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}).Handler)
	r.MethodNotAllowed(handlers.MethodNotAllowed)

	r.Get("/health", handlers.Health)

	r.Route("/api", func(r chi.Router) {
		r.Get("/listings", listings.List)
		r.Post("/listings", listings.Submit)

		r.Get("/articles", articles.List)
		r.Post("/articles", articles.Submit)

		r.Get("/comments", comments.List)
		r.Post("/comments", comments.Submit)

		r.Post("/ratings", ratings.Submit)

		r.Post("/admin/login", admin.Login)
		r.Group(func(r chi.Router) {
			r.Use(appmiddleware.JWTAuth([]byte(cfg.JWTSecret)))
			r.Get("/admin/pending", admin.Pending)
			r.Post("/admin/moderate", admin.Moderate)
			r.Post("/admin/feature", admin.Feature)
		})
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("listening on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
