package main

import (
	"fmt"
	"net/http"

	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
)

func setupServer(port string, services *Services) *http.Server {
	mux := http.NewServeMux()

	// Setup CORS middleware; the dashboard is read-only.
	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
		},
		AllowedOrigins: []string{"*"},
		AllowedHeaders: []string{"*"},
	})

	services.Gateway.RegisterRoutes(mux)
	setupHealthCheck(mux)

	return &http.Server{
		Addr:    fmt.Sprintf(":%s", port),
		Handler: c.Handler(mux),
	}
}

func setupHealthCheck(mux *http.ServeMux) {
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			log.Error().Err(err).Msg("failed to write health check response")
		}
	})
}
