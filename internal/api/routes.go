package api

import "github.com/go-chi/chi/v5"

// SetupRoutes registers the API routes.
func SetupRoutes(router chi.Router, handlers *Handlers) {
	router.Get("/healthz", handlers.Health)

	router.Route("/asset_types", func(r chi.Router) {
		r.Get("/", handlers.ListAssetTypes)
		r.Post("/", handlers.CreateAssetType)
		r.Get("/{name}", handlers.GetAssetType)
	})

	router.Route("/users", func(r chi.Router) {
		r.Get("/", handlers.ListUsers)
		r.Post("/create", handlers.CreateUser)
	})

	router.Route("/profiles", func(r chi.Router) {
		r.Get("/", handlers.ListProfiles)
		r.Get("/{userID}/transactions", handlers.ProfileTransactions)
		r.Get("/{userID}/asset_types", handlers.ProfileAssetTypes)
	})

	router.Get("/assets/{isin}/data", handlers.AssetData)
	router.Post("/tables/{table}/copy", handlers.CopyTable)
}
