package http

import (
	"github.com/gofiber/fiber/v2"
)

// RouterDeps dependencias para el router.
type RouterDeps struct {
	Documents FELService
	Auth      AuthService
	JWTSecret string
}

// Router registra las rutas de la API.
func Router(app *fiber.App, deps RouterDeps) {
	api := app.Group("/api")

	// Auth (público). Debe registrarse antes del grupo protegido.
	authHandler := NewAuthHandler(deps.Auth)
	api.Post("/auth/login", authHandler.Login)

	// Rutas protegidas (requieren Bearer Token)
	protected := api.Group("/", AuthMiddleware(deps.JWTSecret))
	protected.Post("/auth/users", RequireRole(RoleAdmin), authHandler.Register)

	felHandler := NewFELHandler(deps.Documents)
	anyRole := RequireRole(RoleAdmin, RoleAccountant, RoleSeller)
	backOffice := RequireRole(RoleAdmin, RoleAccountant)

	// Documentos
	docs := protected.Group("/documents")
	docs.Post("/", backOffice, felHandler.Import)
	docs.Get("/", felHandler.List)
	docs.Get("/:id", felHandler.GetByID)
	docs.Get("/:id/fel-status", felHandler.Status)
	docs.Get("/:id/xml-preview", felHandler.Preview)

	// Ciclo de vida FEL
	docs.Post("/:id/certify", anyRole, felHandler.Certify)
	docs.Post("/:id/retry", anyRole, felHandler.Retry)
	docs.Post("/:id/annul", backOffice, felHandler.Annul)

	// Consultas de receptores
	lookupHandler := NewLookupHandler(deps.Documents)
	protected.Get("/taxpayers/:nit", lookupHandler.TaxID)
	protected.Get("/persons/:cui", lookupHandler.PersonID)
}
