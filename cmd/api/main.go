package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/jhoicas/fel-certificador/internal/application/auth"
	"github.com/jhoicas/fel-certificador/internal/application/billing"
	infrafel "github.com/jhoicas/fel-certificador/internal/infrastructure/fel"
	"github.com/jhoicas/fel-certificador/internal/infrastructure/postgres"
	httpRouter "github.com/jhoicas/fel-certificador/internal/interfaces/http"
	"github.com/jhoicas/fel-certificador/pkg/config"
	"github.com/jhoicas/fel-certificador/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("cargar configuración: " + err.Error())
	}

	log := logger.New(logger.Config{
		Env:   cfg.App.Env,
		Level: cfg.App.LogLevel,
	})
	log.Info().
		Str("env", cfg.App.Env).
		Str("app", cfg.App.Name).
		Str("fel_modo", cfg.FEL.Modo).
		Msg("iniciando aplicación")

	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, cfg.DB, log)
	if err != nil {
		log.Fatal().Err(err).Msg("conexión a PostgreSQL")
	}
	defer pool.Close()

	documentRepo := postgres.NewFELDocumentRepository(pool)
	userRepo := postgres.NewUserRepository(pool)

	// Motor FEL: builder XML → cliente INFILE → controlador del ciclo de vida
	felCfg := billing.ConfigFromSettings(cfg.FEL)
	if err := felCfg.Validate(); err != nil {
		log.Warn().Err(err).Msg("credenciales FEL incompletas; certificar y anular fallarán")
	}
	xmlBuilder := infrafel.NewXMLBuilder(nil)
	infileClient := infrafel.NewInfileClient(log)
	controller := billing.NewFELController(xmlBuilder, infileClient, billing.NewStaticConfigSource(felCfg), log)
	documentUC := billing.NewDocumentUseCase(documentRepo, controller, log)

	authUC := auth.NewAuthUseCase(userRepo, auth.JWTConfig{
		Secret:     cfg.JWT.Secret,
		ExpMinutes: cfg.JWT.Expiration,
		Issuer:     cfg.JWT.Issuer,
	}, log)

	// El envío a INFILE puede tardar login + certificación.
	timeouts := felCfg.WithDefaults()
	writeTimeout := timeouts.AuthTimeout + timeouts.SubmitTimeout + 10*time.Second

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ReadTimeout:  time.Second * 10,
		WriteTimeout: writeTimeout,
		IdleTimeout:  time.Second * 60,
	})
	app.Use(recover.New())

	// Swagger UI en local: http://localhost:<port>/docs
	app.Use(swagger.New(swagger.Config{
		BasePath: "/",
		FilePath: "./docs/swagger.json",
		Path:     "docs",
		Title:    "FEL Certificador API",
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "service": cfg.App.Name})
	})

	httpRouter.Router(app, httpRouter.RouterDeps{
		Documents: documentUC,
		Auth:      authUC,
		JWTSecret: cfg.JWT.Secret,
	})

	go func() {
		if err := app.Listen(cfg.HTTP.Addr()); err != nil {
			log.Error().Err(err).Msg("servidor HTTP finalizado")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("señal de apagado recibida, cerrando servidor...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("apagado del servidor")
	}

	log.Info().Msg("aplicación detenida")
}
