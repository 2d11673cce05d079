package cmd

import (
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/jhoicas/fel-certificador/internal/application/billing"
	infrafel "github.com/jhoicas/fel-certificador/internal/infrastructure/fel"
	"github.com/jhoicas/fel-certificador/pkg/config"
	"github.com/jhoicas/fel-certificador/pkg/logger"
)

var (
	version = "1.0.0"

	// Flags globales
	configPath string
	verbose    bool
	timeout    time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "felctl",
	Short: "Certificación FEL (SAT Guatemala) desde la línea de comandos",
	Long: `felctl opera sobre snapshots JSON de documentos y usa las mismas
credenciales FEL que la API (variables FEL_* o --config).

Los comandos certify, annul y retry reescriben el snapshot con el
estado FEL resultante.

Ejemplos:
  # Ver el XML DTE que se enviaría
  felctl build factura.json

  # Certificar y actualizar el snapshot
  felctl certify factura.json

  # Consultar un NIT
  felctl nit 1234567-9`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute ejecuta el comando raíz.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Archivo de configuración (por defecto .env y variables de entorno)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log detallado en stderr")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 3*time.Minute, "Tiempo máximo por operación")
}

// newController arma el motor FEL con la configuración cargada.
func newController(stderr io.Writer) (*billing.FELController, error) {
	cfg, err := config.LoadFrom(configPath)
	if err != nil {
		return nil, err
	}

	level := "warn"
	if verbose {
		level = "debug"
	}
	log := logger.New(logger.Config{Env: "development", Level: level, Output: stderr})

	return billing.NewFELController(
		infrafel.NewXMLBuilder(nil),
		infrafel.NewInfileClient(log),
		billing.NewStaticConfigSource(billing.ConfigFromSettings(cfg.FEL)),
		log,
	), nil
}
