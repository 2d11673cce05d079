package billing

import (
	"context"
	"strings"

	domainfel "github.com/jhoicas/fel-certificador/internal/domain/fel"
	"github.com/jhoicas/fel-certificador/pkg/config"
	sat "github.com/jhoicas/fel-certificador/pkg/fel"
)

// StaticConfigSource devuelve la misma configuración para todas las empresas
// (instalación de un solo emisor, configurada por variables FEL_*).
type StaticConfigSource struct {
	cfg domainfel.Config
}

// NewStaticConfigSource envuelve una configuración ya resuelta.
func NewStaticConfigSource(cfg domainfel.Config) *StaticConfigSource {
	return &StaticConfigSource{cfg: cfg}
}

// Resolve implementa ConfigSource.
func (s *StaticConfigSource) Resolve(_ context.Context, _ string) (domainfel.Config, error) {
	return s.cfg.WithDefaults(), nil
}

// ConfigFromSettings convierte la sección FEL de pkg/config en la configuración del dominio.
func ConfigFromSettings(c config.FELConfig) domainfel.Config {
	return domainfel.Config{
		IssuerNIT:         sat.CleanNIT(c.NITEmisor),
		APIUser:           strings.TrimSpace(c.UsuarioAPI),
		APIKey:            strings.TrimSpace(c.LlaveAPI),
		SignUser:          strings.TrimSpace(c.UsuarioFirma),
		SignKey:           strings.TrimSpace(c.LlaveFirma),
		Mode:              domainfel.Mode(strings.ToLower(strings.TrimSpace(c.Modo))),
		Endpoints:         domainfel.DefaultEndpoints(c.URLBase, c.URLConsultaNIT),
		Affiliation:       strings.ToUpper(strings.TrimSpace(c.AfiliacionIVA)),
		EstablishmentCode: strings.TrimSpace(c.CodigoEstablecimiento),
		AuthTimeout:       c.TimeoutAuth,
		SubmitTimeout:     c.TimeoutSubmit,
	}
}
