package billing

import (
	"context"

	"github.com/jhoicas/fel-certificador/internal/domain/entity"
	domainfel "github.com/jhoicas/fel-certificador/internal/domain/fel"
	infrafel "github.com/jhoicas/fel-certificador/internal/infrastructure/fel"
)

// DocumentBuilder genera el XML FEL de certificación y de anulación.
// Implementado por infrafel.XMLBuilder.
type DocumentBuilder interface {
	BuildCertification(doc *entity.FELDocument, cfg domainfel.Config) (infrafel.Payload, error)
	BuildAnnulment(doc *entity.FELDocument, cfg domainfel.Config) (infrafel.Payload, error)
}

// Certifier cliente del certificador autorizado. Implementado por infrafel.InfileClient.
// QueryStatus nunca devuelve error: las fallas remotas vienen como Result fallido.
type Certifier interface {
	Certify(ctx context.Context, cfg domainfel.Config, p infrafel.Payload) (*domainfel.Result, error)
	Annul(ctx context.Context, cfg domainfel.Config, p infrafel.Payload) (*domainfel.Result, error)
	QueryStatus(ctx context.Context, cfg domainfel.Config, uuid string) *domainfel.Result
	LookupNIT(ctx context.Context, cfg domainfel.Config, nit string) (*domainfel.TaxpayerInfo, error)
	LookupCUI(ctx context.Context, cfg domainfel.Config, cui string) (*domainfel.PersonInfo, error)
}

// ConfigSource resuelve la configuración FEL vigente para una empresa.
// Se consulta en cada operación; el resultado no se cachea.
type ConfigSource interface {
	Resolve(ctx context.Context, companyID string) (domainfel.Config, error)
}
