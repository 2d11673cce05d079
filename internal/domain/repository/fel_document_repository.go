package repository

import (
	"context"

	"github.com/jhoicas/fel-certificador/internal/domain/entity"
	"github.com/jhoicas/fel-certificador/internal/domain/fel"
)

// FELDocumentRepository define el puerto de persistencia de los documentos FEL.
type FELDocumentRepository interface {
	// GetByID devuelve el snapshot completo (cabecera, líneas, partes y estado FEL).
	// domain.ErrNotFound si no existe.
	GetByID(ctx context.Context, id string) (*entity.FELDocument, error)
	// Save inserta o reemplaza el documento con sus líneas (carga desde felctl o integraciones).
	// El reemplazo conserva el estado FEL almacenado; domain.ErrConflict si el documento
	// está certificado o anulado al momento de escribir.
	Save(ctx context.Context, doc *entity.FELDocument) error
	// ApplyPatch escribe patch.State solo si fel_status sigue siendo patch.From.
	// domain.ErrConflict si otro proceso cambió el estado antes.
	ApplyPatch(ctx context.Context, id string, patch fel.Patch) error
	// ListByCompany lista documentos de la empresa, opcionalmente filtrados por estado FEL.
	// Devuelve cabecera y estado FEL (sin líneas) y el total sin paginar.
	ListByCompany(ctx context.Context, companyID string, status entity.FELStatus, limit, offset int) ([]*entity.FELDocument, int, error)
}
