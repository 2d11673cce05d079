package http

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/fel-certificador/internal/application/dto"
	"github.com/jhoicas/fel-certificador/internal/domain/entity"
	domainfel "github.com/jhoicas/fel-certificador/internal/domain/fel"
)

// FELService lo que los handlers necesitan del caso de uso de documentos.
// Lo implementa *billing.DocumentUseCase.
type FELService interface {
	Import(ctx context.Context, companyID string, doc *entity.FELDocument) (*entity.FELDocument, error)
	Get(ctx context.Context, companyID, id string) (*entity.FELDocument, error)
	List(ctx context.Context, companyID string, status entity.FELStatus, page dto.PageRequest) (*dto.FELDocumentListResponse, error)
	Certify(ctx context.Context, companyID, id string) (*dto.FELOperationResponse, error)
	Annul(ctx context.Context, companyID, id string) (*dto.FELOperationResponse, error)
	Retry(ctx context.Context, companyID, id string) (*dto.FELOperationResponse, error)
	Status(ctx context.Context, companyID, id string) (*dto.FELStatusResponse, error)
	Preview(ctx context.Context, companyID, id string) (*dto.XMLPreviewResponse, error)
	LookupTaxID(ctx context.Context, companyID, nit string) (*domainfel.TaxpayerInfo, error)
	LookupPersonID(ctx context.Context, companyID, cui string) (*domainfel.PersonInfo, error)
}

// FELHandler maneja las peticiones HTTP del ciclo de vida FEL (protegido).
type FELHandler struct {
	svc FELService
}

// NewFELHandler construye el handler.
func NewFELHandler(svc FELService) *FELHandler {
	return &FELHandler{svc: svc}
}

// Import godoc
// @Summary      Registrar o reemplazar un documento
// @Description  Guarda el snapshot del documento (cabecera, partes y líneas). Un documento certificado no se reemplaza.
// @Tags         documents
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  entity.FELDocument  true  "Documento"
// @Success      201   {object}  entity.FELDocument
// @Failure      400   {object}  dto.ErrorResponse
// @Failure      409   {object}  dto.ErrorResponse
// @Router       /api/documents [post]
func (h *FELHandler) Import(c *fiber.Ctx) error {
	companyID := GetCompanyID(c)
	if companyID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "UNAUTHORIZED", Message: "token inválido"})
	}
	var doc entity.FELDocument
	if err := c.BodyParser(&doc); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "cuerpo inválido"})
	}
	saved, err := h.svc.Import(c.Context(), companyID, &doc)
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(saved)
}

// List godoc
// @Summary      Listar documentos
// @Tags         documents
// @Security     Bearer
// @Produce      json
// @Param        status  query  string  false  "pending | certified | cancelled | error"
// @Param        limit   query  int     false  "máx. 100"
// @Param        offset  query  int     false  "desplazamiento"
// @Success      200  {object}  dto.FELDocumentListResponse
// @Failure      400  {object}  dto.ErrorResponse
// @Router       /api/documents [get]
func (h *FELHandler) List(c *fiber.Ctx) error {
	companyID := GetCompanyID(c)
	if companyID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "UNAUTHORIZED", Message: "token inválido"})
	}
	var page dto.PageRequest
	if err := c.QueryParser(&page); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_QUERY", Message: "parámetros de paginación inválidos"})
	}
	out, err := h.svc.List(c.Context(), companyID, entity.FELStatus(c.Query("status")), page)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(out)
}

// GetByID godoc
// @Summary      Obtener documento
// @Tags         documents
// @Security     Bearer
// @Produce      json
// @Param        id   path  string  true  "ID del documento"
// @Success      200  {object}  entity.FELDocument
// @Failure      404  {object}  dto.ErrorResponse
// @Router       /api/documents/{id} [get]
func (h *FELHandler) GetByID(c *fiber.Ctx) error {
	return h.withDocument(c, func(companyID, id string) (any, error) {
		return h.svc.Get(c.Context(), companyID, id)
	})
}

// Certify godoc
// @Summary      Certificar documento en FEL
// @Description  Valida, genera el XML DTE y lo envía al proceso unificado de INFILE.
// @Tags         fel
// @Security     Bearer
// @Produce      json
// @Param        id   path  string  true  "ID del documento"
// @Success      200  {object}  dto.FELOperationResponse
// @Failure      404  {object}  dto.ErrorResponse
// @Failure      409  {object}  dto.ErrorResponse
// @Failure      422  {object}  dto.ErrorResponse
// @Failure      502  {object}  dto.ErrorResponse
// @Failure      504  {object}  dto.ErrorResponse
// @Router       /api/documents/{id}/certify [post]
func (h *FELHandler) Certify(c *fiber.Ctx) error {
	return h.withDocument(c, func(companyID, id string) (any, error) {
		return h.svc.Certify(c.Context(), companyID, id)
	})
}

// Annul godoc
// @Summary      Anular documento certificado
// @Tags         fel
// @Security     Bearer
// @Produce      json
// @Param        id   path  string  true  "ID del documento"
// @Success      200  {object}  dto.FELOperationResponse
// @Failure      404  {object}  dto.ErrorResponse
// @Failure      422  {object}  dto.ErrorResponse
// @Failure      502  {object}  dto.ErrorResponse
// @Failure      504  {object}  dto.ErrorResponse
// @Router       /api/documents/{id}/annul [post]
func (h *FELHandler) Annul(c *fiber.Ctx) error {
	return h.withDocument(c, func(companyID, id string) (any, error) {
		return h.svc.Annul(c.Context(), companyID, id)
	})
}

// Retry godoc
// @Summary      Reintentar certificación
// @Description  Solo para documentos en estado error.
// @Tags         fel
// @Security     Bearer
// @Produce      json
// @Param        id   path  string  true  "ID del documento"
// @Success      200  {object}  dto.FELOperationResponse
// @Failure      422  {object}  dto.ErrorResponse
// @Router       /api/documents/{id}/retry [post]
func (h *FELHandler) Retry(c *fiber.Ctx) error {
	return h.withDocument(c, func(companyID, id string) (any, error) {
		return h.svc.Retry(c.Context(), companyID, id)
	})
}

// Status godoc
// @Summary      Estado FEL del documento
// @Description  Estado local y, si tiene UUID, la consulta al certificador.
// @Tags         fel
// @Security     Bearer
// @Produce      json
// @Param        id   path  string  true  "ID del documento"
// @Success      200  {object}  dto.FELStatusResponse
// @Failure      404  {object}  dto.ErrorResponse
// @Router       /api/documents/{id}/fel-status [get]
func (h *FELHandler) Status(c *fiber.Ctx) error {
	return h.withDocument(c, func(companyID, id string) (any, error) {
		return h.svc.Status(c.Context(), companyID, id)
	})
}

// Preview godoc
// @Summary      Vista previa del XML DTE
// @Tags         fel
// @Security     Bearer
// @Produce      json
// @Param        id   path  string  true  "ID del documento"
// @Success      200  {object}  dto.XMLPreviewResponse
// @Failure      422  {object}  dto.ErrorResponse
// @Router       /api/documents/{id}/xml-preview [get]
func (h *FELHandler) Preview(c *fiber.Ctx) error {
	return h.withDocument(c, func(companyID, id string) (any, error) {
		return h.svc.Preview(c.Context(), companyID, id)
	})
}

// withDocument valida token e id, ejecuta fn y traduce el error.
func (h *FELHandler) withDocument(c *fiber.Ctx, fn func(companyID, id string) (any, error)) error {
	companyID := GetCompanyID(c)
	if companyID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "UNAUTHORIZED", Message: "token inválido"})
	}
	id := c.Params("id")
	if id == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "id requerido"})
	}
	out, err := fn(companyID, id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(out)
}
