package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/fel-certificador/internal/application/dto"
)

// LookupHandler consultas de receptores (NIT / CUI) contra el certificador.
type LookupHandler struct {
	svc FELService
}

// NewLookupHandler construye el handler.
func NewLookupHandler(svc FELService) *LookupHandler {
	return &LookupHandler{svc: svc}
}

// TaxID godoc
// @Summary      Consultar NIT
// @Tags         lookups
// @Security     Bearer
// @Produce      json
// @Param        nit  path  string  true  "NIT con o sin guion"
// @Success      200  {object}  fel.TaxpayerInfo
// @Failure      422  {object}  dto.ErrorResponse
// @Failure      504  {object}  dto.ErrorResponse
// @Router       /api/taxpayers/{nit} [get]
func (h *LookupHandler) TaxID(c *fiber.Ctx) error {
	companyID := GetCompanyID(c)
	if companyID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "UNAUTHORIZED", Message: "token inválido"})
	}
	info, err := h.svc.LookupTaxID(c.Context(), companyID, c.Params("nit"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(info)
}

// PersonID godoc
// @Summary      Consultar CUI (DPI)
// @Tags         lookups
// @Security     Bearer
// @Produce      json
// @Param        cui  path  string  true  "CUI de 13 dígitos"
// @Success      200  {object}  fel.PersonInfo
// @Failure      422  {object}  dto.ErrorResponse
// @Failure      502  {object}  dto.ErrorResponse
// @Router       /api/persons/{cui} [get]
func (h *LookupHandler) PersonID(c *fiber.Ctx) error {
	companyID := GetCompanyID(c)
	if companyID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "UNAUTHORIZED", Message: "token inválido"})
	}
	info, err := h.svc.LookupPersonID(c.Context(), companyID, c.Params("cui"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(info)
}
