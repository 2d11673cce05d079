package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/fel-certificador/internal/application/dto"
	"github.com/jhoicas/fel-certificador/internal/domain"
	domainfel "github.com/jhoicas/fel-certificador/internal/domain/fel"
)

// writeError traduce los errores de dominio y del certificador a respuestas HTTP.
//
//	validación / construcción / rechazo del certificador → 422
//	credenciales rechazadas por INFILE                   → 502
//	conexión o timeout con INFILE                        → 504
//	no encontrado → 404, conflicto de estado → 409
//	credenciales de la API → 401, rol o cuenta suspendida → 403
func writeError(c *fiber.Ctx, err error) error {
	var (
		vErr    *domainfel.ValidationError
		bErr    *domainfel.BuildError
		certErr *domainfel.CertificationError
		authErr *domainfel.AuthError
		connErr *domainfel.ConnectionError
	)
	switch {
	case errors.As(err, &vErr):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(dto.ErrorResponse{Code: "FEL_VALIDATION", Message: vErr.Error(), Details: vErr.Problems})
	case errors.As(err, &bErr):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(dto.ErrorResponse{Code: "FEL_BUILD", Message: bErr.Error()})
	case errors.As(err, &certErr):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(dto.ErrorResponse{Code: "FEL_REJECTED", Message: certErr.Error(), Details: certErr.Errors})
	case errors.As(err, &authErr):
		return c.Status(fiber.StatusBadGateway).JSON(dto.ErrorResponse{Code: "FEL_AUTH", Message: authErr.Error()})
	case errors.As(err, &connErr):
		return c.Status(fiber.StatusGatewayTimeout).JSON(dto.ErrorResponse{Code: "FEL_CONNECTION", Message: connErr.Error()})
	case errors.Is(err, domain.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Code: "NOT_FOUND", Message: "documento no encontrado"})
	case errors.Is(err, domain.ErrConflict):
		return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{Code: "CONFLICT", Message: err.Error()})
	case errors.Is(err, domain.ErrInvalidInput):
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: err.Error()})
	case errors.Is(err, domain.ErrUnauthorized):
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "UNAUTHORIZED", Message: "credenciales inválidas"})
	case errors.Is(err, domain.ErrForbidden):
		return c.Status(fiber.StatusForbidden).JSON(dto.ErrorResponse{Code: "FORBIDDEN", Message: "acceso denegado"})
	}
	return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Code: "INTERNAL", Message: err.Error()})
}
