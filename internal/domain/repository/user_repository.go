package repository

import (
	"context"

	"github.com/jhoicas/fel-certificador/internal/domain/entity"
)

// UserRepository define el puerto de persistencia para User (DIP).
// Los Find devuelven domain.ErrNotFound si no existe.
type UserRepository interface {
	Create(ctx context.Context, user *entity.User) error
	FindByEmail(ctx context.Context, email string) (*entity.User, error)
	GetByEmailAndCompany(ctx context.Context, email, companyID string) (*entity.User, error)
}
