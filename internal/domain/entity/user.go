package entity

import "time"

// Roles válidos para User.
const (
	RoleAdmin    = "admin"
	RoleContador = "contador"
	RoleVendedor = "vendedor"
)

// Estados de un usuario.
const (
	UserActive    = "active"
	UserSuspended = "suspended"
)

// User operador de la API FEL (pertenece a una empresa emisora).
type User struct {
	ID           string
	CompanyID    string
	Email        string
	PasswordHash string // bcrypt
	Name         string
	Role         string // admin, contador, vendedor
	Status       string // active, suspended
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ValidRole indica si el rol es uno de los conocidos.
func ValidRole(role string) bool {
	switch role {
	case RoleAdmin, RoleContador, RoleVendedor:
		return true
	}
	return false
}
