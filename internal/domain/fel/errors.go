// Package fel contiene las reglas de dominio de la certificación FEL (SAT Guatemala):
// cálculo de impuestos por línea, precondiciones del ciclo de vida y tipos de error.
package fel

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNoLines el documento no tiene ninguna línea certificable.
var ErrNoLines = errors.New("el documento no tiene líneas certificables")

// ValidationError agrupa todas las precondiciones incumplidas de una operación.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "validación FEL: " + strings.Join(e.Problems, "; ")
}

// NewValidationError devuelve nil si no hay problemas.
func NewValidationError(problems []string) error {
	if len(problems) == 0 {
		return nil
	}
	return &ValidationError{Problems: problems}
}

// BuildError fallo al construir el XML (p. ej. sin líneas).
type BuildError struct {
	Err error
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("construir XML FEL: %v", e.Err)
}

func (e *BuildError) Unwrap() error { return e.Err }

// ConnectionError error de transporte o timeout contra INFILE.
type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("error de conexión al servicio FEL (%s): %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// AuthError credenciales rechazadas por el certificador.
type AuthError struct {
	Status  int
	Message string
}

func (e *AuthError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("autenticación FEL rechazada (HTTP %d): %s", e.Status, e.Message)
	}
	return "autenticación FEL rechazada: " + e.Message
}

// CertificationError el certificador rechazó el contenido del documento.
type CertificationError struct {
	Message string
	Errors  []string
}

func (e *CertificationError) Error() string {
	return "Error FEL: " + e.Message
}

// NewCertificationError une los mensajes con "; "; sin mensajes usa fallback.
func NewCertificationError(messages []string, fallback string) *CertificationError {
	msg := strings.Join(messages, "; ")
	if msg == "" {
		msg = fallback
	}
	return &CertificationError{Message: msg, Errors: messages}
}
