package fel

import (
	"strings"
	"time"

	sat "github.com/jhoicas/fel-certificador/pkg/fel"
)

// Mode ambiente de operación. INFILE distingue el ambiente por credenciales,
// el modo solo se registra en los logs de cada llamada.
type Mode string

const (
	ModeTest       Mode = "test"
	ModeProduction Mode = "production"
)

// Timeouts por defecto del certificador.
const (
	DefaultAuthTimeout   = 30 * time.Second
	DefaultSubmitTimeout = 60 * time.Second
)

// Endpoints URLs del certificador INFILE.
type Endpoints struct {
	Login      string // POST form {prefijo, llave}
	Submit     string // proceso unificado firma + certificación / anulación
	StatusBase string // GET {StatusBase}/feel/certificacion/v2/dte/{uuid}
	NITLookup  string // consulta de receptores
	CUILookup  string // consulta de personas por CUI
}

// DefaultEndpoints deriva los endpoints a partir de la URL base del certificador.
func DefaultEndpoints(baseURL, nitLookupURL string) Endpoints {
	base := strings.TrimRight(baseURL, "/")
	if base == "" {
		base = "https://certificador.feel.com.gt"
	}
	if nitLookupURL == "" {
		nitLookupURL = "https://consultareceptores.feel.com.gt/rest/action"
	}
	return Endpoints{
		Login:      base + "/api/v2/servicios/externos/login",
		Submit:     base + "/fel/procesounificado/transaccion/v2/xml",
		StatusBase: base,
		NITLookup:  nitLookupURL,
		CUILookup:  base + "/api/v2/servicios/externos/cui",
	}
}

// Config configuración resuelta para una operación. Inmutable durante la operación.
type Config struct {
	IssuerNIT         string
	APIUser           string
	APIKey            string
	SignUser          string // vacío = APIUser
	SignKey           string // vacío = APIKey
	Mode              Mode
	Endpoints         Endpoints
	Affiliation       string // GEN, EXE, PEQ
	EstablishmentCode string
	AuthTimeout       time.Duration
	SubmitTimeout     time.Duration
}

// SigningUser usuario de firma con fallback al usuario API.
func (c Config) SigningUser() string {
	if c.SignUser != "" {
		return c.SignUser
	}
	return c.APIUser
}

// SigningKey llave de firma con fallback a la llave API.
func (c Config) SigningKey() string {
	if c.SignKey != "" {
		return c.SignKey
	}
	return c.APIKey
}

// WithDefaults completa timeouts, endpoints, afiliación y establecimiento vacíos.
func (c Config) WithDefaults() Config {
	if c.AuthTimeout <= 0 {
		c.AuthTimeout = DefaultAuthTimeout
	}
	if c.SubmitTimeout <= 0 {
		c.SubmitTimeout = DefaultSubmitTimeout
	}
	if c.Endpoints == (Endpoints{}) {
		c.Endpoints = DefaultEndpoints("", "")
	}
	if c.Mode == "" {
		c.Mode = ModeTest
	}
	if c.Affiliation == "" {
		c.Affiliation = sat.AfiliacionGeneral
	}
	c.Affiliation = strings.ToUpper(c.Affiliation)
	if c.EstablishmentCode == "" {
		c.EstablishmentCode = "1"
	}
	return c
}

// CredentialProblems lista las credenciales obligatorias ausentes.
func (c Config) CredentialProblems() []string {
	var problems []string
	if strings.TrimSpace(c.APIUser) == "" {
		problems = append(problems, "falta configurar el usuario API de INFILE")
	}
	if strings.TrimSpace(c.APIKey) == "" {
		problems = append(problems, "falta configurar la llave API de INFILE")
	}
	return problems
}

// Problems credenciales ausentes más modo o afiliación desconocidos.
func (c Config) Problems() []string {
	problems := c.CredentialProblems()
	if c.Mode != "" && c.Mode != ModeTest && c.Mode != ModeProduction {
		problems = append(problems, "modo FEL desconocido: "+string(c.Mode))
	}
	if c.Affiliation != "" && !sat.ValidAfiliaciones[strings.ToUpper(c.Affiliation)] {
		problems = append(problems, "afiliación IVA desconocida: "+c.Affiliation)
	}
	return problems
}

// Validate falla de inmediato si faltan credenciales o el modo/afiliación no son conocidos.
func (c Config) Validate() error {
	return NewValidationError(c.Problems())
}
