package fel

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	domainfel "github.com/jhoicas/fel-certificador/internal/domain/fel"
	"github.com/jhoicas/fel-certificador/pkg/logger"
)

// ── Constantes ────────────────────────────────────────────────────────────────

const (
	prefixCertification = "CERT"
	prefixAnnulment     = "ANUL"

	maxResponseBytes = 8 << 20 // el XML certificado viaja en base64 dentro del JSON

	msgCertifiedDefault = "Validado y Certificado Exitosamente"
	msgAnnulledDefault  = "Documento anulado exitosamente"
	msgCertifyFallback  = "Error en la certificación"
	msgAnnulFallback    = "Error al anular documento"
)

// Formatos en los que INFILE devuelve la fecha de certificación.
var certifiedAtLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.000-07:00",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// ── Implementación HTTP ───────────────────────────────────────────────────────

// InfileClient cliente del certificador INFILE: login, proceso unificado
// (certificación y anulación), consulta de DTE y consultas de NIT/CUI.
// Los timeouts se aplican por llamada con context.WithTimeout según la configuración.
type InfileClient struct {
	httpClient *http.Client
	log        *logger.Logger
	now        func() time.Time
	newSuffix  func() string
}

// ClientOption personaliza el cliente (tests).
type ClientOption func(*InfileClient)

// WithHTTPClient reemplaza el http.Client (p. ej. el de httptest).
func WithHTTPClient(h *http.Client) ClientOption {
	return func(c *InfileClient) { c.httpClient = h }
}

// WithClock inyecta el reloj usado en identificadores y fechas por defecto.
func WithClock(now func() time.Time) ClientOption {
	return func(c *InfileClient) { c.now = now }
}

// NewInfileClient construye el cliente.
func NewInfileClient(log *logger.Logger, opts ...ClientOption) *InfileClient {
	if log == nil {
		log = logger.Nop()
	}
	c := &InfileClient{
		httpClient: &http.Client{},
		log:        log.Component("infile"),
		now:        time.Now,
		newSuffix: func() string {
			return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// TransactionID identificador único del envío: PREFIJO_yyyymmddHHMMSS_8hex.
func (c *InfileClient) TransactionID(prefix string) string {
	return fmt.Sprintf("%s_%s_%s", prefix, c.now().Format("20060102150405"), c.newSuffix())
}

// ── Estructuras de respuesta ──────────────────────────────────────────────────

type loginResponse struct {
	Token string `json:"token"`
}

type submitResponse struct {
	Resultado      *bool        `json:"resultado"`
	UUID           string       `json:"uuid"`
	Serie          flexString   `json:"serie"`
	Numero         flexString   `json:"numero"`
	NumeroAcceso   flexString   `json:"numero_acceso"`
	Fecha          string       `json:"fecha"`
	XMLCertificado string       `json:"xml_certificado"`
	URLPDF         string       `json:"url_pdf"`
	Descripcion    string       `json:"descripcion"`
	AlertasInfile  flexMessages `json:"descripcion_alertas_infile"`
	AlertasSAT     flexMessages `json:"descripcion_alertas_sat"`
	Errores        flexMessages `json:"descripcion_errores"`
}

type statusResponse struct {
	UUID   string `json:"uuid"`
	Estado string `json:"estado"`
}

type nitRequest struct {
	EmisorCodigo string `json:"emisor_codigo"`
	EmisorClave  string `json:"emisor_clave"`
	NITConsulta  string `json:"nit_consulta"`
}

type nitResponse struct {
	NIT     string `json:"nit"`
	Nombre  string `json:"nombre"`
	Mensaje string `json:"mensaje"`
}

// flexString acepta "123", 123 o null.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

// flexMessages acepta una lista de textos, una lista de objetos
// {mensaje_error | descripcion} o un texto suelto.
type flexMessages []string

func (f *flexMessages) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*f = nil
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		if s != "" {
			*f = flexMessages{s}
		}
		return nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(b, &items); err != nil {
		return err
	}
	out := make(flexMessages, 0, len(items))
	for _, raw := range items {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			if s != "" {
				out = append(out, s)
			}
			continue
		}
		var obj struct {
			MensajeError string `json:"mensaje_error"`
			Descripcion  string `json:"descripcion"`
		}
		if err := json.Unmarshal(raw, &obj); err != nil {
			continue
		}
		if obj.MensajeError != "" {
			out = append(out, obj.MensajeError)
		} else if obj.Descripcion != "" {
			out = append(out, obj.Descripcion)
		}
	}
	*f = out
	return nil
}

// ── Authenticate ──────────────────────────────────────────────────────────────

// Authenticate intercambia usuario/llave API por un token bearer.
func (c *InfileClient) Authenticate(ctx context.Context, cfg domainfel.Config) (string, error) {
	cfg = cfg.WithDefaults()
	const op = "login"
	target := cfg.Endpoints.Login

	ctx, cancel := context.WithTimeout(ctx, cfg.AuthTimeout)
	defer cancel()

	form := url.Values{}
	form.Set("prefijo", cfg.APIUser)
	form.Set("llave", cfg.APIKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, strings.NewReader(form.Encode()))
	if err != nil {
		return "", &domainfel.ConnectionError{Op: op, Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	start := c.now()
	status, body, err := c.do(req)
	if err != nil {
		c.logFailure(op, target, "", cfg, start, err)
		return "", &domainfel.ConnectionError{Op: op, Err: err}
	}
	if status < 200 || status > 299 {
		aErr := &domainfel.AuthError{Status: status, Message: snippet(body)}
		c.logFailure(op, target, "", cfg, start, aErr)
		return "", aErr
	}

	var lr loginResponse
	if err := json.Unmarshal(body, &lr); err != nil || lr.Token == "" {
		aErr := &domainfel.AuthError{Status: status, Message: "no se obtuvo token FEL, verifique sus credenciales"}
		c.logFailure(op, target, "", cfg, start, aErr)
		return "", aErr
	}

	c.log.Info().
		Str("method", op).Str("target", target).Str("mode", string(cfg.Mode)).
		Dur("duration", c.now().Sub(start)).Bool("success", true).
		Msg("FEL: token obtenido")
	return lr.Token, nil
}

// ── Proceso unificado ─────────────────────────────────────────────────────────

// Certify envía el DTE al proceso unificado (firma + certificación).
func (c *InfileClient) Certify(ctx context.Context, cfg domainfel.Config, p Payload) (*domainfel.Result, error) {
	return c.submit(ctx, cfg, p, prefixCertification, "certificar", msgCertifiedDefault, msgCertifyFallback)
}

// Annul envía el XML de anulación por el mismo proceso unificado.
func (c *InfileClient) Annul(ctx context.Context, cfg domainfel.Config, p Payload) (*domainfel.Result, error) {
	return c.submit(ctx, cfg, p, prefixAnnulment, "anular", msgAnnulledDefault, msgAnnulFallback)
}

func (c *InfileClient) submit(
	ctx context.Context,
	cfg domainfel.Config,
	p Payload,
	prefix, op, okMsg, failMsg string,
) (*domainfel.Result, error) {
	cfg = cfg.WithDefaults()
	target := cfg.Endpoints.Submit
	txID := c.TransactionID(prefix)

	digest, err := p.Digest()
	if err != nil {
		c.log.Warn().Err(err).Str("transaction_id", txID).Msg("FEL: no se pudo calcular el digest del XML")
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.SubmitTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(p.XML))
	if err != nil {
		return nil, &domainfel.ConnectionError{Op: op, Err: err}
	}
	req.Header.Set("UsuarioFirma", cfg.SigningUser())
	req.Header.Set("LlaveFirma", cfg.SigningKey())
	req.Header.Set("UsuarioApi", cfg.APIUser)
	req.Header.Set("LlaveApi", cfg.APIKey)
	req.Header.Set("identificador", txID)
	req.Header.Set("Content-Type", "application/xml")

	c.log.Info().
		Str("method", op).Str("target", target).Str("transaction_id", txID).
		Str("mode", string(cfg.Mode)).Str("doc_type", p.DocType).Str("digest", digest).
		Msg("FEL: enviando documento al proceso unificado")

	start := c.now()
	status, body, err := c.do(req)
	if err != nil {
		cErr := &domainfel.ConnectionError{Op: op, Err: err}
		c.logFailure(op, target, txID, cfg, start, cErr)
		return nil, cErr
	}
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		aErr := &domainfel.AuthError{Status: status, Message: snippet(body)}
		c.logFailure(op, target, txID, cfg, start, aErr)
		return nil, aErr
	}

	var sr submitResponse
	jsonErr := json.Unmarshal(body, &sr)
	if jsonErr != nil || sr.Resultado == nil {
		var cause error
		switch {
		case status < 200 || status > 299:
			cause = fmt.Errorf("HTTP %d: %s", status, snippet(body))
		case jsonErr != nil:
			cause = fmt.Errorf("respuesta no es JSON válido: %w", jsonErr)
		default:
			cause = fmt.Errorf("respuesta sin campo resultado: %s", snippet(body))
		}
		cErr := &domainfel.ConnectionError{Op: op, Err: cause}
		c.logFailure(op, target, txID, cfg, start, cErr)
		return nil, cErr
	}

	if !*sr.Resultado {
		messages := []string(sr.Errores)
		fallback := sr.Descripcion
		if fallback == "" {
			fallback = failMsg
		}
		certErr := domainfel.NewCertificationError(messages, fallback)
		c.logFailure(op, target, txID, cfg, start, certErr)
		return nil, certErr
	}
	if status < 200 || status > 299 {
		cErr := &domainfel.ConnectionError{Op: op, Err: fmt.Errorf("HTTP %d con resultado exitoso", status)}
		c.logFailure(op, target, txID, cfg, start, cErr)
		return nil, cErr
	}

	res := &domainfel.Result{
		Success:        true,
		UUID:           sr.UUID,
		Series:         string(sr.Serie),
		Number:         string(sr.Numero),
		AccessNumber:   string(sr.NumeroAcceso),
		CertifiedAtRaw: sr.Fecha,
		CertifiedXML:   decodeCertifiedXML(sr.XMLCertificado),
		PDFURL:         sr.URLPDF,
		Message:        sr.Descripcion,
		IssuerWarnings: []string(sr.AlertasInfile),
		SATWarnings:    []string(sr.AlertasSAT),
		TransactionID:  txID,
	}
	if res.Message == "" {
		res.Message = okMsg
	}
	if prefix == prefixCertification {
		at := c.parseCertifiedAt(sr.Fecha)
		res.CertifiedAt = &at
	}

	c.log.Info().
		Str("method", op).Str("target", target).Str("transaction_id", txID).
		Str("mode", string(cfg.Mode)).Str("uuid", res.UUID).
		Int("alertas_infile", len(res.IssuerWarnings)).Int("alertas_sat", len(res.SATWarnings)).
		Dur("duration", c.now().Sub(start)).Bool("success", true).
		Msg("FEL: respuesta del proceso unificado")
	return res, nil
}

// ── Consulta de DTE ───────────────────────────────────────────────────────────

// QueryStatus consulta un DTE por UUID. Nunca devuelve error: cualquier falla
// remota se reporta como Result con Success=false.
func (c *InfileClient) QueryStatus(ctx context.Context, cfg domainfel.Config, dteUUID string) *domainfel.Result {
	cfg = cfg.WithDefaults()
	const op = "consultar"
	target := strings.TrimRight(cfg.Endpoints.StatusBase, "/") + "/feel/certificacion/v2/dte/" + url.PathEscape(dteUUID)

	failed := func(err error) *domainfel.Result {
		return &domainfel.Result{
			Success: false,
			UUID:    dteUUID,
			Message: "Error al consultar: " + err.Error(),
			Errors:  []string{err.Error()},
		}
	}

	token, err := c.Authenticate(ctx, cfg)
	if err != nil {
		return failed(err)
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.AuthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return failed(err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	start := c.now()
	status, body, err := c.do(req)
	if err != nil {
		cErr := &domainfel.ConnectionError{Op: op, Err: err}
		c.logFailure(op, target, "", cfg, start, cErr)
		return failed(cErr)
	}
	if status < 200 || status > 299 {
		hErr := fmt.Errorf("HTTP %d: %s", status, snippet(body))
		c.logFailure(op, target, "", cfg, start, hErr)
		return failed(hErr)
	}

	var st statusResponse
	if err := json.Unmarshal(body, &st); err != nil {
		c.logFailure(op, target, "", cfg, start, err)
		return failed(fmt.Errorf("respuesta inválida: %w", err))
	}
	if st.UUID == "" {
		st.UUID = dteUUID
	}
	estado := st.Estado
	if estado == "" {
		estado = "OK"
	}

	c.log.Info().
		Str("method", op).Str("target", target).Str("mode", string(cfg.Mode)).
		Str("uuid", st.UUID).Str("estado", st.Estado).
		Dur("duration", c.now().Sub(start)).Bool("success", true).
		Msg("FEL: DTE consultado")
	return &domainfel.Result{
		Success: true,
		UUID:    st.UUID,
		Status:  st.Estado,
		Message: "Documento encontrado: " + estado,
	}
}

// ── Consultas de receptor ─────────────────────────────────────────────────────

// LookupNIT consulta el nombre registrado de un NIT (servicio de receptores INFILE).
func (c *InfileClient) LookupNIT(ctx context.Context, cfg domainfel.Config, nit string) (*domainfel.TaxpayerInfo, error) {
	cfg = cfg.WithDefaults()
	const op = "consultar_nit"
	target := cfg.Endpoints.NITLookup

	payload, err := json.Marshal(nitRequest{
		EmisorCodigo: cfg.APIUser,
		EmisorClave:  cfg.APIKey,
		NITConsulta:  nit,
	})
	if err != nil {
		return nil, fmt.Errorf("fel: serializar consulta NIT: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.AuthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(payload))
	if err != nil {
		return nil, &domainfel.ConnectionError{Op: op, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	start := c.now()
	status, body, err := c.do(req)
	if err := c.lookupError(op, target, cfg, start, status, body, err); err != nil {
		return nil, err
	}

	var nr nitResponse
	if err := json.Unmarshal(body, &nr); err != nil {
		cErr := &domainfel.ConnectionError{Op: op, Err: fmt.Errorf("respuesta inválida: %w", err)}
		c.logFailure(op, target, "", cfg, start, cErr)
		return nil, cErr
	}
	if nr.NIT == "" {
		nr.NIT = nit
	}

	c.log.Info().
		Str("method", op).Str("target", target).Str("nit", nit).
		Dur("duration", c.now().Sub(start)).Bool("success", true).
		Msg("FEL: NIT consultado")
	return &domainfel.TaxpayerInfo{NIT: nr.NIT, Name: nr.Nombre, Message: nr.Mensaje}, nil
}

// LookupCUI consulta una persona por CUI (DPI). Requiere token.
func (c *InfileClient) LookupCUI(ctx context.Context, cfg domainfel.Config, cui string) (*domainfel.PersonInfo, error) {
	cfg = cfg.WithDefaults()
	const op = "consultar_cui"
	target := cfg.Endpoints.CUILookup

	token, err := c.Authenticate(ctx, cfg)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.AuthTimeout)
	defer cancel()

	form := url.Values{}
	form.Set("cui", cui)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, &domainfel.ConnectionError{Op: op, Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+token)

	start := c.now()
	status, body, err := c.do(req)
	if err := c.lookupError(op, target, cfg, start, status, body, err); err != nil {
		return nil, err
	}

	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		cErr := &domainfel.ConnectionError{Op: op, Err: fmt.Errorf("respuesta inválida: %w", err)}
		c.logFailure(op, target, "", cfg, start, cErr)
		return nil, cErr
	}

	info := &domainfel.PersonInfo{CUI: cui, Raw: raw}
	if data, ok := raw["cui"].(map[string]any); ok {
		if name, ok := data["nombre"].(string); ok {
			info.Name = name
		}
		info.Deceased = truthy(data["fallecido"])
	}

	c.log.Info().
		Str("method", op).Str("target", target).
		Dur("duration", c.now().Sub(start)).Bool("success", true).
		Msg("FEL: CUI consultado")
	return info, nil
}

func (c *InfileClient) lookupError(op, target string, cfg domainfel.Config, start time.Time, status int, body []byte, err error) error {
	switch {
	case err != nil:
		cErr := &domainfel.ConnectionError{Op: op, Err: err}
		c.logFailure(op, target, "", cfg, start, cErr)
		return cErr
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		aErr := &domainfel.AuthError{Status: status, Message: snippet(body)}
		c.logFailure(op, target, "", cfg, start, aErr)
		return aErr
	case status < 200 || status > 299:
		cErr := &domainfel.ConnectionError{Op: op, Err: fmt.Errorf("HTTP %d: %s", status, snippet(body))}
		c.logFailure(op, target, "", cfg, start, cErr)
		return cErr
	}
	return nil
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// do ejecuta la petición y lee el cuerpo completo (máx. maxResponseBytes).
func (c *InfileClient) do(req *http.Request) (int, []byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return 0, nil, fmt.Errorf("timeout o cancelación: %w", ctxErr)
		}
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("leer respuesta: %w", err)
	}
	return resp.StatusCode, body, nil
}

func (c *InfileClient) logFailure(op, target, txID string, cfg domainfel.Config, start time.Time, err error) {
	ev := c.log.Error().
		Str("method", op).Str("target", target).Str("mode", string(cfg.Mode)).
		Dur("duration", c.now().Sub(start)).Bool("success", false).Err(err)
	if txID != "" {
		ev = ev.Str("transaction_id", txID)
	}
	ev.Msg("FEL: llamada al certificador fallida")
}

func (c *InfileClient) parseCertifiedAt(raw string) time.Time {
	for _, layout := range certifiedAtLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t
		}
	}
	return c.now()
}

// decodeCertifiedXML decodifica base64; si falla devuelve el texto tal cual.
func decodeCertifiedXML(v string) string {
	if v == "" {
		return ""
	}
	decoded, err := base64.StdEncoding.DecodeString(v)
	if err != nil || !utf8.Valid(decoded) {
		return v
	}
	return string(decoded)
}

const maxSnippet = 300

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if cut := truncateRunes(s, maxSnippet); cut != s {
		s = cut + "..."
	}
	if s == "" {
		s = "sin cuerpo"
	}
	return s
}

func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		s := strings.ToLower(strings.TrimSpace(t))
		return s == "true" || s == "si" || s == "sí" || s == "1"
	case float64:
		return t != 0
	}
	return false
}
