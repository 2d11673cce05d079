package fel_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainfel "github.com/jhoicas/fel-certificador/internal/domain/fel"
	infrafel "github.com/jhoicas/fel-certificador/internal/infrastructure/fel"
)

// fakeInfile simula el certificador: login, proceso unificado, consulta de DTE,
// consulta de NIT y de CUI. Cada handler se puede reemplazar por test.
type fakeInfile struct {
	t   *testing.T
	srv *httptest.Server

	mu      sync.Mutex
	headers http.Header
	body    []byte
	form    map[string]string
	calls   map[string]int
	login   http.HandlerFunc
	submit  http.HandlerFunc
	status  http.HandlerFunc
	nit     http.HandlerFunc
	cui     http.HandlerFunc
}

func newFakeInfile(t *testing.T) *fakeInfile {
	f := &fakeInfile{t: t, calls: map[string]int{}}
	f.login = func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"token": "tok-123"})
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v2/servicios/externos/login", f.record("login", func() http.HandlerFunc { return f.login }))
	mux.HandleFunc("/fel/procesounificado/transaccion/v2/xml", f.record("submit", func() http.HandlerFunc { return f.submit }))
	mux.HandleFunc("/feel/certificacion/v2/dte/", f.record("status", func() http.HandlerFunc { return f.status }))
	mux.HandleFunc("/rest/action", f.record("nit", func() http.HandlerFunc { return f.nit }))
	mux.HandleFunc("/api/v2/servicios/externos/cui", f.record("cui", func() http.HandlerFunc { return f.cui }))

	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeInfile) record(name string, h func() http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.calls[name]++
		if name != "login" {
			body, _ := io.ReadAll(r.Body)
			f.headers = r.Header.Clone()
			f.body = body
			if r.Header.Get("Content-Type") == "application/x-www-form-urlencoded" {
				r.Body = io.NopCloser(bytes.NewReader(body))
				_ = r.ParseForm()
				f.form = map[string]string{}
				for k := range r.PostForm {
					f.form[k] = r.PostForm.Get(k)
				}
			}
		}
		handler := h()
		f.mu.Unlock()
		if handler == nil {
			http.NotFound(w, r)
			return
		}
		handler(w, r)
	}
}

func (f *fakeInfile) config() domainfel.Config {
	cfg := testConfig()
	cfg.Endpoints = domainfel.DefaultEndpoints(f.srv.URL, f.srv.URL+"/rest/action")
	cfg.AuthTimeout = 2 * time.Second
	cfg.SubmitTimeout = 2 * time.Second
	return cfg
}

func (f *fakeInfile) client() *infrafel.InfileClient {
	return infrafel.NewInfileClient(nil, infrafel.WithHTTPClient(f.srv.Client()), infrafel.WithClock(clock))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func samplePayload() infrafel.Payload {
	return infrafel.Payload{
		Kind:    infrafel.PayloadCertification,
		DocType: "FACT",
		XML:     []byte(`<?xml version="1.0" encoding="UTF-8"?><dte:GTDocumento xmlns:dte="http://www.sat.gob.gt/dte/fel/0.2.0"/>`),
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Certificación
// ──────────────────────────────────────────────────────────────────────────────

func TestCertify_Exitoso(t *testing.T) {
	f := newFakeInfile(t)
	certified := `<dte:GTDocumento><dte:Certificacion/></dte:GTDocumento>`
	f.submit = func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"resultado":                  true,
			"uuid":                       "AAAA-BBBB",
			"serie":                      "AAAA",
			"numero":                     1234567,
			"numero_acceso":              nil,
			"fecha":                      "2024-03-15T10:31:05-06:00",
			"xml_certificado":            base64.StdEncoding.EncodeToString([]byte(certified)),
			"descripcion_alertas_infile": []any{"alerta infile"},
			"descripcion_alertas_sat":    []any{map[string]any{"mensaje_error": "alerta sat"}},
		})
	}

	res, err := f.client().Certify(context.Background(), f.config(), samplePayload())
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, "AAAA-BBBB", res.UUID)
	assert.Equal(t, "AAAA", res.Series)
	assert.Equal(t, "1234567", res.Number)
	assert.Empty(t, res.AccessNumber)
	assert.Equal(t, certified, res.CertifiedXML)
	assert.Equal(t, "Validado y Certificado Exitosamente", res.Message)
	assert.Equal(t, []string{"alerta infile"}, res.IssuerWarnings)
	assert.Equal(t, []string{"alerta sat"}, res.SATWarnings)
	require.NotNil(t, res.CertifiedAt)
	assert.True(t, res.CertifiedAt.Equal(time.Date(2024, 3, 15, 16, 31, 5, 0, time.UTC)))
	assert.Equal(t, "2024-03-15T10:31:05-06:00", res.CertifiedAtRaw)
}

func TestCertify_CabecerasYIdentificador(t *testing.T) {
	f := newFakeInfile(t)
	f.submit = func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"resultado": true, "uuid": "U-1"})
	}

	cfg := f.config()
	cfg.SignUser = ""
	cfg.SignKey = ""
	res, err := f.client().Certify(context.Background(), cfg, samplePayload())
	require.NoError(t, err)

	h := f.headers
	assert.Equal(t, cfg.APIUser, h.Get("UsuarioFirma"), "sin usuario de firma se usa el usuario API")
	assert.Equal(t, cfg.APIKey, h.Get("LlaveFirma"))
	assert.Equal(t, cfg.APIUser, h.Get("UsuarioApi"))
	assert.Equal(t, cfg.APIKey, h.Get("LlaveApi"))
	assert.Equal(t, "application/xml", h.Get("Content-Type"))
	assert.Regexp(t, regexp.MustCompile(`^CERT_20240315163000_[0-9a-f]{8}$`), h.Get("identificador"))
	assert.Equal(t, h.Get("identificador"), res.TransactionID)
	assert.Equal(t, samplePayload().XML, f.body, "el XML se envía tal cual")
}

func TestCertify_CabecerasFirmaPropias(t *testing.T) {
	f := newFakeInfile(t)
	f.submit = func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"resultado": true, "uuid": "U-1"})
	}

	cfg := f.config()
	cfg.SignUser = "firmante"
	cfg.SignKey = "llave-firma"
	_, err := f.client().Certify(context.Background(), cfg, samplePayload())
	require.NoError(t, err)

	assert.Equal(t, "firmante", f.headers.Get("UsuarioFirma"))
	assert.Equal(t, "llave-firma", f.headers.Get("LlaveFirma"))
}

func TestCertify_XMLNoBase64SeConservaTalCual(t *testing.T) {
	f := newFakeInfile(t)
	f.submit = func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"resultado":       true,
			"uuid":            "U-1",
			"numero":          "42",
			"xml_certificado": "<no-es-base64/>",
			"descripcion":     "Documento certificado",
		})
	}

	res, err := f.client().Certify(context.Background(), f.config(), samplePayload())
	require.NoError(t, err)
	assert.Equal(t, "<no-es-base64/>", res.CertifiedXML)
	assert.Equal(t, "42", res.Number)
	assert.Equal(t, "Documento certificado", res.Message)
	require.NotNil(t, res.CertifiedAt, "sin fecha se usa el reloj")
	assert.True(t, res.CertifiedAt.Equal(fixedNow))
}

func TestCertify_RechazoUneErrores(t *testing.T) {
	f := newFakeInfile(t)
	f.submit = func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"resultado": false,
			"descripcion_errores": []any{
				map[string]any{"mensaje_error": "NIT del receptor inválido"},
				map[string]any{"mensaje_error": "Total no cuadra"},
			},
		})
	}

	res, err := f.client().Certify(context.Background(), f.config(), samplePayload())
	assert.Nil(t, res)

	var certErr *domainfel.CertificationError
	require.ErrorAs(t, err, &certErr)
	assert.Equal(t, "NIT del receptor inválido; Total no cuadra", certErr.Message)
	assert.Equal(t, "Error FEL: NIT del receptor inválido; Total no cuadra", err.Error())
}

func TestCertify_RechazoSinMensajesUsaDescripcion(t *testing.T) {
	f := newFakeInfile(t)
	f.submit = func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, map[string]any{"resultado": false, "descripcion": "XML mal formado"})
	}

	_, err := f.client().Certify(context.Background(), f.config(), samplePayload())
	var certErr *domainfel.CertificationError
	require.ErrorAs(t, err, &certErr)
	assert.Equal(t, "XML mal formado", certErr.Message)
}

func TestCertify_RechazoSinDescripcionUsaMensajeGenerico(t *testing.T) {
	f := newFakeInfile(t)
	f.submit = func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"resultado": false})
	}

	_, err := f.client().Certify(context.Background(), f.config(), samplePayload())
	var certErr *domainfel.CertificationError
	require.ErrorAs(t, err, &certErr)
	assert.Equal(t, "Error en la certificación", certErr.Message)
}

func TestCertify_CredencialesRechazadas(t *testing.T) {
	f := newFakeInfile(t)
	f.submit = func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}

	_, err := f.client().Certify(context.Background(), f.config(), samplePayload())
	var authErr *domainfel.AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, http.StatusUnauthorized, authErr.Status)
}

func TestCertify_CuerpoLargoSeRecortaSinRomperUTF8(t *testing.T) {
	f := newFakeInfile(t)
	f.submit = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte("a" + strings.Repeat("ñ", 400)))
	}

	_, err := f.client().Certify(context.Background(), f.config(), samplePayload())
	var authErr *domainfel.AuthError
	require.ErrorAs(t, err, &authErr)
	assert.True(t, utf8.ValidString(authErr.Message), "mensaje con UTF-8 válido")
	assert.True(t, strings.HasSuffix(authErr.Message, "..."))
	assert.Equal(t, 303, utf8.RuneCountInString(authErr.Message))
}

func TestCertify_ErrorHTTPSinJSONEsConexion(t *testing.T) {
	f := newFakeInfile(t)
	f.submit = func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusInternalServerError)
	}

	_, err := f.client().Certify(context.Background(), f.config(), samplePayload())
	var connErr *domainfel.ConnectionError
	require.ErrorAs(t, err, &connErr)
	assert.Equal(t, "certificar", connErr.Op)
	assert.Contains(t, err.Error(), "HTTP 500")
}

func TestCertify_Timeout(t *testing.T) {
	f := newFakeInfile(t)
	f.submit = func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}

	cfg := f.config()
	cfg.SubmitTimeout = 50 * time.Millisecond
	_, err := f.client().Certify(context.Background(), cfg, samplePayload())

	var connErr *domainfel.ConnectionError
	require.ErrorAs(t, err, &connErr)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

// ──────────────────────────────────────────────────────────────────────────────
// Anulación
// ──────────────────────────────────────────────────────────────────────────────

func TestAnnul_Exitoso(t *testing.T) {
	f := newFakeInfile(t)
	f.submit = func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"resultado": true, "uuid": "AAAA-BBBB"})
	}

	p := infrafel.Payload{Kind: infrafel.PayloadAnnulment, XML: []byte(`<dte:GTAnulacionDocumento xmlns:dte="http://www.sat.gob.gt/dte/fel/0.1.0"/>`)}
	res, err := f.client().Annul(context.Background(), f.config(), p)
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, "Documento anulado exitosamente", res.Message)
	assert.Nil(t, res.CertifiedAt)
	assert.Regexp(t, regexp.MustCompile(`^ANUL_20240315163000_[0-9a-f]{8}$`), f.headers.Get("identificador"))
}

func TestAnnul_RechazoUsaMensajeDeAnulacion(t *testing.T) {
	f := newFakeInfile(t)
	f.submit = func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"resultado": false, "descripcion_errores": []any{}})
	}

	_, err := f.client().Annul(context.Background(), f.config(), samplePayload())
	var certErr *domainfel.CertificationError
	require.ErrorAs(t, err, &certErr)
	assert.Equal(t, "Error al anular documento", certErr.Message)
}

// ──────────────────────────────────────────────────────────────────────────────
// Autenticación y consulta
// ──────────────────────────────────────────────────────────────────────────────

func TestAuthenticate(t *testing.T) {
	f := newFakeInfile(t)
	var prefijo, llave string
	f.login = func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		prefijo, llave = r.PostForm.Get("prefijo"), r.PostForm.Get("llave")
		writeJSON(w, http.StatusOK, map[string]any{"token": "tok-xyz"})
	}

	token, err := f.client().Authenticate(context.Background(), f.config())
	require.NoError(t, err)
	assert.Equal(t, "tok-xyz", token)
	assert.Equal(t, "12345679", prefijo)
	assert.Equal(t, "llave-api", llave)
}

func TestAuthenticate_Rechazado(t *testing.T) {
	f := newFakeInfile(t)
	f.login = func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "credenciales inválidas", http.StatusUnauthorized)
	}

	_, err := f.client().Authenticate(context.Background(), f.config())
	var authErr *domainfel.AuthError
	require.ErrorAs(t, err, &authErr)
}

func TestAuthenticate_SinToken(t *testing.T) {
	f := newFakeInfile(t)
	f.login = func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"mensaje": "ok"})
	}

	_, err := f.client().Authenticate(context.Background(), f.config())
	var authErr *domainfel.AuthError
	require.ErrorAs(t, err, &authErr)
}

func TestQueryStatus_Encontrado(t *testing.T) {
	f := newFakeInfile(t)
	f.status = func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok-123", r.Header.Get("Authorization"))
		assert.Equal(t, "/feel/certificacion/v2/dte/AAAA-BBBB", r.URL.Path)
		writeJSON(w, http.StatusOK, map[string]any{"uuid": "AAAA-BBBB", "estado": "Vigente"})
	}

	res := f.client().QueryStatus(context.Background(), f.config(), "AAAA-BBBB")
	require.NotNil(t, res)
	assert.True(t, res.Success)
	assert.Equal(t, "Vigente", res.Status)
	assert.Equal(t, "Documento encontrado: Vigente", res.Message)
}

func TestQueryStatus_TimeoutDevuelveResultadoFallido(t *testing.T) {
	f := newFakeInfile(t)
	f.status = func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}

	cfg := f.config()
	cfg.AuthTimeout = 50 * time.Millisecond
	res := f.client().QueryStatus(context.Background(), cfg, "AAAA-BBBB")
	require.NotNil(t, res)
	assert.False(t, res.Success)
	assert.Contains(t, res.Message, "Error al consultar")
}

func TestQueryStatus_LoginFallidoDevuelveResultadoFallido(t *testing.T) {
	f := newFakeInfile(t)
	f.login = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}

	res := f.client().QueryStatus(context.Background(), f.config(), "AAAA-BBBB")
	assert.False(t, res.Success)
	assert.Contains(t, res.Message, "Error al consultar")
	assert.Zero(t, f.calls["status"])
}

// ──────────────────────────────────────────────────────────────────────────────
// Consultas de NIT / CUI
// ──────────────────────────────────────────────────────────────────────────────

func TestLookupNIT(t *testing.T) {
	f := newFakeInfile(t)
	var req map[string]string
	f.nit = func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.Unmarshal(f.body, &req))
		writeJSON(w, http.StatusOK, map[string]any{"nit": "123456", "nombre": "JUAN PEREZ", "mensaje": ""})
	}

	info, err := f.client().LookupNIT(context.Background(), f.config(), "123456")
	require.NoError(t, err)
	assert.Equal(t, "JUAN PEREZ", info.Name)
	assert.Equal(t, "123456", info.NIT)
	assert.Equal(t, "12345679", req["emisor_codigo"])
	assert.Equal(t, "llave-api", req["emisor_clave"])
	assert.Equal(t, "123456", req["nit_consulta"])
}

func TestLookupNIT_SinNITEnRespuestaUsaElConsultado(t *testing.T) {
	f := newFakeInfile(t)
	f.nit = func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"nombre": "", "mensaje": "NIT no encontrado"})
	}

	info, err := f.client().LookupNIT(context.Background(), f.config(), "99999")
	require.NoError(t, err)
	assert.Equal(t, "99999", info.NIT)
	assert.Equal(t, "NIT no encontrado", info.Message)
}

func TestLookupNIT_ErrorHTTP(t *testing.T) {
	f := newFakeInfile(t)
	f.nit = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}

	_, err := f.client().LookupNIT(context.Background(), f.config(), "123456")
	var connErr *domainfel.ConnectionError
	require.ErrorAs(t, err, &connErr)
	assert.Equal(t, "consultar_nit", connErr.Op)
}

func TestLookupCUI(t *testing.T) {
	f := newFakeInfile(t)
	f.cui = func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok-123", r.Header.Get("Authorization"))
		writeJSON(w, http.StatusOK, map[string]any{
			"resultado": true,
			"cui":       map[string]any{"nombre": "MARIA LOPEZ", "fallecido": false},
		})
	}

	info, err := f.client().LookupCUI(context.Background(), f.config(), "1234567890101")
	require.NoError(t, err)
	assert.Equal(t, "MARIA LOPEZ", info.Name)
	assert.False(t, info.Deceased)
	assert.Equal(t, "1234567890101", info.CUI)
	assert.Equal(t, "1234567890101", f.form["cui"])
	assert.Contains(t, info.Raw, "resultado")
}

func TestLookupCUI_Fallecido(t *testing.T) {
	f := newFakeInfile(t)
	f.cui = func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"cui": map[string]any{"nombre": "X", "fallecido": "true"}})
	}

	info, err := f.client().LookupCUI(context.Background(), f.config(), "1234567890101")
	require.NoError(t, err)
	assert.True(t, info.Deceased)
}
