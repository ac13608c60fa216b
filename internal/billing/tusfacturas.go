// Package billing implements the TusFacturas invoicing provider client.
package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/facturai/facturai/internal/domain"
)

// DefaultAPIURL is the TusFacturas v2 invoicing endpoint.
const DefaultAPIURL = "https://www.tusfacturas.app/app/api/v2/facturacion"

const dateLayout = "02/01/2006"

// Config holds TusFacturas API credentials. UserToken is the default
// account token; users with their own token override it per invoice.
type Config struct {
	APIURL    string
	APIKey    string
	APIToken  string
	UserToken string
}

// APIError is a structured business rejection from the provider
// (validation messages, not a transport failure). It is reported back
// into the conversation as a failed tool invocation.
type APIError struct {
	Messages []string
}

func (e *APIError) Error() string {
	if len(e.Messages) == 0 {
		return "tusfacturas: error desconocido"
	}
	return "tusfacturas: " + strings.Join(e.Messages, " | ")
}

// InvoiceDocument is the issued document returned by the provider.
type InvoiceDocument struct {
	InvoiceNumber     string  `json:"invoice_number"`
	PDFURL            string  `json:"pdf_url"`
	CAE               string  `json:"cae"`
	CAEExpiry         string  `json:"cae_vto"`
	Total             float64 `json:"total"`
	Type              string  `json:"tipo"`
	PointOfSale       string  `json:"punto_venta"`
	ExternalReference string  `json:"external_reference"`
	Observations      string  `json:"observaciones"`
	AFIPQR            string  `json:"afip_qr"`
	AFIPBarcode       string  `json:"afip_codigo_barras"`
}

// Client calls the TusFacturas invoicing API.
type Client struct {
	httpClient *http.Client
	cfg        Config
	logger     *slog.Logger
}

// NewClient validates credentials and builds the provider client.
func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.APIKey == "" || cfg.APIToken == "" || cfg.UserToken == "" {
		return nil, fmt.Errorf("missing TusFacturas credentials")
	}
	if cfg.APIURL == "" {
		cfg.APIURL = DefaultAPIURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		cfg:        cfg,
		logger:     logger,
	}, nil
}

type productPayload struct {
	Descripcion          string `json:"descripcion"`
	UnidadBulto          string `json:"unidad_bulto"`
	Codigo               string `json:"codigo"`
	PrecioUnitarioSinIVA string `json:"precio_unitario_sin_iva"`
	Alicuota             string `json:"alicuota"`
}

type itemPayload struct {
	Cantidad string         `json:"cantidad"`
	Producto productPayload `json:"producto"`
	Leyenda  string         `json:"leyenda"`
}

type paymentPayload struct {
	FormasPago []paymentMethodPayload `json:"formas_pago"`
	Total      float64                `json:"total"`
}

type paymentMethodPayload struct {
	Descripcion string  `json:"descripcion"`
	Importe     float64 `json:"importe"`
}

type clientPayload struct {
	DocumentoTipo         string `json:"documento_tipo"`
	DocumentoNro          string `json:"documento_nro"`
	RazonSocial           string `json:"razon_social"`
	Email                 string `json:"email"`
	Domicilio             string `json:"domicilio"`
	Provincia             string `json:"provincia"`
	ReclamaDeuda          string `json:"reclama_deuda"`
	EnviaPorMail          string `json:"envia_por_mail"`
	CondicionPago         string `json:"condicion_pago"`
	CondicionIVA          string `json:"condicion_iva"`
	CondicionIVAOperacion string `json:"condicion_iva_operacion"`
}

type voucherPayload struct {
	Fecha                  string            `json:"fecha"`
	Vencimiento            string            `json:"vencimiento"`
	Tipo                   string            `json:"tipo"`
	ExternalReference      string            `json:"external_reference"`
	Tags                   []string          `json:"tags"`
	DatosInformativos      map[string]string `json:"datos_informativos"`
	Operacion              string            `json:"operacion"`
	PuntoVenta             string            `json:"punto_venta"`
	Moneda                 string            `json:"moneda"`
	Cotizacion             float64           `json:"cotizacion"`
	PeriodoFacturadoDesde  string            `json:"periodo_facturado_desde"`
	PeriodoFacturadoHasta  string            `json:"periodo_facturado_hasta"`
	Rubro                  string            `json:"rubro"`
	RubroGrupoContable     string            `json:"rubro_grupo_contable"`
	Detalle                []itemPayload     `json:"detalle"`
	Bonificacion           string            `json:"bonificacion"`
	LeyendaGral            string            `json:"leyenda_gral"`
	Total                  string            `json:"total"`
	Pagos                  paymentPayload    `json:"pagos"`
}

type invoiceRequest struct {
	UserToken   string         `json:"usertoken"`
	APIKey      string         `json:"apikey"`
	APIToken    string         `json:"apitoken"`
	Cliente     clientPayload  `json:"cliente"`
	Comprobante voucherPayload `json:"comprobante"`
}

type invoiceResponse struct {
	Error        string `json:"error"`
	ErrorDetails []struct {
		Text string `json:"text"`
	} `json:"error_details"`
	Errores           []string `json:"errores"`
	ErrorMsg          string   `json:"error_msg"`
	ComprobanteNro    string   `json:"comprobante_nro"`
	ComprobantePDFURL string   `json:"comprobante_pdf_url"`
	CAE               string   `json:"cae"`
	VencimientoCAE    string   `json:"vencimiento_cae"`
	ComprobanteTipo   string   `json:"comprobante_tipo"`
	ExternalReference string   `json:"external_reference"`
	Observaciones     string   `json:"observaciones"`
	AFIPQR            string   `json:"afip_qr"`
	AFIPCodigoBarras  string   `json:"afip_codigo_barras"`
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func prepareItems(items []domain.InvoiceItem) []itemPayload {
	formatted := make([]itemPayload, 0, len(items))
	for _, item := range items {
		formatted = append(formatted, itemPayload{
			Cantidad: formatAmount(item.Quantity),
			Producto: productPayload{
				Descripcion:          item.Description,
				UnidadBulto:          "1",
				Codigo:               "001",
				PrecioUnitarioSinIVA: formatAmount(item.UnitPrice),
				Alicuota:             "0", // 0% for Factura C
			},
		})
	}
	return formatted
}

func (c *Client) buildRequest(invoice *domain.Invoice, user *domain.User) invoiceRequest {
	invoiceDate := invoice.InvoiceDate
	if invoiceDate.IsZero() {
		invoiceDate = time.Now()
	}
	expirationDate := invoiceDate.AddDate(0, 0, 30)

	documentType := invoice.DocumentType
	if documentType == "" {
		documentType = "OTRO"
	}
	customerName := invoice.CustomerName
	if customerName == "" {
		customerName = "Sin Especificar"
	}
	customerAddress := invoice.CustomerAddress
	if customerAddress == "" {
		customerAddress = "Sin Especificar"
	}
	invoiceType := invoice.InvoiceType
	if invoiceType == "" {
		invoiceType = "FACTURA C"
	}
	currency := invoice.Currency
	if currency == "" {
		currency = "PES"
	}
	paymentMethod := invoice.PaymentMethod
	if paymentMethod == "" {
		paymentMethod = "Contado"
	}

	total := invoice.Total()
	period := invoiceDate.Format("0106") // MMYY

	return invoiceRequest{
		UserToken: user.BillingToken(c.cfg.UserToken),
		APIKey:    c.cfg.APIKey,
		APIToken:  c.cfg.APIToken,
		Cliente: clientPayload{
			DocumentoTipo:         documentType,
			DocumentoNro:          invoice.CustomerTaxID,
			RazonSocial:           customerName,
			Email:                 invoice.CustomerEmail,
			Domicilio:             customerAddress,
			Provincia:             "1",
			ReclamaDeuda:          "N",
			EnviaPorMail:          "N",
			CondicionPago:         "Contado",
			CondicionIVA:          invoice.VATCondition,
			CondicionIVAOperacion: invoice.VATOperation,
		},
		Comprobante: voucherPayload{
			Fecha:                 invoiceDate.Format(dateLayout),
			Vencimiento:           expirationDate.Format(dateLayout),
			Tipo:                  invoiceType,
			ExternalReference:     period + "-" + period,
			Tags:                  []string{"FacturAI"},
			DatosInformativos:     map[string]string{"paga_misma_moneda": "N"},
			Operacion:             "V",
			PuntoVenta:            "0001",
			Moneda:                currency,
			Cotizacion:            1,
			PeriodoFacturadoDesde: invoiceDate.Format(dateLayout),
			PeriodoFacturadoHasta: invoiceDate.Format(dateLayout),
			Rubro:                 "Servicios",
			RubroGrupoContable:    "Servicios",
			Detalle:               prepareItems(invoice.Items),
			Bonificacion:          "0.00",
			LeyendaGral:           " ",
			Total:                 formatAmount(total),
			Pagos: paymentPayload{
				FormasPago: []paymentMethodPayload{
					{Descripcion: paymentMethod, Importe: total},
				},
				Total: total,
			},
		},
	}
}

// GenerateInvoice issues an invoice for the user through the provider.
// Business rejections come back as *APIError; the conversation
// continues after reporting them.
func (c *Client) GenerateInvoice(ctx context.Context, invoice *domain.Invoice, user *domain.User) (*InvoiceDocument, error) {
	payload := c.buildRequest(invoice, user)

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode invoice request: %w", err)
	}

	c.logger.Info("Submitting invoice to TusFacturas",
		"user_id", user.ID, "total", payload.Comprobante.Total)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.APIURL+"/nuevo", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build invoice request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call TusFacturas API: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Warn("failed to close TusFacturas response body", "error", closeErr)
		}
	}()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read TusFacturas response: %w", err)
	}

	// Status first: gateway failures often carry non-JSON bodies.
	if resp.StatusCode != http.StatusOK {
		var failure invoiceResponse
		msg := "Error en la conexión con la API"
		if json.Unmarshal(raw, &failure) == nil && failure.ErrorMsg != "" {
			msg = failure.ErrorMsg
		}
		return nil, fmt.Errorf("TusFacturas request failed: status %d: %s", resp.StatusCode, msg)
	}

	var result invoiceResponse
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("decode TusFacturas response: %w", err)
	}

	switch result.Error {
	case "S":
		apiErr := &APIError{}
		for _, detail := range result.ErrorDetails {
			apiErr.Messages = append(apiErr.Messages, detail.Text)
		}
		apiErr.Messages = append(apiErr.Messages, result.Errores...)
		return nil, apiErr
	case "N":
		doc := &InvoiceDocument{
			InvoiceNumber:     result.ComprobanteNro,
			PDFURL:            result.ComprobantePDFURL,
			CAE:               result.CAE,
			CAEExpiry:         result.VencimientoCAE,
			Total:             invoice.Total(),
			Type:              result.ComprobanteTipo,
			ExternalReference: result.ExternalReference,
			Observations:      result.Observaciones,
			AFIPQR:            result.AFIPQR,
			AFIPBarcode:       result.AFIPCodigoBarras,
		}
		if idx := strings.Index(result.ComprobanteNro, "-"); idx > 0 {
			doc.PointOfSale = result.ComprobanteNro[:idx]
		}
		return doc, nil
	default:
		return nil, fmt.Errorf("unexpected TusFacturas response format: error=%q", result.Error)
	}
}
