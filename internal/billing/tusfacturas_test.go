package billing

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/facturai/facturai/internal/domain"
)

func testInvoice() *domain.Invoice {
	return &domain.Invoice{
		CustomerName:  "Acme SRL",
		CustomerTaxID: "20123456789",
		DocumentType:  "CUIT",
		InvoiceDate:   time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
		Items: []domain.InvoiceItem{
			{Description: "Consultoría", Quantity: 2, UnitPrice: 500},
			{Description: "Soporte", Quantity: 1, UnitPrice: 250},
		},
	}
}

func testBillingUser() *domain.User {
	return &domain.User{ID: "u1", Name: "Juan", PhoneNumber: "+54911"}
}

func newBillingServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := NewClient(Config{
		APIURL:    srv.URL,
		APIKey:    "key",
		APIToken:  "token",
		UserToken: "default-user-token",
	}, nil)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	return client
}

func TestNewClientRequiresCredentials(t *testing.T) {
	t.Parallel()

	if _, err := NewClient(Config{APIKey: "k"}, nil); err == nil {
		t.Fatal("expected error for missing credentials")
	}
}

func TestGenerateInvoiceSuccess(t *testing.T) {
	t.Parallel()

	var got invoiceRequest
	client := newBillingServer(t, func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if _, err := w.Write([]byte(`{
			"error":"N",
			"comprobante_nro":"0001-00000042",
			"comprobante_pdf_url":"https://example.com/doc.pdf",
			"cae":"74123456789012",
			"vencimiento_cae":"25/03/2024",
			"comprobante_tipo":"FACTURA C",
			"external_reference":"0324-0324"
		}`)); err != nil {
			t.Errorf("write response: %v", err)
		}
	})

	doc, err := client.GenerateInvoice(context.Background(), testInvoice(), testBillingUser())
	if err != nil {
		t.Fatalf("GenerateInvoice failed: %v", err)
	}

	if doc.InvoiceNumber != "0001-00000042" {
		t.Fatalf("unexpected invoice number: %q", doc.InvoiceNumber)
	}
	if doc.PointOfSale != "0001" {
		t.Fatalf("unexpected point of sale: %q", doc.PointOfSale)
	}
	if doc.Total != 1250 {
		t.Fatalf("unexpected total: %v", doc.Total)
	}

	// Request payload checks.
	if got.UserToken != "default-user-token" {
		t.Fatalf("expected default user token, got %q", got.UserToken)
	}
	if got.Comprobante.Fecha != "15/03/2024" {
		t.Fatalf("unexpected invoice date: %q", got.Comprobante.Fecha)
	}
	if got.Comprobante.Vencimiento != "14/04/2024" {
		t.Fatalf("expiration should be 30 days out: %q", got.Comprobante.Vencimiento)
	}
	if got.Comprobante.Total != "1250.00" {
		t.Fatalf("unexpected total: %q", got.Comprobante.Total)
	}
	if len(got.Comprobante.Detalle) != 2 {
		t.Fatalf("expected 2 items, got %d", len(got.Comprobante.Detalle))
	}
	if got.Comprobante.Detalle[0].Producto.Alicuota != "0" {
		t.Fatalf("unexpected alicuota: %q", got.Comprobante.Detalle[0].Producto.Alicuota)
	}
}

func TestGenerateInvoiceUsesUserTokenWhenPresent(t *testing.T) {
	t.Parallel()

	var got invoiceRequest
	client := newBillingServer(t, func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if _, err := w.Write([]byte(`{"error":"N","comprobante_nro":"0001-1"}`)); err != nil {
			t.Errorf("write response: %v", err)
		}
	})

	user := testBillingUser()
	user.UserToken = "personal-token"
	if _, err := client.GenerateInvoice(context.Background(), testInvoice(), user); err != nil {
		t.Fatalf("GenerateInvoice failed: %v", err)
	}
	if got.UserToken != "personal-token" {
		t.Fatalf("expected user's own token, got %q", got.UserToken)
	}
}

func TestGenerateInvoiceBusinessError(t *testing.T) {
	t.Parallel()

	client := newBillingServer(t, func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte(`{
			"error":"S",
			"error_details":[{"text":"CUIT inválido"},{"text":"Falta domicilio"}],
			"errores":["Punto de venta inexistente"]
		}`)); err != nil {
			t.Errorf("write response: %v", err)
		}
	})

	_, err := client.GenerateInvoice(context.Background(), testInvoice(), testBillingUser())
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %v", err)
	}
	want := "tusfacturas: CUIT inválido | Falta domicilio | Punto de venta inexistente"
	if apiErr.Error() != want {
		t.Fatalf("unexpected error message:\n got %q\nwant %q", apiErr.Error(), want)
	}
}

func TestGenerateInvoiceTransportError(t *testing.T) {
	t.Parallel()

	client := newBillingServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		if _, err := w.Write([]byte(`{"error_msg":"mantenimiento programado"}`)); err != nil {
			t.Errorf("write response: %v", err)
		}
	})

	_, err := client.GenerateInvoice(context.Background(), testInvoice(), testBillingUser())
	if err == nil {
		t.Fatal("expected error for non-200 response")
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		t.Fatal("transport failures must not be business APIErrors")
	}
}

func TestGenerateInvoiceNonJSONErrorBody(t *testing.T) {
	t.Parallel()

	client := newBillingServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		if _, err := w.Write([]byte("Internal Server Error")); err != nil {
			t.Errorf("write response: %v", err)
		}
	})

	_, err := client.GenerateInvoice(context.Background(), testInvoice(), testBillingUser())
	if err == nil {
		t.Fatal("expected error for 500 response")
	}
	if !strings.Contains(err.Error(), "status 500") {
		t.Fatalf("error should report the HTTP status, got %q", err.Error())
	}
	if strings.Contains(err.Error(), "decode") {
		t.Fatalf("status failures must not surface as decode errors, got %q", err.Error())
	}
}

func TestGenerateInvoiceDefaultsUnspecifiedClient(t *testing.T) {
	t.Parallel()

	var got invoiceRequest
	client := newBillingServer(t, func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if _, err := w.Write([]byte(`{"error":"N","comprobante_nro":"0001-2"}`)); err != nil {
			t.Errorf("write response: %v", err)
		}
	})

	invoice := testInvoice()
	invoice.CustomerName = ""
	invoice.CustomerAddress = ""
	invoice.DocumentType = ""
	if _, err := client.GenerateInvoice(context.Background(), invoice, testBillingUser()); err != nil {
		t.Fatalf("GenerateInvoice failed: %v", err)
	}

	if got.Cliente.DocumentoTipo != "OTRO" {
		t.Fatalf("unexpected default document type: %q", got.Cliente.DocumentoTipo)
	}
	if got.Cliente.RazonSocial != "Sin Especificar" {
		t.Fatalf("unexpected default customer name: %q", got.Cliente.RazonSocial)
	}
	if got.Cliente.Domicilio != "Sin Especificar" {
		t.Fatalf("unexpected default address: %q", got.Cliente.Domicilio)
	}
}
