package mercapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// apiTime handles the service's timestamp format, which comes without a zone
// and sometimes with fractional seconds.
type apiTime struct {
	time.Time
}

var timeLayouts = []string{
	"2006-01-02T15:04:05.999",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

func (t *apiTime) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		t.Time = time.Time{}
		return nil
	}
	for _, layout := range timeLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("unrecognized timestamp %q", s)
}

// Tender is the wire form of a tender summary.
type Tender struct {
	Code            string  `json:"CodigoExterno"`
	Name            string  `json:"Nombre"`
	StatusCode      int     `json:"CodigoEstado"`
	ClosingDate     apiTime `json:"FechaCierre"`
	EstimatedAmount float64 `json:"MontoEstimado"`
	Buyer           Buyer   `json:"Comprador"`
}

type Buyer struct {
	InstitutionCode string `json:"CodigoOrganismo"`
	Name            string `json:"NombreOrganismo"`
}

// Order is the wire form of a purchase order. Listings by date/supplier may
// omit the tender code; the detail fetch always carries it.
type Order struct {
	Code       string     `json:"Codigo"`
	Name       string     `json:"Nombre"`
	StatusCode int        `json:"CodigoEstado"`
	TenderCode string     `json:"CodigoLicitacion"`
	Currency   string     `json:"TipoMoneda"`
	Total      float64    `json:"Total"`
	Dates      OrderDates `json:"Fechas"`
	Supplier   Supplier   `json:"Proveedor"`
	Items      ItemList   `json:"Items"`
}

type OrderDates struct {
	SentDate     *apiTime `json:"FechaEnvio"`
	AcceptedDate *apiTime `json:"FechaAceptacion"`
}

type Supplier struct {
	TaxID string `json:"RutSucursal"`
	Name  string `json:"Nombre"`
}

type ItemList struct {
	Listing []Item `json:"Listado"`
}

type Item struct {
	LineNo    int     `json:"Correlativo"`
	Name      string  `json:"Producto"`
	Quantity  float64 `json:"Cantidad"`
	Unit      string  `json:"Unidad"`
	UnitPrice float64 `json:"PrecioNeto"`
	Total     float64 `json:"TotalLinea"`
}

// GetTender finds a tender by its external code.
func (c *Client) GetTender(ctx context.Context, code string) (*Tender, error) {
	listing, err := c.fetch(ctx, "licitaciones.json", url.Values{"codigo": {code}})
	if err != nil {
		return nil, err
	}
	var tenders []Tender
	if err := decodeListing(listing, &tenders); err != nil {
		return nil, err
	}
	if len(tenders) == 0 {
		return nil, ErrNotFound
	}
	return &tenders[0], nil
}

// GetOrder fetches the full detail of one purchase order.
func (c *Client) GetOrder(ctx context.Context, code string) (*Order, error) {
	listing, err := c.fetch(ctx, "ordenesdecompra.json", url.Values{"codigo": {code}})
	if err != nil {
		return nil, err
	}
	var orders []Order
	if err := decodeListing(listing, &orders); err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return nil, ErrNotFound
	}
	return &orders[0], nil
}

// ListOrders returns the order summaries issued to a supplier on one date.
// An empty day is a normal outcome, not an error.
func (c *Client) ListOrders(ctx context.Context, date time.Time, supplierCode string) ([]Order, error) {
	params := url.Values{
		"fecha":           {date.Format("02012006")},
		"codigoproveedor": {supplierCode},
	}
	listing, err := c.fetch(ctx, "ordenesdecompra.json", params)
	if err != nil {
		return nil, err
	}
	var orders []Order
	if err := decodeListing(listing, &orders); err != nil {
		return nil, err
	}
	return orders, nil
}

func decodeListing(listing json.RawMessage, v any) error {
	if len(listing) == 0 || string(listing) == "null" {
		return nil
	}
	if err := json.Unmarshal(listing, v); err != nil {
		return fmt.Errorf("mercapi: decode listing: %w", err)
	}
	return nil
}
