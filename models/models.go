package models

import "time"

// Tender tracked by a user. The external code is the natural key; the same
// code may be tracked by several users as separate rows.
type Tender struct {
	ID              int        `db:"id" json:"id"`
	Code            string     `db:"code" json:"code" validate:"required"`
	Name            string     `db:"name" json:"name"`
	Status          string     `db:"status" json:"status"`
	StatusCode      int        `db:"status_code" json:"statusCode"`
	ClosingDate     *time.Time `db:"closing_date" json:"closingDate,omitempty"`
	IssuingOrg      string     `db:"issuing_org" json:"issuingOrg"`
	EstimatedAmount float64    `db:"estimated_amount" json:"estimatedAmount"`
	InstitutionID   *string    `db:"institution_id" json:"institutionId,omitempty"`
	Line            *string    `db:"line" json:"line,omitempty"`
	TotalAmount     *float64   `db:"total_amount" json:"totalAmount,omitempty"`
	DueDate         *time.Time `db:"due_date" json:"dueDate,omitempty"`
	UserID          string     `db:"user_id" json:"userId"`
	CreatedAt       time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt       time.Time  `db:"updated_at" json:"-"`
}

// PurchaseOrder issued against a tender. Globally unique by code, shared
// across users (orders are not partitioned per user).
type PurchaseOrder struct {
	Code          string     `db:"code" json:"code"`
	TenderCode    string     `db:"tender_code" json:"tenderCode"`
	Name          string     `db:"name" json:"name"`
	Status        string     `db:"status" json:"status"`
	StatusCode    int        `db:"status_code" json:"statusCode"`
	SupplierName  string     `db:"supplier_name" json:"supplierName"`
	SupplierTaxID string     `db:"supplier_tax_id" json:"supplierTaxId"`
	Amount        float64    `db:"amount" json:"amount"`
	Currency      string     `db:"currency" json:"currency"`
	SentDate      *time.Time `db:"sent_date" json:"sentDate,omitempty"`
	AcceptedDate  *time.Time `db:"accepted_date" json:"acceptedDate,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"createdAt"`
}

// OrderItem is one line of a purchase order detail.
type OrderItem struct {
	OrderCode string  `db:"order_code" json:"orderCode"`
	LineNo    int     `db:"line_no" json:"lineNo"`
	Name      string  `db:"name" json:"name"`
	Quantity  float64 `db:"quantity" json:"quantity"`
	Unit      string  `db:"unit" json:"unit"`
	UnitPrice float64 `db:"unit_price" json:"unitPrice"`
	Total     float64 `db:"total" json:"total"`
}

type Notification struct {
	ID         string    `db:"id" json:"id"`
	Type       string    `db:"type" json:"type"`
	Title      string    `db:"title" json:"title"`
	Message    string    `db:"message" json:"message"`
	TenderCode *string   `db:"tender_code" json:"tenderCode,omitempty"`
	OrderCount *int      `db:"order_count" json:"orderCount,omitempty"`
	Read       bool      `db:"read" json:"read"`
	CreatedAt  time.Time `db:"created_at" json:"createdAt"`
}

// PushToken holds one registered device token per user. Registering a new
// token replaces the previous one.
type PushToken struct {
	UserID       string    `db:"user_id" json:"userId"`
	Token        string    `db:"token" json:"token"`
	Platform     string    `db:"platform" json:"platform"`
	RegisteredAt time.Time `db:"registered_at" json:"registeredAt"`
}

// Purchase order statuses as reported by the procurement service.
const (
	OrderSentToSupplier             = "Sent to Supplier"
	OrderInProcess                  = "In Process"
	OrderAccepted                   = "Accepted"
	OrderCancelled                  = "Cancelled"
	OrderConfirmedReceipt           = "Confirmed Receipt"
	OrderPendingReceipt             = "Pending Receipt"
	OrderPartiallyReceived          = "Partially Received"
	OrderConfirmedReceiptIncomplete = "Confirmed Receipt Incomplete"
	OrderStatusUnknown              = "Unknown"
)

var orderStatusByCode = map[int]string{
	4:  OrderSentToSupplier,
	5:  OrderInProcess,
	6:  OrderAccepted,
	9:  OrderCancelled,
	12: OrderConfirmedReceipt,
	13: OrderPendingReceipt,
	14: OrderPartiallyReceived,
	15: OrderConfirmedReceiptIncomplete,
}

// OrderStatusFromCode maps a raw external status code to the domain status.
// Transitions are never computed locally: each resync overwrites the stored
// status with whatever the service reports.
func OrderStatusFromCode(code int) string {
	if s, ok := orderStatusByCode[code]; ok {
		return s
	}
	return OrderStatusUnknown
}

// Tender statuses.
const (
	TenderPublished     = "Published"
	TenderClosed        = "Closed"
	TenderUnsuccessful  = "Unsuccessful"
	TenderAwarded       = "Awarded"
	TenderRevoked       = "Revoked"
	TenderSuspended     = "Suspended"
	TenderStatusUnknown = "Unknown"
)

var tenderStatusByCode = map[int]string{
	5:  TenderPublished,
	6:  TenderClosed,
	7:  TenderUnsuccessful,
	8:  TenderAwarded,
	15: TenderRevoked,
	18: TenderSuspended,
}

func TenderStatusFromCode(code int) string {
	if s, ok := tenderStatusByCode[code]; ok {
		return s
	}
	return TenderStatusUnknown
}

// Supplier from the approved list the scanner is restricted to.
type Supplier struct {
	Code string // tax id used by the external service
	Name string
}
