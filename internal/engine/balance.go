package engine

import (
	"context"

	"tendertrack/models"
)

// Balance is the remaining budget of a tender against its orders.
type Balance struct {
	TotalAmount   float64  `json:"totalAmount"`
	OrderedAmount float64  `json:"orderedAmount"`
	Balance       float64  `json:"balance"`
	Percentage    *float64 `json:"percentage,omitempty"`
}

// ComputeBalance derives the balance of one tracked tender from its stored
// orders. Only non-cancelled orders from approved suppliers count.
func (e *Engine) ComputeBalance(ctx context.Context, tenderCode, userID string) (*Balance, error) {
	tender, err := e.store.GetUserTender(ctx, tenderCode, userID)
	if err != nil {
		return nil, err
	}
	orders, err := e.store.GetOrdersByTenderCode(ctx, tenderCode)
	if err != nil {
		return nil, err
	}

	total := tender.EstimatedAmount
	if tender.TotalAmount != nil {
		total = *tender.TotalAmount
	}
	b := computeBalance(total, orders, e.approved)
	return &b, nil
}

func computeBalance(total float64, orders []models.PurchaseOrder, approved map[string]bool) Balance {
	var ordered float64
	for _, o := range orders {
		if o.Status == models.OrderCancelled || !approved[o.SupplierTaxID] {
			continue
		}
		ordered += o.Amount
	}
	b := Balance{
		TotalAmount:   total,
		OrderedAmount: ordered,
		Balance:       total - ordered,
	}
	if total > 0 {
		p := b.Balance / total * 100
		b.Percentage = &p
	}
	return b
}
