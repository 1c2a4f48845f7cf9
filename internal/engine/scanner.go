package engine

import (
	"context"
	"log"
	"time"

	"tendertrack/internal/mercapi"
	"tendertrack/models"
)

const scanLockName = "procurement-scan"

// sampleDates returns the targeted-scan window: the 1st and 15th of each of
// the last six months, oldest first, skipping dates still in the future.
func sampleDates(now time.Time) []time.Time {
	var dates []time.Time
	for i := 5; i >= 0; i-- {
		month := now.AddDate(0, -i, 0)
		first := time.Date(month.Year(), month.Month(), 1, 0, 0, 0, 0, now.Location())
		fifteenth := time.Date(month.Year(), month.Month(), 15, 0, 0, 0, 0, now.Location())
		for _, d := range []time.Time{first, fifteenth} {
			if !d.After(now) {
				dates = append(dates, d)
			}
		}
	}
	return dates
}

// dailyDates returns the incremental-scan window: yesterday and today.
func dailyDates(now time.Time) []time.Time {
	return []time.Time{now.AddDate(0, 0, -1), now}
}

// DiscoverOrders scans the approved suppliers over the rolling six-month
// window and keeps exactly the orders whose reported tender code equals
// tenderCode. Results are persisted and returned to the caller; no
// notifications are created on this path.
func (e *Engine) DiscoverOrders(ctx context.Context, tenderCode string) ([]models.PurchaseOrder, error) {
	if !e.tryLock(scanLockName) {
		return nil, ErrScanRunning
	}
	defer e.unlock(scanLockName)

	dates := sampleDates(e.now())
	seen := map[string]bool{}
	found := []models.PurchaseOrder{}

	for _, supplier := range e.suppliers {
		for _, date := range dates {
			if err := e.sleep(ctx, e.listDelay); err != nil {
				return found, err
			}
			summaries, err := e.api.ListOrders(ctx, date, supplier.Code)
			if err != nil {
				log.Printf("list orders %s %s failed: %v", supplier.Code, date.Format("2006-01-02"), err)
				continue
			}
			for _, summary := range summaries {
				if summary.TenderCode != tenderCode || seen[summary.Code] {
					continue
				}
				seen[summary.Code] = true

				if err := e.sleep(ctx, e.detailDelay); err != nil {
					return found, err
				}
				detail, err := e.api.GetOrder(ctx, summary.Code)
				if err != nil {
					log.Printf("fetch order %s failed: %v", summary.Code, err)
					continue
				}
				order := orderFromAPI(detail)
				order.TenderCode = tenderCode
				if err := e.persistOrder(ctx, order, detail.Items.Listing); err != nil {
					log.Printf("persist order %s failed: %v", order.Code, err)
					continue
				}
				found = append(found, *order)
			}
		}
	}
	return found, nil
}

// ScanDailyNewOrders scans yesterday and today for all approved suppliers,
// matches candidates heuristically against every tracked tender, persists
// the ones not yet stored and fans out notifications for them.
func (e *Engine) ScanDailyNewOrders(ctx context.Context) ([]models.PurchaseOrder, error) {
	if !e.tryLock(scanLockName) {
		return nil, ErrScanRunning
	}
	defer e.unlock(scanLockName)

	codes, err := e.store.GetTrackedTenderCodes(ctx)
	if err != nil {
		return nil, err
	}
	if len(codes) == 0 {
		return []models.PurchaseOrder{}, nil
	}
	e.refreshTenders(ctx, codes)
	m := newMatcher(codes)

	newOrders := []models.PurchaseOrder{}
	for _, supplier := range e.suppliers {
		for _, date := range dailyDates(e.now()) {
			if err := e.sleep(ctx, e.listDelay); err != nil {
				return newOrders, err
			}
			summaries, err := e.api.ListOrders(ctx, date, supplier.Code)
			if err != nil {
				log.Printf("list orders %s %s failed: %v", supplier.Code, date.Format("2006-01-02"), err)
				continue
			}
			for _, summary := range summaries {
				order, items, ok := e.resolveCandidate(ctx, summary, m)
				if !ok {
					continue
				}
				if err := e.persistOrder(ctx, order, items); err != nil {
					log.Printf("persist order %s failed: %v", order.Code, err)
					continue
				}
				newOrders = append(newOrders, *order)
			}
		}
	}

	e.notifyNewOrders(ctx, newOrders)
	return newOrders, nil
}

// refreshTenders overwrites the stored tender rows with the service's
// current view, the same overwrite-on-resync the orders get. Failures are
// logged and skipped; a stale tender must not block order discovery.
func (e *Engine) refreshTenders(ctx context.Context, codes []string) {
	for _, code := range codes {
		if err := e.sleep(ctx, e.detailDelay); err != nil {
			return
		}
		remote, err := e.api.GetTender(ctx, code)
		if err != nil {
			log.Printf("refresh tender %s failed: %v", code, err)
			continue
		}
		if err := e.store.UpdateTenderSync(ctx, tenderFromAPI(remote)); err != nil {
			log.Printf("update tender %s failed: %v", code, err)
		}
	}
}

func tenderFromAPI(t *mercapi.Tender) *models.Tender {
	tender := &models.Tender{
		Code:            t.Code,
		Name:            t.Name,
		Status:          models.TenderStatusFromCode(t.StatusCode),
		StatusCode:      t.StatusCode,
		IssuingOrg:      t.Buyer.Name,
		EstimatedAmount: t.EstimatedAmount,
	}
	if !t.ClosingDate.IsZero() {
		closing := t.ClosingDate.Time
		tender.ClosingDate = &closing
	}
	return tender
}

// resolveCandidate decides whether a listed order belongs to a tracked
// tender and is not yet stored. Candidates of untracked tenders are dropped
// silently; most of what a supplier sells belongs to tenders nobody here
// follows.
func (e *Engine) resolveCandidate(ctx context.Context, summary mercapi.Order, m *matcher) (*models.PurchaseOrder, []mercapi.Item, bool) {
	exists, err := e.store.OrderExists(ctx, summary.Code)
	if err != nil {
		log.Printf("order lookup %s failed: %v", summary.Code, err)
		return nil, nil, false
	}
	if exists {
		return nil, nil, false
	}

	if code, ok := m.matchName(summary.Name); ok {
		order := orderFromAPI(&summary)
		order.TenderCode = code
		return order, nil, true
	}

	// The listing often omits the tender code; only the detail carries it.
	if err := e.sleep(ctx, e.detailDelay); err != nil {
		return nil, nil, false
	}
	detail, err := e.api.GetOrder(ctx, summary.Code)
	if err != nil {
		log.Printf("fetch order %s failed: %v", summary.Code, err)
		return nil, nil, false
	}
	if !m.known(detail.TenderCode) {
		return nil, nil, false
	}
	order := orderFromAPI(detail)
	return order, detail.Items.Listing, true
}

func (e *Engine) persistOrder(ctx context.Context, order *models.PurchaseOrder, items []mercapi.Item) error {
	if err := e.store.UpsertOrder(ctx, order); err != nil {
		return err
	}
	if len(items) > 0 {
		if err := e.store.ReplaceOrderItems(ctx, order.Code, itemsFromAPI(order.Code, items)); err != nil {
			// items are best-effort detail, the order row is already saved
			log.Printf("persist items for %s failed: %v", order.Code, err)
		}
	}
	return nil
}

func orderFromAPI(o *mercapi.Order) *models.PurchaseOrder {
	order := &models.PurchaseOrder{
		Code:          o.Code,
		TenderCode:    o.TenderCode,
		Name:          o.Name,
		Status:        models.OrderStatusFromCode(o.StatusCode),
		StatusCode:    o.StatusCode,
		SupplierName:  o.Supplier.Name,
		SupplierTaxID: o.Supplier.TaxID,
		Amount:        o.Total,
		Currency:      o.Currency,
	}
	if order.Currency == "" {
		order.Currency = "CLP"
	}
	if o.Dates.SentDate != nil && !o.Dates.SentDate.IsZero() {
		t := o.Dates.SentDate.Time
		order.SentDate = &t
	}
	if o.Dates.AcceptedDate != nil && !o.Dates.AcceptedDate.IsZero() {
		t := o.Dates.AcceptedDate.Time
		order.AcceptedDate = &t
	}
	return order
}

func itemsFromAPI(orderCode string, items []mercapi.Item) []models.OrderItem {
	out := make([]models.OrderItem, 0, len(items))
	for _, it := range items {
		out = append(out, models.OrderItem{
			OrderCode: orderCode,
			LineNo:    it.LineNo,
			Name:      it.Name,
			Quantity:  it.Quantity,
			Unit:      it.Unit,
			UnitPrice: it.UnitPrice,
			Total:     it.Total,
		})
	}
	return out
}
