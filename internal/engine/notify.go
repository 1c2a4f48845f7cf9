package engine

import (
	"context"
	"fmt"
	"log"
	"sort"

	"github.com/google/uuid"

	"tendertrack/models"
)

// NotificationTypeNewOrders marks notifications produced by the daily scan.
const NotificationTypeNewOrders = "new-orders"

// groupNotifications builds one notification per tender that received new
// orders. Groups come out sorted by tender code.
func groupNotifications(orders []models.PurchaseOrder) []models.Notification {
	type group struct {
		count int
		total float64
	}
	groups := map[string]*group{}
	for _, o := range orders {
		g, ok := groups[o.TenderCode]
		if !ok {
			g = &group{}
			groups[o.TenderCode] = g
		}
		g.count++
		g.total += o.Amount
	}

	codes := make([]string, 0, len(groups))
	for code := range groups {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	notifications := make([]models.Notification, 0, len(codes))
	for _, code := range codes {
		g := groups[code]
		code := code
		count := g.count
		notifications = append(notifications, models.Notification{
			ID:         uuid.NewString(),
			Type:       NotificationTypeNewOrders,
			Title:      fmt.Sprintf("%d new order(s) for tender %s", g.count, code),
			Message:    fmt.Sprintf("Tender %s received %d new order(s) totalling %.0f", code, g.count, g.total),
			TenderCode: &code,
			OrderCount: &count,
		})
	}
	return notifications
}

// notifyNewOrders creates the per-tender notifications and triggers the push
// fan-out. Only the daily scan calls this; targeted discovery reports its
// result synchronously instead.
func (e *Engine) notifyNewOrders(ctx context.Context, orders []models.PurchaseOrder) {
	if len(orders) == 0 {
		return
	}
	for _, n := range groupNotifications(orders) {
		n := n
		if err := e.store.CreateNotification(ctx, &n); err != nil {
			log.Printf("create notification for %s failed: %v", *n.TenderCode, err)
		}
	}
	if e.push == nil {
		return
	}
	sent, err := e.push.NotifyNewOrders(ctx, orders)
	if err != nil {
		log.Printf("push fan-out failed: %v", err)
		return
	}
	log.Printf("push fan-out delivered %d message(s)", sent)
}
