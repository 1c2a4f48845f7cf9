package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"tendertrack/internal/mercapi"
	"tendertrack/models"
)

// ErrScanRunning is returned when a scan is triggered while another one
// holds the run lock.
var ErrScanRunning = errors.New("engine: scan already in progress")

// Storage is the subset of db.Storage the engine needs.
type Storage interface {
	GetTrackedTenderCodes(ctx context.Context) ([]string, error)
	UpdateTenderSync(ctx context.Context, t *models.Tender) error
	OrderExists(ctx context.Context, code string) (bool, error)
	UpsertOrder(ctx context.Context, o *models.PurchaseOrder) error
	ReplaceOrderItems(ctx context.Context, orderCode string, items []models.OrderItem) error
	GetOrdersByTenderCode(ctx context.Context, tenderCode string) ([]models.PurchaseOrder, error)
	GetUserTender(ctx context.Context, code, userID string) (*models.Tender, error)
	CreateNotification(ctx context.Context, n *models.Notification) error
}

// ProcurementAPI is the client surface used during scans.
type ProcurementAPI interface {
	GetTender(ctx context.Context, code string) (*mercapi.Tender, error)
	GetOrder(ctx context.Context, code string) (*mercapi.Order, error)
	ListOrders(ctx context.Context, date time.Time, supplierCode string) ([]mercapi.Order, error)
}

// Pusher fans a batch of freshly discovered orders out to devices.
type Pusher interface {
	NotifyNewOrders(ctx context.Context, orders []models.PurchaseOrder) (int, error)
}

type SleepFunc func(ctx context.Context, d time.Duration) error

func sleepReal(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type Config struct {
	Suppliers []models.Supplier
	// Delay before every listing call. The external service throttles
	// aggressively, so this must stay at 1s or above.
	ListDelay time.Duration
	// Shorter delay before a detail fetch.
	DetailDelay time.Duration
	Sleep       SleepFunc
	Now         func() time.Time
}

// Engine drives discovery, matching, persistence and notification of
// purchase orders. All external API calls are sequential; the only
// concurrency is inside the push fan-out.
type Engine struct {
	store       Storage
	api         ProcurementAPI
	push        Pusher
	suppliers   []models.Supplier
	approved    map[string]bool
	listDelay   time.Duration
	detailDelay time.Duration
	sleep       SleepFunc
	now         func() time.Time

	mu      sync.Mutex
	running map[string]bool
}

func New(store Storage, api ProcurementAPI, push Pusher, cfg Config) *Engine {
	e := &Engine{
		store:       store,
		api:         api,
		push:        push,
		suppliers:   cfg.Suppliers,
		approved:    map[string]bool{},
		listDelay:   cfg.ListDelay,
		detailDelay: cfg.DetailDelay,
		sleep:       cfg.Sleep,
		now:         cfg.Now,
		running:     map[string]bool{},
	}
	for _, s := range e.suppliers {
		e.approved[s.Code] = true
	}
	if e.listDelay == 0 {
		e.listDelay = time.Second
	}
	if e.detailDelay == 0 {
		e.detailDelay = 300 * time.Millisecond
	}
	if e.sleep == nil {
		e.sleep = sleepReal
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e
}

// tryLock acquires the named run lock without blocking. Scans share one name
// so a user-triggered detect cannot interleave with the daily scan on the
// rate-limited API.
func (e *Engine) tryLock(name string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running[name] {
		return false
	}
	e.running[name] = true
	return true
}

func (e *Engine) unlock(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.running, name)
}
