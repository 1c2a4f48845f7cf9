package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"tendertrack/internal/mercapi"
	"tendertrack/models"
)

type fakeStore struct {
	trackedCodes  []string
	tenders       map[string]*models.Tender
	synced        []models.Tender
	orders        map[string]models.PurchaseOrder
	items         map[string][]models.OrderItem
	notifications []models.Notification
	upsertErr     map[string]error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		tenders:   map[string]*models.Tender{},
		orders:    map[string]models.PurchaseOrder{},
		items:     map[string][]models.OrderItem{},
		upsertErr: map[string]error{},
	}
}

func (s *fakeStore) GetTrackedTenderCodes(ctx context.Context) ([]string, error) {
	return s.trackedCodes, nil
}

func (s *fakeStore) UpdateTenderSync(ctx context.Context, t *models.Tender) error {
	s.synced = append(s.synced, *t)
	return nil
}

func (s *fakeStore) OrderExists(ctx context.Context, code string) (bool, error) {
	_, ok := s.orders[code]
	return ok, nil
}

func (s *fakeStore) UpsertOrder(ctx context.Context, o *models.PurchaseOrder) error {
	if err := s.upsertErr[o.Code]; err != nil {
		return err
	}
	s.orders[o.Code] = *o
	return nil
}

func (s *fakeStore) ReplaceOrderItems(ctx context.Context, orderCode string, items []models.OrderItem) error {
	s.items[orderCode] = items
	return nil
}

func (s *fakeStore) GetOrdersByTenderCode(ctx context.Context, tenderCode string) ([]models.PurchaseOrder, error) {
	var out []models.PurchaseOrder
	for _, o := range s.orders {
		if o.TenderCode == tenderCode {
			out = append(out, o)
		}
	}
	return out, nil
}

func (s *fakeStore) GetUserTender(ctx context.Context, code, userID string) (*models.Tender, error) {
	t, ok := s.tenders[code]
	if !ok {
		return nil, errors.New("not found")
	}
	return t, nil
}

func (s *fakeStore) CreateNotification(ctx context.Context, n *models.Notification) error {
	s.notifications = append(s.notifications, *n)
	return nil
}

type fakeAPI struct {
	listings  map[string][]mercapi.Order // "supplier|2006-01-02"
	details   map[string]*mercapi.Order
	tenders   map[string]*mercapi.Tender
	listCalls []string
	listErr   map[string]error
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		listings: map[string][]mercapi.Order{},
		details:  map[string]*mercapi.Order{},
		tenders:  map[string]*mercapi.Tender{},
		listErr:  map[string]error{},
	}
}

func listKey(supplier string, date time.Time) string {
	return fmt.Sprintf("%s|%s", supplier, date.Format("2006-01-02"))
}

func (a *fakeAPI) ListOrders(ctx context.Context, date time.Time, supplierCode string) ([]mercapi.Order, error) {
	key := listKey(supplierCode, date)
	a.listCalls = append(a.listCalls, key)
	if err := a.listErr[key]; err != nil {
		return nil, err
	}
	return a.listings[key], nil
}

func (a *fakeAPI) GetTender(ctx context.Context, code string) (*mercapi.Tender, error) {
	t, ok := a.tenders[code]
	if !ok {
		return nil, mercapi.ErrNotFound
	}
	return t, nil
}

func (a *fakeAPI) GetOrder(ctx context.Context, code string) (*mercapi.Order, error) {
	detail, ok := a.details[code]
	if !ok {
		return nil, mercapi.ErrNotFound
	}
	return detail, nil
}

type fakePusher struct {
	pushed [][]models.PurchaseOrder
	sent   int
}

func (p *fakePusher) NotifyNewOrders(ctx context.Context, orders []models.PurchaseOrder) (int, error) {
	p.pushed = append(p.pushed, orders)
	return p.sent, nil
}

var testNow = time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)

func newTestEngine(store *fakeStore, api *fakeAPI, pusher Pusher) (*Engine, *[]time.Duration) {
	slept := &[]time.Duration{}
	e := New(store, api, pusher, Config{
		Suppliers: []models.Supplier{{Code: "11111111-1", Name: "Uno"}},
		Sleep: func(ctx context.Context, d time.Duration) error {
			*slept = append(*slept, d)
			return nil
		},
		Now: func() time.Time { return testNow },
	})
	return e, slept
}

func TestSampleDates(t *testing.T) {
	dates := sampleDates(testNow)
	require.Len(t, dates, 12)
	require.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), dates[0])
	require.Equal(t, time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC), dates[11])

	// mid-month: the current month's 15th is still in the future
	dates = sampleDates(time.Date(2026, 8, 10, 0, 0, 0, 0, time.UTC))
	require.Len(t, dates, 11)
}

func TestDiscoverOrdersKeepsOnlyMatchingTender(t *testing.T) {
	store := newFakeStore()
	api := newFakeAPI()
	key := listKey("11111111-1", time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC))
	api.listings[key] = []mercapi.Order{
		{Code: "OC-1", TenderCode: "1234-56-LE26", StatusCode: 6},
		{Code: "OC-2", TenderCode: "7777-10-LE26", StatusCode: 6},
		{Code: "OC-3", TenderCode: "", StatusCode: 4},
	}
	api.details["OC-1"] = &mercapi.Order{
		Code: "OC-1", TenderCode: "1234-56-LE26", StatusCode: 6, Total: 1000,
		Supplier: mercapi.Supplier{TaxID: "11111111-1", Name: "Uno"},
	}

	e, slept := newTestEngine(store, api, nil)
	found, err := e.DiscoverOrders(context.Background(), "1234-56-LE26")
	require.NoError(t, err)

	require.Len(t, found, 1)
	require.Equal(t, "OC-1", found[0].Code)
	require.Equal(t, "1234-56-LE26", found[0].TenderCode)
	require.Equal(t, models.OrderAccepted, found[0].Status)

	// one listing call per sampled date, with the mandatory delay each time
	require.Len(t, api.listCalls, 12)
	require.GreaterOrEqual(t, len(*slept), 12)
	for _, d := range (*slept)[:12] {
		require.NotZero(t, d)
	}

	// no notifications on the targeted path
	require.Empty(t, store.notifications)
}

func TestDiscoverOrdersIdempotent(t *testing.T) {
	store := newFakeStore()
	api := newFakeAPI()
	// the same order shows up on two sampled dates
	for _, day := range []int{1, 15} {
		key := listKey("11111111-1", time.Date(2026, 8, day, 0, 0, 0, 0, time.UTC))
		api.listings[key] = []mercapi.Order{{Code: "OC-1", TenderCode: "1234-56-LE26"}}
	}
	api.details["OC-1"] = &mercapi.Order{Code: "OC-1", TenderCode: "1234-56-LE26", Total: 500}

	e, _ := newTestEngine(store, api, nil)
	first, err := e.DiscoverOrders(context.Background(), "1234-56-LE26")
	require.NoError(t, err)
	require.Len(t, first, 1)

	second, err := e.DiscoverOrders(context.Background(), "1234-56-LE26")
	require.NoError(t, err)
	require.Len(t, second, 1)

	require.Len(t, store.orders, 1)
}

func TestDiscoverOrdersContinuesAfterPairFailure(t *testing.T) {
	store := newFakeStore()
	api := newFakeAPI()
	failing := listKey("11111111-1", time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	api.listErr[failing] = errors.New("boom")
	key := listKey("11111111-1", time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC))
	api.listings[key] = []mercapi.Order{{Code: "OC-9", TenderCode: "1234-56-LE26"}}
	api.details["OC-9"] = &mercapi.Order{Code: "OC-9", TenderCode: "1234-56-LE26"}

	e, _ := newTestEngine(store, api, nil)
	found, err := e.DiscoverOrders(context.Background(), "1234-56-LE26")
	require.NoError(t, err)
	require.Len(t, found, 1)
	require.Len(t, api.listCalls, 12)
}

func TestScanDailySkipsStoredOrders(t *testing.T) {
	store := newFakeStore()
	store.trackedCodes = []string{"1234-56-LE26"}
	store.orders["OC-OLD"] = models.PurchaseOrder{Code: "OC-OLD", TenderCode: "1234-56-LE26"}

	api := newFakeAPI()
	key := listKey("11111111-1", testNow)
	api.listings[key] = []mercapi.Order{
		{Code: "OC-OLD", Name: "orden 1234-56-LE26"},
		{Code: "OC-NEW", Name: "orden 1234-56-LE26", Total: 300},
	}

	e, _ := newTestEngine(store, api, nil)
	newOrders, err := e.ScanDailyNewOrders(context.Background())
	require.NoError(t, err)

	require.Len(t, newOrders, 1)
	require.Equal(t, "OC-NEW", newOrders[0].Code)

	require.Len(t, store.notifications, 1)
	require.Equal(t, 1, *store.notifications[0].OrderCount)
}

func TestScanDailyAuthoritativeFallback(t *testing.T) {
	store := newFakeStore()
	store.trackedCodes = []string{"1234-56-LE26"}

	api := newFakeAPI()
	key := listKey("11111111-1", testNow)
	api.listings[key] = []mercapi.Order{
		{Code: "OC-A", Name: "compra insumos"}, // no code in the name
		{Code: "OC-B", Name: "compra repuestos"},
	}
	api.details["OC-A"] = &mercapi.Order{
		Code: "OC-A", TenderCode: "1234-56-LE26", Total: 100,
		Items: mercapi.ItemList{Listing: []mercapi.Item{{LineNo: 1, Name: "Guantes"}}},
	}
	// OC-B belongs to a tender nobody tracks
	api.details["OC-B"] = &mercapi.Order{Code: "OC-B", TenderCode: "9999-99-LE26"}

	e, _ := newTestEngine(store, api, nil)
	newOrders, err := e.ScanDailyNewOrders(context.Background())
	require.NoError(t, err)

	require.Len(t, newOrders, 1)
	require.Equal(t, "OC-A", newOrders[0].Code)
	require.Equal(t, "1234-56-LE26", newOrders[0].TenderCode)
	// detail fetch brought items along
	require.Len(t, store.items["OC-A"], 1)

	_, stored := store.orders["OC-B"]
	require.False(t, stored)
}

func TestScanDailyRefreshesTrackedTenders(t *testing.T) {
	store := newFakeStore()
	store.trackedCodes = []string{"1234-56-LE26", "7777-10-LE26"}

	api := newFakeAPI()
	// only one of the two tracked tenders resolves; the other must not
	// stop the scan
	api.tenders["1234-56-LE26"] = &mercapi.Tender{
		Code: "1234-56-LE26", Name: "Insumos médicos", StatusCode: 6,
		EstimatedAmount: 5000,
	}
	key := listKey("11111111-1", testNow)
	api.listings[key] = []mercapi.Order{{Code: "OC-1", Name: "orden 1234-56-LE26"}}

	e, _ := newTestEngine(store, api, nil)
	newOrders, err := e.ScanDailyNewOrders(context.Background())
	require.NoError(t, err)
	require.Len(t, newOrders, 1)

	require.Len(t, store.synced, 1)
	require.Equal(t, "1234-56-LE26", store.synced[0].Code)
	require.Equal(t, models.TenderClosed, store.synced[0].Status)
	require.Equal(t, 6, store.synced[0].StatusCode)
	require.Equal(t, float64(5000), store.synced[0].EstimatedAmount)
}

func TestScanDailyNoTrackedTenders(t *testing.T) {
	store := newFakeStore()
	api := newFakeAPI()

	e, _ := newTestEngine(store, api, nil)
	newOrders, err := e.ScanDailyNewOrders(context.Background())
	require.NoError(t, err)
	require.Empty(t, newOrders)
	require.Empty(t, api.listCalls)
}

func TestScanDailyTriggersPush(t *testing.T) {
	store := newFakeStore()
	store.trackedCodes = []string{"1234-56-LE26"}
	api := newFakeAPI()
	key := listKey("11111111-1", testNow)
	api.listings[key] = []mercapi.Order{{Code: "OC-1", Name: "orden 1234-56-LE26", Total: 10}}

	pusher := &fakePusher{sent: 4}
	e, _ := newTestEngine(store, api, pusher)
	newOrders, err := e.ScanDailyNewOrders(context.Background())
	require.NoError(t, err)
	require.Len(t, newOrders, 1)
	require.Len(t, pusher.pushed, 1)
	require.Equal(t, "OC-1", pusher.pushed[0][0].Code)
}

func TestScanRejectedWhileRunning(t *testing.T) {
	store := newFakeStore()
	api := newFakeAPI()
	e, _ := newTestEngine(store, api, nil)

	require.True(t, e.tryLock(scanLockName))
	defer e.unlock(scanLockName)

	_, err := e.ScanDailyNewOrders(context.Background())
	require.ErrorIs(t, err, ErrScanRunning)

	_, err = e.DiscoverOrders(context.Background(), "1234-56-LE26")
	require.ErrorIs(t, err, ErrScanRunning)
}

func TestPersistFailureSkipsItemAndContinues(t *testing.T) {
	store := newFakeStore()
	store.trackedCodes = []string{"1234-56-LE26"}
	store.upsertErr["OC-BAD"] = errors.New("write failed")

	api := newFakeAPI()
	key := listKey("11111111-1", testNow)
	api.listings[key] = []mercapi.Order{
		{Code: "OC-BAD", Name: "orden 1234-56-LE26"},
		{Code: "OC-GOOD", Name: "orden 1234-56-LE26"},
	}

	e, _ := newTestEngine(store, api, nil)
	newOrders, err := e.ScanDailyNewOrders(context.Background())
	require.NoError(t, err)
	require.Len(t, newOrders, 1)
	require.Equal(t, "OC-GOOD", newOrders[0].Code)
}
