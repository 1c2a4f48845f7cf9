package handlers

import (
	"context"

	"tendertrack/internal/engine"
	"tendertrack/internal/mercapi"
	"tendertrack/models"
)

type StorageInterface interface {
	CreateTender(ctx context.Context, t *models.Tender) error
	GetUserTender(ctx context.Context, code, userID string) (*models.Tender, error)
	GetUserTenders(ctx context.Context, userID string) ([]models.Tender, error)
	DeleteTender(ctx context.Context, code, userID string) error

	GetOrdersByTenderCode(ctx context.Context, tenderCode string) ([]models.PurchaseOrder, error)
	GetOrderItems(ctx context.Context, orderCode string) ([]models.OrderItem, error)

	GetNotifications(ctx context.Context, limit, offset int) ([]models.Notification, error)
	MarkNotificationRead(ctx context.Context, id string) error

	SavePushToken(ctx context.Context, t *models.PushToken) error
	DeletePushToken(ctx context.Context, userID string) error
}

// EngineInterface is the reconciliation surface exposed to the routes.
type EngineInterface interface {
	DiscoverOrders(ctx context.Context, tenderCode string) ([]models.PurchaseOrder, error)
	ScanDailyNewOrders(ctx context.Context) ([]models.PurchaseOrder, error)
	ComputeBalance(ctx context.Context, tenderCode, userID string) (*engine.Balance, error)
}

// TenderFinder fetches tender summaries from the external service when a
// user registers one.
type TenderFinder interface {
	GetTender(ctx context.Context, code string) (*mercapi.Tender, error)
}
