package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/sethvargo/go-retry"

	"tendertrack/models"
)

type Storage struct {
	db *sqlx.DB
}

func NewStorage(db *sqlx.DB) *Storage {
	return &Storage{db: db}
}

// Connect opens the Postgres pool, retrying with fibonacci backoff while the
// database is still coming up.
func Connect(ctx context.Context, connString string) (*sqlx.DB, error) {
	var conn *sqlx.DB
	backoff := retry.WithMaxRetries(5, retry.NewFibonacci(time.Second))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var err error
		conn, err = sqlx.ConnectContext(ctx, "postgres", connString)
		if err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("connect to db: %w", err)
	}
	return conn, nil
}

// Tender

func (s *Storage) CreateTender(ctx context.Context, t *models.Tender) error {
	query := `
        INSERT INTO tender
            (code, name, status, status_code, closing_date, issuing_org,
             estimated_amount, institution_id, line, total_amount, due_date, user_id)
        VALUES
            ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
        RETURNING id, created_at, updated_at`
	return s.db.QueryRowContext(ctx, query,
		t.Code, t.Name, t.Status, t.StatusCode, t.ClosingDate, t.IssuingOrg,
		t.EstimatedAmount, t.InstitutionID, t.Line, t.TotalAmount, t.DueDate, t.UserID).
		Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
}

func (s *Storage) GetUserTender(ctx context.Context, code, userID string) (*models.Tender, error) {
	t := &models.Tender{}
	query := `SELECT * FROM tender WHERE code=$1 AND user_id=$2`
	err := s.db.GetContext(ctx, t, query, code, userID)
	return t, err
}

func (s *Storage) GetUserTenders(ctx context.Context, userID string) ([]models.Tender, error) {
	tenders := []models.Tender{}
	query := `SELECT * FROM tender WHERE user_id=$1 ORDER BY created_at DESC`
	err := s.db.SelectContext(ctx, &tenders, query, userID)
	return tenders, err
}

// UpdateTenderSync overwrites the externally sourced fields on every row
// tracking the code, regardless of owner. Manual annotations (line,
// total_amount, due_date) are left untouched.
func (s *Storage) UpdateTenderSync(ctx context.Context, t *models.Tender) error {
	query := `
        UPDATE tender
        SET name=$1, status=$2, status_code=$3, closing_date=$4,
            estimated_amount=$5, updated_at=NOW()
        WHERE code=$6`
	_, err := s.db.ExecContext(ctx, query,
		t.Name, t.Status, t.StatusCode, t.ClosingDate,
		t.EstimatedAmount, t.Code)
	return err
}

// DeleteTender removes one user's tracking row. Orders are shared rows keyed
// by order code and are kept.
func (s *Storage) DeleteTender(ctx context.Context, code, userID string) error {
	query := `DELETE FROM tender WHERE code=$1 AND user_id=$2`
	_, err := s.db.ExecContext(ctx, query, code, userID)
	return err
}

// GetTrackedTenderCodes returns the distinct codes tracked by any user.
func (s *Storage) GetTrackedTenderCodes(ctx context.Context) ([]string, error) {
	codes := []string{}
	query := `SELECT DISTINCT code FROM tender ORDER BY code`
	err := s.db.SelectContext(ctx, &codes, query)
	return codes, err
}

// PurchaseOrder

func (s *Storage) OrderExists(ctx context.Context, code string) (bool, error) {
	var count int
	query := `SELECT COUNT(1) FROM purchase_order WHERE code=$1`
	err := s.db.GetContext(ctx, &count, query, code)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *Storage) UpsertOrder(ctx context.Context, o *models.PurchaseOrder) error {
	query := `
        INSERT INTO purchase_order
            (code, tender_code, name, status, status_code, supplier_name,
             supplier_tax_id, amount, currency, sent_date, accepted_date)
        VALUES
            ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
        ON CONFLICT (code) DO UPDATE SET
            tender_code=EXCLUDED.tender_code, name=EXCLUDED.name,
            status=EXCLUDED.status, status_code=EXCLUDED.status_code,
            supplier_name=EXCLUDED.supplier_name, supplier_tax_id=EXCLUDED.supplier_tax_id,
            amount=EXCLUDED.amount, currency=EXCLUDED.currency,
            sent_date=EXCLUDED.sent_date, accepted_date=EXCLUDED.accepted_date
        RETURNING created_at`
	return s.db.QueryRowContext(ctx, query,
		o.Code, o.TenderCode, o.Name, o.Status, o.StatusCode, o.SupplierName,
		o.SupplierTaxID, o.Amount, o.Currency, o.SentDate, o.AcceptedDate).
		Scan(&o.CreatedAt)
}

// ReplaceOrderItems rewrites the line items of one order.
func (s *Storage) ReplaceOrderItems(ctx context.Context, orderCode string, items []models.OrderItem) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM order_item WHERE order_code=$1`, orderCode); err != nil {
		return err
	}
	query := `
        INSERT INTO order_item (order_code, line_no, name, quantity, unit, unit_price, total)
        VALUES ($1, $2, $3, $4, $5, $6, $7)`
	for _, it := range items {
		if _, err := tx.ExecContext(ctx, query,
			orderCode, it.LineNo, it.Name, it.Quantity, it.Unit, it.UnitPrice, it.Total); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Storage) GetOrdersByTenderCode(ctx context.Context, tenderCode string) ([]models.PurchaseOrder, error) {
	orders := []models.PurchaseOrder{}
	query := `SELECT * FROM purchase_order WHERE tender_code=$1 ORDER BY code`
	err := s.db.SelectContext(ctx, &orders, query, tenderCode)
	return orders, err
}

func (s *Storage) GetOrderItems(ctx context.Context, orderCode string) ([]models.OrderItem, error) {
	items := []models.OrderItem{}
	query := `SELECT * FROM order_item WHERE order_code=$1 ORDER BY line_no`
	err := s.db.SelectContext(ctx, &items, query, orderCode)
	return items, err
}

// Notification

func (s *Storage) CreateNotification(ctx context.Context, n *models.Notification) error {
	query := `
        INSERT INTO notification (id, type, title, message, tender_code, order_count)
        VALUES ($1, $2, $3, $4, $5, $6)
        RETURNING created_at`
	return s.db.QueryRowContext(ctx, query,
		n.ID, n.Type, n.Title, n.Message, n.TenderCode, n.OrderCount).
		Scan(&n.CreatedAt)
}

func (s *Storage) GetNotifications(ctx context.Context, limit, offset int) ([]models.Notification, error) {
	notifications := []models.Notification{}
	query := `SELECT * FROM notification ORDER BY created_at DESC LIMIT $1 OFFSET $2`
	err := s.db.SelectContext(ctx, &notifications, query, limit, offset)
	return notifications, err
}

func (s *Storage) MarkNotificationRead(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE notification SET read=TRUE WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// PushToken

func (s *Storage) SavePushToken(ctx context.Context, t *models.PushToken) error {
	query := `
        INSERT INTO push_token (user_id, token, platform, registered_at)
        VALUES ($1, $2, $3, NOW())
        ON CONFLICT (user_id) DO UPDATE SET
            token=EXCLUDED.token, platform=EXCLUDED.platform, registered_at=NOW()`
	_, err := s.db.ExecContext(ctx, query, t.UserID, t.Token, t.Platform)
	return err
}

func (s *Storage) DeletePushToken(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM push_token WHERE user_id=$1`, userID)
	return err
}

func (s *Storage) GetPushTokens(ctx context.Context) ([]models.PushToken, error) {
	tokens := []models.PushToken{}
	query := `SELECT * FROM push_token ORDER BY registered_at`
	err := s.db.SelectContext(ctx, &tokens, query)
	return tokens, err
}
