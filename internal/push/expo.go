package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"regexp"
	"sync"
	"time"

	"github.com/google/uuid"

	"tendertrack/models"
)

const (
	defaultGatewayURL = "https://exp.host/--/api/v2/push/send"

	// The gateway accepts at most 100 messages per request.
	chunkSize = 100
	// Chunks are independent, so a few of them can be in flight at once.
	workers = 3
)

var tokenPattern = regexp.MustCompile(`^ExponentPushToken\[[^\]]+\]$`)

// TokenStore is the storage surface the fan-out needs.
type TokenStore interface {
	GetPushTokens(ctx context.Context) ([]models.PushToken, error)
	CreateNotification(ctx context.Context, n *models.Notification) error
}

// Message is one push request entry in the gateway's wire format.
type Message struct {
	To       string            `json:"to"`
	Title    string            `json:"title"`
	Body     string            `json:"body"`
	Data     map[string]string `json:"data,omitempty"`
	Priority string            `json:"priority,omitempty"`
}

type gatewayTicket struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type gatewayResponse struct {
	Data []gatewayTicket `json:"data"`
}

type Config struct {
	GatewayURL string
	Client     *http.Client
}

// Service delivers push notifications to every registered device in bounded
// batches. One failed batch never affects the accounting of the others.
type Service struct {
	store TokenStore
	url   string
	http  *http.Client
}

func NewService(store TokenStore, cfg Config) *Service {
	s := &Service{
		store: store,
		url:   cfg.GatewayURL,
		http:  cfg.Client,
	}
	if s.url == "" {
		s.url = defaultGatewayURL
	}
	if s.http == nil {
		s.http = &http.Client{Timeout: 30 * time.Second}
	}
	return s
}

// NotifyNewOrders pushes a summary of freshly discovered orders to all
// registered devices and records one process-wide summary notification.
// It returns how many messages the gateway explicitly accepted.
func (s *Service) NotifyNewOrders(ctx context.Context, orders []models.PurchaseOrder) (int, error) {
	if len(orders) == 0 {
		return 0, nil
	}

	tokens, err := s.store.GetPushTokens(ctx)
	if err != nil {
		return 0, fmt.Errorf("load push tokens: %w", err)
	}

	var total float64
	for _, o := range orders {
		total += o.Amount
	}
	title := fmt.Sprintf("%d new purchase order(s)", len(orders))
	body := fmt.Sprintf("New orders totalling %.0f were discovered", total)

	messages := []Message{}
	for _, t := range tokens {
		if !tokenPattern.MatchString(t.Token) {
			continue
		}
		messages = append(messages, Message{
			To:       t.Token,
			Title:    title,
			Body:     body,
			Data:     map[string]string{"type": "new-orders"},
			Priority: "high",
		})
	}

	sent := s.sendAll(ctx, splitChunks(messages))

	count := len(orders)
	summary := &models.Notification{
		ID:         uuid.NewString(),
		Type:       "new-orders-push",
		Title:      title,
		Message:    body,
		OrderCount: &count,
	}
	if err := s.store.CreateNotification(ctx, summary); err != nil {
		log.Printf("create push summary notification failed: %v", err)
	}

	return sent, nil
}

// sendAll pushes the chunks through a small worker pool and sums the
// accepted counts. Chunk failures are logged and skipped.
func (s *Service) sendAll(ctx context.Context, chunks [][]Message) int {
	var (
		mu    sync.Mutex
		total int
		wg    sync.WaitGroup
	)
	jobs := make(chan []Message)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for chunk := range jobs {
				n, err := s.sendChunk(ctx, chunk)
				if err != nil {
					log.Printf("push chunk of %d failed: %v", len(chunk), err)
					continue
				}
				mu.Lock()
				total += n
				mu.Unlock()
			}
		}()
	}
	for _, chunk := range chunks {
		jobs <- chunk
	}
	close(jobs)
	wg.Wait()
	return total
}

// sendChunk posts one batch and counts the entries the gateway accepted.
func (s *Service) sendChunk(ctx context.Context, messages []Message) (int, error) {
	payload, err := json.Marshal(messages)
	if err != nil {
		return 0, fmt.Errorf("encode chunk: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("gateway returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, err
	}
	var gr gatewayResponse
	if err := json.Unmarshal(body, &gr); err != nil {
		return 0, fmt.Errorf("malformed gateway response: %w", err)
	}

	accepted := 0
	for _, ticket := range gr.Data {
		if ticket.Status == "ok" {
			accepted++
		}
	}
	return accepted, nil
}

func splitChunks(messages []Message) [][]Message {
	var chunks [][]Message
	for len(messages) > chunkSize {
		chunks = append(chunks, messages[:chunkSize])
		messages = messages[chunkSize:]
	}
	if len(messages) > 0 {
		chunks = append(chunks, messages)
	}
	return chunks
}
