// README: Best-effort push delivery plus durable notification records.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"towline/internal/types"
)

// Pusher delivers a notification to a device or webhook. Failures are logged
// and swallowed; the persisted record is the source of truth.
type Pusher interface {
	Push(ctx context.Context, recipientID types.ID, n *Notification) error
}

// HTTPPusher posts notification JSON to a push relay endpoint.
type HTTPPusher struct {
	Endpoint string
	Key      string
	Client   *http.Client
}

func NewHTTPPusher(endpoint, key string) *HTTPPusher {
	return &HTTPPusher{Endpoint: endpoint, Key: key, Client: &http.Client{Timeout: 3 * time.Second}}
}

func (p *HTTPPusher) Push(ctx context.Context, recipientID types.ID, n *Notification) error {
	body := map[string]any{
		"recipient_id": recipientID,
		"notification": n,
	}
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.Endpoint, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if p.Key != "" {
		req.Header.Set("Authorization", "Bearer "+p.Key)
	}
	resp, err := p.Client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// Service persists every notification, then attempts push delivery.
type Service struct {
	store  Store
	pusher Pusher
	logger *slog.Logger
}

func NewService(store Store, pusher Pusher, logger *slog.Logger) *Service {
	return &Service{store: store, pusher: pusher, logger: logger}
}

func (s *Service) Notify(ctx context.Context, recipientID, jobID types.ID, kind Kind, title, body string, data map[string]any) {
	n := &Notification{
		RecipientID: recipientID,
		JobID:       jobID,
		Kind:        kind,
		Title:       title,
		Body:        body,
		Data:        data,
	}
	if err := s.store.Insert(ctx, n); err != nil {
		s.logger.Error("notification insert failed", "recipient", recipientID, "kind", kind, "error", err)
		return
	}
	if s.pusher == nil {
		return
	}
	if err := s.pusher.Push(ctx, recipientID, n); err != nil {
		s.logger.Warn("push delivery failed", "recipient", recipientID, "kind", kind, "error", err)
	}
}

func (s *Service) List(ctx context.Context, recipientID types.ID, limit int) ([]*Notification, error) {
	return s.store.ListByRecipient(ctx, recipientID, limit)
}

func (s *Service) MarkRead(ctx context.Context, id types.ID) error {
	return s.store.MarkRead(ctx, id)
}
