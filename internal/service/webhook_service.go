package service

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"fundledger/internal/domain"
	"fundledger/internal/models"
	"fundledger/internal/repository"

	"github.com/google/uuid"
)

const (
	HeaderLedgerSignature = "X-Ledger-Signature"
	HeaderLedgerEvent     = "X-Ledger-Event"
	HeaderLedgerDelivery  = "X-Ledger-Delivery"
)

// WebhookService manages external subscriptions and, as an EventBus
// subscriber, POSTs each event to every active subscription that wants it.
type WebhookService struct {
	repo   *repository.WebhookRepository
	client *http.Client
}

func NewWebhookService(repo *repository.WebhookRepository, timeout time.Duration) *WebhookService {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookService{repo: repo, client: &http.Client{Timeout: timeout}}
}

type SubscriptionRequest struct {
	Name       string
	URL        string
	Secret     string
	EventTypes []string
}

func (s *WebhookService) Create(ctx context.Context, req SubscriptionRequest) (*models.WebhookSubscription, error) {
	u, err := url.Parse(strings.TrimSpace(req.URL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, domain.Invalid("url", "must be an absolute http(s) URL")
	}
	if len(req.Secret) < 16 {
		return nil, domain.Invalid("secret", "must be at least 16 characters")
	}
	for _, t := range req.EventTypes {
		if !isEventType(t) {
			return nil, domain.Invalid("event_types", "unknown event type %q", t)
		}
	}
	sub := &models.WebhookSubscription{
		Name:       strings.TrimSpace(req.Name),
		URL:        u.String(),
		Secret:     req.Secret,
		EventTypes: strings.Join(req.EventTypes, ","),
		IsActive:   true,
	}
	if err := s.repo.Create(sub); err != nil {
		return nil, err
	}
	log.Printf("[webhook] subscription %d registered for %s", sub.ID, sub.URL)
	return sub, nil
}

func (s *WebhookService) List(ctx context.Context) ([]models.WebhookSubscription, error) {
	return s.repo.List()
}

func (s *WebhookService) SetActive(ctx context.Context, id uint, active bool) (*models.WebhookSubscription, error) {
	if _, err := s.repo.GetByID(id); err != nil {
		return nil, err
	}
	if err := s.repo.SetActive(id, active); err != nil {
		return nil, err
	}
	return s.repo.GetByID(id)
}

func (s *WebhookService) Delete(ctx context.Context, id uint) error {
	return s.repo.Delete(id)
}

// Handle delivers ev to every matching subscription. Any failed delivery
// fails the call so the bus retries the event; receivers dedupe on the
// event id in the body.
func (s *WebhookService) Handle(ctx context.Context, ev domain.Event) error {
	subs, err := s.repo.ListActive()
	if err != nil {
		return err
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	var failed []string
	for i := range subs {
		sub := &subs[i]
		if !sub.Wants(ev.Type) {
			continue
		}
		if err := s.post(ctx, sub, ev.Type, body); err != nil {
			log.Printf("[webhook] %s to subscription %d failed: %v", ev.ID, sub.ID, err)
			failed = append(failed, fmt.Sprintf("subscription %d", sub.ID))
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("webhook delivery failed for %s", strings.Join(failed, ", "))
	}
	return nil
}

func (s *WebhookService) post(ctx context.Context, sub *models.WebhookSubscription, eventType string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sub.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderLedgerEvent, eventType)
	req.Header.Set(HeaderLedgerDelivery, uuid.NewString())
	req.Header.Set(HeaderLedgerSignature, "sha256="+Sign(sub.Secret, body))
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}

// Sign is the hex HMAC-SHA256 of body under secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a hex HMAC-SHA256, with or without a "sha256=" prefix.
func VerifySignature(secret string, body []byte, signature string) bool {
	signature = strings.TrimPrefix(signature, "sha256=")
	expected := Sign(secret, body)
	return hmac.Equal([]byte(signature), []byte(expected))
}
