package push

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	webpush "github.com/SherClockHolmes/webpush-go"

	"fridgeio/internal/store"
)

// Notification is the payload shown to the user by the service worker.
type Notification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	URL   string `json:"url,omitempty"`
}

// Sender delivers a notification to every device an identity registered.
type Sender interface {
	SendToIdentity(identity string, n Notification)
}

// Service sends web-push notifications using VAPID keys. Dead endpoints
// reported by the push service are pruned as a side effect of sending.
type Service struct {
	vapidPublicKey  string
	vapidPrivateKey string
	subscriber      string
	subs            *store.PushStore
	logger          *slog.Logger
}

func NewService(vapidPublicKey, vapidPrivateKey, subscriber string, subs *store.PushStore, logger *slog.Logger) *Service {
	return &Service{
		vapidPublicKey:  vapidPublicKey,
		vapidPrivateKey: vapidPrivateKey,
		subscriber:      subscriber,
		subs:            subs,
		logger:          logger,
	}
}

// Configured returns true if VAPID keys are set.
func (s *Service) Configured() bool {
	return s.vapidPublicKey != "" && s.vapidPrivateKey != ""
}

// PublicKey returns the VAPID public key clients subscribe with.
func (s *Service) PublicKey() string {
	return s.vapidPublicKey
}

// SendToIdentity pushes the notification to each of the identity's
// registered endpoints. Failures are logged, not returned: a reminder that
// misses one stale device should still reach the others.
func (s *Service) SendToIdentity(identity string, n Notification) {
	if !s.Configured() {
		return
	}

	subs, err := s.subs.ForIdentity(identity)
	if err != nil {
		s.logger.Error("load push subscriptions", "error", err)
		return
	}

	payload, err := json.Marshal(n)
	if err != nil {
		s.logger.Error("marshal push payload", "error", err)
		return
	}

	for _, sub := range subs {
		if err := s.send(sub, payload); err != nil {
			s.logger.Warn("push delivery failed", "endpoint", sub.Endpoint, "error", err)
		}
	}
}

func (s *Service) send(sub store.PushSubscription, payload []byte) error {
	resp, err := webpush.SendNotification(payload, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256dhKey,
			Auth:   sub.AuthKey,
		},
	}, &webpush.Options{
		Subscriber:      s.subscriber,
		VAPIDPublicKey:  s.vapidPublicKey,
		VAPIDPrivateKey: s.vapidPrivateKey,
		TTL:             3600,
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusCreated, http.StatusOK:
		return nil
	case http.StatusNotFound, http.StatusGone:
		// The browser dropped this subscription.
		if err := s.subs.DeleteEndpoint(sub.Endpoint); err != nil {
			s.logger.Error("prune dead push endpoint", "error", err)
		}
		return fmt.Errorf("subscription gone (status %d)", resp.StatusCode)
	default:
		return fmt.Errorf("push service returned status %d", resp.StatusCode)
	}
}
