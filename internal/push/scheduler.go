package push

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"fridgeio/internal/docstore"
	"fridgeio/internal/model"
	"fridgeio/internal/store"
)

// expiryWindow is how far ahead of an item's expiry the reminder fires.
const expiryWindow = 24 * time.Hour

// Scheduler periodically scans every grocery collection and pushes a
// reminder for items entering the day-before-expiry window. The sent log
// keys on grocery ID plus expiry date, so editing an item's expiry re-arms
// its reminder.
type Scheduler struct {
	docs     *docstore.Store
	sender   Sender
	sent     *store.PushStore
	logger   *slog.Logger
	interval time.Duration
}

func NewScheduler(docs *docstore.Store, sender Sender, sent *store.PushStore, interval time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		docs:     docs,
		sender:   sender,
		sent:     sent,
		logger:   logger,
		interval: interval,
	}
}

// Run sweeps immediately and then on every tick until the context ends.
func (s *Scheduler) Run(ctx context.Context) {
	if err := s.Sweep(time.Now()); err != nil {
		s.logger.Error("expiry sweep", "error", err)
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if err := s.Sweep(now); err != nil {
				s.logger.Error("expiry sweep", "error", err)
			}
		}
	}
}

// Sweep examines every grocery collection once and sends reminders for
// items expiring within the window.
func (s *Scheduler) Sweep(now time.Time) error {
	paths, err := s.docs.Collections("users/%/groceries")
	if err != nil {
		return fmt.Errorf("list grocery collections: %w", err)
	}

	for _, path := range paths {
		docs, err := s.docs.List(path)
		if err != nil {
			s.logger.Error("list groceries for sweep", "collection", path, "error", err)
			continue
		}

		for _, doc := range docs {
			g, err := model.DecodeGrocery(doc.ID, doc.Fields)
			if err != nil {
				s.logger.Warn("skipping malformed grocery in sweep", "id", doc.ID, "error", err)
				continue
			}
			if !s.due(g, now) {
				continue
			}

			refID := g.ID + "|" + g.Expiry.UTC().Format(time.RFC3339)
			fresh, err := s.sent.MarkSent(g.Owner, refID)
			if err != nil {
				s.logger.Error("record reminder", "error", err)
				continue
			}
			if !fresh {
				continue
			}

			s.sender.SendToIdentity(g.Owner, Notification{
				Title: "Grocery expiring soon",
				Body:  fmt.Sprintf("%s expires %s.", g.Name, g.Expiry.Format("Monday, Jan 2")),
			})
		}
	}
	return nil
}

// due reports whether the item is inside the reminder window: not yet
// expired, but expiring within expiryWindow.
func (s *Scheduler) due(g *model.Grocery, now time.Time) bool {
	until := g.Expiry.Sub(now)
	return until > 0 && until <= expiryWindow
}
