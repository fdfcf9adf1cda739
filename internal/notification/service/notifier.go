package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/taskora-dev/taskora/internal/clock"
	"github.com/taskora-dev/taskora/internal/config"
	"github.com/taskora-dev/taskora/internal/notification/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Notifier struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	repo       domain.Repository
	webhookURL string
	client     *http.Client
}

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	GenID  *snowflake.Node
	Clock  clock.Clock
	Repo   domain.Repository
	Config config.Config
}

func NewNotifier(p Params) domain.Notifier {
	return &Notifier{
		db:         p.DB,
		log:        p.Log.Named("notification"),
		genID:      p.GenID,
		clock:      p.Clock,
		repo:       p.Repo,
		webhookURL: p.Config.Notifications.WebhookURL,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Notify records the event and, when a webhook is configured, posts it.
// Errors are logged and swallowed: notification failure must never fail the
// payment or sweep that triggered it.
func (n *Notifier) Notify(ctx context.Context, kind domain.Kind, providerID snowflake.ID, payload map[string]any) {
	now := n.clock.Now(ctx)

	dedupKey, _ := payload["dedup_key"].(string)
	if dedupKey == "" {
		dedupKey = now.Format("2006-01-02")
	}

	body, err := json.Marshal(payload)
	if err != nil {
		n.log.Error("marshal notification payload", zap.Error(err))
		return
	}

	record := &domain.Record{
		ID:         n.genID.Generate(),
		ProviderID: providerID,
		Kind:       kind,
		DedupKey:   dedupKey,
		Payload:    datatypes.JSON(body),
		SentAt:     now,
	}

	inserted, err := n.repo.MarkSent(ctx, n.db, record)
	if err != nil {
		n.log.Error("record notification",
			zap.String("provider_id", providerID.String()),
			zap.String("kind", string(kind)),
			zap.Error(err))
		return
	}
	if !inserted {
		return
	}

	n.log.Info("notification sent",
		zap.String("provider_id", providerID.String()),
		zap.String("kind", string(kind)),
		zap.String("dedup_key", dedupKey))

	if n.webhookURL == "" {
		return
	}
	if err := n.postWebhook(ctx, kind, providerID, payload); err != nil {
		n.log.Warn("notification webhook delivery failed",
			zap.String("provider_id", providerID.String()),
			zap.String("kind", string(kind)),
			zap.Error(err))
	}
}

func (n *Notifier) postWebhook(ctx context.Context, kind domain.Kind, providerID snowflake.ID, payload map[string]any) error {
	msg := map[string]any{
		"text": fmt.Sprintf("*%s* provider=%s data=%v", kind, providerID, payload),
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewBuffer(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook_error: status=%d", resp.StatusCode)
	}
	return nil
}
