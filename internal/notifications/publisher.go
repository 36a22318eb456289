package notifications

import (
	"context"
	"encoding/json"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"

	"github.com/angelmondragon/shopcore-backend/pkg/config"
	"github.com/angelmondragon/shopcore-backend/pkg/logger"
	pkgpubsub "github.com/angelmondragon/shopcore-backend/pkg/pubsub"
)

const noticeEventType = "staff_notice"

type publishFunc func(ctx context.Context, msg *pubsub.Message) (string, error)

// PubSubNotifier publishes notices to the staff notification topic. Every
// notice is also logged so the channel degrades to the log when publishing
// fails.
type PubSubNotifier struct {
	publish publishFunc
	log     *LogNotifier
	logg    *logger.Logger
}

// NewPubSubNotifier wraps a topic publisher.
func NewPubSubNotifier(publisher *pubsub.Publisher, logg *logger.Logger) (*PubSubNotifier, error) {
	if publisher == nil {
		return nil, fmt.Errorf("notification publisher required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return newPubSubNotifier(func(ctx context.Context, msg *pubsub.Message) (string, error) {
		return publisher.Publish(ctx, msg).Get(ctx)
	}, logg), nil
}

func newPubSubNotifier(publish publishFunc, logg *logger.Logger) *PubSubNotifier {
	return &PubSubNotifier{publish: publish, log: NewLogNotifier(logg), logg: logg}
}

func (n *PubSubNotifier) NotifyStaff(ctx context.Context, notice StaffNotice) error {
	_ = n.log.NotifyStaff(ctx, notice)

	data, err := json.Marshal(struct {
		StaffNotice
		Subject string `json:"subject"`
		Body    string `json:"body"`
	}{StaffNotice: notice, Subject: notice.Subject(), Body: notice.Body()})
	if err != nil {
		return fmt.Errorf("encode staff notice: %w", err)
	}
	id, err := n.publish(ctx, &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"event_type": noticeEventType,
			"kind":       string(notice.Kind),
			"request_id": notice.RequestID.String(),
		},
	})
	if err != nil {
		return fmt.Errorf("publish staff notice: %w", err)
	}
	n.logg.Info(n.logg.WithFields(ctx, map[string]any{
		"request_id": notice.RequestID.String(),
		"message_id": id,
	}), "staff notice published")
	return nil
}

// New picks the channel: the pubsub topic when staff notifications are
// enabled and a client is available, the log otherwise.
func New(flags config.FeatureFlagsConfig, client *pkgpubsub.Client, logg *logger.Logger) Notifier {
	if flags.StaffNotifications && client != nil {
		if publisher := client.NotificationPublisher(); publisher != nil {
			if notifier, err := NewPubSubNotifier(publisher, logg); err == nil {
				return notifier
			}
		}
	}
	return NewLogNotifier(logg)
}
