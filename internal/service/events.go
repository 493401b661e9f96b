package service

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/coinmaksim2021-prog/auc-mob/internal/bucketing"
	"github.com/coinmaksim2021-prog/auc-mob/internal/client"
	"github.com/coinmaksim2021-prog/auc-mob/internal/config"
	"github.com/coinmaksim2021-prog/auc-mob/internal/model"
	"github.com/coinmaksim2021-prog/auc-mob/internal/util"
)

const insertRegistrationRowSQL = `INSERT INTO wallet_registrations
	(event_date, event_time, wallet_bucket, user_id, wallet_address, invite_code, referred_by)
	VALUES (?, ?, ?, ?, ?, ?, ?)`

// EventRecorder fans successful mutations out to Kafka and the ClickHouse
// analytics sink. Both channels are best-effort: a publish failure is
// logged and never propagated to the request that triggered it. Either
// client may be nil when the backing system is disabled.
type EventRecorder struct {
	producer  *client.KafkaProducer
	analytics *client.ClickHouseClient
	bucketing *bucketing.BucketingManager
	topics    config.KafkaConfig
	logger    *zap.Logger
}

func NewEventRecorder(
	producer *client.KafkaProducer,
	analytics *client.ClickHouseClient,
	bucketingMgr *bucketing.BucketingManager,
	topics config.KafkaConfig,
	logger *zap.Logger,
) *EventRecorder {
	return &EventRecorder{
		producer:  producer,
		analytics: analytics,
		bucketing: bucketingMgr,
		topics:    topics,
		logger:    logger,
	}
}

// RecordRegistration publishes a registration event and appends the
// analytics row. Fire-and-forget: runs off the request goroutine.
func (e *EventRecorder) RecordRegistration(user *model.User) {
	if e == nil {
		return
	}

	event := model.RegistrationEvent{
		UserID:        user.ID,
		WalletAddress: user.WalletAddress,
		InviteCode:    user.InviteCode,
		WalletBucket:  e.bucketing.GetWalletBucket(user.WalletAddress),
		OccurredAt:    user.CreatedAt,
	}
	if user.ReferredBy != nil {
		event.ReferredBy = *user.ReferredBy
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		e.publish(ctx, e.topics.RegistrationTopic, user.WalletAddress, event)
		if event.ReferredBy != "" {
			e.publish(ctx, e.topics.ReferralTopic, event.ReferredBy, event)
		}
		e.appendAnalyticsRow(ctx, event)
	}()
}

// RecordProfileMutation publishes a terms-acceptance or Twitter-connect
// event.
func (e *EventRecorder) RecordProfileMutation(walletAddress, kind string) {
	if e == nil {
		return
	}

	event := model.ProfileEvent{
		WalletAddress: walletAddress,
		Kind:          kind,
		OccurredAt:    time.Now().UTC(),
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		e.publish(ctx, e.topics.ProfileTopic, walletAddress, event)
	}()
}

func (e *EventRecorder) publish(ctx context.Context, topic, key string, payload interface{}) {
	if e.producer == nil {
		return
	}

	value, err := json.Marshal(payload)
	if err != nil {
		e.logger.Error("Failed to marshal event payload",
			util.String("topic", topic),
			util.ErrorField(err))
		return
	}

	if err := e.producer.ProduceMessage(ctx, topic, []byte(key), value, nil); err != nil {
		e.logger.Warn("Failed to publish event",
			util.String("topic", topic),
			util.String("key", key),
			util.ErrorField(err))
	}
}

func (e *EventRecorder) appendAnalyticsRow(ctx context.Context, event model.RegistrationEvent) {
	if e.analytics == nil {
		return
	}

	err := e.analytics.Exec(ctx, insertRegistrationRowSQL,
		event.OccurredAt, event.OccurredAt, event.WalletBucket,
		event.UserID, event.WalletAddress, event.InviteCode, event.ReferredBy)
	if err != nil {
		e.logger.Warn("Failed to append registration analytics row",
			util.String("wallet_address", event.WalletAddress),
			util.ErrorField(err))
	}
}
