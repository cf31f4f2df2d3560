package services

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/amirphl/momo-reconciler/utils"
	"github.com/redis/go-redis/v9"
)

// Realtime event types
const (
	EventSMSReceived      = "sms.received"
	EventSMSManualReview  = "sms.manual_review"
	EventPaymentConfirmed = "payment.confirmed"
)

// RealtimeEvent is the envelope pushed to dashboard subscribers
type RealtimeEvent struct {
	Type    string         `json:"type"`
	At      string         `json:"at"`
	Payload map[string]any `json:"payload"`
}

// RealtimePublisher fans reconciliation events out to live dashboards. Publishing never fails the caller.
type RealtimePublisher interface {
	Publish(ctx context.Context, eventType string, payload map[string]any)
}

// RedisRealtimePublisher publishes on a Redis pub/sub channel
type RedisRealtimePublisher struct {
	client  *redis.Client
	channel string
	logger  *log.Logger
}

// NewRedisRealtimePublisher publishes on "<prefix>realtime"
func NewRedisRealtimePublisher(client *redis.Client, prefix string, logger *log.Logger) RealtimePublisher {
	if logger == nil {
		logger = log.Default()
	}
	return &RedisRealtimePublisher{client: client, channel: prefix + "realtime", logger: logger}
}

func (p *RedisRealtimePublisher) Publish(ctx context.Context, eventType string, payload map[string]any) {
	body, err := json.Marshal(RealtimeEvent{Type: eventType, At: utils.ToISO(utils.UTCNow()), Payload: payload})
	if err != nil {
		p.logger.Printf("realtime: marshal %s: %v", eventType, err)
		return
	}

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()

	if err := p.client.Publish(pubCtx, p.channel, body).Err(); err != nil {
		p.logger.Printf("realtime: publish %s: %v", eventType, err)
	}
}

// LogRealtimePublisher only logs events; used when Redis is unavailable
type LogRealtimePublisher struct {
	logger *log.Logger
}

func NewLogRealtimePublisher(logger *log.Logger) RealtimePublisher {
	if logger == nil {
		logger = log.Default()
	}
	return &LogRealtimePublisher{logger: logger}
}

func (p *LogRealtimePublisher) Publish(_ context.Context, eventType string, payload map[string]any) {
	p.logger.Printf("realtime: %s %v", eventType, payload)
}
