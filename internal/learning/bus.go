// Motrix - Marketplace Behavior Analytics and Real-Time Learning
// Copyright 2026 Motrix Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/motrixlab/motrix

package learning

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	json "github.com/goccy/go-json"

	"github.com/motrixlab/motrix/internal/logging"
	"github.com/motrixlab/motrix/internal/metrics"
)

// Bus topics. Interactions that exhaust their redelivery budget are moved
// to the poison topic and audited there instead of blocking the stream.
const (
	TopicInteractions = "learning.interactions"
	TopicPoison       = "learning.poison"
)

const (
	busCloseTimeout = 30 * time.Second

	busRetryMax          = 3
	busRetryInitial      = 100 * time.Millisecond
	busRetryMaxInterval  = 5 * time.Second
	busRetryMultiplier   = 2.0
	defaultQueueCapacity = 10000
)

// Bus is the in-process message fabric between the deferred learning path
// and the interaction processor. Publishing is buffered and non-blocking
// up to the queue capacity; consumption runs under a watermill router with
// panic recovery, bounded redelivery, and a poison queue.
type Bus struct {
	pubsub *gochannel.GoChannel
	router *message.Router
}

// NewBus creates the bus and its router with the standard middleware
// chain. Handlers must be registered before Serve starts the router.
func NewBus(queueCapacity int) (*Bus, error) {
	if queueCapacity <= 0 {
		queueCapacity = defaultQueueCapacity
	}
	logger := logging.NewWatermillAdapter()

	pubsub := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: int64(queueCapacity),
	}, logger)

	router, err := message.NewRouter(message.RouterConfig{
		CloseTimeout: busCloseTimeout,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("create learning bus router: %w", err)
	}

	// First added is outermost: PoisonQueue sees an error only after
	// Retry has given up, and Recoverer sits innermost so a handler
	// panic becomes a retryable error instead of killing the router.
	poison, err := middleware.PoisonQueue(pubsub, TopicPoison)
	if err != nil {
		return nil, fmt.Errorf("create poison queue middleware: %w", err)
	}
	router.AddMiddleware(poison)

	retry := middleware.Retry{
		MaxRetries:      busRetryMax,
		InitialInterval: busRetryInitial,
		MaxInterval:     busRetryMaxInterval,
		Multiplier:      busRetryMultiplier,
		Logger:          logger,
	}
	router.AddMiddleware(retry.Middleware)
	router.AddMiddleware(middleware.Recoverer)

	b := &Bus{pubsub: pubsub, router: router}
	router.AddConsumerHandler("poison-audit", TopicPoison, pubsub, b.auditPoisoned)
	return b, nil
}

// Publish places an interaction onto the bus. It blocks only when the
// output buffer is full, which the capacity is sized to make rare.
func (b *Bus) Publish(_ context.Context, inter *Interaction) error {
	payload, err := json.Marshal(inter)
	if err != nil {
		return fmt.Errorf("encode interaction: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set("event_id", inter.EventID)
	msg.Metadata.Set("kind", string(inter.Kind))

	if err := b.pubsub.Publish(TopicInteractions, msg); err != nil {
		return fmt.Errorf("publish interaction: %w", err)
	}
	return nil
}

// SubscribeInteractions registers fn as a consumer of the interaction
// topic. A returned error triggers redelivery; after the retry budget the
// message is poisoned. Must be called before Serve.
func (b *Bus) SubscribeInteractions(name string, fn func(ctx context.Context, inter *Interaction) error) {
	b.router.AddConsumerHandler(name, TopicInteractions, b.pubsub, func(msg *message.Message) error {
		var inter Interaction
		if err := json.Unmarshal(msg.Payload, &inter); err != nil {
			return fmt.Errorf("decode interaction %s: %w", msg.UUID, err)
		}
		return fn(msg.Context(), &inter)
	})
}

// auditPoisoned drains the poison topic so dead interactions are counted
// and visible in the log rather than accumulating silently.
func (b *Bus) auditPoisoned(msg *message.Message) error {
	metrics.LearningFailures.WithLabelValues("poison").Inc()
	logging.Error().
		Str("message_id", msg.UUID).
		Str("event_id", msg.Metadata.Get("event_id")).
		Str("kind", msg.Metadata.Get("kind")).
		Str("reason", msg.Metadata.Get(middleware.ReasonForPoisonedKey)).
		Msg("LEARN: Interaction poisoned after retries")
	return nil
}

// Serve runs the router until ctx is cancelled. It implements
// suture.Service.
func (b *Bus) Serve(ctx context.Context) error {
	logging.Info().
		Str("topic", TopicInteractions).
		Msg("LEARN: Learning bus started")

	if err := b.router.Run(ctx); err != nil {
		return fmt.Errorf("learning bus router: %w", err)
	}
	return ctx.Err()
}

// Running returns a channel that closes once the router is consuming.
func (b *Bus) Running() <-chan struct{} {
	return b.router.Running()
}

// Close shuts down the underlying pub/sub. Call after the router has
// stopped.
func (b *Bus) Close() error {
	return b.pubsub.Close()
}

func (b *Bus) String() string { return "learning-bus" }
