// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package eventbus

import (
	"context"
	"log"

	"github.com/redis/go-redis/v9"
)

// RedisBus publishes and subscribes over a Redis pub/sub channel, so a
// second worker process (or an operator watching progress) observes the
// same events as the worker that emitted them.
type RedisBus struct {
	client  *redis.Client
	channel string
}

// NewRedisBus wraps client for pub/sub on channel (e.g. "fold:events").
func NewRedisBus(client *redis.Client, channel string) *RedisBus {
	if channel == "" {
		channel = "fold:events"
	}
	return &RedisBus{client: client, channel: channel}
}

func (b *RedisBus) Publish(ctx context.Context, e Event) error {
	data, err := marshalEvent(e)
	if err != nil {
		return err
	}
	if err := b.client.Publish(ctx, b.channel, data).Err(); err != nil {
		log.Printf("eventbus: publish to %s failed: %v", b.channel, err)
		return err
	}
	return nil
}

// Subscribe returns a channel fed by a background goroutine reading the
// Redis subscription, and a cancel func that tears both down.
func (b *RedisBus) Subscribe(ctx context.Context) (<-chan Event, func()) {
	sub := b.client.Subscribe(ctx, b.channel)
	out := make(chan Event, 32)
	subCtx, cancel := context.WithCancel(ctx)

	go func() {
		defer close(out)
		ch := sub.Channel()
		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				e, err := unmarshalEvent([]byte(msg.Payload))
				if err != nil {
					log.Printf("eventbus: dropping malformed event on %s: %v", b.channel, err)
					continue
				}
				select {
				case out <- e:
				default:
				}
			}
		}
	}()

	return out, func() {
		cancel()
		sub.Close()
	}
}
