package ws

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type envelope struct {
	Station string `json:"station"`
	Event   Event  `json:"event"`
}

// Relay fans events out through a Redis channel so that displays connected
// to any API instance see them. Every instance, this one included, gets
// each event back from its subscription and hands it to its local Hub.
type Relay struct {
	client  *redis.Client
	channel string
	hub     *Hub
	log     *zap.Logger
}

func NewRelay(client *redis.Client, channel string, hub *Hub, log *zap.Logger) *Relay {
	if log == nil {
		log = zap.NewNop()
	}
	return &Relay{client: client, channel: channel, hub: hub, log: log.Named("relay")}
}

// NewRedisClient parses url and checks the server answers.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func (r *Relay) Broadcast(ctx context.Context, station string, ev Event) error {
	body, err := json.Marshal(envelope{Station: station, Event: ev})
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	if err := r.client.Publish(ctx, r.channel, body).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", r.channel, err)
	}
	return nil
}

// Run subscribes to the channel and forwards messages to the hub until ctx
// is done.
func (r *Relay) Run(ctx context.Context) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", r.channel, err)
	}
	r.log.Info("relay subscribed", zap.String("channel", r.channel))

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			r.deliver(ctx, msg.Payload)
		}
	}
}

func (r *Relay) deliver(ctx context.Context, payload string) {
	var env envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		r.log.Warn("discarding malformed relay message", zap.Error(err))
		return
	}
	if env.Station == "" || env.Event.Type == "" {
		r.log.Warn("discarding incomplete relay message", zap.String("payload", payload))
		return
	}
	if err := r.hub.Broadcast(ctx, env.Station, env.Event); err != nil {
		r.log.Warn("hub broadcast", zap.String("station", env.Station), zap.Error(err))
	}
}
