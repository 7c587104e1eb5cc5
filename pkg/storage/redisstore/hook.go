package redisstore

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
)

// CommandObserver receives the outcome of every Redis command
type CommandObserver interface {
	ObserveRedisCommand(command string, err error, duration time.Duration)
}

type startKey struct{}

// commandHook reports command latency to a CommandObserver
type commandHook struct {
	observer CommandObserver
}

var _ redis.Hook = commandHook{}

func (h commandHook) BeforeProcess(ctx context.Context, cmd redis.Cmder) (context.Context, error) {
	return context.WithValue(ctx, startKey{}, time.Now()), nil
}

func (h commandHook) AfterProcess(ctx context.Context, cmd redis.Cmder) error {
	h.observe(ctx, []redis.Cmder{cmd})
	return nil
}

func (h commandHook) BeforeProcessPipeline(ctx context.Context, cmds []redis.Cmder) (context.Context, error) {
	return context.WithValue(ctx, startKey{}, time.Now()), nil
}

func (h commandHook) AfterProcessPipeline(ctx context.Context, cmds []redis.Cmder) error {
	h.observe(ctx, cmds)
	return nil
}

func (h commandHook) observe(ctx context.Context, cmds []redis.Cmder) {
	start, ok := ctx.Value(startKey{}).(time.Time)
	if !ok {
		return
	}
	elapsed := time.Since(start)
	for _, cmd := range cmds {
		err := cmd.Err()
		if errors.Is(err, redis.Nil) {
			err = nil
		}
		h.observer.ObserveRedisCommand(cmd.Name(), err, elapsed)
	}
}

// Instrument attaches observer to client
func Instrument(client *redis.Client, observer CommandObserver) {
	if observer == nil {
		return
	}
	client.AddHook(commandHook{observer: observer})
}
