package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/mgo/v3/bson"
	"go.uber.org/zap"

	"adminhub/internal/db"
)

// TypeBroadcastDispatch hands a due broadcast over to the bot runtime.
const TypeBroadcastDispatch = "broadcast:dispatch"

// BroadcastStore is the part of the broadcast collection the worker needs.
type BroadcastStore interface {
	Get(ctx context.Context, id bson.ObjectId) (db.Broadcast, error)
	MarkDispatched(ctx context.Context, id bson.ObjectId, at time.Time) (bool, error)
}

type Publisher interface {
	PublishRuntime(ctx context.Context, event map[string]interface{}) error
	PublishPortal(ctx context.Context, channel string, event map[string]interface{}) error
}

type JobServer struct {
	server     *asynq.Server
	broadcasts BroadcastStore
	bus        Publisher
	channel    string
	clock      clock.Clock
	log        *zap.Logger
}

// NewJobServer builds the worker. Portal progress events go to channel.
func NewJobServer(opt asynq.RedisConnOpt, concurrency int, broadcasts BroadcastStore, bus Publisher, channel string, clk clock.Clock, log *zap.Logger) *JobServer {
	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			"critical": 6,
			"default":  3,
			"low":      1,
		},
		Logger: log.Sugar(),
	})
	return &JobServer{
		server:     server,
		broadcasts: broadcasts,
		bus:        bus,
		channel:    channel,
		clock:      clk,
		log:        log,
	}
}

func (js *JobServer) mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeBroadcastDispatch, js.handleBroadcastDispatch)
	return mux
}

// Run processes tasks until the process receives a termination signal.
func (js *JobServer) Run() error {
	return js.server.Run(js.mux())
}

func (js *JobServer) Start() error {
	return js.server.Start(js.mux())
}

func (js *JobServer) Stop() {
	js.server.Shutdown()
}

func (js *JobServer) handleBroadcastDispatch(ctx context.Context, t *asynq.Task) error {
	hex := string(t.Payload())
	if !bson.IsObjectIdHex(hex) {
		return fmt.Errorf("invalid broadcast id %q: %w", hex, asynq.SkipRetry)
	}
	id := bson.ObjectIdHex(hex)

	bc, err := js.broadcasts.Get(ctx, id)
	if errors.Is(err, errors.NotFound) {
		js.log.Info("Broadcast gone before dispatch", zap.String("broadcast_id", hex))
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to get broadcast: %w", err)
	}

	first, err := js.broadcasts.MarkDispatched(ctx, id, js.clock.Now())
	if err != nil {
		return fmt.Errorf("failed to mark broadcast dispatched: %w", err)
	}
	if !first {
		return nil
	}

	targets := make([]string, len(bc.Targets))
	for i, t := range bc.Targets {
		targets[i] = t.Hex()
	}
	if err := js.bus.PublishRuntime(ctx, map[string]interface{}{
		"type":        "broadcast.dispatch",
		"broadcastId": hex,
		"targets":     targets,
	}); err != nil {
		return fmt.Errorf("failed to hand over broadcast: %w", err)
	}

	_ = js.bus.PublishPortal(ctx, js.channel, map[string]interface{}{
		"type":        "broadcast.dispatched",
		"broadcastId": hex,
		"total":       bc.Total,
	})

	js.log.Info("Broadcast dispatched", zap.String("broadcast_id", hex), zap.Int("targets", len(targets)))
	return nil
}

// Client enqueues broadcast dispatch tasks.
type Client struct {
	client *asynq.Client
	clock  clock.Clock
}

func NewClient(opt asynq.RedisConnOpt, clk clock.Clock) *Client {
	return &Client{client: asynq.NewClient(opt), clock: clk}
}

func (c *Client) Close() error {
	return c.client.Close()
}

// ScheduleBroadcast enqueues the dispatch of a broadcast at sendAt, or
// right away when sendAt has passed. Scheduling the same broadcast twice
// is a no-op.
func (c *Client) ScheduleBroadcast(ctx context.Context, broadcastID string, sendAt time.Time) error {
	_, err := c.client.EnqueueContext(ctx, dispatchTask(broadcastID), dispatchOptions(broadcastID, sendAt, c.clock.Now())...)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	return err
}

func dispatchTask(broadcastID string) *asynq.Task {
	return asynq.NewTask(TypeBroadcastDispatch, []byte(broadcastID))
}

func dispatchOptions(broadcastID string, sendAt, now time.Time) []asynq.Option {
	opts := []asynq.Option{
		asynq.TaskID("broadcast-" + broadcastID),
		asynq.Queue("critical"),
		asynq.MaxRetry(5),
	}
	if sendAt.After(now) {
		opts = append(opts, asynq.ProcessAt(sendAt))
	}
	return opts
}
