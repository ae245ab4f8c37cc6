package dispatch

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/richxcame/ride-dispatch/pkg/eventbus"
	"github.com/richxcame/ride-dispatch/pkg/logger"
	"github.com/richxcame/ride-dispatch/pkg/resilience"
)

const workerQueueGroup = "dispatch-workers"

// Queue is the booking queue: creation enqueues a job carrying only the ride
// id, a worker consumes it and runs discovery. State always lives in durable
// storage so a stale job can never act on old data.
type Queue struct {
	bus *eventbus.Bus
}

// NewQueue creates a booking queue over the shared event bus.
func NewQueue(bus *eventbus.Bus) *Queue {
	return &Queue{bus: bus}
}

// Enqueue appends a discovery job for the ride. The publish retries with
// backoff; a ride row without a discovery job sits unmatched until the
// stale-request expiry.
func (q *Queue) Enqueue(ctx context.Context, rideID uuid.UUID) error {
	return resilience.Retry(ctx, resilience.DefaultRetryConfig(), func() error {
		return q.bus.Publish(ctx, eventbus.SubjectDispatchJobs, eventbus.EventDispatchJob,
			eventbus.DispatchJobData{RideID: rideID})
	})
}

// StartConsumer subscribes the coordinator to discovery jobs in a queue
// group, so each job is handled by exactly one worker instance.
func (q *Queue) StartConsumer(ctx context.Context, coordinator *Coordinator) (*nats.Subscription, error) {
	sub, err := q.bus.Subscribe(ctx, eventbus.SubjectDispatchJobs, workerQueueGroup,
		func(ctx context.Context, event eventbus.Event) error {
			var job eventbus.DispatchJobData
			if err := json.Unmarshal(event.Data, &job); err != nil {
				return fmt.Errorf("malformed discovery job: %w", err)
			}
			if err := coordinator.ProcessJob(ctx, job.RideID); err != nil {
				logger.Get().Error("discovery job failed",
					zap.String("ride_id", job.RideID.String()), zap.Error(err))
				return err
			}
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("failed to start dispatch consumer: %w", err)
	}
	return sub, nil
}
