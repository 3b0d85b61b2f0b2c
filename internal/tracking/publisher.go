// README: Publishes job tracking events over Redis Pub/Sub channels keyed by job ID.
package tracking

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"towline/internal/types"
)

// Event is the wire shape pushed to tracking subscribers. Location is only
// present on driver position updates.
type Event struct {
	Type      string       `json:"type"`
	JobID     types.ID     `json:"job_id"`
	Status    string       `json:"status,omitempty"`
	DriverID  types.ID     `json:"driver_id,omitempty"`
	Location  *types.Point `json:"location,omitempty"`
	ETAMin    int          `json:"eta_minutes,omitempty"`
	Timestamp time.Time    `json:"timestamp"`
}

const (
	EventStatus   = "status_update"
	EventLocation = "location_update"
	EventAssigned = "driver_assigned"
)

func channelFor(jobID types.ID) string {
	return "tracking:job:" + string(jobID)
}

// Publisher fans events out through Redis so any API instance can serve the
// websocket for a given job.
type Publisher struct {
	rdb *redis.Client
}

func NewPublisher(rdb *redis.Client) *Publisher {
	return &Publisher{rdb: rdb}
}

func (p *Publisher) Publish(ctx context.Context, ev Event) error {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return p.rdb.Publish(ctx, channelFor(ev.JobID), b).Err()
}

// Subscribe returns a channel of decoded events for one job. The channel
// closes when ctx is cancelled.
func (p *Publisher) Subscribe(ctx context.Context, jobID types.ID) <-chan Event {
	sub := p.rdb.Subscribe(ctx, channelFor(jobID))
	out := make(chan Event, 16)
	go func() {
		defer close(out)
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var ev Event
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}
