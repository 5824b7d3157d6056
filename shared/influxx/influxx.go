package influxx

import (
	"context"
	"errors"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"cafeteria-menu-system/shared/config"
)

const MeasurementMenuEvents = "menu_events"

type Client struct {
	client influxdb2.Client
	org    string
	bucket string
}

func New(cfg config.Config) (*Client, error) {
	if cfg.InfluxURL == "" || cfg.InfluxToken == "" || cfg.InfluxOrg == "" || cfg.InfluxBucket == "" {
		return nil, errors.New("INFLUX_URL/INFLUX_TOKEN/INFLUX_ORG/INFLUX_BUCKET are required")
	}
	opts := influxdb2.DefaultOptions().
		SetHTTPRequestTimeout(uint(cfg.InfluxTimeoutMS / 1000)).
		SetPrecision(time.Millisecond)
	client := influxdb2.NewClientWithOptions(cfg.InfluxURL, cfg.InfluxToken, opts)
	return &Client{client: client, org: cfg.InfluxOrg, bucket: cfg.InfluxBucket}, nil
}

// EventPoint is one appended event as a time-series sample.
type EventPoint struct {
	EventType     string
	AggregateType string
	LocationID    string
	Position      uint64
	StreamVersion uint64
	OccurredAt    time.Time
}

func (p EventPoint) point() *write.Point {
	ts := p.OccurredAt
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return influxdb2.NewPoint(
		MeasurementMenuEvents,
		map[string]string{
			"event_type":     p.EventType,
			"aggregate_type": p.AggregateType,
			"location_id":    p.LocationID,
		},
		map[string]any{
			"count":          int64(1),
			"position":       int64(p.Position),
			"stream_version": int64(p.StreamVersion),
		},
		ts,
	)
}

// WriteEvents writes the batch in one blocking request.
func (c *Client) WriteEvents(ctx context.Context, batch []EventPoint) error {
	if c == nil || c.client == nil {
		return errors.New("influx client not initialized")
	}
	if len(batch) == 0 {
		return nil
	}
	points := make([]*write.Point, 0, len(batch))
	for _, p := range batch {
		points = append(points, p.point())
	}
	return c.client.WriteAPIBlocking(c.org, c.bucket).WritePoint(ctx, points...)
}

// EventCounts sums menu events per type over the trailing window.
func (c *Client) EventCounts(ctx context.Context, window time.Duration) (map[string]int64, error) {
	if c == nil || c.client == nil {
		return nil, errors.New("influx client not initialized")
	}
	res, err := c.client.QueryAPI(c.org).Query(ctx, eventCountsFlux(c.bucket, window))
	if err != nil {
		return nil, err
	}
	defer res.Close()

	out := map[string]int64{}
	for res.Next() {
		rec := res.Record()
		typ, _ := rec.ValueByKey("event_type").(string)
		switch v := rec.Value().(type) {
		case int64:
			out[typ] += v
		case float64:
			out[typ] += int64(v)
		}
	}
	if err := res.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func eventCountsFlux(bucket string, window time.Duration) string {
	if window <= 0 {
		window = 24 * time.Hour
	}
	return fmt.Sprintf(`from(bucket: %q)
  |> range(start: -%ds)
  |> filter(fn: (r) => r._measurement == %q and r._field == "count")
  |> group(columns: ["event_type"])
  |> sum()`, bucket, int64(window/time.Second), MeasurementMenuEvents)
}

func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.client == nil {
		return errors.New("influx client not initialized")
	}
	ok, err := c.client.Ping(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("influx not ready")
	}
	return nil
}

func (c *Client) Close() {
	if c == nil || c.client == nil {
		return
	}
	c.client.Close()
}
