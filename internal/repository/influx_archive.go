package repository

import (
	"context"
	"fmt"
	"log/slog"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/domain"

	"CapIot.relaysync/internal/config"
	"CapIot.relaysync/internal/models"
)

// ReadingMeasurement is the measurement archived readings are written under.
const ReadingMeasurement = "sensor_readings"

// InfluxArchive mirrors accepted readings into an InfluxDB bucket. It is a
// secondary copy; the durable store stays authoritative.
type InfluxArchive struct {
	client influxdb2.Client
	write  api.WriteAPIBlocking
	bucket string
	lg     *slog.Logger
}

// NewInfluxArchive connects, checks health and makes sure the bucket exists.
func NewInfluxArchive(ctx context.Context, cfg config.InfluxConfig, lg *slog.Logger) (*InfluxArchive, error) {
	if lg == nil {
		lg = slog.New(slog.DiscardHandler)
	}
	client := influxdb2.NewClient(cfg.URL, cfg.Token)

	health, err := client.Health(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("influxdb: health check: %w", err)
	}
	if health.Status != domain.HealthCheckStatusPass {
		client.Close()
		msg := ""
		if health.Message != nil {
			msg = *health.Message
		}
		return nil, fmt.Errorf("influxdb: health check failed: %s", msg)
	}

	if err := ensureBucket(ctx, client, cfg.Org, cfg.Bucket, lg); err != nil {
		client.Close()
		return nil, err
	}

	lg.Info("reading archive connected", "url", cfg.URL, "bucket", cfg.Bucket)
	return &InfluxArchive{
		client: client,
		write:  client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		bucket: cfg.Bucket,
		lg:     lg,
	}, nil
}

func ensureBucket(ctx context.Context, client influxdb2.Client, orgName, bucket string, lg *slog.Logger) error {
	buckets := client.BucketsAPI()
	if _, err := buckets.FindBucketByName(ctx, bucket); err == nil {
		return nil
	}

	org, err := client.OrganizationsAPI().FindOrganizationByName(ctx, orgName)
	if err != nil {
		return fmt.Errorf("influxdb: finding organization %q: %w", orgName, err)
	}
	if _, err := buckets.CreateBucketWithName(ctx, org, bucket); err != nil {
		return fmt.Errorf("influxdb: creating bucket %q: %w", bucket, err)
	}
	lg.Info("bucket created", "bucket", bucket)
	return nil
}

// ArchiveReading writes one reading as a point tagged with its device.
func (a *InfluxArchive) ArchiveReading(ctx context.Context, reading models.SensorReading) error {
	p := influxdb2.NewPoint(
		ReadingMeasurement,
		map[string]string{"device_id": reading.DeviceID},
		map[string]interface{}{
			"temperature": reading.Temperature,
			"humidity":    reading.Humidity,
		},
		reading.RecordedAt,
	)
	if err := a.write.WritePoint(ctx, p); err != nil {
		return fmt.Errorf("influxdb: writing reading for %s: %w", reading.DeviceID, err)
	}
	return nil
}

// Close flushes and releases the client.
func (a *InfluxArchive) Close() {
	a.client.Close()
}
