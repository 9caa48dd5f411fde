package agent

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/updrive-io/updrive/internal/agent/hal"
	"github.com/updrive-io/updrive/internal/agent/omaha"
	"github.com/updrive-io/updrive/internal/agent/payload"
	"github.com/updrive-io/updrive/internal/pkg/metrics"
	"github.com/updrive-io/updrive/internal/updater"
	"github.com/updrive-io/updrive/pkg/mqtt"
	"github.com/updrive-io/updrive/pkg/mqtt/topic"
	"github.com/updrive-io/updrive/pkg/options"
)

// Config is the fully resolved agent configuration.
type Config struct {
	// DeviceID identifies this device in telemetry topics.
	DeviceID string

	Updater *options.UpdaterOptions
	HTTP    *options.HTTPOptions
	Mqtt    *options.MqttOptions
	S3      *options.S3Options
}

// NewAgent assembles the agent: orchestrator, collaborators, local status
// server, and the optional MQTT telemetry channel.
func (c *Config) NewAgent() (*Agent, error) {
	partitions, err := parsePartitions(c.Updater.Partitions)
	if err != nil {
		return nil, err
	}

	fetcher, err := payload.NewFetcher(payload.Config{
		Endpoint:        c.S3.Endpoint,
		AccessKeyID:     c.S3.AccessKeyID,
		SecretAccessKey: c.S3.SecretAccessKey,
		UseSSL:          c.S3.UseSSL,
		Region:          c.S3.Region,
		Bucket:          c.S3.BucketName,
		DestDir:         filepath.Join(c.Updater.StateDir, "payload"),
	})
	if err != nil {
		return nil, fmt.Errorf("create payload fetcher: %w", err)
	}

	attempter := updater.NewAttempter(updater.Config{
		CompletedMarkerPath: c.Updater.CompletedMarkerPath,
		Partitions:          partitions,
		Client:              omaha.NewClient(0),
		Copier:              hal.NewPartitionCopier(),
		Downloader:          fetcher,
		Postinstall:         hal.NewHookRunner(c.Updater.PostinstallHook),
		BootFlag:            hal.NewSlotMarker(c.Updater.StateDir),
	})

	var tel *telemetry
	if c.Mqtt.Broker != "" {
		tel, err = c.newTelemetry()
		if err != nil {
			return nil, err
		}
	}

	a := &Agent{
		attempter:     attempter,
		telemetry:     tel,
		httpOpts:      c.HTTP,
		appID:         c.Updater.AppID,
		serverURL:     c.Updater.ServerURL,
		checkInterval: c.Updater.CheckInterval,
	}

	attempter.Tracker().SetOnChange(func(snap updater.Snapshot) {
		metrics.StatusValue.Set(float64(snap.Status))
		if tel != nil {
			tel.onSnapshot(snap)
		}
	})
	metrics.StatusValue.Set(float64(attempter.Tracker().Status()))

	return a, nil
}

func (c *Config) newTelemetry() (*telemetry, error) {
	topics := topic.NewBuilder(c.Mqtt.TopicRoot)

	cc := c.Mqtt.ToClientConfig()
	if cc.ClientID == "" {
		cc.ClientID = "updrive-" + c.DeviceID
	}
	// The broker flips the presence flag if the agent drops off uncleanly.
	cc.WillTopic = topics.Online(c.DeviceID)
	cc.WillPayload = []byte("0")
	cc.WillQoS = 1
	cc.WillRetain = true

	client, err := mqtt.NewClient(cc)
	if err != nil {
		return nil, fmt.Errorf("create mqtt client: %w", err)
	}
	return newTelemetry(client, topics, c.DeviceID), nil
}

// parsePartitions turns "source:target" pairs into the apply-ordered
// partition list.
func parsePartitions(pairs []string) ([]updater.Partition, error) {
	if len(pairs) == 0 {
		return nil, fmt.Errorf("at least one partition pair is required")
	}

	parts := make([]updater.Partition, 0, len(pairs))
	for _, pair := range pairs {
		source, target, ok := strings.Cut(pair, ":")
		if !ok || source == "" || target == "" {
			return nil, fmt.Errorf("invalid partition pair %q, want source:target", pair)
		}
		parts = append(parts, updater.Partition{Source: source, Target: target})
	}
	return parts, nil
}
