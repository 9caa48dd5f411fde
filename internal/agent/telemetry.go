package agent

import (
	"context"
	"encoding/json"
	"time"

	"github.com/updrive-io/updrive/internal/updater"
	"github.com/updrive-io/updrive/pkg/log"
	"github.com/updrive-io/updrive/pkg/mqtt"
	"github.com/updrive-io/updrive/pkg/mqtt/topic"
)

const publishTimeout = 5 * time.Second

// telemetry publishes the agent's presence, retained status snapshots, and
// failure reports to the fleet broker. Everything here is best-effort; a
// broker outage never touches the update pipeline.
type telemetry struct {
	client   mqtt.Client
	topics   *topic.Builder
	deviceID string
}

func newTelemetry(client mqtt.Client, topics *topic.Builder, deviceID string) *telemetry {
	return &telemetry{client: client, topics: topics, deviceID: deviceID}
}

// run connects to the broker, announces presence, and holds the session
// until the context ends.
func (t *telemetry) run(ctx context.Context) error {
	if err := t.client.Start(ctx); err != nil {
		return err
	}

	awaitCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	err := t.client.AwaitConnection(awaitCtx)
	cancel()
	if err != nil {
		// The session keeps retrying in the background.
		log.Warn("Broker not reachable yet, continuing", "err", err)
	} else {
		t.publish(ctx, t.topics.Online(t.deviceID), true, []byte("1"))
	}

	<-ctx.Done()

	// Clean shutdown announces offline explicitly; the will message only
	// covers unclean drops.
	byeCtx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	t.publish(byeCtx, t.topics.Online(t.deviceID), true, []byte("0"))
	t.client.Disconnect(byeCtx)
	return nil
}

// onSnapshot mirrors every tracker change to the broker. The retained
// status topic always carries the latest snapshot; failure reports
// additionally go to the error topic, unretained.
func (t *telemetry) onSnapshot(snap updater.Snapshot) {
	payload, err := json.Marshal(snap)
	if err != nil {
		log.Error(err, "Failed to encode telemetry snapshot")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	if snap.Status == updater.StatusReportingErrorEvent {
		t.publish(ctx, t.topics.ErrorEvent(t.deviceID), false, payload)
	}
	t.publish(ctx, t.topics.Status(t.deviceID), true, payload)
}

func (t *telemetry) publish(ctx context.Context, topicName string, retain bool, payload []byte) {
	if err := t.client.Publish(ctx, topicName, 1, retain, payload); err != nil {
		log.Debug("Telemetry publish failed", "topic", topicName, "err", err)
	}
}
