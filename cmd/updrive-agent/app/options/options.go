package options

import (
	"os"

	"github.com/spf13/pflag"

	"github.com/updrive-io/updrive/internal/agent"
	"github.com/updrive-io/updrive/pkg/app"
	"github.com/updrive-io/updrive/pkg/log"
	"github.com/updrive-io/updrive/pkg/options"
)

// AgentOptions is the aggregate configuration of the update agent.
type AgentOptions struct {
	// DeviceID identifies this device in telemetry topics. Defaults to the
	// hostname.
	DeviceID string `json:"device-id" mapstructure:"device-id"`

	Log     *log.Options            `json:"log" mapstructure:"log"`
	Updater *options.UpdaterOptions `json:"updater" mapstructure:"updater"`
	HTTP    *options.HTTPOptions    `json:"http" mapstructure:"http"`
	Mqtt    *options.MqttOptions    `json:"mqtt" mapstructure:"mqtt"`
	S3      *options.S3Options      `json:"s3" mapstructure:"s3"`
}

var _ app.CliOptions = (*AgentOptions)(nil)
var _ app.CompletableOptions = (*AgentOptions)(nil)
var _ app.WatchableOptions = (*AgentOptions)(nil)

func NewAgentOptions() *AgentOptions {
	return &AgentOptions{
		Log:     log.NewOptions(),
		Updater: options.NewUpdaterOptions(),
		HTTP:    options.NewHTTPOptions(),
		Mqtt:    options.NewMqttOptions(),
		S3:      options.NewS3Options(),
	}
}

func (o *AgentOptions) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.DeviceID, "device-id", o.DeviceID, "Device identifier used in telemetry topics. Defaults to the hostname.")

	o.Log.AddFlags(fs)
	o.Updater.AddFlags(fs)
	o.HTTP.AddFlags(fs)
	o.Mqtt.AddFlags(fs)
	o.S3.AddFlags(fs)
}

// Complete applies the resolved configuration: the logger comes up first so
// everything after it logs through the configured sink.
func (o *AgentOptions) Complete() error {
	log.Init(o.Log)

	if o.DeviceID == "" {
		hostname, err := os.Hostname()
		if err != nil {
			return err
		}
		o.DeviceID = hostname
	}
	return nil
}

func (o *AgentOptions) Validate() []error {
	errs := []error{}
	errs = append(errs, o.Log.Validate()...)
	errs = append(errs, o.Updater.Validate()...)
	errs = append(errs, o.HTTP.Validate()...)
	errs = append(errs, o.Mqtt.Validate()...)
	errs = append(errs, o.S3.Validate()...)
	return errs
}

// OnReload re-applies the logging configuration after a config file reload.
// Everything else is picked up by the next update cycle.
func (o *AgentOptions) OnReload() {
	log.Init(o.Log)
	log.Info("Logging configuration reloaded", "level", o.Log.Level)
}

func (o *AgentOptions) Config() (*agent.Config, error) {
	return &agent.Config{
		DeviceID: o.DeviceID,
		Updater:  o.Updater,
		HTTP:     o.HTTP,
		Mqtt:     o.Mqtt,
		S3:       o.S3,
	}, nil
}
