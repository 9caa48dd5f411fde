package options

import (
	"fmt"
	"net/url"
	"time"

	"github.com/spf13/pflag"
)

var _ IOptions = (*UpdaterOptions)(nil)

// UpdaterOptions configures the update orchestrator itself.
type UpdaterOptions struct {
	// AppID identifies this device's application track at the update server.
	AppID string `json:"app-id" mapstructure:"app-id"`

	// ServerURL is the update metadata server endpoint.
	ServerURL string `json:"server-url" mapstructure:"server-url"`

	// CompletedMarkerPath is the durable marker recording a finished update
	// awaiting reboot.
	CompletedMarkerPath string `json:"completed-marker-path" mapstructure:"completed-marker-path"`

	// StateDir holds the agent's working state: the boot-slot record and
	// fetched payloads.
	StateDir string `json:"state-dir" mapstructure:"state-dir"`

	// PostinstallHook is the executable run after installing a new image.
	// Empty skips the postinstall step.
	PostinstallHook string `json:"postinstall-hook" mapstructure:"postinstall-hook"`

	// Partitions lists the partitions updated per cycle as "source:target"
	// pairs, in apply order.
	Partitions []string `json:"partitions" mapstructure:"partitions"`

	// CheckInterval is the cadence of self-initiated update checks.
	// Zero disables the internal driver; an external scheduler then owns
	// the cadence.
	CheckInterval time.Duration `json:"check-interval" mapstructure:"check-interval"`
}

// NewUpdaterOptions creates an UpdaterOptions object with default values.
func NewUpdaterOptions() *UpdaterOptions {
	return &UpdaterOptions{
		CompletedMarkerPath: "/var/lib/updrive/update_completed",
		StateDir:            "/var/lib/updrive",
		Partitions:          []string{"/dev/sda2:/dev/sda4", "/dev/sda3:/dev/sda5"},
	}
}

func (o *UpdaterOptions) Validate() []error {
	if o == nil {
		return nil
	}

	errs := []error{}
	if o.ServerURL != "" {
		if _, err := url.Parse(o.ServerURL); err != nil {
			errs = append(errs, fmt.Errorf("invalid server url: %w", err))
		}
	}
	if o.CompletedMarkerPath == "" {
		errs = append(errs, fmt.Errorf("completed-marker-path must not be empty"))
	}
	if o.StateDir == "" {
		errs = append(errs, fmt.Errorf("state-dir must not be empty"))
	}
	return errs
}

func (o *UpdaterOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.AppID, "updater.app-id", o.AppID, "Application track identifier sent to the update server.")
	fs.StringVar(&o.ServerURL, "updater.server-url", o.ServerURL, "Update metadata server URL.")
	fs.StringVar(&o.CompletedMarkerPath, "updater.completed-marker-path", o.CompletedMarkerPath, "Path of the update-completed marker file.")
	fs.StringVar(&o.StateDir, "updater.state-dir", o.StateDir, "Directory for the agent's working state.")
	fs.StringVar(&o.PostinstallHook, "updater.postinstall-hook", o.PostinstallHook, "Executable run after installing a new image. Empty skips postinstall.")
	fs.StringSliceVar(&o.Partitions, "updater.partitions", o.Partitions, "Partitions updated per cycle, as source:target pairs in apply order.")
	fs.DurationVar(&o.CheckInterval, "updater.check-interval", o.CheckInterval, "Interval between self-initiated update checks. Zero disables the internal driver.")
}
