// Package topic builds the MQTT topic strings used for update telemetry.
// The segment constants are the wire contract between devices and the fleet
// backend; changing them breaks deployed agents.
package topic

import (
	"fmt"
)

const (
	// SuffixStatus carries retained status snapshots (device -> fleet).
	// Structure: {root}/status/{deviceID}
	SuffixStatus = "status"

	// SuffixErrorEvent carries classified failure reports (device -> fleet).
	// Structure: {root}/error/{deviceID}
	SuffixErrorEvent = "error"

	// SuffixOnline carries the online/offline flag, retained, also used as
	// the client's last will. Structure: {root}/online/{deviceID}
	SuffixOnline = "online"
)

// Builder constructs topic strings under a fixed root namespace
// (e.g. "updrive/v1").
type Builder struct {
	root string
}

// NewBuilder creates a Builder with the specified root namespace.
func NewBuilder(root string) *Builder {
	return &Builder{root: root}
}

// Status returns the retained status topic for a device.
func (b *Builder) Status(deviceID string) string {
	return b.build(SuffixStatus, deviceID)
}

// ErrorEvent returns the failure report topic for a device.
func (b *Builder) ErrorEvent(deviceID string) string {
	return b.build(SuffixErrorEvent, deviceID)
}

// Online returns the presence topic for a device.
func (b *Builder) Online(deviceID string) string {
	return b.build(SuffixOnline, deviceID)
}

func (b *Builder) build(suffix, id string) string {
	return fmt.Sprintf("%s/%s/%s", b.root, suffix, id)
}
