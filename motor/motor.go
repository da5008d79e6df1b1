// Package motor provides Axis implementations for the supported motor
// drivers and a registry to construct them by name.
package motor

import (
	"fmt"

	"github.com/altazimuth/lx200bridge/mount"
)

// Params carries driver settings from the configuration file.
type Params struct {
	// Device is the serial device or modbus port for hardware drivers.
	Device string
	// HubPort selects the axis on a shared controller hub.
	HubPort int
}

// Factory constructs an Axis from driver parameters.
type Factory func(p Params) (mount.Axis, error)

var drivers = map[string]Factory{}

// Register makes a driver available to New. It panics if the name is
// already taken.
func Register(name string, f Factory) {
	if _, ok := drivers[name]; ok {
		panic(fmt.Sprintf("motor driver %q registered twice", name))
	}
	drivers[name] = f
}

// New constructs the named driver.
func New(name string, p Params) (mount.Axis, error) {
	f, ok := drivers[name]
	if !ok {
		return nil, fmt.Errorf("unknown motor driver %q", name)
	}
	return f(p)
}
