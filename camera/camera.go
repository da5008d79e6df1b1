// Package camera provides Camera and Solver implementations for the
// plate-solving position source.
package camera

import (
	"fmt"

	"github.com/altazimuth/lx200bridge/mount"
)

// Params carries driver settings from the configuration file.
type Params struct {
	Device string
}

// Factory constructs a camera and its matching plate solver.
type Factory func(p Params) (mount.Camera, mount.Solver, error)

var drivers = map[string]Factory{}

func Register(name string, f Factory) {
	if _, ok := drivers[name]; ok {
		panic(fmt.Sprintf("camera driver %q registered twice", name))
	}
	drivers[name] = f
}

// New constructs the named driver.
func New(name string, p Params) (mount.Camera, mount.Solver, error) {
	f, ok := drivers[name]
	if !ok {
		return nil, nil, fmt.Errorf("unknown camera driver %q", name)
	}
	return f(p)
}
