// Package config loads the mount configuration file.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultGearReduction is the axis angle per motor step for the stock
// drive train: a 200-step motor, 16 microsteps, 2000:1 gearing.
const DefaultGearReduction = 360.0 / 200 / 16 / 2000

// Default observing site, used when the config omits one.
const (
	DefaultSiteName      = "Las Rozas de Madrid"
	DefaultSiteLatitude  = 40.5013
	DefaultSiteLongitude = -3.8851
)

// MotorConfig describes one motor axis.
type MotorConfig struct {
	Driver  string `yaml:"driver"`
	Device  string `yaml:"device"`
	HubPort int    `yaml:"hub_port"`
	// GearReduction is the axis angle per motor step, in degrees.
	GearReduction float64 `yaml:"gear_reduction"`
	// MaxVelocity is the fastest slew velocity in steps/sec. Zero
	// selects one degree per second.
	MaxVelocity float64 `yaml:"max_velocity"`
}

// CameraConfig describes the plate-solving camera.
type CameraConfig struct {
	Driver      string  `yaml:"driver"`
	Device      string  `yaml:"device"`
	FocalLength float64 `yaml:"focal_length"`
	SaveImages  bool    `yaml:"save_images"`
}

// SiteConfig is the observing location.
type SiteConfig struct {
	Name      string  `yaml:"name"`
	Latitude  float64 `yaml:"latitude"`
	Longitude float64 `yaml:"longitude"`
}

// Config is the top-level configuration document. Absent motor
// sections select push-to mode; an absent camera section disables
// plate solving.
type Config struct {
	Alt    *MotorConfig  `yaml:"alt"`
	Az     *MotorConfig  `yaml:"az"`
	Camera *CameraConfig `yaml:"camera"`
	Site   SiteConfig    `yaml:"site"`
}

// Default returns the configuration used when no file exists: no
// motors, no camera, the built-in site.
func Default() *Config {
	return &Config{
		Site: SiteConfig{
			Name:      DefaultSiteName,
			Latitude:  DefaultSiteLatitude,
			Longitude: DefaultSiteLongitude,
		},
	}
}

// Load reads and validates the configuration at path. A missing file
// is not an error; it yields Default.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	cfg := Default()
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	for name, m := range map[string]*MotorConfig{"alt": c.Alt, "az": c.Az} {
		if m == nil {
			continue
		}
		if m.Driver == "" {
			return fmt.Errorf("%s.driver is required", name)
		}
		if m.GearReduction < 0 {
			return fmt.Errorf("%s.gear_reduction must be positive", name)
		}
		if m.GearReduction == 0 {
			m.GearReduction = DefaultGearReduction
		}
		if m.MaxVelocity == 0 {
			m.MaxVelocity = 1.0 / m.GearReduction
		}
	}
	if (c.Alt == nil) != (c.Az == nil) {
		return fmt.Errorf("alt and az must be configured together")
	}
	if c.Camera != nil {
		if c.Camera.Driver == "" {
			return fmt.Errorf("camera.driver is required")
		}
		if c.Camera.FocalLength <= 0 {
			return fmt.Errorf("camera.focal_length is required")
		}
	}
	if c.Site.Latitude < -90 || c.Site.Latitude > 90 {
		return fmt.Errorf("site.latitude %v out of range", c.Site.Latitude)
	}
	if c.Site.Longitude < -180 || c.Site.Longitude > 180 {
		return fmt.Errorf("site.longitude %v out of range", c.Site.Longitude)
	}
	return nil
}
