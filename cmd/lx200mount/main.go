// Command lx200mount bridges a motorized alt-az mount to the LX200
// serial protocol over TCP.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/altazimuth/lx200bridge/camera"
	"github.com/altazimuth/lx200bridge/config"
	"github.com/altazimuth/lx200bridge/lx200"
	"github.com/altazimuth/lx200bridge/motor"
	"github.com/altazimuth/lx200bridge/mount"
	"golang.org/x/sync/errgroup"
)

var (
	configPath = flag.String("config", "lx200mount.yaml", "configuration file path")
	listenAddr = flag.String("listen", lx200.DefaultAddr, "address for the LX200 TCP listener")
	httpAddr   = flag.String("http", "", "address for the status HTTP server (disabled when empty)")
)

func axisConfig(name string, mc *config.MotorConfig) *mount.AxisConfig {
	if mc == nil {
		return nil
	}
	axis, err := motor.New(mc.Driver, motor.Params{Device: mc.Device, HubPort: mc.HubPort})
	if err != nil {
		log.Fatalf("%s axis: %v", name, err)
	}
	return &mount.AxisConfig{
		Axis:          axis,
		GearReduction: mc.GearReduction,
		MaxVelocity:   mc.MaxVelocity,
	}
}

func main() {
	flag.Parse()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal(err)
	}

	srv := NewServer()
	mcfg := mount.Config{
		Alt:            axisConfig("alt", cfg.Alt),
		Az:             axisConfig("az", cfg.Az),
		SiteName:       cfg.Site.Name,
		SiteLatitude:   cfg.Site.Latitude,
		SiteLongitude:  cfg.Site.Longitude,
		StatusCallback: srv.statusCallback,
	}
	if cfg.Camera != nil {
		cam, solver, err := camera.New(cfg.Camera.Driver, camera.Params{Device: cfg.Camera.Device})
		if err != nil {
			log.Fatalf("camera: %v", err)
		}
		mcfg.Solver = &mount.SolverConfig{
			Camera:        cam,
			Solver:        solver,
			FocalLengthMM: cfg.Camera.FocalLength,
			SaveImages:    cfg.Camera.SaveImages,
		}
	}
	ctrl := mount.NewController(mcfg)
	srv.ctrl = ctrl

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return ctrl.Run(ctx) })
	if err := lx200.NewServer(ctrl).Listen(ctx, *listenAddr); err != nil {
		log.Fatal(err)
	}
	if *httpAddr != "" {
		g.Go(func() error { return srv.ListenHTTP(ctx, *httpAddr) })
	}
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal(err)
	}
}
