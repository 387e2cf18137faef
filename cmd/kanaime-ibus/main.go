//go:build linux

// kanaime-ibus is the Linux IBus input method engine.
//
// It registers an IBus factory on the session bus and creates one
// composition session per IBus input context. Candidates come from the
// conversion engine server named in the configuration.
//
// Installation:
//  1. Copy the binary to /usr/libexec/kanaime-ibus
//  2. Run kanaime-ibus -install
//  3. Restart IBus: ibus restart
//  4. Enable via: ibus-setup or GNOME Settings > Keyboard > Input Sources
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/godbus/dbus/v5"

	"kanaime/internal/app"
	"kanaime/internal/config"
	"kanaime/internal/ime"
	"kanaime/internal/logging"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	installFlag := flag.Bool("install", false, "install the IBus component file")
	uninstallFlag := flag.Bool("uninstall", false, "remove the IBus component file")
	flag.Bool("ibus", false, "started by IBus")
	flag.Parse()

	loader := config.NewLoader(*configPath)
	cfg, err := loader.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if *installFlag {
		exec := cfg.IBus.ExecPath
		if self, err := os.Executable(); err == nil && exec == config.DefaultConfig().IBus.ExecPath {
			exec = self + " -ibus"
		}
		if err := installComponent(cfg.IBus.ComponentPath, ime.KanaimeBusName, ime.KanaimeEngineName, exec); err != nil {
			log.Fatalf("Failed to install: %v", err)
		}
		fmt.Printf("Installed %s. Run 'ibus restart' to load.\n", cfg.IBus.ComponentPath)
		return
	}
	if *uninstallFlag {
		if err := uninstallComponent(cfg.IBus.ComponentPath); err != nil {
			log.Fatalf("Failed to uninstall: %v", err)
		}
		fmt.Println("Uninstalled successfully.")
		return
	}

	if err := run(loader, cfg); err != nil {
		log.Fatal(err)
	}
}

func run(loader *config.Loader, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	rt, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	logging.SetDefault(rt.Logger)
	logger := rt.Logger.WithComponent("main")

	conn, err := dbus.SessionBus()
	if err != nil {
		rt.Close(context.Background())
		return fmt.Errorf("connect to session bus: %w", err)
	}
	defer conn.Close()

	factory := ime.NewIBusFactory(conn, func(host ime.HostEditingSession) *ime.Session {
		return rt.NewSession(host)
	}, rt.Logger)
	if err := ime.ServeIBus(conn, factory); err != nil {
		rt.Close(context.Background())
		return err
	}

	loader.OnChange(func(c *config.Config) {
		logger.Info("configuration reloaded", "path", loader.Path())
		rt.Apply(ctx, c, factory.Manager())
	})
	if err := loader.Watch(); err != nil {
		logger.Warn("config hot reload disabled", "err", err)
	}
	defer loader.Close()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case err := <-loader.Errors():
				logger.Warn("config reload rejected", "err", err)
			}
		}
	}()

	logger.Info("kanaime IBus engine started",
		"version", version,
		"bus_name", ime.KanaimeBusName,
		"engine_socket", cfg.Engine.SocketPath)

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	manager := factory.Manager()
	rt.Metrics.ActiveSessions.Set(int64(manager.Len()))
	logger.Info("session metrics", "metrics", rt.Metrics.Snapshot())

	var ids []string
	manager.Each(func(id string, _ *ime.Session) { ids = append(ids, id) })
	for _, id := range ids {
		manager.Close(shutdownCtx, id)
	}
	return rt.Close(shutdownCtx)
}
