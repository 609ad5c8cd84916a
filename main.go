package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"codeberg.org/miketth/kbgroupd/pkg/config"
	"codeberg.org/miketth/kbgroupd/pkg/evdev"
	"codeberg.org/miketth/kbgroupd/pkg/ipc"
	"codeberg.org/miketth/kbgroupd/pkg/kbgroupd"
	"codeberg.org/miketth/kbgroupd/pkg/keyboard"
	jsonstore "codeberg.org/miketth/kbgroupd/pkg/layoutstore/json"
	"codeberg.org/miketth/kbgroupd/pkg/layoutstore/sqlite"
	"codeberg.org/miketth/kbgroupd/pkg/xkb"
	"codeberg.org/miketth/kbgroupd/pkg/xkblayouts"
	"github.com/adrg/xdg"
	"github.com/coreos/go-systemd/v22/daemon"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	err := run()
	if err != nil {
		log.Fatalf("error: %+v", err)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to config.yaml (default: XDG config dir)")
	storeKind := flag.String("store", "sqlite", "active layout store backend (sqlite, json, none)")
	rulesPath := flag.String("evdev-xml-path", xkblayouts.DefaultRulesPath, "path to the XKB registry evdev.xml")
	rescan := flag.Duration("rescan-interval", 5*time.Second, "how often to scan for keyboards")
	send := flag.String("send", "", "send one command to a running daemon and exit")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	log, err := newLogger(*debug)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}

	if *send != "" {
		return sendCommand(*send)
	}

	ctx := context.Background()
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry, err := xkblayouts.ParseLayouts(*rulesPath)
	if err != nil {
		log.Warnf("XKB registry unavailable, layout names will not be pre-validated: %v", err)
		registry = nil
	}

	path := *configPath
	if path == "" {
		path, err = config.DefaultPath()
		if err != nil {
			return fmt.Errorf("resolve config path: %w", err)
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	compiler, err := xkb.NewCompiler(registry)
	if err != nil {
		return fmt.Errorf("create compiler: %w", err)
	}

	km, err := compiler.Compile(cfg)
	if err != nil {
		return fmt.Errorf("compile keymap: %w", err)
	}

	group, err := keyboard.NewGroup(km, log)
	if err != nil {
		return fmt.Errorf("create keyboard group: %w", err)
	}

	store, closeStore, err := openStore(*storeKind, log)
	if err != nil {
		return fmt.Errorf("open layout store: %w", err)
	}
	if closeStore != nil {
		defer closeStore()
	}

	ctrl := kbgroupd.NewController(cfg, compiler, group, store, log)

	server := ipc.NewServer(ctrl, registry, log)
	source := evdev.NewSource(ctrl, *rescan, log)

	if err := ctrl.RestoreLayout(); err != nil {
		log.Warnf("restore last layout: %v", err)
	}

	sockPath, err := ipc.DefaultSocketPath()
	if err != nil {
		return fmt.Errorf("resolve socket path: %w", err)
	}
	evPath, err := ipc.DefaultEventSocketPath()
	if err != nil {
		return fmt.Errorf("resolve event socket path: %w", err)
	}

	log.Info("started kbgroupd")

	errChan := make(chan error, 4)
	var wg sync.WaitGroup
	wg.Add(4)

	go func() {
		defer wg.Done()
		err := server.Serve(ctx, sockPath, evPath)
		if err != nil {
			errChan <- fmt.Errorf("ipc server: %w", err)
		}
	}()

	go func() {
		defer wg.Done()
		err := source.Run(ctx)
		if err != nil {
			errChan <- fmt.Errorf("input scan: %w", err)
		}
	}()

	go func() {
		defer wg.Done()
		err := config.Watch(ctx, path, ctrl.Reconfigure, log)
		if err != nil {
			errChan <- fmt.Errorf("config watch: %w", err)
		}
	}()

	go func() {
		defer wg.Done()
		err := systemdNotifyLoop(ctx)
		if err != nil {
			errChan <- fmt.Errorf("systemd notify: %w", err)
		}
	}()

	err = <-errChan
	switch {
	case errors.Is(err, context.Canceled):
		log.Info("shutting down")
		wg.Wait()
		return nil
	case err != nil:
		return err
	}

	return nil
}

func sendCommand(cmd string) error {
	path, err := ipc.DefaultSocketPath()
	if err != nil {
		return fmt.Errorf("resolve socket path: %w", err)
	}

	client, err := ipc.Dial(path)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer client.Close()

	resp, err := client.Command(cmd)
	if err != nil {
		return err
	}
	if resp != "" {
		fmt.Println(resp)
	}

	return nil
}

func openStore(kind string, log *zap.SugaredLogger) (kbgroupd.ActiveLayoutStore, func() error, error) {
	switch kind {
	case "none":
		return nil, nil, nil

	case "json":
		path, err := xdg.DataFile("kbgroupd/active-layout.json")
		if err != nil {
			return nil, nil, fmt.Errorf("resolve data path: %w", err)
		}
		store, err := jsonstore.NewLayoutStore(path)
		if err != nil {
			return nil, nil, fmt.Errorf("create json store: %w", err)
		}
		return store, store.Close, nil

	case "sqlite":
		path, err := xdg.DataFile("kbgroupd/layouts.db")
		if err != nil {
			return nil, nil, fmt.Errorf("resolve data path: %w", err)
		}
		store, err := sqlite.NewLayoutStore(path, log)
		if err != nil {
			return nil, nil, fmt.Errorf("create sqlite store: %w", err)
		}
		return store, store.Close, nil
	}

	return nil, nil, fmt.Errorf("unknown store backend %q", kind)
}

func systemdNotifyLoop(ctx context.Context) error {
	// tell systemd that we're ready
	supported, err := daemon.SdNotify(false, daemon.SdNotifyReady)
	if err != nil {
		return fmt.Errorf("notify systemd: %w", err)
	}
	if !supported {
		return nil
	}

	_, _ = daemon.SdNotify(false, "STATUS=Keeping keyboard layouts in lockstep ⌨️")

	// notify watchdog
	t, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		return fmt.Errorf("check watchdog: %w", err)
	}
	// if watchdog is not enabled, we don't need to notify it
	if t == 0 {
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-time.After(t / 2):
			_, err := daemon.SdNotify(false, daemon.SdNotifyWatchdog)
			if err != nil {
				return fmt.Errorf("notify watchdog: %w", err)
			}
		}
	}
}

func newLogger(debug bool) (*zap.SugaredLogger, error) {
	loggerConfig := zap.NewDevelopmentConfig()

	loggerConfig.OutputPaths = []string{"stdout"}
	loggerConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if debug {
		loggerConfig.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	} else {
		loggerConfig.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}

	logger, err := loggerConfig.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	return logger.Sugar(), nil
}
