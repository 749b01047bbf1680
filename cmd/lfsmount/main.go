// Command lfsmount mounts a previously formatted flash image as a FUSE file
// system: `lfsmount [flags] file mount_point`, taking the cache/cleaner
// tuning flags §6 calls out (`--cache=N --interval=N --start=N --stop=N`).
// Grounded on cmd/mount.go's mountWithStorageHandle/getFuseMountConfig shape,
// generalized from gcsfuse's bucket-handle-plus-storageHandle setup to
// opening the flash image and recovering the log in-process.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"

	"github.com/jacobsa/fuse"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentlfs/lfs/cfg"
	"github.com/segmentlfs/lfs/clock"
	"github.com/segmentlfs/lfs/internal/flash"
	"github.com/segmentlfs/lfs/internal/inode"
	"github.com/segmentlfs/lfs/internal/kernelfs"
	"github.com/segmentlfs/lfs/internal/logger"
	"github.com/segmentlfs/lfs/internal/logstore"
	"github.com/segmentlfs/lfs/internal/metrics"
	"github.com/segmentlfs/lfs/internal/namespace"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	config  cfg.Config
	bindErr error
)

var rootCmd = &cobra.Command{
	Use:   "lfsmount [flags] file mount_point",
	Short: "Mount a flash image formatted by mklfs as a FUSE file system",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if bindErr != nil {
			return bindErr
		}
		if err := viper.Unmarshal(&config, viper.DecodeHook(cfg.DecodeHook())); err != nil {
			return fmt.Errorf("parsing flags: %w", err)
		}
		if err := cfg.ValidateConfig(&config); err != nil {
			return err
		}
		if err := cfg.Rationalize(&config); err != nil {
			return err
		}
		logger.Init(logger.Severity(config.Logging.Severity), "text")
		return mount(args[0], args[1], &config)
	},
}

func mount(imagePath, mountPoint string, config *cfg.Config) error {
	sectorsPerEraseBlock := uint64(config.Flash.BlockSizeSectors) * uint64(config.Flash.SegmentSizeBlocks)

	dev, _, err := flash.Open(imagePath, sectorsPerEraseBlock, 0)
	if err != nil {
		return fmt.Errorf("opening flash image %s: %w", imagePath, err)
	}
	defer dev.Close()

	log, err := logstore.OpenLog(dev, logstore.Options{
		CacheCapacity:      config.Cache.Capacity,
		InodeBytesLen:      inode.InodeSize,
		CheckpointInterval: config.Cleaner.CheckpointInterval,
		Clock:              clock.RealClock{},
	})
	if err != nil {
		return fmt.Errorf("recovering log: %w", err)
	}

	fm, err := inode.NewManager(log, clock.RealClock{}, inode.ManagerOptions{
		CleaningStartThreshold: config.Cleaner.StartThreshold,
		CleaningEndThreshold:   config.Cleaner.EndThreshold,
	})
	if err != nil {
		return fmt.Errorf("mounting file layer: %w", err)
	}

	ns := namespace.NewManager(fm, namespace.RootInum)
	server := kernelfs.NewServer(ns)

	if config.Metrics.Port != 0 {
		serveMetrics(config.Metrics.Port)
	}

	logger.Infof("mounting %s at %s", imagePath, mountPoint)
	mountCfg := getFuseMountConfig(config)
	mfs, err := fuse.Mount(mountPoint, server, mountCfg)
	if err != nil {
		return fmt.Errorf("mount: %w", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	go func() {
		<-sigCh
		logger.Infof("received SIGINT, attempting to unmount %s", mountPoint)
		if err := fuse.Unmount(mountPoint); err != nil {
			logger.Errorf("unmount %s: %v", mountPoint, err)
		}
	}()

	if err := mfs.Join(context.Background()); err != nil {
		return fmt.Errorf("serving %s: %w", mountPoint, err)
	}
	return log.Sync()
}

// serveMetrics exposes internal/metrics.Registry() over /metrics on the
// given port in the background, for the Prometheus scrape pattern
// SPEC_FULL.md calls for. A listen error is logged, not fatal: a broken
// metrics endpoint should never take the mount down with it.
func serveMetrics(port int) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{}))
	addr := fmt.Sprintf(":%d", port)
	go func() {
		logger.Infof("serving metrics on %s/metrics", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Errorf("metrics listener on %s: %v", addr, err)
		}
	}()
}

// getFuseMountConfig builds the jacobsa/fuse mount options, mapping our
// logging severity to the fuse package's error/debug loggers the same way
// gcsfuse's getFuseMountConfig does: errors log at ERROR and above, the
// verbose per-op debug log only at TRACE.
func getFuseMountConfig(config *cfg.Config) *fuse.MountConfig {
	mountCfg := &fuse.MountConfig{
		FSName:     "lfs",
		Subtype:    "lfs",
		VolumeName: "lfs",
	}

	severity := config.Logging.Severity
	if severity.Rank() <= cfg.ErrorLogSeverity.Rank() {
		mountCfg.ErrorLogger = logger.StdLogger(logger.Error, "fuse: ")
	}
	if severity.Rank() <= cfg.TraceLogSeverity.Rank() {
		mountCfg.DebugLogger = logger.StdLogger(logger.Trace, "fuse_debug: ")
	}
	return mountCfg
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	bindErr = cfg.BindFlags(rootCmd.Flags())
}

func main() {
	Execute()
}
