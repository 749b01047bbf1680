// Command mklfs formats a flash image file with a fresh log-structured file
// system: a superblock, then the iFile and the root directory appended to
// the first data segment, then a checkpoint, per §6. Grounded on cmd/root.go's cobra wiring, generalized from
// gcsfuse's "bucket mount_point" argument pair to mklfs's single "file"
// positional argument.
package main

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/segmentlfs/lfs/cfg"
	"github.com/segmentlfs/lfs/clock"
	"github.com/segmentlfs/lfs/internal/flash"
	"github.com/segmentlfs/lfs/internal/inode"
	"github.com/segmentlfs/lfs/internal/logger"
	"github.com/segmentlfs/lfs/internal/logstore"
	"github.com/segmentlfs/lfs/internal/namespace"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	config  cfg.Config
	bindErr error
	dryRun  bool
)

var rootCmd = &cobra.Command{
	Use:   "mklfs [flags] file",
	Short: "Format a flash image with a new log-structured file system",
	Args:  cobra.ExactArgs(1),
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
		return format(args[0], &config)
	},
}

func format(path string, config *cfg.Config) error {
	sectorsPerEraseBlock := uint64(config.Flash.BlockSizeSectors) * uint64(config.Flash.SegmentSizeBlocks)
	eraseBlockCount := uint64(config.Flash.FlashSizeSegments)
	wearLimit := uint64(config.Flash.WearLimit)

	logger.Infof("formatting %s: %d segments of %d blocks, %d sectors/block, wear limit %d",
		path, config.Flash.FlashSizeSegments, config.Flash.SegmentSizeBlocks, config.Flash.BlockSizeSectors, wearLimit)

	if dryRun {
		logger.Infof("dry run: not writing %s", path)
		return nil
	}

	if err := flash.Create(path, wearLimit, eraseBlockCount, sectorsPerEraseBlock); err != nil {
		return fmt.Errorf("creating flash image: %w", err)
	}

	dev, _, err := flash.Open(path, sectorsPerEraseBlock, 0)
	if err != nil {
		return fmt.Errorf("opening freshly created flash image: %w", err)
	}
	defer dev.Close()

	geo := logstore.Geometry{
		BlockSizeSectors:  uint32(config.Flash.BlockSizeSectors),
		SegmentSizeBlocks: uint32(config.Flash.SegmentSizeBlocks),
		FlashSizeSegments: uint32(config.Flash.FlashSizeSegments),
		WearLimit:         uint32(config.Flash.WearLimit),
	}

	var volumeUUID [16]byte
	copy(volumeUUID[:], uuid.New()[:])

	log, err := logstore.FormatLog(dev, geo, volumeUUID, logstore.Options{
		CacheCapacity:      config.Cache.Capacity,
		InodeBytesLen:      inode.InodeSize,
		CheckpointInterval: config.Cleaner.CheckpointInterval,
		Clock:              clock.RealClock{},
	})
	if err != nil {
		return fmt.Errorf("formatting log: %w", err)
	}

	rootMode := os.FileMode(config.FileSystem.DirMode) | os.ModeDir
	if _, err := namespace.Bootstrap(log, clock.RealClock{}, rootMode, inode.ManagerOptions{
		CleaningStartThreshold: config.Cleaner.StartThreshold,
		CleaningEndThreshold:   config.Cleaner.EndThreshold,
	}); err != nil {
		return fmt.Errorf("bootstrapping root directory: %w", err)
	}

	if err := log.Sync(); err != nil {
		return fmt.Errorf("syncing initial checkpoint: %w", err)
	}

	logger.Infof("wrote volume %s to %s", uuid.UUID(volumeUUID), path)
	return nil
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	bindErr = cfg.BindFlags(rootCmd.Flags())
	rootCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Validate geometry and print what would be written without touching the file.")
}

func main() {
	Execute()
}
