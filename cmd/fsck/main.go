// Command fsck walks a flash image's recovered namespace and reports
// inconsistencies: directory entries that fail to resolve, segment usage
// table entries whose live-byte count exceeds a segment's capacity, and the
// fraction of clean segments left for the cleaner to work with. Not named in the
// distilled CLI surface, but every mklfs/lfsmount sibling in the gcsfuse
// tool family (gcsfuse, gcsfuse_mount_helper) ships its own standalone
// diagnostic binary in cmd/, so fsck follows that same one-binary-per-
// concern layout rather than living as a lfsmount subcommand.
package main

import (
	"fmt"
	"os"

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
)

var rootCmd = &cobra.Command{
	Use:   "fsck file",
	Short: "Check a flash image's recovered namespace for consistency",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if bindErr != nil {
			return bindErr
		}
		if err := viper.Unmarshal(&config, viper.DecodeHook(cfg.DecodeHook())); err != nil {
			return fmt.Errorf("parsing flags: %w", err)
		}
		logger.Init(logger.Severity(config.Logging.Severity), "text")
		clean, err := check(args[0], &config)
		if err != nil {
			return err
		}
		if !clean {
			os.Exit(1)
		}
		return nil
	},
}

type checker struct {
	ns       *namespace.Manager
	dirs     int
	files    int
	problems []string
}

func (c *checker) walk(path string) {
	entries, err := c.ns.Readdir(path)
	if err != nil {
		c.problems = append(c.problems, fmt.Sprintf("readdir %s: %v", path, err))
		return
	}

	for _, e := range entries {
		if e.Name == "." || e.Name == ".." {
			continue
		}
		childPath := path
		if childPath != "/" {
			childPath += "/"
		}
		childPath += e.Name

		inum, err := c.ns.Lookup(childPath)
		if err != nil {
			c.problems = append(c.problems, fmt.Sprintf("lookup %s: %v", childPath, err))
			continue
		}
		if inum != e.Inum {
			c.problems = append(c.problems, fmt.Sprintf("%s: directory entry inum %d disagrees with lookup inum %d", childPath, e.Inum, inum))
		}

		attrs, err := c.ns.GetAttr(childPath)
		if err != nil {
			c.problems = append(c.problems, fmt.Sprintf("getattr %s: %v", childPath, err))
			continue
		}

		if attrs.Mode.IsDir() {
			c.dirs++
			c.walk(childPath)
		} else {
			c.files++
		}
	}
}

// check returns whether the volume is consistent; a false result with a nil
// error means problems were found and logged, not that checking itself
// failed.
func check(path string, config *cfg.Config) (bool, error) {
	sectorsPerEraseBlock := uint64(config.Flash.BlockSizeSectors) * uint64(config.Flash.SegmentSizeBlocks)

	dev, _, err := flash.Open(path, sectorsPerEraseBlock, 0)
	if err != nil {
		return false, fmt.Errorf("opening flash image %s: %w", path, err)
	}
	defer dev.Close()

	log, err := logstore.OpenLog(dev, logstore.Options{
		CacheCapacity: config.Cache.Capacity,
		InodeBytesLen: inode.InodeSize,
		Clock:         clock.RealClock{},
	})
	if err != nil {
		return false, fmt.Errorf("recovering log: %w", err)
	}

	fm, err := inode.NewManager(log, clock.RealClock{}, inode.ManagerOptions{})
	if err != nil {
		return false, fmt.Errorf("mounting file layer: %w", err)
	}
	ns := namespace.NewManager(fm, namespace.RootInum)

	c := &checker{ns: ns}
	c.dirs = 1 // root
	c.walk("/")

	table := log.UsageTable()
	segmentDataBytes := uint64(log.Geometry().SegmentDataBytes())
	overflowing := 0
	for n, e := range table {
		if e.LiveBytes > segmentDataBytes {
			overflowing++
			c.problems = append(c.problems, fmt.Sprintf("segment %d: %d live bytes exceeds segment capacity %d", n, e.LiveBytes, segmentDataBytes))
		}
	}
	logger.Infof("%d directories, %d files, %d/%d clean segments", c.dirs, c.files, log.CleanSegmentCount(), len(table))

	for _, p := range c.problems {
		logger.Errorf("%s", p)
	}

	return len(c.problems) == 0 && overflowing == 0, nil
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
