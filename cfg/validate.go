package cfg

import "fmt"

// §6's `create(path, wear_limit, block_count)`: fails if wear_limit exceeds
// 100,000 or total block count exceeds 1,000,000.
const (
	MaxWearLimit         = 100000
	MaxBlockCount        = 1000000
	BlockCountInvalidMsg = "block_count exceeds the maximum a flash image may hold"
	WearLimitInvalidMsg  = "wear_limit exceeds the maximum the flash simulator accounts for"
)

// ValidateConfig returns a non-nil error if the config describes a flash
// geometry or tuning that §6 forbids outright.
func ValidateConfig(config *Config) error {
	if config.Flash.WearLimit > MaxWearLimit {
		return fmt.Errorf("%s: %d", WearLimitInvalidMsg, config.Flash.WearLimit)
	}

	blockCount := config.Flash.SegmentSizeBlocks * config.Flash.FlashSizeSegments
	if blockCount > MaxBlockCount {
		return fmt.Errorf("%s: %d", BlockCountInvalidMsg, blockCount)
	}

	if config.Flash.BlockSizeSectors <= 0 {
		return fmt.Errorf("block-size-sectors must be positive, got %d", config.Flash.BlockSizeSectors)
	}
	if config.Flash.SegmentSizeBlocks <= 0 {
		return fmt.Errorf("segment-size-blocks must be positive, got %d", config.Flash.SegmentSizeBlocks)
	}
	if config.Flash.FlashSizeSegments <= 0 {
		return fmt.Errorf("flash-size-segments must be positive, got %d", config.Flash.FlashSizeSegments)
	}

	if config.Flash.SegmentSizeBlocks < 2 || !isPowerOfTwo(config.Flash.SegmentSizeBlocks) {
		return fmt.Errorf("segment-size-blocks must be a power of two >= 2, got %d", config.Flash.SegmentSizeBlocks)
	}

	if config.Cache.Capacity <= 0 {
		return fmt.Errorf("cache.capacity must be positive, got %d", config.Cache.Capacity)
	}

	if config.Cleaner.StartThreshold > config.Cleaner.EndThreshold {
		return fmt.Errorf("cleaner.start-threshold (%d) must not exceed cleaner.end-threshold (%d)",
			config.Cleaner.StartThreshold, config.Cleaner.EndThreshold)
	}

	if config.Cleaner.EndThreshold > config.Flash.FlashSizeSegments {
		return fmt.Errorf("cleaner.end-threshold (%d) must not exceed flash-size-segments (%d)",
			config.Cleaner.EndThreshold, config.Flash.FlashSizeSegments)
	}

	return nil
}

func isPowerOfTwo(n int) bool {
	return n&(n-1) == 0
}
