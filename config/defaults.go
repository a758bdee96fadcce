// Package config provides configuration defaults and utilities
// for the velocube application.
//
// This package defines all configurable constants with documented defaults.
// Users can override these values via config.yaml or command-line flags.
package config

// =============================================================================
// Grid Defaults
// =============================================================================

const (
	// DefaultCellSize is the grid cell size, in meters, of the output cube
	// and of every accepted input granule. Granules on a different cell
	// size are rejected as fatal errors rather than resampled.
	// Override via config: grid.cell_size
	DefaultCellSize = 240.0

	// DefaultDimSize is the side length, in meters, of the square cube
	// footprint built around a centroid definition.
	// Override via config: grid.dim_size
	DefaultDimSize = 100000.0
)

// =============================================================================
// Runner Defaults
// =============================================================================

const (
	// DefaultBatchSize is the number of accepted granules accumulated
	// before a batch is assembled and appended to the store. It bounds
	// peak memory: at most one batch of cropped records plus one
	// variable's concatenated column are resident at a time.
	// Override via config: runner.batch_size
	DefaultBatchSize = 500

	// DefaultWorkers is the number of concurrent normalization workers
	// in the parallel runner. Each worker opens its own granule file.
	// Override via config: runner.workers
	DefaultWorkers = 4
)

// =============================================================================
// Search Defaults
// =============================================================================

const (
	// DefaultSearchStart is the inclusive start of the acquisition date
	// range passed to the granule search API.
	// Override via config: search.start
	DefaultSearchStart = "1984-01-01"

	// DefaultSearchEnd is the exclusive end of the acquisition date range
	// passed to the granule search API.
	// Override via config: search.end
	DefaultSearchEnd = "2021-07-01"

	// DefaultPercentValid is the minimum percentage of valid velocity
	// pixels a granule must report to be returned by the search API.
	// Override via config: search.percent_valid
	DefaultPercentValid = 1
)

// =============================================================================
// Store Defaults
// =============================================================================

const (
	// DefaultOutputStore is the default output store directory.
	// Override via flag: -out
	DefaultOutputStore = "cubedata"

	// DefaultCompressionLevel is the zstd compression level used for
	// physical-quantity columns in store segments.
	// Override via config: store.compression_level
	DefaultCompressionLevel = 2
)
