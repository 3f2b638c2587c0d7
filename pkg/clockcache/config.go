package clockcache

import (
	"fmt"
	"math/bits"
	"runtime"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// batchSize is the fixed number of slots per clock-hand batch (spec.md §2).
const batchSize = 64

// maxRefcountWidth bounds the striped refcount matrix's thread dimension
// (spec.md §3: "width is bounded (e.g. 64)").
const maxRefcountWidth = 64

// Config configures a [Cache] at construction time. It expands spec.md §6's
// "Configuration options" into the full set a Go constructor needs,
// including the collaborator interfaces the core consumes.
type Config struct {
	// PageSize is the fixed size of every cached page, in bytes. Required;
	// must be a power of two and at least 512.
	PageSize int

	// ExtentSize is the size of one allocation/writeback-coalescing unit,
	// in bytes. Required; must be a positive multiple of PageSize.
	ExtentSize int

	// Capacity is the total byte budget for the slot array. Required;
	// PageCapacity is derived by rounding capacity/PageSize down to a
	// multiple of refCellsPerLine^2 = 256 slots, the refcount transpose
	// tile, with a floor of one 64-slot batch.
	Capacity int64

	// CleanerGap is how many batches ahead of the evict hand the cleaner
	// hand runs (spec.md §3/§4.E). Default 1 if zero.
	CleanerGap int

	// RefcountWidth bounds the striped refcount matrix's thread dimension.
	// Default runtime.GOMAXPROCS(0), capped at maxRefcountWidth, if zero.
	RefcountWidth int

	// UseStats enables the counters in Stats; when false, Cache.Stats()
	// still works but increments are skipped on the hot path.
	UseStats bool

	// DiagnosticsPath, if set, is where Cache.fatal durably persists a
	// last-fatal-dump via github.com/natefinch/atomic before panicking.
	DiagnosticsPath string

	// Tracer and Meter are optional OpenTelemetry hooks (see telemetry.go).
	// Both nil by default; clockcache never registers a global provider.
	Tracer trace.Tracer
	Meter  metric.Meter

	// Device is the asynchronous block device collaborator. Required.
	Device IODevice

	// Allocator is the extent allocator collaborator. Required.
	Allocator Allocator

	// ThreadIDs supplies a stable small-integer id per caller. Defaults to
	// [newAffineThreadIDs], a best-effort goroutine-affine allocator.
	ThreadIDs ThreadIDs
}

// derivedConfig holds the values spec.md §6 calls "Derived".
type derivedConfig struct {
	logPageSize   uint
	pageCapacity  int
	batchCapacity int
	pagesPerExtent int64
	refcountWidth int
	cleanerGap    int
}

func validateAndDerive(cfg Config) (derivedConfig, error) {
	var d derivedConfig

	if cfg.PageSize < 512 || bits.OnesCount(uint(cfg.PageSize)) != 1 {
		return d, fmt.Errorf("%w: PageSize must be a power of two >= 512, got %d", ErrInvalidConfig, cfg.PageSize)
	}

	if cfg.ExtentSize <= 0 || cfg.ExtentSize%cfg.PageSize != 0 {
		return d, fmt.Errorf("%w: ExtentSize must be a positive multiple of PageSize", ErrInvalidConfig)
	}

	if cfg.Capacity < int64(cfg.PageSize) {
		return d, fmt.Errorf("%w: Capacity must hold at least one page", ErrInvalidConfig)
	}

	if cfg.Device == nil {
		return d, fmt.Errorf("%w: Device is required", ErrInvalidConfig)
	}

	if cfg.Allocator == nil {
		return d, fmt.Errorf("%w: Allocator is required", ErrInvalidConfig)
	}

	d.logPageSize = uint(bits.TrailingZeros(uint(cfg.PageSize)))

	tile := refCellsPerLine * refCellsPerLine // one refcount transpose tile, in slot units, see spec.md §6 and §4.A's transpose block
	rawCapacity := int(cfg.Capacity / int64(cfg.PageSize))
	d.pageCapacity = (rawCapacity / tile) * tile

	if d.pageCapacity < batchSize {
		// Guarantee at least one full batch so the clock hand always has
		// somewhere to stand; below this a cache isn't useful anyway.
		d.pageCapacity = batchSize
	}

	d.batchCapacity = d.pageCapacity / batchSize
	d.pagesPerExtent = int64(cfg.ExtentSize / cfg.PageSize)

	d.cleanerGap = cfg.CleanerGap
	if d.cleanerGap <= 0 {
		d.cleanerGap = 1
	}

	if d.cleanerGap >= d.batchCapacity {
		d.cleanerGap = d.batchCapacity - 1
	}

	d.refcountWidth = cfg.RefcountWidth
	if d.refcountWidth <= 0 {
		d.refcountWidth = runtime.GOMAXPROCS(0)
	}

	if d.refcountWidth > maxRefcountWidth {
		d.refcountWidth = maxRefcountWidth
	}

	if d.refcountWidth < 1 {
		d.refcountWidth = 1
	}

	return d, nil
}
