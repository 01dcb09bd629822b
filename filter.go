package redgloom

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Generation is one fixed-size bit array of a scaling filter.
type Generation struct {
	Index     int
	Namespace Namespace
	Params    Params

	driver Driver
}

// Driver returns the driver bound to the generation.
func (g *Generation) Driver() Driver {
	return g.driver
}

// Filter is a scaling bloom filter whose bit arrays live in Redis.
//
// A filter starts with a single generation sized from Config. Grow appends
// a larger generation; insertions always go to the newest generation and
// lookups succeed if any generation reports the value.
//
// Filter is safe for concurrent use. Consistency across processes is
// provided by the driver, not by the Filter.
type Filter struct {
	cfg    Config
	engine Engine
	log    logrus.FieldLogger

	mu   sync.RWMutex
	gens []*Generation
}

// New validates cfg and creates a filter with one generation. The store is
// not contacted; keys are created lazily on the first insertion.
func New(cfg Config) (*Filter, error) {
	cfg.setDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	engine, err := LookupEngine(cfg.HashEngine)
	if err != nil {
		return nil, err
	}

	f := &Filter{
		cfg:    cfg,
		engine: engine,
		log:    cfg.Logger.WithField("key", cfg.KeyName),
	}

	g, err := f.newGeneration(0)
	if err != nil {
		return nil, err
	}
	f.gens = []*Generation{g}
	cfg.Metrics.setGenerations(cfg.KeyName, 1)

	f.log.WithField("driver", cfg.Driver).
		WithField("bits", g.Params.Bits).
		WithField("hashes", g.Params.Hashes).
		Debug("created bloom filter")

	return f, nil
}

// newGeneration builds generation i, sized Size * GrowthFactor^i.
func (f *Filter) newGeneration(i int) (*Generation, error) {
	size := uint64(math.Ceil(float64(f.cfg.Size) * math.Pow(f.cfg.GrowthFactor, float64(i))))
	params, err := OptimalParams(size, f.cfg.ErrorRate)
	if err != nil {
		return nil, err
	}
	if params.Bits > maxBits {
		return nil, fmt.Errorf("%w: generation %d needs %d bits, more than a redis string holds", ErrInvalidSize, i, params.Bits)
	}

	ns := Namespace(f.cfg.KeyName).Generation(i)
	entry, err := lookupDriver(f.cfg.Driver)
	if err != nil {
		return nil, err
	}
	d, err := entry.factory(ns, f.cfg.Client)
	if err != nil {
		return nil, err
	}

	return &Generation{
		Index:     i,
		Namespace: ns,
		Params:    params,
		driver:    d,
	}, nil
}

// Insert adds data to the newest generation and reports whether it was
// already present, i.e. whether no new bit was set. The element count is
// incremented only for values that were not present.
//
// An explicit expire overrides Config.DefaultExpire.
func (f *Filter) Insert(ctx context.Context, data []byte, expire ...time.Duration) (bool, error) {
	g := f.newest()
	h1, h2 := f.engine.Sum128(data)
	positions := positionsFromHash(h1, h2, g.Params.Hashes, g.Params.Bits)

	start := time.Now()
	present, err := g.driver.TestAndSetAll(ctx, positions, f.expire(expire))
	f.cfg.Metrics.observe("insert", g.driver.Name(), start, err)
	if err != nil {
		f.logStoreError("insert", g, err)
		return false, err
	}
	return present, nil
}

// InsertString is Insert for string values.
func (f *Filter) InsertString(ctx context.Context, s string, expire ...time.Duration) (bool, error) {
	return f.Insert(ctx, []byte(s), expire...)
}

// Add sets the bits for data in the newest generation unconditionally. It
// does not report presence and does not maintain the element count, so it
// is safe to use for values that may already exist in an older generation.
func (f *Filter) Add(ctx context.Context, data []byte, expire ...time.Duration) error {
	g := f.newest()
	h1, h2 := f.engine.Sum128(data)
	positions := positionsFromHash(h1, h2, g.Params.Hashes, g.Params.Bits)

	start := time.Now()
	err := g.driver.SetAll(ctx, positions, f.expire(expire))
	f.cfg.Metrics.observe("add", g.driver.Name(), start, err)
	if err != nil {
		f.logStoreError("add", g, err)
	}
	return err
}

// AddString is Add for string values.
func (f *Filter) AddString(ctx context.Context, s string, expire ...time.Duration) error {
	return f.Add(ctx, []byte(s), expire...)
}

// Include reports whether data might be in the filter. False means the
// value was definitely never inserted (or has been cleared or expired).
// Generations are checked newest first and the search stops at the first hit.
func (f *Filter) Include(ctx context.Context, data []byte) (bool, error) {
	gens := f.snapshot()
	h1, h2 := f.engine.Sum128(data)

	for i := len(gens) - 1; i >= 0; i-- {
		g := gens[i]
		positions := positionsFromHash(h1, h2, g.Params.Hashes, g.Params.Bits)

		start := time.Now()
		found, err := g.driver.TestAll(ctx, positions)
		f.cfg.Metrics.observe("include", g.driver.Name(), start, err)
		if err != nil {
			f.logStoreError("include", g, err)
			return false, err
		}
		if found {
			return true, nil
		}
	}
	return false, nil
}

// IncludeString is Include for string values.
func (f *Filter) IncludeString(ctx context.Context, s string) (bool, error) {
	return f.Include(ctx, []byte(s))
}

// Clear removes the bits and counts of every generation and resets the
// filter to a single empty generation. If the store fails part way, the
// error is returned and the generations are kept so Clear can be retried.
func (f *Filter) Clear(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, g := range f.gens {
		start := time.Now()
		err := g.driver.Clear(ctx)
		f.cfg.Metrics.observe("clear", g.driver.Name(), start, err)
		if err != nil {
			f.logStoreError("clear", g, err)
			return err
		}
	}

	g, err := f.newGeneration(0)
	if err != nil {
		return err
	}
	f.gens = []*Generation{g}
	f.cfg.Metrics.setGenerations(f.cfg.KeyName, 1)
	f.log.Debug("cleared bloom filter")
	return nil
}

// Count returns the number of distinct insertions recorded by Insert,
// summed over all generations. Values added with Add are not counted.
func (f *Filter) Count(ctx context.Context) (uint64, error) {
	var total uint64
	for _, g := range f.snapshot() {
		n, err := g.driver.Count(ctx)
		if err != nil {
			f.logStoreError("count", g, err)
			return 0, err
		}
		total += n
	}
	return total, nil
}

// EstimatedFalsePositiveRate estimates the current false positive rate of
// the newest generation from its element count.
func (f *Filter) EstimatedFalsePositiveRate(ctx context.Context) (float64, error) {
	g := f.newest()
	n, err := g.driver.Count(ctx)
	if err != nil {
		f.logStoreError("count", g, err)
		return 0, err
	}
	return EstimateFalsePositiveRate(g.Params.Bits, g.Params.Hashes, n), nil
}

// Saturated reports whether the newest generation has recorded at least as
// many insertions as it was sized for. Deciding when to Grow is left to the
// caller; Saturated is one possible trigger.
func (f *Filter) Saturated(ctx context.Context) (bool, error) {
	g := f.newest()
	n, err := g.driver.Count(ctx)
	if err != nil {
		f.logStoreError("count", g, err)
		return false, err
	}
	return n >= g.Params.Size, nil
}

// Grow appends a new generation with GrowthFactor times the capacity of
// the previous one and returns it. Subsequent insertions go to it.
func (f *Filter) Grow() (Generation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	g, err := f.newGeneration(len(f.gens))
	if err != nil {
		return Generation{}, err
	}
	f.gens = append(f.gens, g)
	f.cfg.Metrics.setGenerations(f.cfg.KeyName, len(f.gens))

	f.log.WithField("generation", g.Index).
		WithField("namespace", g.Namespace).
		WithField("bits", g.Params.Bits).
		Debug("appended bloom filter generation")

	return *g, nil
}

// Generations returns a snapshot of the generations, oldest first.
func (f *Filter) Generations() []Generation {
	gens := f.snapshot()
	out := make([]Generation, len(gens))
	for i, g := range gens {
		out[i] = *g
	}
	return out
}

// Params returns the sizing of the first generation.
func (f *Filter) Params() Params {
	return f.snapshot()[0].Params
}

// Bits returns the bit array length of the first generation.
func (f *Filter) Bits() uint64 {
	return f.Params().Bits
}

// Hashes returns the number of bit positions per value in the first generation.
func (f *Filter) Hashes() uint32 {
	return f.Params().Hashes
}

// HashEngine returns the name of the digest engine.
func (f *Filter) HashEngine() string {
	return f.engine.Name()
}

func (f *Filter) newest() *Generation {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.gens[len(f.gens)-1]
}

func (f *Filter) snapshot() []*Generation {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return append([]*Generation(nil), f.gens...)
}

func (f *Filter) expire(expire []time.Duration) time.Duration {
	if len(expire) > 0 {
		return expire[0]
	}
	return f.cfg.DefaultExpire
}

func (f *Filter) logStoreError(op string, g *Generation, err error) {
	f.log.WithError(err).
		WithField("operation", op).
		WithField("generation", g.Index).
		Debug("bloom filter store operation failed")
}
