package redgloom

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFilter(t *testing.T, cfg Config) *Filter {
	t.Helper()
	if cfg.Client == nil && cfg.Driver != DriverMemory {
		_, cfg.Client = newTestRedis(t)
	}
	f, err := New(cfg)
	require.NoError(t, err)
	return f
}

func forEachDriver(t *testing.T, fn func(t *testing.T, driver string)) {
	for _, driver := range []string{DriverAtomic, DriverNaive, DriverMemory} {
		t.Run(driver, func(t *testing.T) { fn(t, driver) })
	}
}

func TestFilterInsertInclude(t *testing.T) {
	forEachDriver(t, func(t *testing.T, driver string) {
		ctx := context.Background()
		f := newTestFilter(t, Config{Size: 1000, Driver: driver})

		present, err := f.InsertString(ctx, "x")
		require.NoError(t, err)
		assert.False(t, present, "first insert must report a new value")

		found, err := f.IncludeString(ctx, "x")
		require.NoError(t, err)
		assert.True(t, found)
	})
}

func TestFilterDuplicateInsert(t *testing.T) {
	forEachDriver(t, func(t *testing.T, driver string) {
		ctx := context.Background()
		f := newTestFilter(t, Config{Size: 1000, Driver: driver})

		present, err := f.InsertString(ctx, "x")
		require.NoError(t, err)
		assert.False(t, present)

		present, err = f.InsertString(ctx, "x")
		require.NoError(t, err)
		assert.True(t, present)

		n, err := f.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint64(1), n)
	})
}

func TestFilterAdd(t *testing.T) {
	forEachDriver(t, func(t *testing.T, driver string) {
		ctx := context.Background()
		f := newTestFilter(t, Config{Size: 1000, Driver: driver})

		require.NoError(t, f.AddString(ctx, "y"))

		found, err := f.IncludeString(ctx, "y")
		require.NoError(t, err)
		assert.True(t, found)

		n, err := f.Count(ctx)
		require.NoError(t, err)
		assert.Zero(t, n, "Add does not maintain the count")
	})
}

func TestFilterClear(t *testing.T) {
	forEachDriver(t, func(t *testing.T, driver string) {
		ctx := context.Background()
		f := newTestFilter(t, Config{Size: 100, Driver: driver})

		_, err := f.InsertString(ctx, "x")
		require.NoError(t, err)
		_, err = f.Grow()
		require.NoError(t, err)
		require.NoError(t, f.AddString(ctx, "z"))

		require.NoError(t, f.Clear(ctx))

		for _, v := range []string{"x", "z"} {
			found, err := f.IncludeString(ctx, v)
			require.NoError(t, err)
			assert.False(t, found, "expected %q to be gone after clear", v)
		}

		n, err := f.Count(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
		assert.Len(t, f.Generations(), 1)
	})
}

func TestFilterNoFalseNegatives(t *testing.T) {
	forEachDriver(t, func(t *testing.T, driver string) {
		ctx := context.Background()
		f := newTestFilter(t, Config{Size: 500, Driver: driver})

		for i := range 500 {
			if i%2 == 0 {
				_, err := f.Insert(ctx, fmt.Appendf(nil, "item-%d", i))
				require.NoError(t, err)
			} else {
				require.NoError(t, f.Add(ctx, fmt.Appendf(nil, "item-%d", i)))
			}
		}

		var missing int
		for i := range 500 {
			found, err := f.Include(ctx, fmt.Appendf(nil, "item-%d", i))
			require.NoError(t, err)
			if !found {
				missing++
			}
		}
		assert.Zero(t, missing)
	})
}

func TestFilterFalsePositiveRate(t *testing.T) {
	ctx := context.Background()
	expectedItems := uint64(2000)
	targetFPRate := 0.01

	f := newTestFilter(t, Config{Size: expectedItems, ErrorRate: targetFPRate, Driver: DriverMemory})

	for i := range expectedItems {
		require.NoError(t, f.Add(ctx, fmt.Appendf(nil, "item-%d", i)))
	}

	testItems := 10000
	var falsePositives int
	for i := range testItems {
		found, err := f.Include(ctx, fmt.Appendf(nil, "notitem-%d", i))
		require.NoError(t, err)
		if found {
			falsePositives++
		}
	}

	actualFPRate := float64(falsePositives) / float64(testItems)

	// Allow 2x margin for statistical variance
	assert.LessOrEqual(t, actualFPRate, targetFPRate*2)
	t.Logf("FP rate: %.4f (target: %.4f, k=%d, bits=%d)", actualFPRate, targetFPRate, f.Hashes(), f.Bits())
}

func TestFilterConcurrentInsertSameValue(t *testing.T) {
	for _, driver := range []string{DriverAtomic, DriverMemory} {
		t.Run(driver, func(t *testing.T) {
			ctx := context.Background()
			f := newTestFilter(t, Config{Size: 1000, Driver: driver})

			const callers = 16
			var fresh atomic.Int64
			var wg sync.WaitGroup
			wg.Add(callers)
			for range callers {
				go func() {
					defer wg.Done()
					present, err := f.InsertString(ctx, "x")
					assert.NoError(t, err)
					if !present {
						fresh.Add(1)
					}
				}()
			}
			wg.Wait()

			assert.Equal(t, int64(1), fresh.Load(), "exactly one caller must see a new value")
			n, err := f.Count(ctx)
			require.NoError(t, err)
			assert.Equal(t, uint64(1), n)
		})
	}
}

func TestFilterConcurrentDistinctValues(t *testing.T) {
	ctx := context.Background()
	f := newTestFilter(t, Config{Size: 10000})

	const numGoroutines = 8
	const itemsPerGoroutine = 100

	var wg sync.WaitGroup
	wg.Add(numGoroutines)
	for g := range numGoroutines {
		go func(goroutineID int) {
			defer wg.Done()
			for i := range itemsPerGoroutine {
				assert.NoError(t, f.AddString(ctx, fmt.Sprintf("g%d-item-%d", goroutineID, i)))
			}
		}(g)
	}
	wg.Wait()

	var missing int
	for g := range numGoroutines {
		for i := range itemsPerGoroutine {
			found, err := f.IncludeString(ctx, fmt.Sprintf("g%d-item-%d", g, i))
			require.NoError(t, err)
			if !found {
				missing++
			}
		}
	}
	assert.Zero(t, missing)
}

func TestFilterGrow(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestRedis(t)
	f := newTestFilter(t, Config{Size: 1000, KeyName: "visitors", Client: client})

	_, err := f.InsertString(ctx, "old")
	require.NoError(t, err)

	g, err := f.Grow()
	require.NoError(t, err)
	assert.Equal(t, 1, g.Index)
	assert.Equal(t, Namespace("visitors:1"), g.Namespace)
	assert.Equal(t, uint64(2000), g.Params.Size)
	assert.Equal(t, uint64(19170), g.Params.Bits)
	assert.Equal(t, DriverAtomic, g.Driver().Name())

	present, err := f.InsertString(ctx, "new")
	require.NoError(t, err)
	assert.False(t, present)

	// Insertions land in the newest generation only.
	assert.True(t, mr.Exists("visitors:1"))
	count, err := mr.Get("visitors:1:count")
	require.NoError(t, err)
	assert.Equal(t, "1", count)

	for _, v := range []string{"old", "new"} {
		found, err := f.IncludeString(ctx, v)
		require.NoError(t, err)
		assert.True(t, found, v)
	}

	n, err := f.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), n)

	gens := f.Generations()
	require.Len(t, gens, 2)
	assert.Equal(t, Namespace("visitors"), gens[0].Namespace)
	assert.Equal(t, uint64(9585), f.Bits(), "first generation sizing is unchanged")
}

func TestFilterAddAcrossGenerations(t *testing.T) {
	ctx := context.Background()
	f := newTestFilter(t, Config{Size: 100, Driver: DriverMemory})

	require.NoError(t, f.AddString(ctx, "dup"))
	_, err := f.Grow()
	require.NoError(t, err)

	// The value already exists in generation 0; Add writes it again into
	// generation 1 without complaint.
	require.NoError(t, f.AddString(ctx, "dup"))
	gens := f.Generations()
	require.Len(t, gens, 2)
	assert.NotZero(t, gens[1].Driver().(*MemoryDriver).SetBits())
}

func TestFilterSaturated(t *testing.T) {
	ctx := context.Background()
	f := newTestFilter(t, Config{Size: 3, Driver: DriverMemory})

	for i := 0; ; i++ {
		saturated, err := f.Saturated(ctx)
		require.NoError(t, err)
		if saturated {
			break
		}
		require.Less(t, i, 100, "filter never saturated")
		_, err = f.Insert(ctx, fmt.Appendf(nil, "item-%d", i))
		require.NoError(t, err)
	}

	_, err := f.Grow()
	require.NoError(t, err)

	saturated, err := f.Saturated(ctx)
	require.NoError(t, err)
	assert.False(t, saturated, "a fresh generation is not saturated")
}

func TestFilterDefaultExpire(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestRedis(t)
	f := newTestFilter(t, Config{Size: 100, KeyName: "sessions", DefaultExpire: time.Hour, Client: client})

	_, err := f.InsertString(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, time.Hour, mr.TTL("sessions"))
	assert.Equal(t, time.Hour, mr.TTL("sessions:count"))

	// An explicit expire overrides the default.
	require.NoError(t, f.AddString(ctx, "b", time.Minute))
	assert.Equal(t, time.Minute, mr.TTL("sessions"))

	mr.FastForward(2 * time.Minute)
	found, err := f.IncludeString(ctx, "b")
	require.NoError(t, err)
	assert.False(t, found, "expired bits must not be reported")
}

func TestFilterStoreErrorsAreUnchanged(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestRedis(t)
	f := newTestFilter(t, Config{Size: 100, Client: client})
	require.NoError(t, client.LPush(ctx, DefaultKeyName, "not a bitmap").Err())
	require.NoError(t, client.Set(ctx, DefaultKeyName+":count", "abc", 0).Err())

	_, err := f.InsertString(ctx, "x")
	require.Error(t, err)

	_, err = f.Count(ctx)
	require.Error(t, err)

	mr.Close()
	_, err = f.IncludeString(ctx, "x")
	require.Error(t, err)
	require.Error(t, f.AddString(ctx, "x"))

	_, err = f.Grow()
	require.NoError(t, err)
	require.Error(t, f.Clear(ctx))
	assert.Len(t, f.Generations(), 2, "a failed clear keeps the generations")
}

func TestNewValidation(t *testing.T) {
	_, client := newTestRedis(t)

	tests := []struct {
		name string
		cfg  Config
		err  error
	}{
		{"zero size", Config{Client: client}, ErrInvalidSize},
		{"error rate too high", Config{Size: 10, ErrorRate: 1, Client: client}, ErrInvalidErrorRate},
		{"negative error rate", Config{Size: 10, ErrorRate: -0.5, Client: client}, ErrInvalidErrorRate},
		{"unknown driver", Config{Size: 10, Driver: "ruby", Client: client}, ErrUnknownDriver},
		{"unknown engine", Config{Size: 10, HashEngine: "crc32", Client: client}, ErrUnknownHashEngine},
		{"no client", Config{Size: 10}, ErrNoClient},
		{"shrinking growth", Config{Size: 10, GrowthFactor: 0.5, Client: client}, ErrInvalidGrowthFactor},
		{"too large", Config{Size: 1 << 40, Client: client}, ErrInvalidSize},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg)
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestNewDefaults(t *testing.T) {
	f := newTestFilter(t, Config{Size: 1000})

	assert.Equal(t, DefaultErrorRate, f.Params().ErrorRate)
	assert.Equal(t, DefaultHashEngine, f.HashEngine())
	assert.Equal(t, uint64(9585), f.Bits())
	assert.Equal(t, uint32(7), f.Hashes())

	gens := f.Generations()
	require.Len(t, gens, 1)
	assert.Equal(t, Namespace(DefaultKeyName), gens[0].Namespace)
	assert.Equal(t, DriverAtomic, gens[0].Driver().Name())
}

func TestFilterHashEngines(t *testing.T) {
	for _, engine := range Engines() {
		t.Run(engine, func(t *testing.T) {
			ctx := context.Background()
			f := newTestFilter(t, Config{Size: 100, HashEngine: engine})

			present, err := f.InsertString(ctx, "x")
			require.NoError(t, err)
			assert.False(t, present)

			found, err := f.IncludeString(ctx, "x")
			require.NoError(t, err)
			assert.True(t, found)
		})
	}
}

func TestFiltersShareState(t *testing.T) {
	ctx := context.Background()
	_, client := newTestRedis(t)
	a := newTestFilter(t, Config{Size: 1000, KeyName: "shared", Client: client})
	b := newTestFilter(t, Config{Size: 1000, KeyName: "shared", Client: client, Driver: DriverNaive})

	present, err := a.InsertString(ctx, "x")
	require.NoError(t, err)
	assert.False(t, present)

	present, err = b.InsertString(ctx, "x")
	require.NoError(t, err)
	assert.True(t, present, "a second process sees the first one's insert")
}

func TestFilterMetrics(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewPedanticRegistry()
	metrics := NewMetrics(reg)
	f := newTestFilter(t, Config{Size: 100, KeyName: "m", Metrics: metrics})

	_, err := f.InsertString(ctx, "x")
	require.NoError(t, err)
	_, err = f.IncludeString(ctx, "x")
	require.NoError(t, err)
	_, err = f.Grow()
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.OperationsTotal.WithLabelValues("insert", DriverAtomic, "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.OperationsTotal.WithLabelValues("include", DriverAtomic, "success")))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.Generations.WithLabelValues("m")))
}

func TestFilterLogging(t *testing.T) {
	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	f := newTestFilter(t, Config{Size: 100, KeyName: "logged", Driver: DriverMemory, Logger: logger})
	_, err := f.Grow()
	require.NoError(t, err)

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, "appended bloom filter generation", entry.Message)
	assert.Equal(t, "logged", entry.Data["key"])
	assert.Equal(t, 1, entry.Data["generation"])
}

func TestFilterEstimatedFalsePositiveRate(t *testing.T) {
	ctx := context.Background()
	f := newTestFilter(t, Config{Size: 1000, Driver: DriverMemory})

	rate, err := f.EstimatedFalsePositiveRate(ctx)
	require.NoError(t, err)
	assert.Zero(t, rate)

	for i := range 1000 {
		_, err := f.Insert(ctx, fmt.Appendf(nil, "item-%d", i))
		require.NoError(t, err)
	}

	rate, err = f.EstimatedFalsePositiveRate(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 0.01, rate, 0.002)
}
