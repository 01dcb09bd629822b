package redgloom

import (
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Configuration defaults.
const (
	DefaultErrorRate    = 0.01
	DefaultKeyName      = "redgloom"
	DefaultDriver       = DriverAtomic
	DefaultGrowthFactor = 2.0

	// maxBits is the largest bit array a Redis string can hold (512 MiB).
	maxBits = uint64(1) << 32
)

// Config describes a filter. Only Size and, for the Redis drivers, Client
// are required; everything else has a default.
type Config struct {
	// Size is the expected number of items in the first generation.
	Size uint64
	// ErrorRate is the target false positive rate. Defaults to 0.01.
	ErrorRate float64
	// KeyName is the base key under which the filter is stored.
	KeyName string
	// HashEngine names the digest used to derive bit positions. It must
	// never change for data already stored under KeyName.
	HashEngine string
	// DefaultExpire is applied to insertions made without an explicit
	// expire. Zero means the keys never expire.
	DefaultExpire time.Duration
	// Driver names a registered driver. Use DetectDriver to pick one from
	// the server version.
	Driver string
	// Client is the connected Redis client.
	Client redis.UniversalClient
	// GrowthFactor multiplies the capacity of each new generation.
	GrowthFactor float64

	Logger  logrus.FieldLogger
	Metrics *Metrics
}

// setDefaults fills in unset optional fields.
func (c *Config) setDefaults() {
	if c.ErrorRate == 0 {
		c.ErrorRate = DefaultErrorRate
	}
	if c.KeyName == "" {
		c.KeyName = DefaultKeyName
	}
	if c.HashEngine == "" {
		c.HashEngine = DefaultHashEngine
	}
	if c.Driver == "" {
		c.Driver = DefaultDriver
	}
	if c.GrowthFactor == 0 {
		c.GrowthFactor = DefaultGrowthFactor
	}
	if c.Logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		c.Logger = l
	}
}

// validate checks the configuration without touching the store.
func (c *Config) validate() error {
	params, err := OptimalParams(c.Size, c.ErrorRate)
	if err != nil {
		return err
	}
	if params.Bits > maxBits {
		return fmt.Errorf("%w: %d items need %d bits, more than a redis string holds", ErrInvalidSize, c.Size, params.Bits)
	}
	if c.GrowthFactor < 1 {
		return fmt.Errorf("%w: got %v, want >= 1", ErrInvalidGrowthFactor, c.GrowthFactor)
	}
	if _, err := LookupEngine(c.HashEngine); err != nil {
		return err
	}

	d, err := lookupDriver(c.Driver)
	if err != nil {
		return err
	}
	if d.needsClient && c.Client == nil {
		return fmt.Errorf("%w: driver %q", ErrNoClient, c.Driver)
	}
	return nil
}
