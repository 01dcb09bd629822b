package redgloom

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"sort"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/spaolacci/murmur3"
	"github.com/zeebo/xxh3"
)

// DefaultHashEngine is the digest used when Config.HashEngine is empty.
const DefaultHashEngine = "xxh3"

// Engine is a digest function producing a 128-bit value from the input.
// The engine chosen for a filter must never change for the lifetime of the
// data stored under its key, since every bit position depends on it.
type Engine interface {
	Name() string
	Sum128(data []byte) (hi, lo uint64)
}

var (
	enginesMu sync.RWMutex
	engines   = map[string]Engine{}
)

func init() {
	RegisterEngine(xxh3Engine{})
	RegisterEngine(xxhashEngine{})
	RegisterEngine(murmur3Engine{})
	RegisterEngine(fnvEngine{})
	RegisterEngine(sha256Engine{})
}

// RegisterEngine makes a digest engine available under e.Name(),
// replacing any engine previously registered under that name.
func RegisterEngine(e Engine) {
	enginesMu.Lock()
	defer enginesMu.Unlock()
	engines[e.Name()] = e
}

// LookupEngine returns the engine registered under name.
func LookupEngine(name string) (Engine, error) {
	enginesMu.RLock()
	defer enginesMu.RUnlock()
	e, ok := engines[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownHashEngine, name)
	}
	return e, nil
}

// Engines returns the names of all registered engines in sorted order.
func Engines() []string {
	enginesMu.RLock()
	defer enginesMu.RUnlock()
	names := make([]string, 0, len(engines))
	for name := range engines {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Positions derives k bit positions in [0, m) from data.
//
// A single 128-bit digest is split into two 64-bit halves and combined with
// enhanced double hashing: p_i = (h1 + i*h2) mod m. h2 is forced odd so that
// successive positions never collapse onto h1 when m is a power of two.
func Positions(e Engine, data []byte, k uint32, m uint64) []uint64 {
	h1, h2 := e.Sum128(data)
	return positionsFromHash(h1, h2, k, m)
}

func positionsFromHash(h1, h2 uint64, k uint32, m uint64) []uint64 {
	h2 |= 1
	out := make([]uint64, k)
	for i := uint32(0); i < k; i++ {
		out[i] = (h1 + uint64(i)*h2) % m
	}
	return out
}

type xxh3Engine struct{}

func (xxh3Engine) Name() string { return "xxh3" }

func (xxh3Engine) Sum128(data []byte) (uint64, uint64) {
	h := xxh3.Hash128(data)
	return h.Hi, h.Lo
}

type xxhashEngine struct{}

func (xxhashEngine) Name() string { return "xxhash" }

// Sum128 derives the second half by rehashing the first digest, since
// xxhash only produces 64 bits.
func (xxhashEngine) Sum128(data []byte) (uint64, uint64) {
	h1 := xxhash.Sum64(data)
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], h1)
	return h1, xxhash.Sum64(buf[:])
}

type murmur3Engine struct{}

func (murmur3Engine) Name() string { return "murmur3" }

func (murmur3Engine) Sum128(data []byte) (uint64, uint64) {
	return murmur3.Sum128(data)
}

type fnvEngine struct{}

func (fnvEngine) Name() string { return "fnv" }

func (fnvEngine) Sum128(data []byte) (uint64, uint64) {
	h := fnv.New128a()
	h.Write(data)
	sum := h.Sum(nil)
	return binary.BigEndian.Uint64(sum[:8]), binary.BigEndian.Uint64(sum[8:])
}

type sha256Engine struct{}

func (sha256Engine) Name() string { return "sha256" }

func (sha256Engine) Sum128(data []byte) (uint64, uint64) {
	sum := sha256.Sum256(data)
	return binary.BigEndian.Uint64(sum[:8]), binary.BigEndian.Uint64(sum[8:16])
}
