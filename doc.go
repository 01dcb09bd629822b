// Package redgloom provides a scaling bloom filter whose state lives in
// Redis, so that any number of processes can share one filter.
//
// A bloom filter is a space-efficient probabilistic data structure that tests
// whether an element is a member of a set. False positive matches are possible,
// but false negatives are not – if the filter says an element is not present,
// it definitely is not. If it says an element might be present, it could be a
// false positive.
//
// # Architecture
//
// A [Filter] never holds its bit array locally. Each operation hashes the
// value once, derives k bit positions from the digest with double hashing,
// and hands the positions to a [Driver], which tests and sets them in Redis.
//
// Two Redis drivers are provided:
//
// [AtomicDriver] runs every operation as a single Lua script. One call is one
// round trip, and a check-and-set insertion is indivisible: when N callers
// insert the same value concurrently, exactly one of them sees it as new and
// the element count is incremented once.
//
// [NaiveDriver] is for servers without scripting. It pipelines GETBIT and
// SETBIT but performs check-and-set as a read followed by a write. Concurrent
// insertions touching the same bits can both report "new" and both increment
// the count.
//
// [MemoryDriver] keeps the bits in process memory and is mainly useful for
// tests.
//
// Use [DetectDriver] at setup to pick a driver from the server version, or
// set [Config].Driver explicitly. Additional drivers can be added with
// [RegisterDriver].
//
// # Choosing Parameters
//
// Pass the expected number of items and desired false positive rate:
//
//	f, err := redgloom.New(redgloom.Config{
//		Size:      1_000_000,
//		ErrorRate: 0.01,
//		KeyName:   "visitors",
//		Client:    rdb,
//	})
//
// The bit array length and hash count follow the standard formulas:
//
//	m = round(-n * ln(p) / ln(2)^2)
//	k = round(ln(2) * m / n)
//
// Example: 1 million items at 1% FP rate ≈ 9.6 million bits ≈ 1.1 MiB in Redis.
//
// # Insert and Add
//
// [Filter.Insert] is check-and-set: it reports whether the value was already
// present and keeps the element count accurate. [Filter.Add] sets the bits
// unconditionally and leaves the count alone; it is the cheaper choice when
// presence does not matter.
//
// # Scaling
//
// A filter starts with one generation. [Filter.Grow] appends a generation
// sized GrowthFactor times larger, stored under "<KeyName>:<index>".
// Insertions go to the newest generation and [Filter.Include] checks every
// generation. When to grow is up to the caller; [Filter.Saturated] reports
// whether the newest generation holds as many elements as it was sized for.
//
// Generations are tracked by the Filter value, not in Redis. Processes
// sharing a filter must agree on the number of generations.
//
// # Hash Engines
//
// The digest is selected by name with [Config].HashEngine. xxh3 is the
// default; xxhash, murmur3, fnv and sha256 are also registered. Changing the
// engine of an existing filter makes every stored bit meaningless.
package redgloom
