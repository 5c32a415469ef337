// Package cache defines the fast, volatile store the engine reconciles
// against the backing log, and an in-process implementation of it.
package cache

// Store is a key/value store with list operations and pattern scan,
// shaped after the Redis surface the engine needs. The cache is always
// rebuildable from the backing log, never the other way around.
// Implementations may be remote, so every call can fail.
type Store interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
	Delete(key string) error

	// LPush prepends value to the list at key, creating it if absent.
	LPush(key, value string) error
	// LPop removes and returns the head of the list at key.
	LPop(key string) (string, bool, error)
	// LRange returns elements [start, stop] inclusive; negative stop
	// counts from the end, -1 meaning the last element.
	LRange(key string, start, stop int) ([]string, error)
	LLen(key string) (int, error)

	// Keys returns all keys matching pattern. A pattern is either an
	// exact key, "prefix*" or "*suffix".
	Keys(pattern string) ([]string, error)
}
