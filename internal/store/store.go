// Package store provides the persistent key-value capability used for the
// deduplication ring and watchdog statistics. Keys live in namespaces;
// missing keys read back as zero values, never as errors.
package store

// KV is a namespaced persistent key-value store. Writes are synchronous and
// individually atomic per key.
type KV interface {
	GetString(key string) (string, error)
	PutString(key, value string) error
	GetInt(key string) (int, error)
	PutInt(key string, value int) error
}
