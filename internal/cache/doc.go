// Package cache memoizes build reports and dependency analyses per repository
// revision.
//
// Entries live in a bounded in-memory LRU and, when a directory is configured,
// in one JSON file per key under <dir>/<kind>/. Reads check memory first and
// promote disk hits. An entry is absent from the moment its TTL elapses; expired
// entries are purged lazily on read and in bulk by Evict. Disk problems are
// logged and counted and surface as misses, never as build failures.
package cache
