// Package cache provides an in-memory cache for remote call results.
//
// Manager stores values with a per-entry TTL and evicts the least recently
// used entry when full. Expired entries are dropped on access and by a
// background sweep started with Start. Keys can be grouped with
// Namespace, which prefixes them as "namespace:key".
//
// Loader layers cache-then-call semantics on any Cache: concurrent misses
// for one key share a single load, results can be cached conditionally,
// and errors are never cached. DefaultKeyer derives stable keys from an
// operation name and its arguments.
package cache
