/*
Package cache implements the read-through cache used by every provider read
path.

The cache has two tiers: an in-memory map and an optional durable disk tier.
GetOrFetch returns the cached value when it is younger than its TTL, otherwise
invokes the fetcher and stores the result. If the fetcher fails and a stale
value exists, the stale value is returned instead of the error; errors surface
only on a cold cache. This decouples UI responsiveness from slow or failing
network calls.

Cache failures never fail the caller: durable-tier writes that exceed the
quota evict the oldest quarter of entries by timestamp and are otherwise
dropped silently.

Stores are explicitly constructed and injected into adapters; there is no
package-level singleton, so consistency properties stay independently testable
without cross-test leakage.
*/
package cache
