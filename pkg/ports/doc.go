/*
Package ports defines the driven ports (interfaces) for the weft engine.

These interfaces decouple the cache and engine from concrete storage, allowing
results to live on local disk, in process memory or in a shared Redis instance.

# Key Interfaces

  - CacheTier: durable storage of encoded cache entries, addressed by fingerprint.

RunCacheTierContract is a reusable test suite that every CacheTier adapter runs.
*/
package ports
