/*
Package cache implements the content-addressed result cache.

A node's fingerprint is derived from its type, resolved parameters, the global seed and
the fingerprints of its producers (see Fingerprint). Results are stored under that
fingerprint in an in-process LRU backed by a durable ports.CacheTier.

Durable entries are self-verifying envelopes: a magic header, a format version, an
xxhash64 checksum and a zstd-compressed msgpack body. Payloads are serialized by codecs
chosen per payload kind; RegisterCodec adds codecs for custom payload types.

Entries that fail verification are never surfaced; they are deleted and reported as misses.
*/
package cache
