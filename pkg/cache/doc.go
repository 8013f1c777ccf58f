// Package cache holds recent decisions keyed by content hash and org scope.
//
// Resolve serves a valid entry when one exists. On a miss it runs the
// supplied computation once per key no matter how many callers are
// waiting: in-process callers are coalesced with singleflight, and
// instances sharing a redis backing store coordinate through a claim key
// so only one of them computes while the others poll for its entry.
//
// Invalidate, InvalidateHash and Purge advance a generation for the keys
// they cover. A computation that started before the invalidation does not
// fill the cache with its result; it is recomputed instead.
//
// Expiry is lazy: an entry is valid while now < ExpiresAt and is treated
// as a miss afterwards, left in place for the next write to replace.
// Unreadable entries are misses too; they are deleted and counted.
package cache
