// Package cache stores synthesized speech for reuse. It has an in-memory
// TTL level (L1) and a persistent, zstd-compressed disk level (L2); entries
// expire after 24 hours by default.
package cache
