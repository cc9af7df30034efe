// Package cache keeps synthesized audio keyed by request, so identical
// text is not sent to the speech service twice. Entries live in a memory
// LRU in front of a zstd-compressed disk store.
package cache
