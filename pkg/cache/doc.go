/*
This package implements the image acquisition and caching core of the
viewer: given per-day metadata from the archive feed (kept in a
metadata store), it downloads and locally persists each day's image at
the right quality.

The `Manager` is the composition root. It owns the per-date access
gate that serializes all disk and network work for one day, the
single-slot gallery download path (only the most recently requested
day may use the connection; stale requests are pre-empted), and the
bounded-pool calendar path (a fixed budget of concurrent downloads,
with whole-batch cancellation when a newer batch arrives).

The `bootstrapper` reconciles the locally known date range against the
live feed once at startup, paging backwards from today and correcting
for the feed's day boundary rolling over mid-acquisition.
*/
package cache
