// Package model defines the domain types used across the application.
package model

// FeedEntry is a single entry of a tag feed.
// Updated is kept verbatim as published and acts as a version marker.
type FeedEntry struct {
	ID      string
	Updated string
	URL     string
	Title   string
}

// TagBucket pairs a watched tag with its entries in feed order.
type TagBucket struct {
	Tag     string
	Entries []FeedEntry
}

// Empty reports whether the bucket holds no entries.
func (b TagBucket) Empty() bool {
	return len(b.Entries) == 0
}

// SeenEntry is a persisted record of an entry version that was already processed.
type SeenEntry struct {
	Tag string
	FeedEntry
}

// Delivery counts the outcome of announcing one tag's entries.
type Delivery struct {
	Sent   int
	Failed int
}
