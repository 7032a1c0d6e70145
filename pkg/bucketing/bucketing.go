// Package bucketing maps unit keys to buckets deterministically and evaluates
// targeting conditions against a resolution context.
package bucketing

import (
	"hash/fnv"
)

// DefaultBucketCount is used when a bundle does not specify one.
const DefaultBucketCount = 10000

// Bucket returns the bucket in [0, bucketCount) for unitKey within the
// given salt (a layer ID). The same inputs always yield the same bucket.
func Bucket(unitKey, salt string, bucketCount int) int {
	if bucketCount <= 0 {
		bucketCount = DefaultBucketCount
	}

	h := fnv.New32a()
	_, _ = h.Write([]byte(unitKey))
	_, _ = h.Write([]byte{':'})
	_, _ = h.Write([]byte(salt))

	return int(h.Sum32() % uint32(bucketCount))
}

// Range is a half-open bucket interval [Start, End).
type Range struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Contains reports whether bucket falls within r.
func (r Range) Contains(bucket int) bool {
	return bucket >= r.Start && bucket < r.End
}

// Overlaps reports whether r and o share any bucket.
func (r Range) Overlaps(o Range) bool {
	return r.Start < o.End && o.Start < r.End
}
