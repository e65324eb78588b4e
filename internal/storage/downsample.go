package storage

import "syslink-agent/internal/model"

// Downsample collapses points into at most maxPoints buckets of ceil(n/maxPoints)
// contiguous points. Each bucket takes the first point's timestamp and always
// carries Min and Max. A non-positive maxPoints means the default cap, and
// AggregationNone reduces buckets like average once the cap is exceeded.
// Input must already be ordered by timestamp.
func Downsample(points []model.HistoryDataPoint, maxPoints int, agg model.Aggregation) []model.HistoryDataPoint {
	if maxPoints <= 0 {
		maxPoints = model.DefaultHistoryMaxPoints
	}
	if len(points) <= maxPoints {
		return points
	}

	bucketSize := (len(points) + maxPoints - 1) / maxPoints
	out := make([]model.HistoryDataPoint, 0, (len(points)+bucketSize-1)/bucketSize)
	for i := 0; i < len(points); i += bucketSize {
		end := min(i+bucketSize, len(points))
		out = append(out, reduceBucket(points[i:end], agg))
	}
	return out
}

func reduceBucket(bucket []model.HistoryDataPoint, agg model.Aggregation) model.HistoryDataPoint {
	lo, hi, sum := bucket[0].Value, bucket[0].Value, 0.0
	for _, p := range bucket {
		lo = min(lo, p.Value)
		hi = max(hi, p.Value)
		sum += p.Value
	}

	var v float64
	switch agg {
	case model.AggregationMin:
		v = lo
	case model.AggregationMax:
		v = hi
	case model.AggregationSum:
		v = sum
	default:
		v = sum / float64(len(bucket))
	}
	return model.HistoryDataPoint{
		Timestamp: bucket[0].Timestamp,
		Value:     v,
		Min:       &lo,
		Max:       &hi,
	}
}
