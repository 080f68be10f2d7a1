package partitions

import (
	"math"
)

// PartitionStats holds load balance metrics for a work division
type PartitionStats struct {
	NumPartitions int
	MinElements   int
	MaxElements   int
	AvgElements   float64
	Imbalance     float64 // MaxElements / AvgElements
}

// Statistics computes load balance metrics. Only the trailing partition can
// be short, so Imbalance is 1 when GroupSize divides N.
func (wd WorkDivision) Statistics() PartitionStats {
	if wd.Groups == 0 {
		return PartitionStats{}
	}
	stats := PartitionStats{
		NumPartitions: wd.Groups,
		MinElements:   math.MaxInt32,
		AvgElements:   float64(wd.N) / float64(wd.Groups),
	}

	for _, k := range wd.K() {
		if k < stats.MinElements {
			stats.MinElements = k
		}
		if k > stats.MaxElements {
			stats.MaxElements = k
		}
	}

	stats.Imbalance = float64(stats.MaxElements) / stats.AvgElements
	return stats
}
