package utils

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// PartitionMap splits the item range [0, MaxIndex) into ParallelDegree
// contiguous buckets, one per worker.
type PartitionMap struct {
	MaxIndex       int // MaxIndex is partitioned into ParallelDegree partitions
	ParallelDegree int
	Partitions     [][2]int // Beginning and end index of partitions
}

func NewPartitionMap(ParallelDegree, maxIndex int) (pm *PartitionMap) {
	if ParallelDegree < 1 {
		ParallelDegree = 1
	}
	pm = &PartitionMap{
		MaxIndex:       maxIndex,
		ParallelDegree: ParallelDegree,
		Partitions:     make([][2]int, ParallelDegree),
	}
	for n := 0; n < ParallelDegree; n++ {
		pm.Partitions[n] = pm.Split1D(n)
	}
	return
}

func (pm *PartitionMap) GetBucketRange(bucketNum int) (kMin, kMax int) {
	kMin, kMax = pm.Partitions[bucketNum][0], pm.Partitions[bucketNum][1]
	return
}

func (pm *PartitionMap) Split1D(threadNum int) (bucket [2]int) {
	// This routine splits one dimension into ParallelDegree pieces, with a maximum imbalance of one item
	var (
		Npart            = pm.MaxIndex / (pm.ParallelDegree)
		startAdd, endAdd int
		remainder        int
	)
	remainder = pm.MaxIndex % pm.ParallelDegree
	if remainder != 0 { // spread the remainder over the first chunks evenly
		if threadNum+1 > remainder {
			startAdd = remainder
			endAdd = 0
		} else {
			startAdd = threadNum
			endAdd = 1
		}
	}
	bucket[0] = threadNum*Npart + startAdd
	bucket[1] = bucket[0] + Npart + endAdd
	return
}

// ForEachBucket runs fn on every non-empty bucket, one goroutine per bucket,
// and returns the first error. The context passed to fn is cancelled once any
// bucket fails.
func (pm *PartitionMap) ForEachBucket(ctx context.Context,
	fn func(ctx context.Context, bn, kMin, kMax int) error) error {
	g, ctx := errgroup.WithContext(ctx)
	for bn := 0; bn < pm.ParallelDegree; bn++ {
		kMin, kMax := pm.GetBucketRange(bn)
		if kMax == kMin {
			continue
		}
		bn := bn
		g.Go(func() error {
			return fn(ctx, bn, kMin, kMax)
		})
	}
	return g.Wait()
}
