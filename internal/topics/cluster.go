package topics

import (
	"sort"

	"github.com/unitedwerise/backend/internal/ai"
)

// Item is one post entering topic clustering
type Item struct {
	PostID    string
	Content   string
	Embedding []float32
}

// Cluster is a group of semantically similar posts with a running centroid
type Cluster struct {
	Centroid []float32
	Items    []Item
}

// ClusterItems groups items by cosine similarity against running centroids.
// Greedy single pass: each item joins the most similar existing cluster when
// the similarity clears threshold, otherwise it seeds a new cluster. Clusters
// smaller than minSize are dropped. Result is ordered largest first.
func ClusterItems(items []Item, threshold float64, minSize int) []Cluster {
	var clusters []Cluster

	for _, item := range items {
		if len(item.Embedding) == 0 {
			continue
		}

		bestIdx := -1
		bestSim := threshold
		for i := range clusters {
			sim := ai.CosineSimilarity(item.Embedding, clusters[i].Centroid)
			if sim >= bestSim {
				bestSim = sim
				bestIdx = i
			}
		}

		if bestIdx >= 0 {
			clusters[bestIdx].add(item)
		} else {
			c := Cluster{
				Centroid: append([]float32(nil), item.Embedding...),
				Items:    []Item{item},
			}
			clusters = append(clusters, c)
		}
	}

	kept := clusters[:0]
	for _, c := range clusters {
		if len(c.Items) >= minSize {
			kept = append(kept, c)
		}
	}

	sort.SliceStable(kept, func(i, j int) bool {
		return len(kept[i].Items) > len(kept[j].Items)
	})

	return kept
}

// add appends an item and updates the centroid as the running mean
func (c *Cluster) add(item Item) {
	n := float32(len(c.Items))
	for i := range c.Centroid {
		c.Centroid[i] = (c.Centroid[i]*n + item.Embedding[i]) / (n + 1)
	}
	c.Items = append(c.Items, item)
}
