package explog

import (
	"slices"
)

// Channels is an insertion-ordered mapping from channel id to its samples.
// Ids keep the order of their first appearance; samples keep log order.
type Channels struct {
	order  []int
	series map[int][]float64
}

func newChannels() *Channels {
	return &Channels{series: make(map[int][]float64)}
}

func (c *Channels) appendSample(id int, value float64) {
	if _, ok := c.series[id]; !ok {
		c.order = append(c.order, id)
	}
	c.series[id] = append(c.series[id], value)
}

// Len returns the number of distinct channels.
func (c *Channels) Len() int {
	return len(c.order)
}

// IDs returns channel ids in first-appearance order.
func (c *Channels) IDs() []int {
	return slices.Clone(c.order)
}

// SortedIDs returns channel ids in ascending order.
func (c *Channels) SortedIDs() []int {
	ids := slices.Clone(c.order)
	slices.Sort(ids)
	return ids
}

// Series returns the samples of one channel. The slice is shared with the
// model and must not be modified.
func (c *Channels) Series(id int) ([]float64, bool) {
	s, ok := c.series[id]
	return s, ok
}

// uniformSteps returns the common series length. When lengths differ it
// returns the first channel (in appearance order) whose length disagrees with
// the first channel's.
func (c *Channels) uniformSteps() (steps int, badID int, ok bool) {
	if len(c.order) == 0 {
		return 0, 0, true
	}
	steps = len(c.series[c.order[0]])
	for _, id := range c.order[1:] {
		if len(c.series[id]) != steps {
			return steps, id, false
		}
	}
	return steps, 0, true
}

// sameIDs reports whether both maps hold exactly the same channel ids.
func sameIDs(a, b *Channels) bool {
	if a.Len() != b.Len() {
		return false
	}
	for _, id := range a.order {
		if _, ok := b.series[id]; !ok {
			return false
		}
	}
	return true
}
