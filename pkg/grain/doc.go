// Package grain computes grain adjacency statistics over 2D microstructure
// slices.
//
// A slice is first turned into a Grid of grain identifiers by a Labeler.
// ColorLabeler treats every distinct pixel colour as one grain, which is only
// correct when each grain is rendered with a unique colour: two separate
// grains sharing a colour collapse into a single grain with a disjoint
// region. ComponentLabeler does not depend on colour uniqueness; it splits
// equal colours into connected regions.
//
// A Builder then derives the Adjacency between grains. DilationBuilder is the
// mask-dilation formulation, O(K²·H·W) for K grains. ScanBuilder compares each
// pixel with its forward neighbours in a single pass, O(H·W), and is the one
// to use on finely segmented slices. For the same Connectivity both yield the
// same relation.
//
// An Aggregator pools per-grain neighbour counts over every slice of a
// volume into a neighbour-count distribution.
package grain
