// Package segmentation selects which time windows of a track to analyze.
// The selector is a pure function of duration and policy so plans are
// reproducible and cacheable.
package segmentation
