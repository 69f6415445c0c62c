// Package viz presents culture trajectories.
//
//   - [ASCII] and [SweepASCII]: terminal graphs built on asciigraph
//   - [TrajectoryPlot], [SweepPlot], [SavePlot]: PNG and SVG figures via gonum/plot
//   - [Explorer]: a Bubble Tea program for adjusting parameters live
//
// # Explorer keys
//
//	j/k   - select regime or parameter
//	h/l   - decrease/increase the selected parameter
//	enter - type a value
//	c     - cycle the plotted column
//	esc   - back to the regime menu
//
// Every adjustment derives a fresh configuration and simulates it; results
// of superseded adjustments are dropped.
package viz
