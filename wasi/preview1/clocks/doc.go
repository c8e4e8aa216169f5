// Package clocks implements clock_res_get and clock_time_get.
//
// The four preview1 clocks map onto the host's POSIX clocks. Resolution
// falls back to one millisecond when the host cannot report it.
package clocks
