// Package util provides small standalone utilities used across the
// master node.
//
// The package contains:
//   - statistics: a SizeHistogram for tracking data size distributions
//   - functions: hash functions and other small helpers
//   - lockfreempsc: a lock-free Multi-Producer Single-Consumer (MPSC) queue
//     implementation built for high throughput and low latency
package util
