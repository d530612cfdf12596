// Package store defines the counter/key-value capability shared by the rate
// limiter and the IP block list, with a Redis implementation for shared
// deployments and an in-process map for single-process deployments.
//
// Both implementations expose identical behavior, except that the memory
// store is only consistent within one process and loses state on restart.
package store
