// Package rate implements a generic fixed-window request counter keyed by
// (scope, identity) on top of the shared counter store.
//
// Fixed-window counting accepts bursty behavior at window boundaries: a
// client can spend up to twice the limit across one boundary. This is a known
// limitation accepted for simplicity over sliding-window precision, not a
// defect.
package rate
