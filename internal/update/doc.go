// Package update drives the start, apply and finish phases of a job update
// and the cancellation of a pending one.
package update
