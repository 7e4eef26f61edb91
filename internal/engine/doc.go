// Package engine drives batched, side-effecting jobs over lazily produced rows.
//
// A pass pulls rows from a domain.WorkSource through a Partitioner, hands each
// batch to an Executor and lets a Dispatcher decide whether batches run on the
// calling goroutine or concurrently on a shared pool. All accounting goes to a
// Collector owned by that pass. A Guard provides cooperative termination:
// it is polled before every batch and never interrupts a running action.
//
// Loop jobs repeat passes while a domain.Predicate yields a truthy value,
// threading the produced value into the next evaluation.
package engine
