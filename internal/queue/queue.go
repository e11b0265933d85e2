// Package queue defines the backlog abstraction that feeds a coordinator.
package queue

import (
	"github.com/JakeFAU/silkcrawl/internal/crawler"
)

// Backlog is an ordered collection of fetch targets.
// Implementations must be safe for concurrent producers and a single consumer.
type Backlog interface {
	// Enqueue appends targets to the back of the backlog in order.
	Enqueue(targets ...crawler.Target)

	// Dequeue removes and returns the front target. It never blocks; ok is
	// false when the backlog is empty.
	Dequeue() (target crawler.Target, ok bool)

	// Len reports the number of pending targets.
	Len() int
}
