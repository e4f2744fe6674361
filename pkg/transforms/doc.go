// Package transforms provides stock processors for building graphs:
//   - Map, Filter and FlatMap apply a function element by element
//   - Sum accumulates numeric values and emits the total once input ends
//   - Collect is a sink that records everything it receives
//
// Element-wise transforms keep the input timestamp, so their output never
// falls behind the bundle being processed.
package transforms
