// Package events provides event bus implementations for the engine's
// observability side channel.
//
// Implementations:
//   - redis: Redis Streams with consumer groups
//   - memory: In-memory, ordered per subscriber, for tests and the websocket stream
//
// TeeEventBus publishes to several buses at once.
package events
