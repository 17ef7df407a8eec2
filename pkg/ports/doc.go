/*
Package ports defines the driven ports (interfaces) for the doubtflow engine.

These interfaces decouple the core logic from external implementations, allowing
the engine to work with various flow collections, completion services and
session fan-out backends.

# Key Interfaces

  - FlowStore: The authored flow collection (e.g., Memory).
  - FlowLoader: Reads flow documents from an external source to seed a store.
  - Escalator: Answers free-text questions asked on AI nodes.
  - DistributedLocker: Provides distributed locking for handling concurrent session access.
  - EventBus: Fans transcript diffs out to subscribers (SSE, MCP, other replicas).
*/
package ports
