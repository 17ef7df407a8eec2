/*
Package domain contains the core domain models of the doubtflow engine.

It defines the conversation script (flows, nodes and options), the live session
snapshot and transcript, the AI escalation request shape and the error taxonomy.
This package is kept pure and free of external dependencies like I/O or
persistence, following Hexagonal Architecture principles.

# Key Entities

  - DoubtFlow: An authored, cyclic graph of Question, Answer and AI nodes for one subject.
  - Graph: An id-indexed view of a flow; every reference is resolved through it.
  - Session: The runtime snapshot of one learner's conversation (current node, transcript, AI history).
  - EscalationRequest: What an AI node hands to the completion service.
*/
package domain
