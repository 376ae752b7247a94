/*
Package domain contains the core types shared by every part of the conductor.

It defines the parsed workflow document tree, the task payload and message envelopes,
the command records exchanged with channels, lifecycle events and the error taxonomy.
The package is kept free of I/O so that the engine, the adapters and the runner can all
depend on it without depending on each other.

# Key Entities

  - Node: an immutable element of a parsed workflow document (tag, attributes, mixed text).
  - Task: the mutable JSON-like payload a set of workflows is driven against.
  - Message: the envelope moved across the broker (task, result, report, agent command).
  - Command: one asynchronous request queued on a channel, with its completion callback.
*/
package domain
