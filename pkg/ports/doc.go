/*
Package ports defines the driven ports (interfaces) of the conductor.

These interfaces decouple the driving loop and the channels from the systems they talk
to, so that the same code runs against Redis in production and in-process fakes in tests
and local runs.

# Key Interfaces

  - Broker: moves messages between named queues (tasks, results, reports, agent queues).
  - TemplateStore: resolves channel payload templates by channel and name.
  - DistributedLocker: guards a task id against concurrent processing of redeliveries.
*/
package ports
