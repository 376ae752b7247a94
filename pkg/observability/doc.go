/*
Package observability provides tools for monitoring the Conductor service.

Metrics and logging are attached through domain.LifecycleHooks, so the driving loop
never depends on a metrics backend. Hooks from several sources can be combined with
Merge.
*/
package observability
