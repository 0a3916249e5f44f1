/*
Package observability provides lifecycle hooks for monitoring stepflow sessions.

It includes Prometheus counters for step navigation, completion and profile changes,
and structured-log hooks for auditing every event. Both return a domain.LifecycleHooks
value and can be combined with LifecycleHooks.Merge.
*/
package observability
