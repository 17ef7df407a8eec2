/*
Package observability turns session lifecycle hooks into Prometheus metrics and structured logs.

Metrics registers its collectors on a caller-supplied registry and exposes a domain.LifecycleHooks
value that can be handed to the session manager. Chain combines several hook sets.
*/
package observability
