// Package metrics exposes daemon observability hooks. The controller talks to
// a Recorder; the Prometheus implementation registers its collectors on an
// explicit registry that the daemon serves over HTTP when configured.
package metrics
