// Package preflight provides readiness checks for the services and paths the
// scanner depends on.
//
// The "winescan doctor" command runs RunAll and renders each Result; the
// service binary runs the catalog check at startup and refuses to serve an
// empty catalog. Checks for disabled features report as skipped rather than
// failed.
package preflight
