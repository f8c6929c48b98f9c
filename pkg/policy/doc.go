// Package policy implements the pre-flight safety filter for task requests.
// Requests are screened against built-in and operator-supplied Rego policies
// before any planning work happens; a blocked request produces no artifacts.
package policy
