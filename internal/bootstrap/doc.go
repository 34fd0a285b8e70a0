// Package bootstrap mounts the front-end application into the root document.
//
// The flow is a single two-way decision executed once per process: resolve
// the element with id "app"; mount the application entry into it when
// present, otherwise log "Target element not found" at error level. There is
// no retry or polling for the element.
package bootstrap
