// Package server hosts the Fiber HTTP service and the shared upstream HTTP
// client. The app attaches panic recovery and request-ID middleware, routes
// GET/HEAD on every path to the injected proxy handler, and leaves the
// reserved /-/ prefix to diagnostics routes registered by package routes.
// Keep exports narrow and accept explicit dependencies.
package server
