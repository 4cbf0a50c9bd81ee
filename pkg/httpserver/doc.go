// Package httpserver provides a small http.Server wrapper with graceful
// shutdown, used by the rolloutd reference daemon to host the operator API.
package httpserver
