// Package handler exposes the command-in and event-out surfaces over
// HTTP. Handlers translate JSON requests into domain commands, run
// them through the service, and map the domain error taxonomy onto
// HTTP status codes. No business logic lives here.
package handler
