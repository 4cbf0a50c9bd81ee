// Package requestid attaches a correlation identifier to every HTTP request
// hitting the operator API, so log records from one operator action can be
// tied together.
//
// Middleware reuses a valid client-supplied "X-Request-ID" header, otherwise
// generates a UUIDv4. The ID is stored in the request context, echoed back in
// the response header, and available to handlers via FromContext. Attr adapts
// the ID into a slog attribute for request-scoped logging.
package requestid
