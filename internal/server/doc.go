// Package server serves the conversation API that the inbox client polls.
//
// Routes (all under /api require a bearer token):
//
//	GET  /health
//	GET  /api/viewers/{viewer}/conversations
//	GET  /api/conversations/{id}/messages
//	POST /api/conversations/{id}/messages   (Idempotency-Key header)
//	POST /api/conversations/{id}/read
//
// Conversations the caller does not take part in answer 404, the same as
// conversations that do not exist. Errors are JSON objects of the form
// {"error": "..."}.
package server
