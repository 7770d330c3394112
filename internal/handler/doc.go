// Package handler implements the HTTP surface of the camera bridge.
//
// # Handlers
//
// CameraHandler exposes the registry for the admin dashboard: list, fetch,
// manual add, partial update, delete, discovery trigger, token issuance and
// status.
//
// AlexaHandler is the single directive entry point. It always answers 200
// with a well-formed event; failures are encoded in the event itself.
//
// SignalingHandler upgrades /ws to a WebSocket bound to one camera by its
// access token.
//
// # Response Format
//
// Success responses return JSON data with appropriate status codes (200, 201).
// Error responses return JSON with {error, details} structure.
//
// # Server-Sent Events
//
// The /events endpoint streams registry and discovery events via the hub.
package handler
