// Package service implements business logic for the camera bridge.
//
// CameraService sits between the HTTP handlers and the registry. It owns
// the manual-add defaults, hands discovery requests to the orchestrator,
// issues access tokens and reports overall status.
//
// # Event System
//
// Registry changes and discovery progress are published on an EventBus.
// The SSE hub subscribes to it so admin clients see devices appear as
// scanners find them.
package service
