// Package app wires a Collider process together: logger, module registry,
// engine, audio driver, MIDI capture, patch loading, and the monitor HTTP
// server. It is decoupled from any specific entrypoint so tests can run the
// whole application in-process.
package app
