// Package fan is the state and dispatch engine for IR/RF controlled fans.
//
// A fan has no feedback channel of its own: every change is a one-way
// transmission of a learned code. This package keeps the fan's tracked
// state, maps requested changes onto the device's command table, and sends
// the selected command through a Transport.
//
// # Pieces
//
//   - DeviceDefinition / CommandTable: the validated, immutable code set
//     for one device model (BuildDefinition, ParseDefinition).
//   - Fan: the per-device state machine. Every operation, and every sensor
//     update, runs under the fan's own mutex, so at most one command is in
//     flight per fan.
//   - Watcher: folds power-sensor readings into the fan's state without
//     ever transmitting.
//   - SQLiteRepository / SQLiteHistoryRepository: last-known state and the
//     change log.
//
// # Command resolution
//
// Given the current state, the command is picked with this precedence:
//
//  1. speed is off        -> commands["off"]
//  2. oscillating is true -> commands["oscillate"]
//  3. otherwise           -> commands[direction or "default"][speed]
//
// # Failure handling
//
// Transmission failures are logged and the tracked state is kept: the
// device may or may not have received the code and there is no way to
// tell. Resolution failures are returned as ErrDispatchFailed.
package fan
