package ime

import "errors"

var (
	// ErrEngineUnavailable means the conversion engine is not initialised or
	// failed to initialise. Composition degrades to the raw input buffer.
	ErrEngineUnavailable = errors.New("ime: conversion engine unavailable")

	// ErrEngineTransient means a single candidate request failed.
	ErrEngineTransient = errors.New("ime: conversion engine request failed")

	// ErrEngineLost means the engine went away after it was initialised,
	// for example because its process exited. Engines wrap it so the client
	// re-initialises instead of retrying requests against a dead peer.
	ErrEngineLost = errors.New("ime: conversion engine lost")

	// ErrHostSessionDenied means the host refused a write session.
	ErrHostSessionDenied = errors.New("ime: host denied edit session")

	// ErrCompositionInvalidated means the host tore down the composition
	// range while the core still held it.
	ErrCompositionInvalidated = errors.New("ime: composition invalidated by host")

	// ErrReentrantEdit means Apply was called while another Apply was in
	// flight on the same coordinator.
	ErrReentrantEdit = errors.New("ime: edit session already in flight")
)
