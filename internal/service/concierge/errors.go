package concierge

import "errors"

var (
	ErrTurnInFlight   = errors.New("a turn is already in progress")
	ErrEmptyInput     = errors.New("message text is empty")
	ErrAlreadyGreeted = errors.New("conversation has already started")
	ErrNoSuchConcept  = errors.New("no such concept")
	ErrVideoInFlight  = errors.New("a video is already being generated")
	ErrVideoTimeout   = errors.New("video generation timed out")
	ErrNoVideo        = errors.New("no video for the selected concept")
	ErrClosed         = errors.New("orchestrator is closed")
)

// User-facing texts.
const (
	ApologyText         = "Sorry, I seem to be having trouble connecting. Please try again later."
	ImageErrorText      = "Failed to generate images."
	VideoConfigErrText  = "API configuration error."
	VideoErrorText      = "Could not create video."
	VideoLoadingMessage = "Preparing your onsen experience..."
)
