package models

import "errors"

// Application-wide standard errors
var (
	// Common Resource Errors
	ErrNotFound        = errors.New("resource not found") // General not found
	ErrSessionNotFound = errors.New("session not found")
	ErrSceneNotFound   = errors.New("scene not found")

	// Authentication Errors
	ErrUnauthorized = errors.New("unauthorized") // Authentication required or failed
	ErrForbidden    = errors.New("forbidden")    // Authenticated, but lacks permission

	// Token Errors
	ErrTokenInvalid   = errors.New("token is invalid")
	ErrTokenMalformed = errors.New("token is malformed")
	ErrTokenExpired   = errors.New("token has expired")

	// Session Lifecycle Errors
	ErrSessionLimitReached     = errors.New("player already has the maximum number of active sessions")
	ErrSessionSuspended        = errors.New("session is suspended pending safety review")
	ErrSessionArchived         = errors.New("session has been archived")
	ErrSessionInError          = errors.New("session is in error state")
	ErrSceneGenerationPending  = errors.New("next scene is still being generated")
	ErrTurnInProgress          = errors.New("another choice is being processed for this session")
	ErrSessionStateCorrupted   = errors.New("session state is corrupted")
	ErrNothingToRetry          = errors.New("session has no failed generation to retry")
	ErrSessionNotSuspended     = errors.New("session is not suspended")

	// Choice Errors
	ErrInvalidChoice       = errors.New("choice does not belong to the current scene")
	ErrChoiceAlreadyMade   = errors.New("choice has already been applied")
	ErrSceneIntegrity      = errors.New("scene content changed after presentation")

	// General Request/Server Errors
	ErrInternalServer = errors.New("internal server error")
	ErrBadRequest     = errors.New("bad request")
	ErrInvalidInput   = errors.New("invalid input data")
)
