// Package services defines the business logic between the webhook handlers
// and the persistence/cache layers.
// This file centralizes common service-level error values so that they can be
// consistently returned by service methods and checked by callers.
//
// These errors are intended for internal use by the service layer; translation
// into user-facing messages or HTTP status codes is performed at the handler
// layer.
package services

import "errors"

var (
	// ErrConversationNotFound indicates that the requested conversation does
	// not exist, or exists but is invisible to the calling user on a read.
	ErrConversationNotFound = errors.New("conversation not found")

	// ErrMessageNotFound indicates that the requested message does not exist.
	ErrMessageNotFound = errors.New("message not found")

	// ErrAccessDenied is returned on write paths when the conversation exists
	// but belongs to a different user.
	ErrAccessDenied = errors.New("access denied")

	// ErrEmptyContent is returned when a message to persist has no content
	// and no media reference either.
	ErrEmptyContent = errors.New("message content is empty")
)
