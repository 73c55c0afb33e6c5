package middleware

import (
	"errors"
	"unicode/utf8"
)

// maxMessageBytes bounds a single customer message.
const maxMessageBytes = 4096

// ValidateMessageContent validates a customer message.
func ValidateMessageContent(content string) error {
	if len(content) == 0 {
		return errors.New("message cannot be empty")
	}
	if len(content) > maxMessageBytes {
		return errors.New("message exceeds maximum length")
	}
	if !utf8.ValidString(content) {
		return errors.New("message must be valid UTF-8")
	}
	return nil
}

// ValidateSessionID validates a session ID. Sessions created by the
// server are UUIDs, but storefront clients may bring their own IDs, so
// only the shape is checked.
func ValidateSessionID(id string) error {
	if len(id) == 0 {
		return errors.New("session ID cannot be empty")
	}
	if len(id) > 128 {
		return errors.New("session ID exceeds maximum length")
	}
	if !utf8.ValidString(id) {
		return errors.New("session ID must be valid UTF-8")
	}
	return nil
}

// ValidateProductID validates a product ID.
func ValidateProductID(id string) error {
	if len(id) > 128 {
		return errors.New("product ID exceeds maximum length")
	}
	return nil
}

// ValidateQuantity validates a cart quantity. Zero is allowed: setting
// a line to zero removes it.
func ValidateQuantity(qty int) error {
	if qty < 0 {
		return errors.New("quantity cannot be negative")
	}
	if qty > 100 {
		return errors.New("quantity exceeds maximum")
	}
	return nil
}
