package hl7

import "errors"

var (
	// ErrMessageDataEmpty is returned when message text is empty or absent.
	ErrMessageDataEmpty = errors.New("hl7: message data must not be empty")

	// ErrMessageDataTooShort is returned when message text is shorter than
	// the minimum header length (MSH plus delimiters, 8 characters).
	ErrMessageDataTooShort = errors.New("hl7: message data is too short")

	// ErrMessageMissingMSH is returned when message text does not begin with
	// the MSH header segment identifier.
	ErrMessageMissingMSH = errors.New("hl7: message data must start with MSH")

	// ErrElementIndexOutOfRange is returned for a non-positive element index,
	// or a negative field index (field 0 addresses the segment identifier).
	ErrElementIndexOutOfRange = errors.New("hl7: element index out of range")

	// ErrFixedFieldIndivisible is returned when a repetition or deeper
	// subdivision is requested from a fixed-width header field.
	ErrFixedFieldIndivisible = errors.New("hl7: fixed fields cannot be divided")
)
