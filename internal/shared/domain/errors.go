package domain

import "errors"

var (
	ErrNotExist = errors.New("does not exist")

	ErrPinExpired   = errors.New("pin is invalid or has expired")
	ErrMalformedPin = errors.New("pin must be a six digit number")
	ErrPinMismatch  = errors.New("pin was not issued by this host")
	ErrPinConsumed  = errors.New("pin has already been used")

	ErrMissingRequester  = errors.New("requester identity must not be empty")
	ErrRequestExists     = errors.New("connection request already exists")
	ErrInvalidTransition = errors.New("connection request is not pending")

	ErrEncryptionFailure = errors.New("session key encryption failed")
	ErrDecryptionFailure = errors.New("session key decryption failed")
	ErrMalformedEncoding = errors.New("malformed transport encoding")
	ErrMalformedLink     = errors.New("malformed secure link")
)
