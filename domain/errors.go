package domain

import "errors"

var (
	// ErrNetworkUnavailable marks a transient transport failure. Callers fall
	// back to cached data or retry on the next sync pass.
	ErrNetworkUnavailable = errors.New("network unavailable")

	// ErrStorageUnavailable marks a local persistence failure. It is always
	// surfaced to the caller: silently dropping a user's workout is not
	// acceptable.
	ErrStorageUnavailable = errors.New("local storage unavailable")

	// ErrRemoteRejected is returned when the remote API explicitly refused a
	// pushed record. The record stays unsynced for inspection.
	ErrRemoteRejected = errors.New("remote rejected record")

	// ErrRecordNotFound is returned when a record id does not exist in the
	// addressed collection.
	ErrRecordNotFound = errors.New("record not found")

	// ErrUnknownCollection is returned for a collection name outside the
	// known set.
	ErrUnknownCollection = errors.New("unknown record collection")
)
