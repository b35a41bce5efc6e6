// Package contentstore defines the narrow contract with the public
// content-addressed distribution store. The store is treated as untrusted:
// confidentiality comes entirely from encryption, never from store access
// control.
package contentstore

import (
	"context"
	"errors"
)

// ErrUnavailable wraps network and upstream failures so callers can tell
// "store is down" apart from content errors instead of hanging or guessing.
var ErrUnavailable = errors.New("content store unavailable")

// ErrNotFound is returned when no content exists under a locator.
var ErrNotFound = errors.New("content not found")

// Store is a content-addressed blob store. The locator returned by Put is a
// function of the content bytes: any change to the content yields a new
// locator, so published locators are immutable.
type Store interface {
	Put(ctx context.Context, content []byte) (locator string, err error)
	Get(ctx context.Context, locator string) ([]byte, error)
}
