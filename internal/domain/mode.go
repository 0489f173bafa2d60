package domain

import (
	"errors"
	"fmt"
)

// ErrInvalidMode is returned when a consumption mode string is not recognized.
var ErrInvalidMode = errors.New("invalid consumption mode")

// Mode selects how an ingested table is handed to the caller.
type Mode string

const (
	// ModeColumnar returns the whole table as column slices.
	ModeColumnar Mode = "columnar"

	// ModeIterator returns a restartable per-record cursor over the same rows.
	ModeIterator Mode = "iterator"
)

// ParseMode validates a mode string. Anything other than the two supported
// modes is a hard error, never a silent fallback.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeColumnar:
		return ModeColumnar, nil
	case ModeIterator:
		return ModeIterator, nil
	}
	return "", fmt.Errorf("%w: %q (want %q or %q)", ErrInvalidMode, s, ModeColumnar, ModeIterator)
}
