package repository

import "errors"

var (
	ErrNotFound         = errors.New("habit not found")
	ErrAmbiguous        = errors.New("reference matches more than one habit")
	ErrEmptyTitle       = errors.New("habit title cannot be empty")
	ErrInvalidFrequency = errors.New("invalid frequency")
	ErrNotLoaded        = errors.New("habits not loaded")
	ErrClosed           = errors.New("repository closed")
)
