package repository

import "errors"

// ErrDuplicateProgress signals more than one ledger row for a (student, challenge) pair.
var ErrDuplicateProgress = errors.New("duplicate progress records")

// ErrSuperseded signals that a submission already has a resubmission.
var ErrSuperseded = errors.New("submission already resubmitted")
