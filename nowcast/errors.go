package nowcast

import (
	"errors"
	"fmt"
	"time"
)

// ErrNoEvaluationDates is returned when the validation window holds no
// quarter-end date with a realised target.
var ErrNoEvaluationDates = errors.New("no evaluation dates in validation window")

// Stage is the step of the evaluation loop an error or log line belongs to.
type Stage int

const (
	StageInitializing Stage = iota
	StageIteratingDate
	StageIteratingHorizon
	StageTraining
	StagePredicting
	StageFinalizing
)

func (s Stage) String() string {
	switch s {
	case StageInitializing:
		return "initializing"
	case StageIteratingDate:
		return "iterating-date"
	case StageIteratingHorizon:
		return "iterating-horizon"
	case StageTraining:
		return "training"
	case StagePredicting:
		return "predicting"
	case StageFinalizing:
		return "finalizing"
	}
	return fmt.Sprintf("Stage(%d)", int(s))
}

// DateError reports a failure while evaluating one date. Horizon is only
// meaningful for the per-horizon stages.
type DateError struct {
	Date    time.Time
	Horizon int
	Stage   Stage
	Err     error
}

func (e *DateError) Error() string {
	if e.Stage == StageIteratingHorizon || e.Stage == StagePredicting {
		return fmt.Sprintf("date %s horizon %d (%s): %v", e.Date.Format(time.DateOnly), e.Horizon, e.Stage, e.Err)
	}
	return fmt.Sprintf("date %s (%s): %v", e.Date.Format(time.DateOnly), e.Stage, e.Err)
}

func (e *DateError) Unwrap() error { return e.Err }
