package model

import (
	"errors"
	"fmt"
	"strings"
)

// Stage names one of the two generation phases.
type Stage string

const (
	StagePersonas     Stage = "personas"
	StageTransactions Stage = "transactions"
)

// ErrInvalidStage is returned for any stage name other than the known two.
var ErrInvalidStage = errors.New("invalid stage")

// AllStages lists the stages in pipeline order.
func AllStages() []Stage {
	return []Stage{StagePersonas, StageTransactions}
}

// ParseStage converts a CLI/config string into a Stage.
func ParseStage(s string) (Stage, error) {
	switch Stage(strings.ToLower(strings.TrimSpace(s))) {
	case StagePersonas:
		return StagePersonas, nil
	case StageTransactions:
		return StageTransactions, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidStage, s)
	}
}
