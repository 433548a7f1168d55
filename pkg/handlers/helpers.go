package handlers

import (
	"errors"

	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/pkg/apperrors"
)

func isDuplicateEnrollment(err error) bool {
	return errors.Is(err, apperrors.ErrDuplicateEnrollment)
}
