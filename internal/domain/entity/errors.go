package entity

import (
	"fmt"

	"github.com/garyjia/repair-center/internal/domain/workflow"
)

func validationError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", workflow.ErrValidation, fmt.Sprintf(format, args...))
}
