package forecast

import "github.com/agrisight/prediction-service/internal/models"

// The forecast package surfaces the shared error taxonomy; aliased here so
// callers holding a forecast model don't need a second import to classify.
var (
	ErrInsufficientData    = models.ErrInsufficientData
	ErrModelNotInitialized = models.ErrModelNotInitialized
)
