package memory

import (
	"fraud_detector/internal/repository"
)

var _ repository.ReferenceRepository = (*ReferenceRepository)(nil)
