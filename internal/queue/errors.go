package queue

import (
	"errors"

	"fieldscan/internal/services"
)

// ErrNotFound is returned when a mutation id does not exist in the queue.
var ErrNotFound = errors.New("mutation not found")

func storageError(operation, message string, err error) error {
	return services.Wrap(services.ErrStorageUnavailable, "queue", operation, message, err)
}

func validationError(operation, message string) error {
	return services.Wrap(services.ErrValidation, "queue", operation, message, nil)
}
