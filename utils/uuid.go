package utils

import (
	"github.com/google/uuid"
)

// GenerateID returns a time-ordered unique identifier string so bid ids sort by creation
func GenerateID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
