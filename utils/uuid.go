package utils

import (
	"github.com/google/uuid"
)

// GenerateID returns a new unique identifier string for bids, items and inbox messages
func GenerateID() string {
	return uuid.New().String()
}
