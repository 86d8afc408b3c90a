package match

import (
	"fmt"
	"regexp"
	"strings"
)

var playerNamePattern = regexp.MustCompile(`^[a-zA-Z0-9\s\-_]+$`)

// ValidatePlayerName enforces the display-name rules applied before any
// create, join, or matchmaking request leaves the client.
func ValidatePlayerName(name string) error {
	name = strings.TrimSpace(name)
	if len(name) < 2 {
		return fmt.Errorf("name must be at least 2 characters long")
	}
	if len(name) > 30 {
		return fmt.Errorf("name must be less than 30 characters")
	}
	if !playerNamePattern.MatchString(name) {
		return fmt.Errorf("name contains invalid characters")
	}
	return nil
}
