package registry

import "fmt"

const (
	maxNameLen  = 256
	maxURLLen   = 2048
	maxColorLen = 32
)

// validateSiteInput checks presence and bounds of a site's mutable fields.
// URL normalization happens separately.
func validateSiteInput(s *Site) error {
	if s.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if len(s.Name) > maxNameLen {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidInput, maxNameLen)
	}
	if s.URL == "" {
		return fmt.Errorf("%w: url is required", ErrInvalidInput)
	}
	if len(s.URL) > maxURLLen {
		return fmt.Errorf("%w: url exceeds %d characters", ErrInvalidInput, maxURLLen)
	}
	if len(s.Color) > maxColorLen {
		return fmt.Errorf("%w: color exceeds %d characters", ErrInvalidInput, maxColorLen)
	}
	return nil
}
