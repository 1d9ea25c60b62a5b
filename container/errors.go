package container

import "fmt"

// MissingSourceError reports that the raw data container is absent when
// no cache artifact exists to serve the request.
type MissingSourceError struct {
	Path string
}

func (e *MissingSourceError) Error() string {
	return fmt.Sprintf("raw data container %s not found", e.Path)
}
