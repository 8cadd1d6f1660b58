package executor

import (
	"context"
	"fmt"
)

// MapSource serves module source from memory, keyed by content id.
type MapSource map[string]string

func (m MapSource) Source(_ context.Context, id string) (string, error) {
	src, ok := m[id]
	if !ok {
		return "", fmt.Errorf("no source for id %q", id)
	}
	return src, nil
}
