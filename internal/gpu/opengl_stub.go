//go:build !opengl

package gpu

import (
	"fmt"

	"github.com/san-kum/partlife/internal/dynamo"
)

// NewOpenGLDevice is unavailable without the opengl build tag.
func NewOpenGLDevice(profile bool) (Device, error) {
	return nil, fmt.Errorf("%w: built without opengl support (use -tags opengl)", dynamo.ErrUnavailable)
}

func OpenGLAvailable() bool { return false }
