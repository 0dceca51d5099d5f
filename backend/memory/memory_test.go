package memory

import (
	"testing"

	"github.com/cschleiden/go-dispatch/backend"
	"github.com/cschleiden/go-dispatch/backend/test"
)

func Test_MemoryBackend(t *testing.T) {
	test.BackendTest(t, func() backend.Backend {
		return NewMemoryBackend()
	}, nil)
}

func Test_EndToEndMemoryBackend(t *testing.T) {
	test.EndToEndBackendTest(t, func() backend.Backend {
		return NewMemoryBackend()
	}, nil)
}
