package backend

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseKind(t *testing.T) {
	k, err := ParseKind("cpu")
	assert.NoError(t, err)
	assert.Equal(t, KindCPU, k)

	k, err = ParseKind("gpu")
	assert.NoError(t, err)
	assert.Equal(t, KindGPU, k)

	_, err = ParseKind("tpu")
	assert.Error(t, err)
}

func TestErrorClassification(t *testing.T) {
	cause := errors.New("boom")

	setup := fmt.Errorf("open: %w", &SetupError{Backend: "gpu", Stage: StageCompile, Err: cause})
	assert.True(t, IsSetup(setup))
	assert.False(t, IsTransient(setup))
	assert.ErrorIs(t, setup, cause)
	assert.Contains(t, setup.Error(), "gpu setup failed (compile): boom")

	transient := &DispatchError{Backend: "gpu", Transient: true, Err: cause}
	assert.True(t, IsTransient(transient))
	assert.False(t, IsSetup(transient))

	hard := &DispatchError{Backend: "gpu", Err: cause}
	assert.False(t, IsTransient(hard))
	assert.ErrorIs(t, hard, cause)
}
