package main

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsFatalRunError(t *testing.T) {
	assert.False(t, isFatalRunError(nil))
	assert.False(t, isFatalRunError(context.Canceled))
	assert.False(t, isFatalRunError(fmt.Errorf("run stopped: %w", context.Canceled)))
	assert.True(t, isFatalRunError(errors.New("navigation failed")))
	assert.True(t, isFatalRunError(context.DeadlineExceeded))
}
