package app

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestRun_ExitCodes(t *testing.T) {
	assert.Equal(t, 0, Run("ok", zerolog.Nop(), func(ctx context.Context) error { return nil }))
	assert.Equal(t, 1, Run("fail", zerolog.Nop(), func(ctx context.Context) error { return errors.New("boom") }))
}
