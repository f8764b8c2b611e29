package optional

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadUnregisteredReturnsNil(t *testing.T) {
	l := NewLoader()

	module, err := l.Load("instrumentation")
	assert.NoError(t, err)
	assert.Nil(t, module)
}

func TestLoadRegistered(t *testing.T) {
	l := NewLoader()
	l.Register("exporter/console", func() (Module, error) {
		return "console", nil
	})

	module, err := l.Load("exporter/console")
	require.NoError(t, err)
	assert.Equal(t, "console", module)
}

func TestLoadNotInstalledReturnsNil(t *testing.T) {
	l := NewLoader()
	l.Register("instrumentation", func() (Module, error) {
		return nil, &NotInstalledError{Package: "instrumentation"}
	})

	module, err := l.Load("instrumentation")
	assert.NoError(t, err)
	assert.Nil(t, module)
	assert.Equal(t, Unavailable, l.Probe("instrumentation").Status)
}

func TestLoadRethrowsOtherFailures(t *testing.T) {
	broken := errors.New("bad install: symbol table corrupt")
	l := NewLoader()
	l.Register("instrumentation", func() (Module, error) {
		return nil, broken
	})

	module, err := l.Load("instrumentation")
	assert.Nil(t, module)
	assert.Same(t, broken, err)
	assert.Equal(t, Faulted, l.Probe("instrumentation").Status)
}

func TestLoadTransitiveNotInstalledIsAFault(t *testing.T) {
	l := NewLoader()
	l.Register("instrumentation", func() (Module, error) {
		return nil, fmt.Errorf("init instrumentation: %w", &NotInstalledError{Package: "exporter/otlp"})
	})

	module, err := l.Load("instrumentation")
	assert.Nil(t, module)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotInstalled)
	assert.Equal(t, Faulted, l.Probe("instrumentation").Status)
}

func TestIDsSorted(t *testing.T) {
	l := NewLoader()
	noop := func() (Module, error) { return struct{}{}, nil }
	l.Register("exporter/otlp", noop)
	l.Register("exporter/console", noop)
	l.Register("instrumentation", noop)

	assert.Equal(t, []string{"exporter/console", "exporter/otlp", "instrumentation"}, l.IDs())
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "available", Available.String())
	assert.Equal(t, "unavailable", Unavailable.String())
	assert.Equal(t, "faulted", Faulted.String())
}
