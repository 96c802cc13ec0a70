package cleanup

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunReverseOrder(t *testing.T) {
	var order []string
	s := Stack{}
	s.Push("first", func() error {
		order = append(order, "first")
		return nil
	})
	s.Push("second", func() error {
		order = append(order, "second")
		return nil
	})
	s.Push("third", func() error {
		order = append(order, "third")
		return nil
	})

	require.NoError(t, s.Run())
	assert.Equal(t, []string{"third", "second", "first"}, order)
}

func TestRunContinuesPastFailures(t *testing.T) {
	var order []string
	failure := errors.New("device busy")

	s := Stack{}
	s.Push("detach", func() error {
		order = append(order, "detach")
		return nil
	})
	s.Push("unmount", func() error {
		order = append(order, "unmount")
		return failure
	})

	err := s.Run()
	assert.ErrorIs(t, err, failure)
	assert.Equal(t, []string{"unmount", "detach"}, order)
}

func TestRunIsIdempotent(t *testing.T) {
	calls := 0
	s := Stack{}
	s.Push("once", func() error {
		calls++
		return nil
	})

	require.NoError(t, s.Run())
	require.NoError(t, s.Run())
	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, s.Len())
}
