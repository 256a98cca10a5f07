package housing

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKind(t *testing.T) {
	assert.Equal(t, "ok", Kind(nil))
	assert.Equal(t, "no_units_left", Kind(fmt.Errorf("book: %w", ErrNoUnitsLeft)))
	assert.Equal(t, "internal", Kind(errors.New("boom")))
}
