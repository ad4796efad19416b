package testing

import (
	"os"
	stdtesting "testing"

	"github.com/kasirku/kasir/internal/testing/guard"
)

func init() {
	guard.Enable()
}

// TestMain runs m with test mode enabled.
func TestMain(m *stdtesting.M) {
	guard.Enable()
	os.Exit(m.Run())
}
