// Package guard marks the process as running under go test so binaries and
// app wiring skip network side effects. Import it for its init.
package guard

import (
	"os"
	"sync"
)

// Env is the variable consulted by app.InTestMode.
const Env = "KASIR_TEST_MODE"

var once sync.Once

func init() {
	Enable()
}

// Enable sets Env unless the caller already chose a value.
func Enable() {
	once.Do(func() {
		if os.Getenv(Env) == "" {
			_ = os.Setenv(Env, "1")
		}
	})
}
