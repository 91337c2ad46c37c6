package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("MALIMINA_TEST_MODE") == "" {
			_ = os.Setenv("MALIMINA_TEST_MODE", "1")
		}
	})
}
