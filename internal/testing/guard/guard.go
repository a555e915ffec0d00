package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("WINDWARD_TEST_MODE") == "" {
			_ = os.Setenv("WINDWARD_TEST_MODE", "1")
		}
	})
}
