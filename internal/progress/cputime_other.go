//go:build !unix && !windows

package progress

import (
	"errors"
	"time"
)

func processCPUTime() (time.Duration, error) {
	return 0, errors.New("process cpu time unavailable")
}
