package ops

import (
	"time"

	"github.com/kk-code-lab/kitcat/internal/clock"
)

var opsClock clock.Clock = clock.RealClock{}

func now() time.Time {
	return opsClock.Now()
}
