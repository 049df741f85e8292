package notify

import (
	"fmt"
	"time"

	"github.com/VictoriaMetrics/metrics"

	"github.com/sirenhq/siren/pkg/models"
)

var dispatchDuration = metrics.NewHistogram(`siren_dispatch_duration_seconds`)

func observeAttempt(ch models.Channel, success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	metrics.GetOrCreateCounter(fmt.Sprintf(`siren_notification_attempts_total{channel=%q,result=%q}`, ch, result)).Inc()
}

func observeDispatch(d time.Duration) {
	dispatchDuration.Update(d.Seconds())
}
