package dispatcher

import (
	"sync/atomic"

	"github.com/morezero/action-dispatcher/pkg/result"
)

var trackedCodes = [...]int{
	result.CodeOK,
	result.CodeBadRequest,
	result.CodeUnauthorized,
	result.CodeNotFound,
	result.CodeUnexpected,
}

// counters are updated from concurrent dispatches.
type counters struct {
	total     atomic.Int64
	succeeded atomic.Int64
	inFlight  atomic.Int64
	byCode    [len(trackedCodes)]atomic.Int64
	other     atomic.Int64
}

func (c *counters) record(code int, success bool) {
	c.total.Add(1)
	if success {
		c.succeeded.Add(1)
	}
	for i, tc := range trackedCodes {
		if tc == code {
			c.byCode[i].Add(1)
			return
		}
	}
	c.other.Add(1)
}

// Stats is a point-in-time copy of the dispatcher counters.
type Stats struct {
	Total     int64         `json:"total"`
	Succeeded int64         `json:"succeeded"`
	Failed    int64         `json:"failed"`
	InFlight  int64         `json:"inFlight"`
	ByCode    map[int]int64 `json:"byCode"`
}

func (c *counters) snapshot() Stats {
	s := Stats{
		Total:     c.total.Load(),
		Succeeded: c.succeeded.Load(),
		InFlight:  c.inFlight.Load(),
		ByCode:    make(map[int]int64, len(trackedCodes)+1),
	}
	s.Failed = s.Total - s.Succeeded
	for i, tc := range trackedCodes {
		if n := c.byCode[i].Load(); n > 0 {
			s.ByCode[tc] = n
		}
	}
	if n := c.other.Load(); n > 0 {
		s.ByCode[0] = n
	}
	return s
}
