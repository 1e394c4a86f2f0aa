package pgjob

import (
	"time"
)

type EnqueueRequest struct {
	Queue    string        //required
	Type     string        //required
	Arg      []byte        //optional
	Priority *int16        //optional, DefaultPriority if nil, lower value runs first
	RunAt    time.Time     //optional, now if zero
	Delay    time.Duration //optional, added to RunAt
}
