package processor

import (
	"fmt"
	"time"
)

// Direction names the way a scan loop moves through a group.
type Direction string

const (
	DirectionUpdate   Direction = "update"
	DirectionBackfill Direction = "backfill"
)

// State is a scan loop state.
type State int

const (
	StateInit State = iota
	StateComputeWindow
	StateScan
	StateFilter
	StatePersist
	StateAdvance
	StateDone
	StateAborted
)

var stateNames = [...]string{
	StateInit:          "INIT",
	StateComputeWindow: "COMPUTE_WINDOW",
	StateScan:          "SCAN",
	StateFilter:        "FILTER",
	StatePersist:       "PERSIST",
	StateAdvance:       "ADVANCE_WATERMARK",
	StateDone:          "DONE",
	StateAborted:       "ABORTED",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

// SyncResult reports one Update or Backfill call. First and Last are the
// stored watermarks when the call returned.
type SyncResult struct {
	Group       string        `json:"group"`
	Direction   Direction     `json:"direction"`
	State       string        `json:"state"`
	Batches     int           `json:"batches"`
	Articles    int           `json:"articles"`
	Missed      int64         `json:"missed"` // window ids the server returned nothing for
	Parts       int           `json:"parts"`
	Segments    int           `json:"segments"`
	Duplicates  int           `json:"duplicates"`
	Collisions  int           `json:"collisions"`
	Blacklisted int           `json:"blacklisted"`
	Ignored     int           `json:"ignored"`
	First       *int64        `json:"first"`
	Last        *int64        `json:"last"`
	Took        time.Duration `json:"took"`
}

func newResult(group string, dir Direction, first, last *int64) *SyncResult {
	return &SyncResult{
		Group:     group,
		Direction: dir,
		State:     StateInit.String(),
		First:     copyInt64(first),
		Last:      copyInt64(last),
	}
}

func copyInt64(v *int64) *int64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

// abort marks the result ABORTED and passes err through.
func (res *SyncResult) abort(err error) (*SyncResult, error) {
	res.State = StateAborted.String()
	return res, err
}
