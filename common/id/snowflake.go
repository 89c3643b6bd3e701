// Package id hands out the snowflake ids used for tasks and action log rows.
package id

import (
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Node identifies the process kind in generated ids.
type Node int64

const (
	NodeServer Node = 1
	NodeWorker Node = 2
)

// epoch is 2024-01-01T00:00:00Z in milliseconds.
const epoch int64 = 1704067200000

var (
	generator *snowflake.Node
	initOnce  sync.Once
)

// Init must run once per process before New. Later calls are no-ops.
func Init(node Node) error {
	var err error
	initOnce.Do(func() {
		snowflake.Epoch = epoch
		generator, err = snowflake.NewNode(int64(node))
		if err != nil {
			err = fmt.Errorf("snowflake node %d: %w", node, err)
		}
	})
	return err
}

func New() int64 {
	return generator.Generate().Int64()
}

// Time is when id was generated.
func Time(id int64) time.Time {
	return time.UnixMilli(snowflake.ParseInt64(id).Time())
}
