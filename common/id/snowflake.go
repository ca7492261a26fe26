package id

import (
	"strconv"
	"sync"

	"github.com/bwmarrin/snowflake"
)

var (
	node *snowflake.Node
	once sync.Once
)

// Init initializes the Snowflake node with the given node ID.
// The server and worker binaries must use different node IDs.
func Init(nodeID int64) error {
	var err error
	once.Do(func() {
		node, err = snowflake.NewNode(nodeID)
	})
	return err
}

// New generates a new globally unique int64 ID using the Snowflake algorithm.
// IDs are time-ordered and unique across distributed instances.
func New() int64 {
	return node.Generate().Int64()
}

// NewString returns a new ID rendered as a decimal string. Questions and answers
// expose their ids as opaque strings.
func NewString() string {
	return strconv.FormatInt(New(), 10)
}
