package id

import (
	"sync"

	"github.com/bwmarrin/snowflake"
)

const defaultNodeID = 1

var (
	mu   sync.Mutex
	node *snowflake.Node
)

// Init initializes the Snowflake node with the given node ID.
// Calling it again replaces the node.
func Init(nodeID int64) error {
	n, err := snowflake.NewNode(nodeID)
	if err != nil {
		return err
	}
	mu.Lock()
	node = n
	mu.Unlock()
	return nil
}

// New generates a new unique int64 ID using the Snowflake algorithm.
// IDs are time-ordered, so a later call never returns a smaller ID on the same node.
func New() int64 {
	mu.Lock()
	if node == nil {
		// node 1 is always within the snowflake node range
		node, _ = snowflake.NewNode(defaultNodeID)
	}
	n := node
	mu.Unlock()
	return n.Generate().Int64()
}
