package utils // package utils provides identifier helpers

import (
	"github.com/bwmarrin/snowflake"
	"github.com/segmentio/ksuid"
)

// NewKSUID generates a new globally unique KSUID string. Used for request IDs.
func NewKSUID() string {
	return ksuid.New().String()
}

// IDGenerator mints time-ordered snowflake IDs for item events.
type IDGenerator struct {
	node *snowflake.Node
}

// NewIDGenerator builds a generator for the given node number. If the node
// cannot be initialized (out of range) it falls back to KSUIDs so an ID is
// always returned.
func NewIDGenerator(nodeID int64) *IDGenerator {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return &IDGenerator{}
	}
	return &IDGenerator{node: node}
}

// Next returns a fresh ID string.
func (g *IDGenerator) Next() string {
	if g == nil || g.node == nil {
		return NewKSUID()
	}
	return g.node.Generate().String()
}
