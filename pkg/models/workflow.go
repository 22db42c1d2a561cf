// Package models defines the core domain models for block-based workflow execution.
package models

import (
	"fmt"
	"time"
)

// Workflow represents an immutable block graph: blocks, connections and loop
// groupings. A workflow is read-only for the lifetime of an execution.
type Workflow struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"        validate:"required,min=3"`
	Description string           `json:"description"`
	Blocks      []*Block         `json:"blocks"`
	Connections []*Connection    `json:"connections"`
	Loops       map[string]*Loop `json:"loops,omitempty"`
	Variables   map[string]any   `json:"variables,omitempty"`
	Metadata    map[string]any   `json:"metadata,omitempty"`
	Owner       string           `json:"owner"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
	DeletedAt   *time.Time       `json:"deleted_at,omitempty"`
}

// BlockByID returns the block with the given id, or nil.
func (w *Workflow) BlockByID(id string) *Block {
	for _, block := range w.Blocks {
		if block.ID == id {
			return block
		}
	}

	return nil
}

// TriggerBlock returns the graph's entry block: the first enabled block of
// the trigger category, falling back to the first block with no incoming
// connections.
func (w *Workflow) TriggerBlock() *Block {
	for _, block := range w.Blocks {
		if block.Type == BlockTypeTrigger && block.Enabled {
			return block
		}
	}

	incoming := make(map[string]int)
	for _, conn := range w.Connections {
		incoming[conn.Target]++
	}

	for _, block := range w.Blocks {
		if incoming[block.ID] == 0 {
			return block
		}
	}

	return nil
}

// IncomingConnections returns all connections targeting the given block.
func (w *Workflow) IncomingConnections(blockID string) []*Connection {
	var conns []*Connection

	for _, conn := range w.Connections {
		if conn.Target == blockID {
			conns = append(conns, conn)
		}
	}

	return conns
}

// OutgoingConnections returns all connections originating at the given block.
func (w *Workflow) OutgoingConnections(blockID string) []*Connection {
	var conns []*Connection

	for _, conn := range w.Connections {
		if conn.Source == blockID {
			conns = append(conns, conn)
		}
	}

	return conns
}

// Validate checks referential integrity: every block id referenced by a
// connection or a loop must exist in Blocks.
func (w *Workflow) Validate() error {
	known := make(map[string]bool, len(w.Blocks))
	for _, block := range w.Blocks {
		if block.ID == "" {
			return fmt.Errorf("workflow %s: %w", w.ID, ErrBlockMissingID)
		}

		if known[block.ID] {
			return fmt.Errorf("workflow %s: duplicate block id %s: %w", w.ID, block.ID, ErrDuplicateBlockID)
		}

		known[block.ID] = true
	}

	for _, conn := range w.Connections {
		if !known[conn.Source] {
			return fmt.Errorf("connection %s -> %s: source: %w", conn.Source, conn.Target, ErrUnknownBlockReference)
		}

		if !known[conn.Target] {
			return fmt.Errorf("connection %s -> %s: target: %w", conn.Source, conn.Target, ErrUnknownBlockReference)
		}
	}

	for loopID, loop := range w.Loops {
		if loop.Iterations < 0 {
			return fmt.Errorf("loop %s: %w", loopID, ErrNegativeLoopIterations)
		}

		for _, nodeID := range loop.Nodes {
			if !known[nodeID] {
				return fmt.Errorf("loop %s: node %s: %w", loopID, nodeID, ErrUnknownBlockReference)
			}
		}
	}

	return nil
}
