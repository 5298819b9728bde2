package util

import (
	"context"
	"errors"
	"time"
)

// ErrCellAlreadySet is returned by Set when the cell has already been
// filled once.
var ErrCellAlreadySet = errors.New("blocking cell already set")

// ErrCellTimeout is returned by GetWithTimeout when no value arrives in
// time.
var ErrCellTimeout = errors.New("blocking cell timeout")

// BlockingCell is a one-shot, single-slot rendezvous: a Session/Model RPC
// continuation blocks in Get (or GetWithTimeout/GetWithContext) until the
// main loop delivers the matching reply via Set, or until the channel
// closes out from under it.
type BlockingCell struct {
	valueChan chan interface{}
	set       bool
}

// NewBlockingCell creates an empty cell.
func NewBlockingCell() *BlockingCell {
	return &BlockingCell{
		valueChan: make(chan interface{}, 1),
	}
}

// Set fills the cell exactly once.
func (c *BlockingCell) Set(value interface{}) error {
	if c.set {
		return ErrCellAlreadySet
	}
	c.set = true
	c.valueChan <- value
	return nil
}

// Get blocks until the cell is filled.
func (c *BlockingCell) Get() interface{} {
	return <-c.valueChan
}

// GetWithTimeout blocks until the cell is filled or timeout elapses.
func (c *BlockingCell) GetWithTimeout(timeout time.Duration) (interface{}, error) {
	select {
	case value := <-c.valueChan:
		return value, nil
	case <-time.After(timeout):
		return nil, ErrCellTimeout
	}
}

// GetWithContext blocks until the cell is filled or ctx is done.
func (c *BlockingCell) GetWithContext(ctx context.Context) (interface{}, error) {
	select {
	case value := <-c.valueChan:
		return value, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
