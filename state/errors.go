package state

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownNeighbour = errors.New("no such neighbour")
	ErrUnreachable      = errors.New("destination unreachable")
	ErrLinkInactive     = errors.New("link inactive")
)

// ConfigError is returned for a malformed or unreadable configuration. Line is
// 1-based and zero when the error is not tied to a line.
type ConfigError struct {
	Path string
	Line int
	Err  error
}

func (e *ConfigError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("config %s:%d: %v", e.Path, e.Line, e.Err)
	}
	return fmt.Sprintf("config %s: %v", e.Path, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// TransferError wraps a file open, read or write failure during a transfer.
type TransferError struct {
	Op   string
	Name string
	Err  error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("transfer %s: %s: %v", e.Op, e.Name, e.Err)
}

func (e *TransferError) Unwrap() error {
	return e.Err
}
