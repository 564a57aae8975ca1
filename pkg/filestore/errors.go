package filestore

import "errors"

var (
	ErrInvalidStoreIndex = errors.New("store index out of range")
	ErrInvalidMaxSize    = errors.New("max file size out of range")
	ErrInvalidSize       = errors.New("file size out of range")
	ErrCorruptBlock      = errors.New("corrupt block")
	ErrPrematureEnd      = errors.New("chain ended before indexed size")
	ErrNoChain           = errors.New("no reusable chain")
)
