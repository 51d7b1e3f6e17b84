package lsm

import "errors"

var (
	// ErrInvalidBloomFilter is returned when bloom filter data is invalid.
	ErrInvalidBloomFilter = errors.New("invalid bloom filter data")

	// ErrKeyNotFound is returned when a key is not found.
	ErrKeyNotFound = errors.New("key not found")

	// ErrClosed is returned when an operation is attempted on a closed engine.
	ErrClosed = errors.New("lsm engine is closed")

	// ErrKeyEmpty is returned when put/get/remove is called with an empty key.
	ErrKeyEmpty = errors.New("key must not be empty")

	// ErrBlockFull is returned by Block.Insert when the entry would overflow
	// the block's remaining capacity; the caller must open a new block.
	ErrBlockFull = errors.New("block is full")

	// ErrCorruptWAL is returned by WAL.Replay when a record fails framing
	// validation.
	ErrCorruptWAL = errors.New("corrupt wal record")
)
