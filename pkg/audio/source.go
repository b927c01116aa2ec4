package audio

import (
	"context"
	"errors"
)

// ErrNoDevice is returned by a [Source] when no usable capture device exists.
var ErrNoDevice = errors.New("audio: no capture device available")

// ErrPermissionDenied is returned by a [Source] when the operating system or
// user refused microphone access.
var ErrPermissionDenied = errors.New("audio: microphone permission denied")

// Source is a blocking microphone stream producing fixed-size mono float32
// blocks at a device-determined sample rate.
//
// The call order is Open, any number of Read calls, Stop, Close. Stop may be
// called concurrently with a blocked Read, which must then return [io.EOF].
type Source interface {
	// Open acquires the device and starts streaming. blockSize is the number
	// of samples each Read delivers. It returns the native sample rate.
	Open(ctx context.Context, blockSize int) (sampleRate int, err error)

	// Read blocks until buf is filled with the next block. It returns
	// io.EOF once the source has been stopped or is exhausted.
	Read(buf []float32) error

	// Stop halts streaming. Further reads return io.EOF.
	Stop() error

	// Close releases the device. It is safe to call after a failed Open.
	Close() error
}
