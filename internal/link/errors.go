package link

import "errors"

var (
	// ErrInvalidAddress is returned for an empty or malformed device address.
	// The link state is left unchanged.
	ErrInvalidAddress = errors.New("invalid device address")
	// ErrConnection is returned when the connect probe fails or times out.
	ErrConnection = errors.New("connection failed")
	// ErrNoDeviceFound is returned when discovery finds no responding candidate.
	ErrNoDeviceFound = errors.New("no device found")
	// ErrPushFailed is returned when a state push fails. The link status is unchanged.
	ErrPushFailed = errors.New("push failed")
	// ErrLinkLost is returned when a keep-alive probe fails on a connected link.
	ErrLinkLost = errors.New("link lost")
	// ErrNotConnected is returned by operations that need a connected link.
	ErrNotConnected = errors.New("not connected")
	// ErrUnsupported is returned when the device profile lacks a feature.
	ErrUnsupported = errors.New("not supported by device")
)
