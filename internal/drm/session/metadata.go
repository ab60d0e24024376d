// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package session

import (
	"sync"

	"github.com/ManuGH/gstplayer/internal/drm/model"
)

// MetaDataEvent carries the failure details of one session back to the player.
// It is written asynchronously while the license is acquired.
type MetaDataEvent struct {
	// ContentURI supplies query parameters to license requests when URI
	// parameter propagation is enabled.
	ContentURI string

	mu           sync.Mutex
	failure      model.ErrorCode
	responseCode int
	description  string
	accessStatus string
}

// NewMetaDataEvent returns an event for content at uri.
func NewMetaDataEvent(uri string) *MetaDataEvent {
	return &MetaDataEvent{ContentURI: uri}
}

func (e *MetaDataEvent) Failure() model.ErrorCode {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.failure
}

// ResponseCode is the HTTP status of the last license response, if any.
func (e *MetaDataEvent) ResponseCode() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.responseCode
}

func (e *MetaDataEvent) Description() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.description
}

func (e *MetaDataEvent) AccessStatus() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.accessStatus
}

func (e *MetaDataEvent) SetAccessStatus(status string) {
	e.mu.Lock()
	e.accessStatus = status
	e.mu.Unlock()
}

func (e *MetaDataEvent) fail(code model.ErrorCode, desc string) {
	e.mu.Lock()
	e.failure = code
	e.description = desc
	e.mu.Unlock()
}

func (e *MetaDataEvent) setResponseCode(code int) {
	e.mu.Lock()
	e.responseCode = code
	e.mu.Unlock()
}
