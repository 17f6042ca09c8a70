// AlertFeed - Real-time Operational Alert Delivery Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/alertfeed

// Package identity manages the device-stable client id sent with every
// subscribe and acknowledgement. The id is generated once and reused until
// explicitly reset.
package identity

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/tomtom215/alertfeed/internal/kvstore"
	"github.com/tomtom215/alertfeed/internal/logging"
)

// Storage is the persistence identity needs.
type Storage interface {
	Get(key string, v interface{}) error
	Put(key string, v interface{}) error
}

// Current returns the stored client id. ok is false if none exists yet.
func Current(storage Storage) (id string, ok bool, err error) {
	if err := storage.Get(kvstore.KeyClientID, &id); err != nil {
		if errors.Is(err, kvstore.ErrNotFound) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("read client id: %w", err)
	}
	if _, err := uuid.Parse(id); err != nil {
		logging.Warn().Str("client_id", id).Msg("Stored client id is not a UUID, ignoring")
		return "", false, nil
	}
	return id, true, nil
}

// Load returns the stored client id, generating and persisting one on
// first use.
func Load(storage Storage) (string, error) {
	id, ok, err := Current(storage)
	if err != nil {
		return "", err
	}
	if ok {
		return id, nil
	}
	id, err = generate(storage)
	if err != nil {
		return "", err
	}
	logging.Info().Str("client_id", id).Msg("Generated new client id")
	return id, nil
}

// Reset replaces the client id. The server will treat this device as new.
func Reset(storage Storage) (string, error) {
	id, err := generate(storage)
	if err != nil {
		return "", err
	}
	logging.Warn().Str("client_id", id).Msg("Client id reset")
	return id, nil
}

func generate(storage Storage) (string, error) {
	id := uuid.New().String()
	if err := storage.Put(kvstore.KeyClientID, id); err != nil {
		return "", fmt.Errorf("persist client id: %w", err)
	}
	return id, nil
}
