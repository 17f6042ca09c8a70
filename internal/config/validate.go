// AlertFeed - Real-time Operational Alert Delivery Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/alertfeed

package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"

	"github.com/tomtom215/alertfeed/internal/models"
)

// ValidationError reports one invalid setting.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field ranges, then cross-field rules. The first problem
// is returned as a *ValidationError.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return &ValidationError{
				Field:   fieldPath(fe.Namespace()),
				Message: fmt.Sprintf("failed %q check (value %v)", fe.Tag(), fe.Value()),
			}
		}
		return err
	}

	checks := []func() error{
		c.validateConnection,
		c.validateStorage,
		c.validateStore,
		c.validateAck,
		c.validateNATS,
		c.validateHTTP,
		c.validateSubscriptions,
	}
	for _, check := range checks {
		if err := check(); err != nil {
			return err
		}
	}
	return nil
}

// fieldPath turns "Config.Connection.URL" into "Connection.URL".
func fieldPath(namespace string) string {
	_, rest, ok := strings.Cut(namespace, ".")
	if !ok {
		return namespace
	}
	return rest
}

func (c *Config) validateConnection() error {
	u, err := url.Parse(c.Connection.URL)
	if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
		return &ValidationError{Field: "Connection.URL", Message: "must be a ws:// or wss:// URL (FEED_URL)"}
	}
	if c.Connection.PingInterval >= c.Connection.PongWait {
		return &ValidationError{Field: "Connection.PingInterval", Message: "must be shorter than PongWait"}
	}
	return nil
}

func (c *Config) validateStorage() error {
	if !c.Storage.InMemory && c.Storage.Path == "" {
		return &ValidationError{Field: "Storage.Path", Message: "required unless in_memory is set (DATA_DIR)"}
	}
	return nil
}

func (c *Config) validateStore() error {
	if _, err := cron.ParseStandard(c.Store.SweepSchedule); err != nil {
		return &ValidationError{Field: "Store.SweepSchedule", Message: err.Error()}
	}
	if c.Store.BusyDebounce > c.Store.SteadyDebounce {
		return &ValidationError{Field: "Store.BusyDebounce", Message: "must not exceed SteadyDebounce"}
	}
	return nil
}

func (c *Config) validateAck() error {
	if c.Ack.BatchSize > c.Ack.MaxPerMessage {
		return &ValidationError{Field: "Ack.BatchSize", Message: "must not exceed MaxPerMessage"}
	}
	return nil
}

func (c *Config) validateNATS() error {
	if !c.Notify.NATS.Enabled {
		return nil
	}
	if c.Notify.NATS.URL == "" {
		return &ValidationError{Field: "Notify.NATS.URL", Message: "required when NATS_ENABLED=true"}
	}
	return nil
}

func (c *Config) validateHTTP() error {
	if c.HTTP.Enabled && c.HTTP.Addr == "" {
		return &ValidationError{Field: "HTTP.Addr", Message: "required when http is enabled"}
	}
	return nil
}

func (c *Config) validateSubscriptions() error {
	known := make(map[string]bool, len(c.Subscriptions.Channels))
	for _, channel := range c.Subscriptions.Channels {
		if _, _, ok := models.SplitChannelKey(channel); !ok {
			return &ValidationError{Field: "Subscriptions.Channels", Message: fmt.Sprintf("%q is not an area_type key", channel)}
		}
		known[channel] = true
	}
	for _, list := range [][]string{c.Subscriptions.Muted, c.Subscriptions.Pinned} {
		for _, channel := range list {
			if !known[channel] {
				return &ValidationError{Field: "Subscriptions", Message: fmt.Sprintf("%q is muted or pinned but not subscribed", channel)}
			}
		}
	}
	return nil
}
