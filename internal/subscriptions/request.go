// AlertFeed - Real-time Operational Alert Delivery Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/alertfeed

package subscriptions

import "github.com/tomtom215/alertfeed/internal/models"

// BuildRequest assembles a subscribe request. positions holds the resume
// point of every channel that has one; when it is empty the server is
// asked to reset its consumers and start fresh.
func BuildRequest(clientID string, subs []Subscription, positions map[string]models.SyncPosition) models.SubscribeRequest {
	req := models.SubscribeRequest{
		ClientID: clientID,
		Filters:  make([]models.Filter, 0, len(subs)),
	}
	for _, s := range subs {
		req.Filters = append(req.Filters, models.Filter{Area: s.Area, EventType: s.EventType})
		if pos, ok := positions[s.Channel()]; ok {
			if req.SyncState == nil {
				req.SyncState = make(map[string]models.SyncPosition)
			}
			req.SyncState[s.Channel()] = pos
		}
	}
	req.ResetConsumers = len(req.SyncState) == 0
	return req
}
