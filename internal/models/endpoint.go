// Historiographus - Industrial Historian Reporting and Document Generation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/historiographus

package models

import "time"

// Endpoint auth modes.
const (
	EndpointAuthAnonymous = "anonymous"
	EndpointAuthUserPass  = "username"
)

// Endpoint is a configured OPC UA data-source connection.
//
// The Password field holds the AES-256-GCM ciphertext when the endpoint
// is at rest in the store; the store decrypts it for internal consumers
// and the API layer only ever sees the masked form.
type Endpoint struct {
	ID   string `json:"id"`
	Name string `json:"name" validate:"required,min=1,max=128"`

	// URL is the opc.tcp endpoint URL, e.g. opc.tcp://historian:4840.
	URL string `json:"url" validate:"required"`

	// SecurityPolicy is the OPC UA policy URI suffix: None, Basic256Sha256, ...
	SecurityPolicy string `json:"security_policy,omitempty"`

	// SecurityMode is None, Sign, or SignAndEncrypt.
	SecurityMode string `json:"security_mode,omitempty"`

	// AuthMode selects anonymous or username/password authentication.
	AuthMode string `json:"auth_mode" validate:"omitempty,oneof=anonymous username"`

	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`

	// Enabled endpoints are polled by the collector and selectable in
	// report sections.
	Enabled bool `json:"enabled"`

	// IntervalSeconds is the collector sampling interval for this
	// endpoint. Zero means the configured default.
	IntervalSeconds int `json:"interval_seconds" validate:"min=0,max=86400"`

	// Tags are the historian tags read from this endpoint.
	Tags []TagRef `json:"tags" validate:"dive"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Interval returns the effective sampling interval.
func (e *Endpoint) Interval(def time.Duration) time.Duration {
	if e.IntervalSeconds > 0 {
		return time.Duration(e.IntervalSeconds) * time.Second
	}
	return def
}

// TagRefByNodeID returns the tag ref for the given node ID, if configured.
func (e *Endpoint) TagRefByNodeID(nodeID string) (TagRef, bool) {
	for _, t := range e.Tags {
		if t.NodeID == nodeID {
			return t, true
		}
	}
	return TagRef{}, false
}

// BrowsedTag is one entry returned by the endpoint browse operation.
type BrowsedTag struct {
	NodeID      string `json:"node_id"`
	DisplayName string `json:"display_name"`
	DataType    string `json:"data_type,omitempty"`
}
