// Historiographus - Industrial Historian Reporting and Document Generation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/historiographus

package historian

import (
	"context"
	"fmt"

	"github.com/gopcua/opcua"
	"github.com/gopcua/opcua/id"
	"github.com/gopcua/opcua/ua"

	"github.com/tomtom215/historiographus/internal/models"
)

// browseLimit caps the entries returned by one browse call so a huge
// address space cannot blow up the response.
const browseLimit = 500

// Browse lists the children of a node in the endpoint's address space.
// An empty root browses from the standard Objects folder. Variables are
// the tags users pick for reports; folders and objects are returned too
// so the UI can descend into them.
func (c *Client) Browse(ctx context.Context, ep models.Endpoint, root string) ([]models.BrowsedTag, error) {
	var rootID *ua.NodeID
	if root == "" {
		rootID = ua.NewNumericNodeID(0, id.ObjectsFolder)
	} else {
		parsed, err := ua.ParseNodeID(root)
		if err != nil {
			return nil, fmt.Errorf("invalid node id %q: %w", root, err)
		}
		rootID = parsed
	}

	result, err := c.execute(ctx, ep, func(ctx context.Context, conn *opcua.Client) (interface{}, error) {
		browseCtx, cancel := context.WithTimeout(ctx, c.cfg.ReadTimeout)
		defer cancel()
		return c.browseChildren(browseCtx, conn, rootID)
	})
	if err != nil {
		return nil, err
	}
	return result.([]models.BrowsedTag), nil
}

func (c *Client) browseChildren(ctx context.Context, conn *opcua.Client, rootID *ua.NodeID) ([]models.BrowsedTag, error) {
	req := &ua.BrowseRequest{
		NodesToBrowse: []*ua.BrowseDescription{{
			NodeID:          rootID,
			BrowseDirection: ua.BrowseDirectionForward,
			ReferenceTypeID: ua.NewNumericNodeID(0, id.HierarchicalReferences),
			IncludeSubtypes: true,
			NodeClassMask:   uint32(ua.NodeClassObject | ua.NodeClassVariable),
			ResultMask:      uint32(ua.BrowseResultMaskAll),
		}},
		RequestedMaxReferencesPerNode: browseLimit,
	}

	resp, err := conn.Browse(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("browse failed: %w", err)
	}
	if len(resp.Results) == 0 {
		return nil, nil
	}
	result := resp.Results[0]
	if result.StatusCode != ua.StatusOK {
		return nil, fmt.Errorf("browse returned status %v", result.StatusCode)
	}

	tags := make([]models.BrowsedTag, 0, len(result.References))
	for _, ref := range result.References {
		if ref == nil || ref.NodeID == nil {
			continue
		}
		tag := models.BrowsedTag{
			NodeID:      ref.NodeID.NodeID.String(),
			DisplayName: ref.DisplayName.Text,
		}
		if ref.NodeClass == ua.NodeClassVariable {
			tag.DataType = "variable"
		}
		tags = append(tags, tag)
		if len(tags) >= browseLimit {
			break
		}
	}
	return tags, nil
}
