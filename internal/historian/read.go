// Historiographus - Industrial Historian Reporting and Document Generation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/historiographus

package historian

import (
	"context"
	"fmt"
	"time"

	"github.com/gopcua/opcua"
	"github.com/gopcua/opcua/ua"

	"github.com/tomtom215/historiographus/internal/metrics"
	"github.com/tomtom215/historiographus/internal/models"
)

// ReadHistory reads raw historical samples for one tag in [start, end).
// Continuation points are followed until the window is exhausted or
// maxSamples is reached; maxSamples 0 means the configured default.
func (c *Client) ReadHistory(ctx context.Context, ep models.Endpoint, tag string, start, end time.Time, maxSamples int) ([]models.Sample, error) {
	nodeID, err := ua.ParseNodeID(tag)
	if err != nil {
		return nil, fmt.Errorf("invalid node id %q: %w", tag, err)
	}
	if maxSamples <= 0 {
		maxSamples = c.cfg.MaxSamplesPerRead
	}

	began := time.Now()
	result, err := c.execute(ctx, ep, func(ctx context.Context, conn *opcua.Client) (interface{}, error) {
		return c.readHistory(ctx, conn, ep, nodeID, tag, start, end, maxSamples)
	})
	if err != nil {
		metrics.RecordHistorianRead(ep.ID, "error", time.Since(began), 0)
		return nil, err
	}

	samples := result.([]models.Sample)
	metrics.RecordHistorianRead(ep.ID, "success", time.Since(began), len(samples))
	return samples, nil
}

func (c *Client) readHistory(ctx context.Context, conn *opcua.Client, ep models.Endpoint, nodeID *ua.NodeID, tag string, start, end time.Time, maxSamples int) ([]models.Sample, error) {
	var (
		samples      []models.Sample
		continuation []byte
	)

	for {
		readCtx, cancel := context.WithTimeout(ctx, c.cfg.ReadTimeout)

		nodes := []*ua.HistoryReadValueID{{
			NodeID:            nodeID,
			ContinuationPoint: continuation,
			DataEncoding:      &ua.QualifiedName{},
		}}
		details := &ua.ReadRawModifiedDetails{
			IsReadModified:   false,
			StartTime:        start.UTC(),
			EndTime:          end.UTC(),
			NumValuesPerNode: uint32(maxSamples - len(samples)),
			ReturnBounds:     false,
		}

		resp, err := conn.HistoryReadRawModified(readCtx, nodes, details)
		cancel()
		if err != nil {
			return nil, fmt.Errorf("history read failed for %q: %w", tag, err)
		}
		if len(resp.Results) == 0 {
			break
		}

		result := resp.Results[0]
		if result.StatusCode != ua.StatusOK && result.StatusCode != ua.StatusGoodNoData {
			return nil, fmt.Errorf("history read for %q returned status %v", tag, result.StatusCode)
		}

		if result.HistoryData != nil && result.HistoryData.Value != nil {
			historyData, ok := result.HistoryData.Value.(*ua.HistoryData)
			if !ok {
				return nil, fmt.Errorf("history read for %q returned unexpected payload type", tag)
			}
			for _, dv := range historyData.DataValues {
				sample, ok := sampleFromDataValue(ep.ID, tag, dv)
				if !ok {
					continue
				}
				samples = append(samples, sample)
			}
		}

		continuation = result.ContinuationPoint
		if len(continuation) == 0 || len(samples) >= maxSamples {
			break
		}
	}

	return samples, nil
}

// ReadCurrent reads the current value of the given tags in one request.
func (c *Client) ReadCurrent(ctx context.Context, ep models.Endpoint, tags []string) ([]models.Sample, error) {
	nodesToRead := make([]*ua.ReadValueID, 0, len(tags))
	for _, tag := range tags {
		nodeID, err := ua.ParseNodeID(tag)
		if err != nil {
			return nil, fmt.Errorf("invalid node id %q: %w", tag, err)
		}
		nodesToRead = append(nodesToRead, &ua.ReadValueID{
			NodeID:      nodeID,
			AttributeID: ua.AttributeIDValue,
		})
	}

	result, err := c.execute(ctx, ep, func(ctx context.Context, conn *opcua.Client) (interface{}, error) {
		readCtx, cancel := context.WithTimeout(ctx, c.cfg.ReadTimeout)
		defer cancel()

		resp, err := conn.Read(readCtx, &ua.ReadRequest{
			NodesToRead:        nodesToRead,
			TimestampsToReturn: ua.TimestampsToReturnBoth,
		})
		if err != nil {
			return nil, fmt.Errorf("current value read failed: %w", err)
		}

		samples := make([]models.Sample, 0, len(resp.Results))
		for i, dv := range resp.Results {
			if i >= len(tags) {
				break
			}
			sample, ok := sampleFromDataValue(ep.ID, tags[i], dv)
			if !ok {
				continue
			}
			samples = append(samples, sample)
		}
		return samples, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]models.Sample), nil
}

// sampleFromDataValue converts an OPC UA data value into a Sample.
// Non-numeric values are dropped; ok reports whether a sample was
// produced.
func sampleFromDataValue(endpointID, tag string, dv *ua.DataValue) (models.Sample, bool) {
	if dv == nil || dv.Value == nil {
		return models.Sample{}, false
	}
	value, ok := numericValue(dv.Value.Value())
	if !ok {
		return models.Sample{}, false
	}

	ts := dv.SourceTimestamp
	if ts.IsZero() {
		ts = dv.ServerTimestamp
	}
	if ts.IsZero() {
		return models.Sample{}, false
	}

	return models.Sample{
		EndpointID: endpointID,
		Tag:        tag,
		Timestamp:  ts.UTC(),
		Value:      value,
		Quality:    qualityFromStatus(dv.Status),
	}, true
}

// numericValue coerces the variant payload to float64.
func numericValue(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

// qualityFromStatus buckets an OPC UA status code by its severity bits:
// 00 good, 01 uncertain, 10/11 bad.
func qualityFromStatus(status ua.StatusCode) models.Quality {
	switch uint32(status) >> 30 {
	case 0:
		return models.QualityGood
	case 1:
		return models.QualityUncertain
	default:
		return models.QualityBad
	}
}
