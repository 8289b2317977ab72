// Historiographus - Industrial Historian Reporting and Document Generation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/historiographus

// Package historian wraps the OPC UA client used to talk to industrial
// historians. Every endpoint gets its own circuit breaker and rate
// limiter so one flapping data source cannot exhaust connections or
// starve reads against the others.
package historian

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gopcua/opcua"
	"github.com/gopcua/opcua/ua"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/tomtom215/historiographus/internal/config"
	"github.com/tomtom215/historiographus/internal/logging"
	"github.com/tomtom215/historiographus/internal/metrics"
	"github.com/tomtom215/historiographus/internal/models"
)

// ErrBreakerOpen is returned when an endpoint's circuit breaker is
// rejecting requests.
var ErrBreakerOpen = errors.New("endpoint circuit breaker is open")

// Client issues OPC UA operations against configured endpoints. A
// fresh session is established per operation; historian reads are
// infrequent enough that session reuse is not worth the reconnect
// bookkeeping.
type Client struct {
	cfg config.HistorianConfig

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[interface{}]
	limiters map[string]*rate.Limiter
}

// NewClient creates a historian client.
func NewClient(cfg config.HistorianConfig) *Client {
	return &Client{
		cfg:      cfg,
		breakers: make(map[string]*gobreaker.CircuitBreaker[interface{}]),
		limiters: make(map[string]*rate.Limiter),
	}
}

// breakerStateValue maps gobreaker states to the gauge encoding.
func breakerStateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	default:
		return 2
	}
}

// breakerFor returns the endpoint's circuit breaker, creating it on
// first use. The breaker opens at a 60% failure ratio over at least 10
// requests and probes with up to 3 requests after 2 minutes.
func (c *Client) breakerFor(endpointID string) *gobreaker.CircuitBreaker[interface{}] {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cb, ok := c.breakers[endpointID]; ok {
		return cb
	}

	cb := gobreaker.NewCircuitBreaker[interface{}](gobreaker.Settings{
		Name:        "historian-" + endpointID,
		MaxRequests: 3,
		Timeout:     2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 10 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().
				Str("endpoint_id", endpointID).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Historian circuit breaker state changed")
			metrics.BreakerState.WithLabelValues(endpointID).Set(breakerStateValue(to))
			metrics.BreakerTransitions.WithLabelValues(endpointID, from.String(), to.String()).Inc()
		},
	})
	c.breakers[endpointID] = cb
	return cb
}

// limiterFor returns the endpoint's read rate limiter.
func (c *Client) limiterFor(endpointID string) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()

	if l, ok := c.limiters[endpointID]; ok {
		return l
	}

	limit := rate.Inf
	burst := 1
	if c.cfg.ReadsPerSecond > 0 {
		limit = rate.Limit(c.cfg.ReadsPerSecond)
		burst = int(c.cfg.ReadsPerSecond) + 1
	}
	l := rate.NewLimiter(limit, burst)
	c.limiters[endpointID] = l
	return l
}

// execute runs fn under the endpoint's rate limiter and circuit breaker.
func (c *Client) execute(ctx context.Context, ep models.Endpoint, fn func(ctx context.Context, conn *opcua.Client) (interface{}, error)) (interface{}, error) {
	if err := c.limiterFor(ep.ID).Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	result, err := c.breakerFor(ep.ID).Execute(func() (interface{}, error) {
		conn, err := c.connect(ctx, ep)
		if err != nil {
			return nil, err
		}
		defer func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := conn.Close(closeCtx); err != nil {
				logging.Debug().Err(err).Str("endpoint_id", ep.ID).Msg("Session close failed")
			}
		}()
		return fn(ctx, conn)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		metrics.HistorianReadsTotal.WithLabelValues(ep.ID, "breaker_open").Inc()
		return nil, fmt.Errorf("%w: %s", ErrBreakerOpen, ep.Name)
	}
	return result, err
}

// connect establishes an OPC UA session to the endpoint. The endpoint
// must carry decrypted credentials (store.GetWithCredentials).
func (c *Client) connect(ctx context.Context, ep models.Endpoint) (*opcua.Client, error) {
	connectCtx, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout)
	defer cancel()

	opts, err := c.clientOptions(connectCtx, ep)
	if err != nil {
		return nil, err
	}

	conn, err := opcua.NewClient(ep.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create client for %s: %w", ep.Name, err)
	}
	if err := conn.Connect(connectCtx); err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", ep.Name, err)
	}
	return conn, nil
}

// clientOptions builds the security and authentication options from the
// endpoint configuration, matching against the server's advertised
// endpoints when a security policy is requested.
func (c *Client) clientOptions(ctx context.Context, ep models.Endpoint) ([]opcua.Option, error) {
	policy := ep.SecurityPolicy
	if policy == "" {
		policy = "None"
	}
	mode := ep.SecurityMode
	if mode == "" {
		mode = "None"
	}

	opts := []opcua.Option{
		opcua.SecurityPolicy(policy),
		opcua.SecurityModeString(mode),
		opcua.SessionTimeout(c.cfg.ReadTimeout * 2),
	}

	switch ep.AuthMode {
	case models.EndpointAuthUserPass:
		opts = append(opts, opcua.AuthUsername(ep.Username, ep.Password))
		if desc := c.matchEndpoint(ctx, ep, policy, mode); desc != nil {
			opts = append(opts, opcua.SecurityFromEndpoint(desc, ua.UserTokenTypeUserName))
		}
	default:
		opts = append(opts, opcua.AuthAnonymous())
		if desc := c.matchEndpoint(ctx, ep, policy, mode); desc != nil {
			opts = append(opts, opcua.SecurityFromEndpoint(desc, ua.UserTokenTypeAnonymous))
		}
	}
	return opts, nil
}

// matchEndpoint discovers the server's endpoint descriptions and picks
// the one matching the requested policy and mode. Discovery failures
// are tolerated: the explicit options still apply.
func (c *Client) matchEndpoint(ctx context.Context, ep models.Endpoint, policy, mode string) *ua.EndpointDescription {
	endpoints, err := opcua.GetEndpoints(ctx, ep.URL)
	if err != nil {
		logging.Debug().Err(err).Str("endpoint_id", ep.ID).Msg("Endpoint discovery failed")
		return nil
	}
	desc, err := opcua.SelectEndpoint(endpoints, policy, ua.MessageSecurityModeFromString(mode))
	if err != nil {
		logging.Debug().Err(err).Str("endpoint_id", ep.ID).Msg("No matching endpoint description")
		return nil
	}
	return desc
}

// TestConnection verifies that a session can be established and the
// server time read. Used by the connection-test API before an endpoint
// is saved or enabled.
func (c *Client) TestConnection(ctx context.Context, ep models.Endpoint) error {
	started := time.Now()
	_, err := c.execute(ctx, ep, func(ctx context.Context, conn *opcua.Client) (interface{}, error) {
		readCtx, cancel := context.WithTimeout(ctx, c.cfg.ReadTimeout)
		defer cancel()

		// ns=0;i=2258 is the server's CurrentTime variable.
		req := &ua.ReadRequest{
			NodesToRead: []*ua.ReadValueID{
				{NodeID: ua.NewNumericNodeID(0, 2258), AttributeID: ua.AttributeIDValue},
			},
			TimestampsToReturn: ua.TimestampsToReturnBoth,
		}
		resp, err := conn.Read(readCtx, req)
		if err != nil {
			return nil, fmt.Errorf("server time read failed: %w", err)
		}
		if len(resp.Results) == 0 || resp.Results[0].Status != ua.StatusOK {
			return nil, errors.New("server time read returned no usable value")
		}
		return nil, nil
	})

	result := "success"
	if err != nil {
		result = "error"
	}
	logging.Info().
		Str("endpoint_id", ep.ID).
		Str("url", ep.URL).
		Str("result", result).
		Dur("elapsed", time.Since(started)).
		Msg("Connection test finished")
	return err
}
