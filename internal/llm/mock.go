// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package llm

import "context"

// mockClient returns a fixed response, used in tests and when no provider
// is configured but callers still expect a non-nil router.
type mockClient struct {
	response string
}

func newMockClient(cfg ProviderConfig) Client {
	resp := cfg.Model
	if resp == "" {
		resp = "{}"
	}
	return &mockClient{response: resp}
}

func (c *mockClient) Complete(ctx context.Context, prompt string, maxTokens int) (string, *Usage, error) {
	return c.response, &Usage{Model: "mock"}, nil
}
