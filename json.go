package weatherproof

import (
	"context"
	"encoding/json"
)

// GetJSON fetches the value for key and unmarshals the payload into v.
// The returned Result carries the same staleness and degradation flags as
// GetData; a payload that does not decode is a validation error even when
// it came from the cache.
func (c *Client) GetJSON(ctx context.Context, key string, v interface{}) (*Result, error) {
	result, err := c.GetData(ctx, key)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(result.Payload, v); err != nil {
		return nil, &Error{
			Type:      ErrorTypeValidation,
			Message:   "decoding payload failed",
			Key:       key,
			Cause:     err,
			Timestamp: c.clock.Now(),
		}
	}
	return result, nil
}
