package opensearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"

	"github.com/dmitrymomot/notifykit/pkg/notifications"
)

// DeliveryLog indexes delivery results, one document per attempt.
type DeliveryLog struct {
	transport opensearchapi.Transport
	index     string
}

// NewDeliveryLog creates a delivery log on index. *opensearch.Client
// satisfies opensearchapi.Transport.
func NewDeliveryLog(transport opensearchapi.Transport, index string) *DeliveryLog {
	if index == "" {
		index = "notification-deliveries"
	}
	return &DeliveryLog{transport: transport, index: index}
}

// Record implements notifications.DeliveryLog.
func (l *DeliveryLog) Record(ctx context.Context, result notifications.DeliveryResult) error {
	body, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal delivery result: %w", err)
	}

	req := opensearchapi.IndexRequest{
		Index: l.index,
		Body:  bytes.NewReader(body),
	}
	if result.NotificationID != "" {
		req.DocumentID = result.NotificationID + ":" + string(result.Channel)
	}

	resp, err := req.Do(ctx, l.transport)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRequestFailed, err)
	}
	defer resp.Body.Close()
	if resp.IsError() {
		return fmt.Errorf("%w: %s", ErrRequestFailed, resp.Status())
	}
	return nil
}

// Recent returns the latest delivery results for a recipient, newest first.
func (l *DeliveryLog) Recent(ctx context.Context, recipientID string, limit int) ([]notifications.DeliveryResult, error) {
	if limit <= 0 {
		limit = 20
	}
	query := map[string]any{
		"size": limit,
		"sort": []any{map[string]any{"at": map[string]string{"order": "desc"}}},
		"query": map[string]any{
			"term": map[string]any{"recipient_id": recipientID},
		},
	}
	body, err := json.Marshal(query)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal query: %w", err)
	}

	req := opensearchapi.SearchRequest{
		Index: []string{l.index},
		Body:  bytes.NewReader(body),
	}
	resp, err := req.Do(ctx, l.transport)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRequestFailed, err)
	}
	defer resp.Body.Close()
	if resp.IsError() {
		return nil, fmt.Errorf("%w: %s", ErrRequestFailed, resp.Status())
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read search response: %w", err)
	}
	var parsed struct {
		Hits struct {
			Hits []struct {
				Source notifications.DeliveryResult `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}

	out := make([]notifications.DeliveryResult, 0, len(parsed.Hits.Hits))
	for _, h := range parsed.Hits.Hits {
		out = append(out, h.Source)
	}
	return out, nil
}
