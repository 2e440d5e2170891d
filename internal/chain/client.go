package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"
)

const (
	defaultTimeout    = 15 * time.Second
	ownedObjectsLimit = 50
)

// RPCRequest is a JSON-RPC 2.0 request envelope.
type RPCRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
	ID      uint64        `json:"id"`
}

// RPCResponse is a JSON-RPC 2.0 response envelope.
type RPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError is the error member of a JSON-RPC response.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// ClientConfig holds RPC client configuration.
type ClientConfig struct {
	URL     string
	Timeout time.Duration
}

// RPCClient reads from a Sui-compatible full node over JSON-RPC.
type RPCClient struct {
	url        string
	httpClient *http.Client
	nextID     atomic.Uint64
}

// NewRPCClient creates a JSON-RPC reader. Timeouts are owned by the HTTP client.
func NewRPCClient(cfg ClientConfig) (*RPCClient, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("rpc url required")
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	return &RPCClient{
		url:        cfg.URL,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// Call makes an RPC call and returns the raw result. Every failure wraps ErrTransport.
func (c *RPCClient) Call(ctx context.Context, method string, params []interface{}) (json.RawMessage, error) {
	req := RPCRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      c.nextID.Add(1),
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal %s: %v", ErrTransport, method, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %v", ErrTransport, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrTransport, method, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s response: %v", ErrTransport, method, err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("%w: %s: http status %d", ErrTransport, method, resp.StatusCode)
	}

	var rpcResp RPCResponse
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return nil, fmt.Errorf("%w: decode %s response: %v", ErrTransport, method, err)
	}
	if rpcResp.Error != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrTransport, method, rpcResp.Error)
	}
	return rpcResp.Result, nil
}

type objectResponse struct {
	Data *struct {
		ObjectID            string `json:"objectId"`
		Version             string `json:"version"`
		Type                string `json:"type"`
		PreviousTransaction string `json:"previousTransaction"`
		Content             *struct {
			Type   string          `json:"type"`
			Fields json.RawMessage `json:"fields"`
		} `json:"content"`
	} `json:"data"`
	Error *struct {
		Code string `json:"code"`
	} `json:"error"`
}

// GetObject fetches an object with its content. Missing or deleted objects yield ErrNotFound.
func (c *RPCClient) GetObject(ctx context.Context, id string) (Object, error) {
	opts := map[string]bool{
		"showType":                true,
		"showContent":             true,
		"showPreviousTransaction": true,
	}
	result, err := c.Call(ctx, "sui_getObject", []interface{}{id, opts})
	if err != nil {
		return Object{}, err
	}

	var resp objectResponse
	if err := json.Unmarshal(result, &resp); err != nil {
		return Object{}, fmt.Errorf("%w: decode object %s: %v", ErrTransport, id, err)
	}
	if resp.Error != nil {
		switch resp.Error.Code {
		case "notExists", "deleted", "dynamicFieldNotFound":
			return Object{}, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return Object{}, fmt.Errorf("%w: object %s: %s", ErrTransport, id, resp.Error.Code)
	}
	if resp.Data == nil {
		return Object{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	obj := Object{
		ID:         resp.Data.ObjectID,
		Type:       resp.Data.Type,
		Version:    resp.Data.Version,
		PreviousTx: resp.Data.PreviousTransaction,
	}
	if resp.Data.Content != nil {
		if obj.Type == "" {
			obj.Type = resp.Data.Content.Type
		}
		obj.Fields = resp.Data.Content.Fields
	}
	return obj, nil
}

type eventsResponse struct {
	Data []struct {
		ID          EventCursor     `json:"id"`
		Sender      string          `json:"sender"`
		Type        string          `json:"type"`
		ParsedJSON  json.RawMessage `json:"parsedJson"`
		TimestampMs string          `json:"timestampMs"`
	} `json:"data"`
	NextCursor  *EventCursor `json:"nextCursor"`
	HasNextPage bool         `json:"hasNextPage"`
}

// QueryEvents returns one page of events matching the query.
func (c *RPCClient) QueryEvents(ctx context.Context, q EventQuery) (EventPage, error) {
	var filter map[string]interface{}
	switch {
	case q.EventType != "":
		filter = map[string]interface{}{"MoveEventType": q.EventType}
	case q.Package != "" && q.Module != "":
		filter = map[string]interface{}{
			"MoveEventModule": map[string]string{"package": q.Package, "module": q.Module},
		}
	default:
		return EventPage{}, fmt.Errorf("event query needs a type or a package and module")
	}

	var cursor interface{}
	if q.Cursor != nil {
		cursor = q.Cursor
	}
	result, err := c.Call(ctx, "suix_queryEvents", []interface{}{filter, cursor, q.Limit, q.Descending})
	if err != nil {
		return EventPage{}, err
	}

	var resp eventsResponse
	if err := json.Unmarshal(result, &resp); err != nil {
		return EventPage{}, fmt.Errorf("%w: decode events: %v", ErrTransport, err)
	}

	page := EventPage{
		Events:     make([]Event, 0, len(resp.Data)),
		NextCursor: resp.NextCursor,
		HasNext:    resp.HasNextPage,
	}
	for _, e := range resp.Data {
		ev := Event{
			Type:     e.Type,
			Payload:  e.ParsedJSON,
			TxDigest: e.ID.TxDigest,
			Seq:      e.ID.EventSeq,
			Sender:   e.Sender,
		}
		if ms, err := strconv.ParseInt(e.TimestampMs, 10, 64); err == nil {
			ev.Timestamp = time.UnixMilli(ms).UTC()
		}
		page.Events = append(page.Events, ev)
	}
	return page, nil
}

type transactionResponse struct {
	Digest        string `json:"digest"`
	ObjectChanges []struct {
		Type       string `json:"type"`
		ObjectType string `json:"objectType"`
		ObjectID   string `json:"objectId"`
	} `json:"objectChanges"`
}

// GetTransaction returns the objects created by the transaction.
func (c *RPCClient) GetTransaction(ctx context.Context, digest string) (Transaction, error) {
	opts := map[string]bool{"showObjectChanges": true}
	result, err := c.Call(ctx, "sui_getTransactionBlock", []interface{}{digest, opts})
	if err != nil {
		return Transaction{}, err
	}

	var resp transactionResponse
	if err := json.Unmarshal(result, &resp); err != nil {
		return Transaction{}, fmt.Errorf("%w: decode transaction %s: %v", ErrTransport, digest, err)
	}

	tx := Transaction{Digest: resp.Digest}
	if tx.Digest == "" {
		tx.Digest = digest
	}
	for _, change := range resp.ObjectChanges {
		if change.Type != "created" {
			continue
		}
		tx.Created = append(tx.Created, CreatedObject{Type: change.ObjectType, ID: change.ObjectID})
	}
	return tx, nil
}

type ownedObjectsResponse struct {
	Data []struct {
		Data *struct {
			ObjectID string `json:"objectId"`
		} `json:"data"`
	} `json:"data"`
	NextCursor  *string `json:"nextCursor"`
	HasNextPage bool    `json:"hasNextPage"`
}

// GetOwnedObjects lists the ids of objects of structType owned by owner, following cursors.
func (c *RPCClient) GetOwnedObjects(ctx context.Context, owner, structType string) ([]string, error) {
	query := map[string]interface{}{
		"filter":  map[string]string{"StructType": structType},
		"options": map[string]bool{"showType": true},
	}

	var (
		ids    []string
		cursor interface{}
	)
	for {
		result, err := c.Call(ctx, "suix_getOwnedObjects", []interface{}{owner, query, cursor, ownedObjectsLimit})
		if err != nil {
			return nil, err
		}

		var resp ownedObjectsResponse
		if err := json.Unmarshal(result, &resp); err != nil {
			return nil, fmt.Errorf("%w: decode owned objects: %v", ErrTransport, err)
		}
		for _, item := range resp.Data {
			if item.Data != nil && item.Data.ObjectID != "" {
				ids = append(ids, item.Data.ObjectID)
			}
		}
		if !resp.HasNextPage || resp.NextCursor == nil {
			return ids, nil
		}
		cursor = *resp.NextCursor
	}
}
