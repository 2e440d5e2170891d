package chain

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rpcServer(t *testing.T, handle func(method string, params []json.RawMessage) (any, *RPCError)) *RPCClient {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     uint64            `json:"id"`
			Method string            `json:"method"`
			Params []json.RawMessage `json:"params"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		result, rpcErr := handle(req.Method, req.Params)
		resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}
		if rpcErr != nil {
			resp["error"] = rpcErr
		} else {
			resp["result"] = result
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)

	client, err := NewRPCClient(ClientConfig{URL: srv.URL, Timeout: 2 * time.Second})
	require.NoError(t, err)
	return client
}

func TestNewRPCClientRequiresURL(t *testing.T) {
	_, err := NewRPCClient(ClientConfig{})
	assert.Error(t, err)
}

func TestGetObject(t *testing.T) {
	client := rpcServer(t, func(method string, params []json.RawMessage) (any, *RPCError) {
		assert.Equal(t, "sui_getObject", method)
		var id string
		assert.NoError(t, json.Unmarshal(params[0], &id))
		if id == "0xmissing" {
			return map[string]any{"error": map[string]any{"code": "notExists", "object_id": id}}, nil
		}
		return map[string]any{"data": map[string]any{
			"objectId":            id,
			"version":             "7",
			"type":                "0xpkg::invoice::Invoice",
			"previousTransaction": "txPrev",
			"content": map[string]any{
				"dataType": "moveObject",
				"type":     "0xpkg::invoice::Invoice",
				"fields":   map[string]any{"amount": "10000", "status": 2},
			},
		}}, nil
	})

	obj, err := client.GetObject(context.Background(), "0xabc")
	require.NoError(t, err)
	assert.Equal(t, "0xabc", obj.ID)
	assert.Equal(t, "0xpkg::invoice::Invoice", obj.Type)
	assert.Equal(t, "txPrev", obj.PreviousTx)
	assert.JSONEq(t, `{"amount":"10000","status":2}`, string(obj.Fields))

	_, err = client.GetObject(context.Background(), "0xmissing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NotErrorIs(t, err, ErrTransport)
}

func TestCallWrapsRPCErrorsAsTransport(t *testing.T) {
	client := rpcServer(t, func(string, []json.RawMessage) (any, *RPCError) {
		return nil, &RPCError{Code: -32602, Message: "invalid params"}
	})

	_, err := client.GetObject(context.Background(), "0xabc")
	assert.ErrorIs(t, err, ErrTransport)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestCallUnreachableNode(t *testing.T) {
	client, err := NewRPCClient(ClientConfig{URL: "http://127.0.0.1:1", Timeout: time.Second})
	require.NoError(t, err)

	_, err = client.QueryEvents(context.Background(), EventQuery{EventType: "0xpkg::invoice::InvoiceCreated", Limit: 10})
	assert.ErrorIs(t, err, ErrTransport)
}

func TestQueryEvents(t *testing.T) {
	client := rpcServer(t, func(method string, params []json.RawMessage) (any, *RPCError) {
		assert.Equal(t, "suix_queryEvents", method)
		assert.JSONEq(t, `{"MoveEventModule":{"package":"0xpkg","module":"invoice"}}`, string(params[0]))
		assert.JSONEq(t, `null`, string(params[1]))
		assert.JSONEq(t, `25`, string(params[2]))
		assert.JSONEq(t, `false`, string(params[3]))
		return map[string]any{
			"data": []any{map[string]any{
				"id":          map[string]any{"txDigest": "tx1", "eventSeq": "0"},
				"sender":      "0xseller",
				"type":        "0xpkg::invoice::InvoiceFinanced",
				"parsedJson":  map[string]any{"invoice_id": "0xinv"},
				"timestampMs": "1700000000000",
			}},
			"nextCursor":  map[string]any{"txDigest": "tx1", "eventSeq": "0"},
			"hasNextPage": true,
		}, nil
	})

	page, err := client.QueryEvents(context.Background(), EventQuery{Package: "0xpkg", Module: "invoice", Limit: 25})
	require.NoError(t, err)
	require.Len(t, page.Events, 1)
	ev := page.Events[0]
	assert.Equal(t, "tx1", ev.TxDigest)
	assert.Equal(t, "0xseller", ev.Sender)
	assert.Equal(t, time.UnixMilli(1700000000000).UTC(), ev.Timestamp)
	assert.JSONEq(t, `{"invoice_id":"0xinv"}`, string(ev.Payload))
	assert.True(t, page.HasNext)
	require.NotNil(t, page.NextCursor)
	assert.Equal(t, "tx1", page.NextCursor.TxDigest)
}

func TestGetTransactionKeepsCreatedObjects(t *testing.T) {
	client := rpcServer(t, func(method string, _ []json.RawMessage) (any, *RPCError) {
		assert.Equal(t, "sui_getTransactionBlock", method)
		return map[string]any{
			"digest": "tx9",
			"objectChanges": []any{
				map[string]any{"type": "mutated", "objectType": "0x2::coin::Coin<0x2::sui::SUI>", "objectId": "0xcoin"},
				map[string]any{"type": "created", "objectType": "0xpkg::invoice::Invoice", "objectId": "0xinv"},
				map[string]any{"type": "created", "objectType": "0xpkg::escrow::Escrow", "objectId": "0xesc"},
			},
		}, nil
	})

	tx, err := client.GetTransaction(context.Background(), "tx9")
	require.NoError(t, err)
	assert.Equal(t, []CreatedObject{
		{Type: "0xpkg::invoice::Invoice", ID: "0xinv"},
		{Type: "0xpkg::escrow::Escrow", ID: "0xesc"},
	}, tx.Created)
}

func TestGetOwnedObjectsFollowsCursor(t *testing.T) {
	calls := 0
	client := rpcServer(t, func(method string, params []json.RawMessage) (any, *RPCError) {
		assert.Equal(t, "suix_getOwnedObjects", method)
		calls++
		if calls == 1 {
			assert.JSONEq(t, `null`, string(params[2]))
			return map[string]any{
				"data":        []any{map[string]any{"data": map[string]any{"objectId": "0xcap1"}}},
				"nextCursor":  "0xcap1",
				"hasNextPage": true,
			}, nil
		}
		assert.JSONEq(t, `"0xcap1"`, string(params[2]))
		return map[string]any{
			"data":        []any{map[string]any{"data": map[string]any{"objectId": "0xcap2"}}},
			"nextCursor":  nil,
			"hasNextPage": false,
		}, nil
	})

	ids, err := client.GetOwnedObjects(context.Background(), "0xowner", "0xpkg::business::BusinessCap")
	require.NoError(t, err)
	assert.Equal(t, []string{"0xcap1", "0xcap2"}, ids)
	assert.Equal(t, 2, calls)
}

func TestTypeName(t *testing.T) {
	assert.Equal(t, "Escrow", TypeName("0xpkg::escrow::Escrow"))
	assert.Equal(t, "Funding", TypeName("0xpkg::funding::Funding<0x2::sui::SUI>"))
	assert.Equal(t, "Plain", TypeName("Plain"))
}
