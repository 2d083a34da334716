package rpc

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// frameKind classifies an inbound datagram the way the original asab
// implementation does with loose dict lookups (request_obj.get('method'),
// .get('result'), .get('error')) before committing to a typed decode.
type frameKind int

const (
	kindUnknown frameKind = iota
	kindRequest
	kindResult
	kindError
)

// sniff inspects raw JSON bytes with gjson (cheap field presence checks,
// no full unmarshal) and reports which kind of frame it is plus whether it
// declared jsonrpc 2.0 at all.
func sniff(raw []byte) (kind frameKind, jsonrpcOK bool, ok bool) {
	if !gjson.ValidBytes(raw) {
		return kindUnknown, false, false
	}
	parsed := gjson.ParseBytes(raw)
	if !parsed.IsObject() {
		return kindUnknown, false, false
	}
	if parsed.Get("jsonrpc").String() != Version {
		return kindUnknown, false, false
	}
	switch {
	case parsed.Get("method").Exists():
		return kindRequest, true, true
	case parsed.Get("result").Exists():
		return kindResult, true, true
	case parsed.Get("error").Exists():
		return kindError, true, true
	default:
		return kindUnknown, true, true
	}
}

// decodeRequest fully unmarshals a frame already sniffed as kindRequest.
func decodeRequest(raw []byte) (*request, error) {
	var r request
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("rpc: decode request: %w", err)
	}
	return &r, nil
}

// decodeResult fully unmarshals a frame already sniffed as kindResult.
func decodeResult(raw []byte) (*result, error) {
	var r result
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("rpc: decode result: %w", err)
	}
	return &r, nil
}

// decodeError fully unmarshals a frame already sniffed as kindError.
func decodeError(raw []byte) (*errorFrame, error) {
	var e errorFrame
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, fmt.Errorf("rpc: decode error frame: %w", err)
	}
	return &e, nil
}

// encodeRequest builds a request frame without an intermediate struct
// allocation, using sjson on the send hot path.
func encodeRequest(id, method string, params json.RawMessage) ([]byte, error) {
	b := []byte(`{"jsonrpc":"2.0"}`)
	var err error
	b, err = sjson.SetBytes(b, "id", id)
	if err != nil {
		return nil, err
	}
	b, err = sjson.SetBytes(b, "method", method)
	if err != nil {
		return nil, err
	}
	if len(params) > 0 {
		b, err = sjson.SetRawBytes(b, "params", params)
		if err != nil {
			return nil, err
		}
	}
	return b, nil
}

// encodeResult builds a result frame.
func encodeResult(id string, value json.RawMessage) ([]byte, error) {
	b := []byte(`{"jsonrpc":"2.0"}`)
	b, err := sjson.SetBytes(b, "id", id)
	if err != nil {
		return nil, err
	}
	if len(value) == 0 {
		value = []byte("null")
	}
	return sjson.SetRawBytes(b, "result", value)
}

// encodeError builds an error frame.
func encodeError(id string, rpcErr *Error) ([]byte, error) {
	errObj, err := json.Marshal(rpcErr)
	if err != nil {
		return nil, err
	}
	b := []byte(`{"jsonrpc":"2.0"}`)
	b, err = sjson.SetBytes(b, "id", id)
	if err != nil {
		return nil, err
	}
	return sjson.SetRawBytes(b, "error", errObj)
}
