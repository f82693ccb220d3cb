package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/dtroode/rollcall-server/internal/apierrors"
)

// unaryMethod is the shape of every handler method: a JSON-like request in, a JSON-like response out.
type unaryMethod func(srv any, ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)

// unaryHandler adapts a unaryMethod to grpc.MethodHandler, running the server interceptor chain.
func unaryHandler(fullMethod string, call unaryMethod) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv, ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
			return call(srv, ctx, req.(*structpb.Struct))
		})
	}
}

// decodeRequest copies a request struct into dst. Unknown fields are rejected.
func decodeRequest(in *structpb.Struct, dst any) error {
	raw, err := json.Marshal(in.AsMap())
	if err != nil {
		return apierrors.NewErrInvalidArgument("malformed request")
	}
	d := json.NewDecoder(bytes.NewReader(raw))
	d.DisallowUnknownFields()
	if err := d.Decode(dst); err != nil {
		return apierrors.NewErrInvalidArgument(fmt.Sprintf("malformed request: %s", err.Error()))
	}
	return nil
}

// encodeResponse converts a JSON-tagged value into a response struct.
func encodeResponse(src any) (*structpb.Struct, error) {
	raw, err := json.Marshal(src)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal response: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, fmt.Errorf("failed to build response: %w", err)
	}
	return out, nil
}
