package nakama

import (
	"encoding/json"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// marshalEvent encodes an event payload as a protobuf Struct so clients on
// any SDK can decode it without generated types. The payload shapes match
// the channel wire vocabulary.
func marshalEvent(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	s, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, err
	}
	return proto.Marshal(s)
}

// unmarshalEvent decodes a protobuf Struct message into the given payload
// struct.
func unmarshalEvent(data []byte, into any) error {
	var s structpb.Struct
	if err := proto.Unmarshal(data, &s); err != nil {
		return err
	}
	raw, err := json.Marshal(s.AsMap())
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, into)
}
