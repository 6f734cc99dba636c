package broker

import (
	"github.com/goccy/go-json"
	"google.golang.org/grpc/encoding"
)

// codecName is the gRPC content subtype used by broker calls
const codecName = "json"

type codec struct{}

func (codec) Marshal(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func (codec) Unmarshal(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

func (codec) Name() string {
	return codecName
}

func init() {
	encoding.RegisterCodec(codec{})
}
