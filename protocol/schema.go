package protocol

import (
	"encoding/json"

	"github.com/invopop/jsonschema"

	"github.com/tsawler/go-netviz/trace"
)

func generateSchema[T any]() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	return reflector.Reflect(v)
}

// Schema returns the JSON Schema of the data field for every kind that
// carries one.
func Schema() map[MessageType]*jsonschema.Schema {
	return map[MessageType]*jsonschema.Schema{
		TopologyInit:      generateSchema[[]LayerDescriptor](),
		InputImageData:    generateSchema[InputImage](),
		ExplanationUpdate: generateSchema[Explanation](),
		ConvStep:          generateSchema[trace.ConvStep](),
		PoolStep:          generateSchema[trace.PoolStep](),
		LayerUpdate:       generateSchema[trace.ActivationUpdate](),
	}
}

// SchemaJSON renders Schema as indented JSON keyed by message type.
func SchemaJSON() ([]byte, error) {
	return json.MarshalIndent(Schema(), "", "  ")
}
