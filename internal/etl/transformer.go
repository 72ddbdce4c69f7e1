package etl

import "context"

// ── Transformer ────────────────────────────────────────────
// Transformers turn one (or, for some, several) record sequences into a new
// sequence. Output is lazy: nothing is pulled from the input until the
// returned iterator is consumed.
// Implementations live in etl/transformers/.

// Transformer is the interface every transform plugin implements.
type Transformer interface {
	Type() string
	DisplayName() string
	Description() string
	ConfigSchema() ConfigSchema

	// Validate fails with a ConfigError when cfg is missing or malformed.
	Validate(cfg Config) error

	// OutputSchema computes the downstream schema without touching data.
	OutputSchema(input *Schema, cfg Config) (*Schema, error)

	// Transform maps a single input sequence.
	Transform(ctx context.Context, input Iterator, cfg Config) (Iterator, error)

	// SupportsMultipleInputs reports whether the transformer accepts more
	// than one incoming edge. Such transformers implement
	// MultiInputTransformer.
	SupportsMultipleInputs() bool
}

// MultiInputTransformer combines the outputs of several upstream nodes,
// keyed by source node id.
type MultiInputTransformer interface {
	Transformer
	TransformMulti(ctx context.Context, inputs map[string]Iterator, cfg Config) (Iterator, error)
}

// BaseTransformer provides the single-input defaults. Embed it and override
// what differs.
type BaseTransformer struct{}

func (BaseTransformer) SupportsMultipleInputs() bool { return false }

// TransformMulti fails: single-input transformers cannot be fanned into.
func (BaseTransformer) TransformMulti(context.Context, map[string]Iterator, Config) (Iterator, error) {
	return nil, &Error{Kind: ErrExecution, Msg: "multiple inputs are not supported", Err: ErrUnsupported}
}

// TransformerInfo is the introspectable description of a transformer.
type TransformerInfo struct {
	Type                   string       `json:"type"`
	DisplayName            string       `json:"displayName"`
	Description            string       `json:"description"`
	ConfigSchema           ConfigSchema `json:"configSchema"`
	SupportsMultipleInputs bool         `json:"supportsMultipleInputs"`
}

// DescribeTransformer returns the descriptor of t.
func DescribeTransformer(t Transformer) TransformerInfo {
	return TransformerInfo{
		Type:                   t.Type(),
		DisplayName:            t.DisplayName(),
		Description:            t.Description(),
		ConfigSchema:           t.ConfigSchema(),
		SupportsMultipleInputs: t.SupportsMultipleInputs(),
	}
}
