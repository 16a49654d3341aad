package document

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Vec3 is an x, y, z triple.
type Vec3 [3]float64

// Distribution names understood by the pipeline.
const (
	DistLinear  = "linear"
	DistUniform = "uniform"
	DistNormal  = "normal"
)

// Value is a frame location or rotation: either a fixed vector or a named
// distribution with its vector arguments. A zero Dist means fixed.
type Value struct {
	Dist  string
	Fixed Vec3
	Args  []Vec3
}

// Fixed returns a constant vector value.
func Fixed(x, y, z float64) Value {
	return Value{Fixed: Vec3{x, y, z}}
}

// Linear samples base + step * spread.
func Linear(base, spread Vec3) Value {
	return Value{Dist: DistLinear, Args: []Vec3{base, spread}}
}

// Uniform samples uniformly between lo and hi.
func Uniform(lo, hi Vec3) Value {
	return Value{Dist: DistUniform, Args: []Vec3{lo, hi}}
}

// Normal samples around mean with the given standard deviation.
func Normal(mean, stddev Vec3) Value {
	return Value{Dist: DistNormal, Args: []Vec3{mean, stddev}}
}

// IsFixed reports whether v is a constant vector.
func (v Value) IsFixed() bool { return v.Dist == "" }

func (v Value) String() string {
	if v.IsFixed() {
		return fmt.Sprintf("%v", v.Fixed)
	}
	return fmt.Sprintf("%s%v", v.Dist, v.Args)
}

// MarshalYAML writes [x, y, z] or {dist: [[..], [..]]}.
func (v Value) MarshalYAML() (any, error) {
	if v.IsFixed() {
		return v.Fixed[:], nil
	}
	args := make([][]float64, 0, len(v.Args))
	for i := range v.Args {
		args = append(args, v.Args[i][:])
	}
	return map[string][][]float64{v.Dist: args}, nil
}

func (v *Value) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.SequenceNode:
		vec, err := decodeVec3(node)
		if err != nil {
			return err
		}
		*v = Value{Fixed: vec}
		return nil
	case yaml.MappingNode:
		if len(node.Content) != 2 {
			return fmt.Errorf("line %d: distribution must have exactly one name", node.Line)
		}
		name := node.Content[0].Value
		argsNode := node.Content[1]
		if argsNode.Kind != yaml.SequenceNode {
			return fmt.Errorf("line %d: %s arguments must be a list", argsNode.Line, name)
		}
		out := Value{Dist: name, Args: make([]Vec3, 0, len(argsNode.Content))}
		for _, arg := range argsNode.Content {
			vec, err := decodeVec3(arg)
			if err != nil {
				return err
			}
			out.Args = append(out.Args, vec)
		}
		*v = out
		return nil
	default:
		return fmt.Errorf("line %d: expected vector or distribution", node.Line)
	}
}

func decodeVec3(node *yaml.Node) (Vec3, error) {
	var raw []float64
	if err := node.Decode(&raw); err != nil {
		return Vec3{}, err
	}
	if len(raw) != 3 {
		return Vec3{}, fmt.Errorf("line %d: expected 3 components, got %d", node.Line, len(raw))
	}
	return Vec3{raw[0], raw[1], raw[2]}, nil
}
