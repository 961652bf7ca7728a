// Package schema holds the canonical description of the analysis result and
// derives both the model's response schema and the runtime validator from it.
package schema

// Type is a JSON type supported by the schema tree.
type Type string

const (
	TypeObject  Type = "object"
	TypeArray   Type = "array"
	TypeString  Type = "string"
	TypeInteger Type = "integer"
	TypeNumber  Type = "number"
	TypeBoolean Type = "boolean"
)

// Property is a named child of an object node. Order is significant: it is
// passed to the model as the property ordering.
type Property struct {
	Name     string
	Node     *Node
	Optional bool
}

// Node describes one value in the schema tree.
type Node struct {
	Type        Type
	Description string
	Properties  []Property
	Items       *Node
	Enum        []string
	Minimum     *float64
	Maximum     *float64
	Nullable    bool
}

// Object builds an object node. Properties are required unless marked
// Optional.
func Object(props ...Property) *Node {
	return &Node{Type: TypeObject, Properties: props}
}

// Array builds an array node.
func Array(items *Node) *Node {
	return &Node{Type: TypeArray, Items: items}
}

// String builds a string node.
func String() *Node {
	return &Node{Type: TypeString}
}

// IntegerRange builds an integer node constrained to [lo, hi].
func IntegerRange(lo, hi float64) *Node {
	return &Node{Type: TypeInteger, Minimum: &lo, Maximum: &hi}
}

// Enum builds a string node restricted to values.
func Enum(values ...string) *Node {
	return &Node{Type: TypeString, Enum: values}
}

// Prop declares a required property.
func Prop(name string, n *Node) Property {
	return Property{Name: name, Node: n}
}

// OptionalProp declares a property that may be absent.
func OptionalProp(name string, n *Node) Property {
	return Property{Name: name, Node: n, Optional: true}
}

// Describe sets the description and returns n.
func (n *Node) Describe(desc string) *Node {
	n.Description = desc
	return n
}

// Required returns the names of required properties in declaration order.
func (n *Node) Required() []string {
	var out []string
	for _, p := range n.Properties {
		if !p.Optional {
			out = append(out, p.Name)
		}
	}
	return out
}
