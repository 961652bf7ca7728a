package schema

import "google.golang.org/genai"

var genaiTypes = map[Type]genai.Type{
	TypeObject:  genai.TypeObject,
	TypeArray:   genai.TypeArray,
	TypeString:  genai.TypeString,
	TypeInteger: genai.TypeInteger,
	TypeNumber:  genai.TypeNumber,
	TypeBoolean: genai.TypeBoolean,
}

// ToGenai converts the tree into the response schema used for constrained
// decoding.
func (n *Node) ToGenai() *genai.Schema {
	s := &genai.Schema{
		Type:        genaiTypes[n.Type],
		Description: n.Description,
		Minimum:     n.Minimum,
		Maximum:     n.Maximum,
	}
	if len(n.Enum) > 0 {
		s.Enum = append([]string(nil), n.Enum...)
		s.Format = "enum"
	}
	if n.Nullable {
		nullable := true
		s.Nullable = &nullable
	}
	if n.Items != nil {
		s.Items = n.Items.ToGenai()
	}
	if n.Type == TypeObject {
		s.Properties = make(map[string]*genai.Schema, len(n.Properties))
		for _, p := range n.Properties {
			s.Properties[p.Name] = p.Node.ToGenai()
			s.PropertyOrdering = append(s.PropertyOrdering, p.Name)
		}
		s.Required = n.Required()
	}
	return s
}
