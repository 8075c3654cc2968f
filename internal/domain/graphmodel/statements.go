package graphmodel

import (
	"fmt"
	"strings"
)

// Statement renders the Cypher DDL for the constraint.
func (c ConstraintSpec) Statement() string {
	target := propertyTuple("n", c.Properties)
	var requirement string
	switch c.Type {
	case ConstraintNodeKey:
		requirement = target + " IS NODE KEY"
	case ConstraintExists:
		requirement = target + " IS NOT NULL"
	default:
		requirement = target + " IS UNIQUE"
	}
	return fmt.Sprintf("CREATE CONSTRAINT %s IF NOT EXISTS FOR (n:%s) REQUIRE %s", c.Name, c.Label, requirement)
}

// Statement renders the Cypher DDL for the index. VECTOR indexes carry their
// dimension and similarity function in the index config.
func (i IndexSpec) Statement() string {
	switch i.Type {
	case IndexText:
		return fmt.Sprintf("CREATE TEXT INDEX %s IF NOT EXISTS FOR (n:%s) ON (n.%s)", i.Name, i.Label, i.Properties[0])
	case IndexFulltext:
		props := make([]string, len(i.Properties))
		for k, p := range i.Properties {
			props[k] = "n." + p
		}
		return fmt.Sprintf("CREATE FULLTEXT INDEX %s IF NOT EXISTS FOR (n:%s) ON EACH [%s]", i.Name, i.Label, strings.Join(props, ", "))
	case IndexVector:
		return fmt.Sprintf(
			"CREATE VECTOR INDEX %s IF NOT EXISTS FOR (n:%s) ON (n.%s) OPTIONS {indexConfig: {`vector.dimensions`: %d, `vector.similarity_function`: '%s'}}",
			i.Name, i.Label, i.Properties[0], i.Dimension, i.Similarity,
		)
	default:
		props := make([]string, len(i.Properties))
		for k, p := range i.Properties {
			props[k] = "n." + p
		}
		return fmt.Sprintf("CREATE INDEX %s IF NOT EXISTS FOR (n:%s) ON (%s)", i.Name, i.Label, strings.Join(props, ", "))
	}
}

// Statements lists the schema DDL for the model: constraints first, then indexes.
func (m *LoadModel) Statements() []string {
	out := make([]string, 0, len(m.Constraints)+len(m.Indexes))
	for _, c := range m.Constraints {
		out = append(out, c.Statement())
	}
	for _, i := range m.Indexes {
		out = append(out, i.Statement())
	}
	return out
}

func propertyTuple(v string, props []string) string {
	if len(props) == 1 {
		return v + "." + props[0]
	}
	parts := make([]string, len(props))
	for i, p := range props {
		parts[i] = v + "." + p
	}
	return "(" + strings.Join(parts, ", ") + ")"
}
