package graph

import (
	"strings"
)

func quote(ident string) string {
	return "`" + strings.ReplaceAll(ident, "`", "``") + "`"
}

func labelExpr(label string, extra []string) string {
	var b strings.Builder
	b.WriteString(quote(label))
	for _, l := range extra {
		b.WriteString(":")
		b.WriteString(quote(l))
	}
	return b.String()
}

func mergeNodesCypher(ref NodeRef, extraLabels []string) string {
	q := "UNWIND $rows AS row\n" +
		"MERGE (n:" + quote(ref.Label) + " {" + quote(ref.IDProperty) + ": row.id})\n" +
		"SET n += row.props"
	if len(extraLabels) > 0 {
		q += "\nSET n:" + labelExpr(extraLabels[0], extraLabels[1:])
	}
	return q
}

func existingIDsCypher(ref NodeRef) string {
	return "UNWIND $ids AS id\n" +
		"MATCH (n:" + quote(ref.Label) + " {" + quote(ref.IDProperty) + ": id})\n" +
		"RETURN DISTINCT n." + quote(ref.IDProperty) + " AS id"
}

func mergeRelationshipsCypher(ref RelRef) string {
	return "UNWIND $rows AS row\n" +
		"MATCH (a:" + quote(ref.Source.Label) + " {" + quote(ref.Source.IDProperty) + ": row.source})\n" +
		"MATCH (b:" + quote(ref.Target.Label) + " {" + quote(ref.Target.IDProperty) + ": row.target})\n" +
		"MERGE (a)-[r:" + quote(ref.Type) + "]->(b)"
}

func countNodesCypher(label string) string {
	return "MATCH (n:" + quote(label) + ") RETURN count(n) AS c"
}

func countRelationshipsCypher(relType string) string {
	return "MATCH ()-[r:" + quote(relType) + "]->() RETURN count(r) AS c"
}

func orphanNodesCypher(label string, relTypes []string) string {
	types := make([]string, 0, len(relTypes))
	for _, t := range relTypes {
		types = append(types, quote(t))
	}
	return "MATCH (n:" + quote(label) + ")\n" +
		"WHERE NOT EXISTS { MATCH (n)-[:" + strings.Join(types, "|") + "]-() }\n" +
		"RETURN count(n) AS c"
}

func orphanRelationshipsCypher(ref RelRef) string {
	return "MATCH (a)-[r:" + quote(ref.Type) + "]->(b)\n" +
		"WHERE NOT (a:" + quote(ref.Source.Label) + " AND a." + quote(ref.Source.IDProperty) + " IS NOT NULL)\n" +
		"   OR NOT (b:" + quote(ref.Target.Label) + " AND b." + quote(ref.Target.IDProperty) + " IS NOT NULL)\n" +
		"RETURN count(r) AS c"
}

func duplicateIDsCypher(ref NodeRef) string {
	return "MATCH (n:" + quote(ref.Label) + ")\n" +
		"WHERE n." + quote(ref.IDProperty) + " IS NOT NULL\n" +
		"WITH n." + quote(ref.IDProperty) + " AS id, count(*) AS c\n" +
		"WHERE c > 1\n" +
		"RETURN count(id) AS c"
}

func missingPropertyCypher(label, property string) string {
	return "MATCH (n:" + quote(label) + ") WHERE n." + quote(property) + " IS NULL RETURN count(n) AS c"
}
