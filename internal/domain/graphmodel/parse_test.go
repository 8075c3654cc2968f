package graphmodel

import (
	"errors"
	"os"
	"strings"
	"testing"
)

func loadFixture(t *testing.T) *LoadModel {
	t.Helper()
	m, err := Load("testdata/articles.yaml", "articles")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return m
}

func TestLoad_TypedSpecs(t *testing.T) {
	m := loadFixture(t)

	if got := strings.Join(m.Labels(), ","); got != "Article,Website,Tag,Chunk" {
		t.Fatalf("labels: got=%q", got)
	}
	if got := strings.Join(m.RelationshipTypes(), ","); got != "HAS_CHUNK,PUBLISHED_ON,TAGGED_WITH" {
		t.Fatalf("relationship types: got=%q", got)
	}
	web, ok := m.Node("Website")
	if !ok {
		t.Fatalf("Website not found")
	}
	if web.IDProperty().SourceColumn() != "website_url" {
		t.Fatalf("Website id column: want=%q got=%q", "website_url", web.IDProperty().SourceColumn())
	}
	tag, _ := m.Node("Tag")
	if !tag.IsMultiValued() || tag.Delimiter != "," {
		t.Fatalf("Tag should be multi-valued with ',' delimiter: %+v", tag)
	}
	article, _ := m.Node("Article")
	if len(article.MultipleLabels) != 1 || article.MultipleLabels[0] != "Content" {
		t.Fatalf("Article extra labels: %v", article.MultipleLabels)
	}
	if m.Chunking == nil || m.Chunking.NodeLabel != "Chunk" {
		t.Fatalf("chunking: %+v", m.Chunking)
	}
	if m.EmbeddingDimension() != 8 {
		t.Fatalf("embedding dimension: want=8 got=%d", m.EmbeddingDimension())
	}
	if m.Query.SQL == "" || strings.HasSuffix(m.Query.SQL, ";") {
		t.Fatalf("query sql should be trimmed: %q", m.Query.SQL)
	}
}

func TestLoad_DerivedSchema(t *testing.T) {
	m := loadFixture(t)

	wantConstraints := map[string]ConstraintType{
		"article_article_id_unique": ConstraintUnique,
		"website_url_unique":        ConstraintUnique,
		"tag_name_unique":           ConstraintUnique,
		"chunk_chunk_id_unique":     ConstraintUnique,
		"website_domain_exists":     ConstraintExists,
	}
	got := map[string]ConstraintType{}
	for _, c := range m.Constraints {
		got[c.Name] = c.Type
	}
	for name, typ := range wantConstraints {
		if got[name] != typ {
			t.Fatalf("constraint %s: want=%s got=%s", name, typ, got[name])
		}
	}

	var vector *IndexSpec
	for i := range m.Indexes {
		if m.Indexes[i].Type == IndexVector {
			vector = &m.Indexes[i]
		}
	}
	if vector == nil {
		t.Fatalf("expected a derived VECTOR index")
	}
	if vector.Dimension != 8 || vector.Similarity != "cosine" || vector.Label != "Chunk" {
		t.Fatalf("vector index: %+v", vector)
	}
	stmt := vector.Statement()
	if !strings.Contains(stmt, "CREATE VECTOR INDEX chunk_embedding_vector IF NOT EXISTS FOR (n:Chunk) ON (n.embedding)") {
		t.Fatalf("vector statement: %s", stmt)
	}
	if !strings.Contains(stmt, "`vector.dimensions`: 8") || !strings.Contains(stmt, "'cosine'") {
		t.Fatalf("vector statement missing config: %s", stmt)
	}

	stmts := m.Statements()
	if len(stmts) != len(m.Constraints)+len(m.Indexes) {
		t.Fatalf("statements: want=%d got=%d", len(m.Constraints)+len(m.Indexes), len(stmts))
	}
	if !strings.HasPrefix(stmts[0], "CREATE CONSTRAINT") {
		t.Fatalf("constraints must come first: %s", stmts[0])
	}
}

func TestParse_Rejections(t *testing.T) {
	base := func() map[string]any {
		return map[string]any{
			"nodes": []any{
				map[string]any{
					"label":            "Article",
					"node_id_property": "id",
					"properties": []any{
						map[string]any{"name": "id", "type": "string"},
					},
				},
			},
			"queries": map[string]any{
				"q": map[string]any{"sql": "SELECT id FROM a", "sort_key": "id"},
			},
		}
	}

	cases := []struct {
		name     string
		mutate   func(m map[string]any)
		query    string
		wantText string
	}{
		{
			name: "unknown property type",
			mutate: func(m map[string]any) {
				n := m["nodes"].([]any)[0].(map[string]any)
				n["properties"] = append(n["properties"].([]any), map[string]any{"name": "body", "type": "blob"})
			},
			query:    "q",
			wantText: "label Article property body: unrecognized type \"blob\"",
		},
		{
			name: "id property not declared",
			mutate: func(m map[string]any) {
				m["nodes"].([]any)[0].(map[string]any)["node_id_property"] = "uuid"
			},
			query:    "q",
			wantText: "node_id_property not declared",
		},
		{
			name: "vector without dimension",
			mutate: func(m map[string]any) {
				n := m["nodes"].([]any)[0].(map[string]any)
				n["properties"] = append(n["properties"].([]any), map[string]any{"name": "emb", "type": "vector"})
			},
			query:    "q",
			wantText: "vector_dimension must be positive",
		},
		{
			name: "relationship to unknown label",
			mutate: func(m map[string]any) {
				m["relationships"] = []any{map[string]any{
					"type": "LINKS", "source_label": "Article", "target_label": "Ghost",
					"source_property": "id", "target_property": "ghost_id",
				}}
			},
			query:    "q",
			wantText: "unknown target_label",
		},
		{
			name:     "unknown query",
			mutate:   func(map[string]any) {},
			query:    "missing",
			wantText: "query \"missing\" not declared",
		},
		{
			name: "unknown key",
			mutate: func(m map[string]any) {
				m["nodez"] = []any{}
			},
			query:    "q",
			wantText: "decode model",
		},
		{
			name: "invalid sort key",
			mutate: func(m map[string]any) {
				m["queries"].(map[string]any)["q"].(map[string]any)["sort_key"] = "id; DROP TABLE a"
			},
			query:    "q",
			wantText: "invalid sort_key",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			raw := base()
			tc.mutate(raw)
			_, err := Parse(raw, tc.query)
			if err == nil {
				t.Fatalf("expected error")
			}
			var me *ModelError
			if !errors.As(err, &me) {
				t.Fatalf("expected *ModelError, got=%T", err)
			}
			if !strings.Contains(err.Error(), tc.wantText) {
				t.Fatalf("error: want substring %q got=%q", tc.wantText, err.Error())
			}
		})
	}
}

func TestParse_ChunkLabelOnlyInChunkingRelationship(t *testing.T) {
	b, err := os.ReadFile("testdata/articles.yaml")
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}
	doc := strings.Replace(string(b), "relationships:\n",
		"relationships:\n  - {type: FROM_SITE, source_label: Chunk, target_label: Website, source_property: chunk_id, target_property: website_url}\n", 1)

	_, err = ParseYAML([]byte(doc), "articles")
	if err == nil {
		t.Fatalf("expected error for a second relationship on the chunk label")
	}
	var me *ModelError
	if !errors.As(err, &me) {
		t.Fatalf("expected *ModelError, got=%T", err)
	}
	if me.Relationship != "FROM_SITE" {
		t.Fatalf("relationship: want=FROM_SITE got=%q", me.Relationship)
	}
	if !strings.Contains(err.Error(), "only the chunking relationship may touch Chunk") {
		t.Fatalf("error: got=%q", err.Error())
	}
}

func TestModel_ReferencedColumns(t *testing.T) {
	m := loadFixture(t)
	got := strings.Join(m.ReferencedColumns(), ",")
	want := "article_id,content,domain,published_at,tags,title,website_url,word_count"
	if got != want {
		t.Fatalf("columns: want=%q got=%q", want, got)
	}
}

func TestModel_RequiredTypes(t *testing.T) {
	m := loadFixture(t)
	if got := strings.Join(m.RequiredTypes("Article"), ","); got != "HAS_CHUNK,PUBLISHED_ON,TAGGED_WITH" {
		t.Fatalf("Article required: got=%q", got)
	}
	if got := strings.Join(m.RequiredTypes("Tag"), ","); got != "TAGGED_WITH" {
		t.Fatalf("Tag required: got=%q", got)
	}
}
