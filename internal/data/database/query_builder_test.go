package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildListQuery_Basic(t *testing.T) {
	opts := NewListQueryOptions("content_items",
		WithColumns("id", "title", "status"),
		WithOrderBy("created_at", "DESC"),
		WithLimit(10),
		WithOffset(20),
	)

	query, args := BuildListQuery(opts)

	assert.Equal(t,
		`SELECT "id", "title", "status" FROM "content_items" ORDER BY "created_at" DESC LIMIT $1 OFFSET $2`,
		query)
	assert.Equal(t, []any{10, 20}, args)
}

func TestBuildListQuery_Conditions(t *testing.T) {
	opts := NewListQueryOptions("ad_campaigns",
		WithColumns("id", "name"),
		WithCondition(WhereCond("status", Equal, "active")),
		WithCondition(WhereCond("name", ILike, "%summer%")),
	)

	query, args := BuildListQuery(opts)

	assert.Equal(t,
		`SELECT "id", "name" FROM "ad_campaigns" WHERE "status" = $1 AND "name" ILIKE $2`,
		query)
	assert.Equal(t, []any{"active", "%summer%"}, args)
}

func TestBuildListQuery_InCondition(t *testing.T) {
	opts := NewListQueryOptions("content_items",
		WithConditions(WhereCond("status", In, []string{"pending", "approved"})),
	)

	query, args := BuildListQuery(opts)

	assert.Equal(t,
		`SELECT * FROM "content_items" WHERE "status" IN ($1, $2)`,
		query)
	assert.Equal(t, []any{"pending", "approved"}, args)
}

func TestBuildListQuery_AnyCondition(t *testing.T) {
	opts := NewListQueryOptions("feature_flags",
		WithCondition(WhereCond("key", Any, []string{"a", "b"})),
	)

	query, args := BuildListQuery(opts)

	assert.Equal(t,
		`SELECT * FROM "feature_flags" WHERE "key" = ANY (ARRAY[$1, $2])`,
		query)
	assert.Equal(t, []any{"a", "b"}, args)
}

func TestBuildListQuery_EmptySliceSkipsCondition(t *testing.T) {
	opts := NewListQueryOptions("content_items",
		WithCondition(WhereCond("status", In, []string{})),
	)

	query, args := BuildListQuery(opts)

	assert.Equal(t, `SELECT * FROM "content_items"`, query)
	assert.Empty(t, args)
}

func TestBuildListQuery_CustomCondition(t *testing.T) {
	opts := NewListQueryOptions("ad_campaigns",
		WithCondition(WhereCond("status", Equal, "active")),
		WithCondition(WhereRawCond("starts_at <= $1 AND ends_at >= $1", "2026-08-01")),
	)

	query, args := BuildListQuery(opts)

	assert.Equal(t,
		`SELECT * FROM "ad_campaigns" WHERE "status" = $1 AND starts_at <= $2 AND ends_at >= $2`,
		query)
	assert.Equal(t, []any{"active", "2026-08-01"}, args)
}

func TestBuildListQuery_CountOnly(t *testing.T) {
	opts := NewListQueryOptions("content_items",
		WithCountOnly(),
		WithCondition(WhereCond("status", Equal, "pending")),
		WithLimit(10),
	)

	query, args := BuildListQuery(opts)

	assert.Equal(t, `SELECT COUNT(*) FROM "content_items" WHERE "status" = $1`, query)
	assert.Equal(t, []any{"pending"}, args)
}

func TestBuildListQuery_SanitizesIdentifiers(t *testing.T) {
	opts := NewListQueryOptions(`content"; DROP TABLE x; --`,
		WithColumns(`id"; --`),
		WithOrderBy(`title"; --`, "asc; DROP"),
	)

	query, _ := BuildListQuery(opts)

	assert.NotContains(t, query, "DROP TABLE")
	assert.NotContains(t, query, "asc; DROP")
}

func TestJSONText(t *testing.T) {
	col := JSONText("rules", "segment", "segment")
	assert.Equal(t, `"rules"->>'segment' AS "segment"`, col)

	// Path injection characters are stripped.
	col = JSONText("rules", "seg'; DROP--", "alias")
	assert.Equal(t, `"rules"->>'segDROP--' AS "alias"`, col)
}

func TestProcessColumnSpec_JSONExpression(t *testing.T) {
	assert.Equal(t, `"rules"->>'segment'`, processColumnSpec("rules->>'segment'"))
	assert.Equal(t,
		`"rules"->'targeting'->>'country'`,
		processColumnSpec("rules->'targeting'->>'country'"))
	assert.Equal(t,
		`"rules"->>'segment' AS "segment"`,
		processColumnSpec("rules->>'segment' AS segment"))

	// Malformed JSON expressions are dropped rather than passed through.
	assert.Equal(t, "", processColumnSpec("rules->>'a' OR 1=1"))
}

func TestBuildListQuery_Nil(t *testing.T) {
	query, args := BuildListQuery(nil)
	assert.Empty(t, query)
	assert.Nil(t, args)
}
