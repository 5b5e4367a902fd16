package storage

import (
	"fmt"
	"strings"

	nostr "github.com/nbd-wtf/go-nostr"
)

// buildFilterQuery compiles a nostr filter into a parameterized SELECT over
// the events table. Conditions are additive; an empty filter selects the
// newest events up to the limit.
func buildFilterQuery(f nostr.Filter) (string, []interface{}) {
	var (
		query strings.Builder
		conds []string
		args  []interface{}
	)

	query.WriteString(`SELECT id, pubkey, kind, created_at, content, tags, sig FROM events`)

	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if len(f.IDs) > 0 {
		conds = append(conds, fmt.Sprintf("id = ANY(%s::text[])", arg(f.IDs)))
	}
	if len(f.Authors) > 0 {
		conds = append(conds, fmt.Sprintf("pubkey = ANY(%s::text[])", arg(f.Authors)))
	}
	if len(f.Kinds) > 0 {
		conds = append(conds, fmt.Sprintf("kind = ANY(%s::integer[])", arg(f.Kinds)))
	}
	if f.Since != nil {
		conds = append(conds, fmt.Sprintf("created_at >= %s", arg(f.Since.Time().Unix())))
	}
	if f.Until != nil {
		conds = append(conds, fmt.Sprintf("created_at <= %s", arg(f.Until.Time().Unix())))
	}
	if f.Search != "" {
		conds = append(conds, fmt.Sprintf("content ILIKE %s", arg("%"+strings.TrimSpace(f.Search)+"%")))
	}
	for tagName, tagValues := range f.Tags {
		if len(tagValues) == 0 {
			continue
		}
		pairs := make([][]string, 0, len(tagValues))
		for _, v := range tagValues {
			pairs = append(pairs, []string{tagName, v})
		}
		conds = append(conds, fmt.Sprintf("tags @> %s", arg(pairs)))
	}

	if len(conds) > 0 {
		query.WriteString(" WHERE ")
		query.WriteString(strings.Join(conds, " AND "))
	}

	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 500
	}
	// since-only filters read forward from the timestamp, everything else
	// returns newest first
	if f.Since != nil && f.Until == nil {
		query.WriteString(" ORDER BY created_at ASC")
	} else {
		query.WriteString(" ORDER BY created_at DESC")
	}
	query.WriteString(fmt.Sprintf(" LIMIT %s", arg(limit)))

	return query.String(), args
}
