// Package notes loads note files into validated Document values.
//
// A document's metadata is derived exactly once, here, at ingestion time:
// front-matter tags, inline hashtags, path facets (date and category
// hierarchy), and a coarse note-type classification. Every later read site
// trusts the resulting struct instead of re-deriving fields ad hoc.
//
// # Basic Usage
//
//	loader := notes.NewLoader("/home/me/notes")
//	doc, err := loader.Load(ctx, "projects/auth/jwt.md")
//	if err != nil {
//	    log.Printf("load failed: %v", err)
//	}
//
// # Metadata Derivation
//
// Tags come from two places and are merged, lowercased, and deduplicated:
//
//   - YAML front matter: a "tags:" list between leading "---" fences
//   - Inline hashtag tokens: #auth, #jwt/refresh
//
// Path facets are inferred from the relative path. Date-like segments
// (2024/03/15 or a 2024-03-15 filename prefix) populate year/month/day;
// the first two directory levels populate category/subcategory.
package notes
