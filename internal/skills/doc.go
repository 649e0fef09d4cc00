// Package skills loads the markdown skill documents an agent host reads, parsing only
// the leading frontmatter block for name, description, and preferred model.
package skills
