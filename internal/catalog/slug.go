package catalog

import (
	"strings"

	"github.com/gosimple/slug"
)

// DeriveSlug returns explicit when it is set, otherwise a slug made from name.
func DeriveSlug(explicit, name string) string {
	if s := strings.TrimSpace(explicit); s != "" {
		return slug.Make(s)
	}
	if s := slug.Make(name); s != "" {
		return s
	}
	return "product"
}
