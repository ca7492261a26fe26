package common

import (
	"errors"
	"regexp"
	"strings"
)

// MaxSlugLength keeps question URLs readable; longer titles are cut at a word boundary.
const MaxSlugLength = 80

var (
	ErrEmptySlug = errors.New("slug cannot be empty")
	nonSlugChars = regexp.MustCompile(`[^a-z0-9]+`)
)

// Slugify turns a question title into the URL segment shown after its id.
// fallback is used when the title has no usable characters.
func Slugify(input, fallback string) (string, error) {
	slug := slugify(input)
	if slug == "" {
		slug = slugify(fallback)
	}
	if slug == "" {
		return "", ErrEmptySlug
	}
	return slug, nil
}

func slugify(s string) string {
	lower := strings.ToLower(strings.TrimSpace(s))
	slug := strings.Trim(nonSlugChars.ReplaceAllString(lower, "-"), "-")
	if len(slug) <= MaxSlugLength {
		return slug
	}
	slug = slug[:MaxSlugLength]
	if i := strings.LastIndexByte(slug, '-'); i > 0 {
		slug = slug[:i]
	}
	return slug
}
