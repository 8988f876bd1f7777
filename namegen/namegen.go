package namegen

import (
	"regexp"
	"strings"

	vendor "github.com/anandvarma/namegen"
)

var gen = vendor.New()

var invalidChars = regexp.MustCompile(`[^a-z0-9._-]+`)

// JobName returns a random name usable as a batch job name.
func JobName() string {
	name := strings.Trim(invalidChars.ReplaceAllString(strings.ToLower(gen.Get()), "-"), "-._")
	if name == "" {
		return "batch"
	}
	return name
}
