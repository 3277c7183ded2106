package registry

import (
	"fmt"
	"strings"
)

// URIPrefix is the scheme and host every board address starts with.
const URIPrefix = "chess://board/"

// URI returns the address of the board with id.
func URI(id string) string {
	return URIPrefix + id
}

// ParseURI extracts the board id from a chess://board/{id} address.
func ParseURI(uri string) (string, error) {
	id, ok := strings.CutPrefix(uri, URIPrefix)
	if !ok || id == "" || strings.Contains(id, "/") {
		return "", fmt.Errorf("not a board uri: %q", uri)
	}
	return id, nil
}
