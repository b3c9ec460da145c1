package pantry

import (
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// DefaultURLTemplate is the getpantry.cloud basket endpoint.
const DefaultURLTemplate = "https://getpantry.cloud/apiv1/pantry/{id}/basket/{name}"

const (
	idPlaceholder   = "{id}"
	namePlaceholder = "{name}"
)

// Resolver computes basket endpoint URLs from a template containing
// {id} and {name} placeholders.
type Resolver struct {
	template string
}

// NewResolver returns a Resolver for the given template. An empty
// template selects DefaultURLTemplate.
func NewResolver(template string) *Resolver {
	if template == "" {
		template = DefaultURLTemplate
	}

	return &Resolver{template: template}
}

// Resolve returns the endpoint for a destination id and an already
// percent-encoded basket name. Either input being empty yields "".
// The result depends only on its inputs.
func (r *Resolver) Resolve(pantryID, basketName string) string {
	if pantryID == "" || basketName == "" {
		return ""
	}

	u := strings.ReplaceAll(r.template, idPlaceholder, url.PathEscape(pantryID))

	return strings.ReplaceAll(u, namePlaceholder, basketName)
}

// EscapeName percent-encodes a file name for use as a basket name.
// Everything outside the RFC 3986 unreserved set is escaped, spaces
// included. Names are NFC-normalized first so the same file yields the
// same basket on every platform.
func EscapeName(name string) string {
	escaped := url.QueryEscape(norm.NFC.String(name))

	return strings.ReplaceAll(escaped, "+", "%20")
}

// BasketName returns the encoded basket name for a file path, or "" when
// the path is empty or the file does not exist.
func BasketName(path string) string {
	if path == "" {
		return ""
	}

	if _, err := os.Stat(path); err != nil {
		return ""
	}

	return EscapeName(filepath.Base(path))
}
