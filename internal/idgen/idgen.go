// Package idgen generates the opaque identifiers of catalog and record
// entities: a short kind prefix followed by a random nanoid.
package idgen

import (
	"fmt"
	"strings"

	nanoid "github.com/matoous/go-nanoid/v2"
)

// Kind is the prefix naming what an identifier points at.
type Kind string

const (
	Field    Kind = "fld-"
	Option   Kind = "opt-"
	Section  Kind = "sec-"
	Resource Kind = "res-"
	Cost     Kind = "cst-"
	File     Kind = "fil-"
)

var kinds = []Kind{Field, Option, Section, Resource, Cost, File}

const (
	alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	size     = 12
)

// New returns a fresh identifier of the given kind.
func New(k Kind) (string, error) {
	id, err := nanoid.Generate(alphabet, size)
	if err != nil {
		return "", fmt.Errorf("idgen: %w", err)
	}
	return string(k) + id, nil
}

// KindOf returns the kind encoded in id's prefix.
func KindOf(id string) (Kind, bool) {
	for _, k := range kinds {
		if strings.HasPrefix(id, string(k)) && len(id) > len(k) {
			return k, true
		}
	}
	return "", false
}
