package flatlake

import (
	"strings"

	"github.com/pkg/errors"
)

// Namer derives output column names from input paths denoted by []string.
// The path is the list of keys walked through the nested record to reach a
// scalar leaf, e.g. ["customer", "name"].
type Namer interface {
	// Name returns an empty string and a nil error if the leaf at the
	// given path should be skipped. It returns an error only if something
	// is wrong enough that no column name can be derived at all.
	Name(path []string) (string, error)
}

// NamerFunc makes a bare function satisfy the Namer interface, in the same
// spirit as http.HandlerFunc.
type NamerFunc func([]string) (string, error)

// Name on NamerFunc simply calls the wrapped function.
func (f NamerFunc) Name(path []string) (string, error) {
	return f(path)
}

// SepNamer joins path elements with Sep to form column names. Elements
// listed in Collapse are dropped from the path before joining; a path
// containing any element of Ignore produces no column at all.
type SepNamer struct {
	Sep      string
	Ignore   []string
	Collapse []string
}

// Name implements Namer.
func (s *SepNamer) Name(path []string) (string, error) {
	if len(path) == 0 {
		return "", errors.New("can't derive a column name from an empty path")
	}
	kept := make([]string, 0, len(path))
	for _, elem := range path {
		if contains(s.Ignore, elem) {
			return "", nil
		}
		if contains(s.Collapse, elem) {
			continue
		}
		kept = append(kept, elem)
	}
	return strings.Join(kept, s.Sep), nil
}

// DotNamer joins paths with "." - the flattened name of a name leaf
// inside a customer object is "customer.name".
var DotNamer = &SepNamer{Sep: "."}

// UnderscoreNamer joins paths with "_", which stays friendly to query
// engines that dislike dots in column names.
var UnderscoreNamer = &SepNamer{Sep: "_"}

func contains(haystack []string, needle string) bool {
	for _, h := range haystack {
		if h == needle {
			return true
		}
	}
	return false
}
