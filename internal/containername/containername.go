// Package containername validates the names lxddns resolves: labels that
// identify a container/instance somewhere in the cluster.
package containername

import (
	"regexp"

	"github.com/benaryorg/lxddns/internal/lxderr"
)

var pattern = regexp.MustCompile(`^[-a-z0-9]+$`)

// Name is a validated container name. The zero value is not a valid Name;
// always obtain one through Parse.
type Name struct {
	name string
}

// Parse validates s against the container name grammar. It never trims or
// case-folds: callers are expected to have already lowercased qnames before
// splitting out the candidate name.
func Parse(s string) (Name, error) {
	if !pattern.MatchString(s) {
		return Name{}, lxderr.UnsafeName.Newf("%q is not a valid container name", s)
	}
	return Name{name: s}, nil
}

// String returns the validated name.
func (n Name) String() string {
	return n.name
}
