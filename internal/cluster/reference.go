package cluster

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// LocalName is the cluster name that always refers to the local machine.
const LocalName = "localhost"

var (
	// ErrInvalidReference is returned for malformed cluster references.
	ErrInvalidReference = errors.New("invalid cluster reference")
	// errEmptyReference is returned when no cluster was specified.
	errEmptyReference = errors.New("cluster not specified")
)

// Reference is a validated "name[:port]" cluster reference.
type Reference struct {
	// Name is the cluster name.
	Name string
	// Port overrides the scheduler port when HasPort is set.
	Port uint16
	// HasPort reports whether the reference carried an explicit port.
	HasPort bool
}

// ParseReference validates raw against the directory.
// The local name is accepted without a directory lookup when a port is given.
func ParseReference(raw string, dir Checker) (Reference, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Reference{}, fmt.Errorf("%w: %w", ErrInvalidReference, errEmptyReference)
	}

	name, portText, hasPort := strings.Cut(raw, ":")
	if name == "" || strings.Contains(portText, ":") {
		return Reference{}, fmt.Errorf("%w: %q", ErrInvalidReference, raw)
	}

	ref := Reference{Name: name}

	if hasPort {
		port, err := strconv.ParseUint(portText, 10, 16)
		if err != nil {
			return Reference{}, fmt.Errorf("%w: %q: %w", ErrInvalidReference, raw, err)
		}

		ref.Port = uint16(port)
		ref.HasPort = true
	}

	if ref.IsLocal() {
		return ref, nil
	}

	if dir == nil {
		return Reference{}, fmt.Errorf("%w: %q", ErrUnknownCluster, name)
	}

	if err := dir.AssertExists(name); err != nil {
		return Reference{}, err
	}

	return ref, nil
}

// IsLocal reports whether the reference points to a scheduler on this machine.
func (r Reference) IsLocal() bool {
	return r.Name == LocalName && r.HasPort
}

// String renders the reference back to "name[:port]".
func (r Reference) String() string {
	if !r.HasPort {
		return r.Name
	}

	return r.Name + ":" + strconv.FormatUint(uint64(r.Port), 10)
}
