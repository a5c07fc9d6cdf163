package plugin

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Info contains plugin metadata
type Info struct {
	ID       string // Unique plugin identifier (e.g., "com.gainlink.participant")
	Name     string // Display name
	Version  string // Semantic version (e.g., "1.0.0")
	Vendor   string // Company/developer name
	Category string // Plugin category (e.g., "Fx")
}

// uidNamespace scopes plugin UIDs so they never collide with other
// name-based UUIDs derived from the same ID string.
var uidNamespace = uuid.NewSHA1(uuid.NameSpaceDNS, []byte("plugins.gainlink"))

// UID derives a stable 16-byte class ID from the string ID.
func (i Info) UID() [16]byte {
	return uuid.NewSHA1(uidNamespace, []byte(i.ID))
}

// ValidateUID checks that the info can produce a usable UID.
func (i Info) ValidateUID() error {
	if i.ID == "" {
		return errors.New("plugin ID is empty")
	}
	if i.UID() == [16]byte{} {
		return fmt.Errorf("plugin ID %q produced a zero UID", i.ID)
	}
	return nil
}

// String returns "Name Version".
func (i Info) String() string {
	if i.Version == "" {
		return i.Name
	}
	return i.Name + " " + i.Version
}
