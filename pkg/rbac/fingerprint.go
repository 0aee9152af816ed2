package rbac

import (
	"encoding/binary"
	"fmt"
	"slices"

	"github.com/cespare/xxhash/v2"
)

// hasher writes length-prefixed fields into an xxhash digest so that adjacent
// fields can never run together ("ab"+"c" vs "a"+"bc").
type hasher struct {
	d   *xxhash.Digest
	buf [8]byte
}

func newHasher() *hasher {
	return &hasher{d: xxhash.New()}
}

func (h *hasher) writeString(s string) {
	binary.LittleEndian.PutUint64(h.buf[:], uint64(len(s)))
	_, _ = h.d.Write(h.buf[:])
	_, _ = h.d.WriteString(s)
}

func (h *hasher) writeUint(n uint64) {
	binary.LittleEndian.PutUint64(h.buf[:], n)
	_, _ = h.d.Write(h.buf[:])
}

func (h *hasher) writeCheck(c PermissionCheck) {
	h.writeString(string(c.Resource))
	h.writeString(string(c.Action))
	h.writeString(c.ResourceID)
}

func (h *hasher) sum() uint64 {
	return h.d.Sum64()
}

// fingerprintUser hashes the identity fields of a user in canonical order.
// Roles are hashed sorted and attributes by sorted key, so field or map
// iteration order never changes the result.
func fingerprintUser(u *UserContext) uint64 {
	h := newHasher()
	h.writeString(u.UserID)
	h.writeString(u.OrganizationID)

	roles := sortedRoles(u.Roles)
	h.writeUint(uint64(len(roles)))
	for _, role := range roles {
		h.writeString(role)
	}

	keys := make([]string, 0, len(u.Attributes))
	for k := range u.Attributes {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	h.writeUint(uint64(len(keys)))
	for _, k := range keys {
		h.writeString(k)
		// %T keeps 1 and "1" apart. Equality is re-verified by SameIdentity.
		h.writeString(fmt.Sprintf("%T=%v", u.Attributes[k], u.Attributes[k]))
	}

	return h.sum()
}

// fingerprintChecks hashes an ordered list of checks. Two slices with equal
// contents produce the same value regardless of their backing arrays.
func fingerprintChecks(checks []PermissionCheck) uint64 {
	h := newHasher()
	h.writeUint(uint64(len(checks)))
	for _, c := range checks {
		h.writeCheck(c)
	}
	return h.sum()
}
