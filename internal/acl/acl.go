// Package acl wraps the host filesystem ACL manipulation the client's
// unprivileged step performs before handing a file over to the broker.
// It is deliberately a thin shell around an external command (setfacl),
// grounded on the original daemon's File.grant_fstoken_access and
// File.revoke_fstoken_access — the ACL semantics themselves are treated
// as an opaque host primitive, not part of the core protocol.
package acl

import (
	"fmt"
	"os/exec"

	"fstokend/internal/kind"
)

// Collaborator grants or revokes the broker principal's access to a file
// on the client's behalf. It is an interface so tests and alternate
// platforms can substitute a fake without shelling out.
type Collaborator interface {
	Grant(path string) error
	Revoke(path string) error
}

// SetfaclCollaborator grants/revokes access for a named principal using
// the setfacl utility, matching the host command the original daemon
// invoked via subprocess.run.
type SetfaclCollaborator struct {
	// Principal is the user setfacl grants rw- access to — the account
	// the broker process runs as.
	Principal string
}

func New(principal string) *SetfaclCollaborator {
	return &SetfaclCollaborator{Principal: principal}
}

func (s *SetfaclCollaborator) Grant(path string) error {
	cmd := exec.Command("setfacl", "-m", fmt.Sprintf("u:%s:rw-", s.Principal), path)
	if out, err := cmd.CombinedOutput(); err != nil {
		return kind.Wrap(kind.PermissionDenied, fmt.Sprintf("granting %s access to %s: %s", s.Principal, path, out), err)
	}
	return nil
}

func (s *SetfaclCollaborator) Revoke(path string) error {
	cmd := exec.Command("setfacl", "-x", fmt.Sprintf("u:%s", s.Principal), path)
	if out, err := cmd.CombinedOutput(); err != nil {
		return kind.Wrap(kind.PermissionDenied, fmt.Sprintf("revoking %s access to %s: %s", s.Principal, path, out), err)
	}
	return nil
}

// Noop is a Collaborator that always succeeds without touching the host
// ACL state, for tests and platforms without setfacl.
type Noop struct{}

func (Noop) Grant(string) error  { return nil }
func (Noop) Revoke(string) error { return nil }
