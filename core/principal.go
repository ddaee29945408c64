package core

import (
	"slices"
	"sort"
)

// AuthorityPrefix is prepended to a role name to form its authority label.
const AuthorityPrefix = "ROLE_"

// Principal is the security view of an authenticated member.
type Principal interface {
	Username() string
	CredentialHash() string
	Authorities() []string
	HasAuthority(authority string) bool
}

// MemberPrincipal adapts a Member to Principal. It is read-only once built,
// except for EraseCredentials.
type MemberPrincipal struct {
	member      Member
	authorities []string
}

var _ Principal = (*MemberPrincipal)(nil)

// BuildPrincipal derives a principal from a stored member. Each role becomes
// "ROLE_"+name with the name's case preserved; duplicates collapse.
func BuildPrincipal(m Member) (*MemberPrincipal, error) {
	if m.Username == "" {
		return nil, &InvalidMemberStateError{Reason: "empty username"}
	}
	if m.PasswordHash == "" {
		return nil, &InvalidMemberStateError{Reason: "empty password hash"}
	}

	names := make([]string, 0, len(m.Roles))
	for _, r := range m.Roles {
		names = append(names, r.Name)
	}
	m.Roles = slices.Clone(m.Roles)
	return &MemberPrincipal{member: m, authorities: authoritiesFor(names)}, nil
}

// RestorePrincipal rebuilds a principal from the username and authorities kept in a session.
// The result carries no credential hash.
func RestorePrincipal(username string, authorities []string) *MemberPrincipal {
	set := make(map[string]struct{}, len(authorities))
	out := make([]string, 0, len(authorities))
	for _, a := range authorities {
		if _, ok := set[a]; ok {
			continue
		}
		set[a] = struct{}{}
		out = append(out, a)
	}
	sort.Strings(out)
	return &MemberPrincipal{member: Member{Username: username}, authorities: out}
}

func authoritiesFor(roleNames []string) []string {
	labels := make([]string, 0, len(roleNames))
	for _, name := range roleNames {
		labels = append(labels, AuthorityPrefix+name)
	}
	sort.Strings(labels)
	return slices.Compact(labels)
}

func (p *MemberPrincipal) Username() string { return p.member.Username }

func (p *MemberPrincipal) CredentialHash() string { return p.member.PasswordHash }

// Authorities returns a copy of the authority labels in sorted order.
func (p *MemberPrincipal) Authorities() []string {
	return slices.Clone(p.authorities)
}

func (p *MemberPrincipal) HasAuthority(authority string) bool {
	_, found := slices.BinarySearch(p.authorities, authority)
	return found
}

// Member returns the member the principal was built from.
func (p *MemberPrincipal) Member() Member {
	return p.member
}

// EraseCredentials drops the credential hash once authentication has succeeded.
func (p *MemberPrincipal) EraseCredentials() {
	p.member.PasswordHash = ""
}
