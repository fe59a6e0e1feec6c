// Package principal models users, groups, and their memberships, and defines
// the tagged principal reference the grant store dispatches on.
package principal

// User represents an account that can authenticate and hold grants.
// Credential material lives in the auth package; it never travels with this
// type.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name"`
}

// Group represents a named collection of users. Groups are themselves
// protected entities: each carries the resource key provisioned with it.
type Group struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	ResourceKey string `json:"resource_key"`
}

// Kind discriminates the two principal variants. The zero value is invalid,
// so an unset Principal can never silently select a grant table.
type Kind uint8

const (
	// KindUser tags a principal referring to a user row.
	KindUser Kind = iota + 1
	// KindGroup tags a principal referring to a group row.
	KindGroup
)

// Principal is an explicit tagged reference to a user or group. Consumers
// switch on Kind; nothing inspects structure to guess the variant.
type Principal struct {
	Kind Kind  `json:"kind"`
	ID   int64 `json:"id"`
}

// UserRef returns a principal referring to the given user.
func UserRef(id int64) Principal {
	return Principal{Kind: KindUser, ID: id}
}

// GroupRef returns a principal referring to the given group.
func GroupRef(id int64) Principal {
	return Principal{Kind: KindGroup, ID: id}
}

// Sentinel principals. Both are created during bootstrap with reserved
// negative identities and are never deleted; listing operations filter them
// out of ordinary rows.
const (
	// AnyUserID is the reserved identity of the universal-grant principal.
	AnyUserID int64 = -1
	// SuperUsersID is the reserved identity of the elevated-privilege group.
	SuperUsersID int64 = -1

	// AnyUserResourceKey guards the any-user principal itself.
	AnyUserResourceKey = "user-any"
	// SuperUsersResourceKey guards the super-users group.
	SuperUsersResourceKey = "groups-su"
)

// AnyUser matches every authenticated caller. A grant held by AnyUser applies
// to all users.
var AnyUser = UserRef(AnyUserID)

// SuperUsers is the group reserved for elevated-privilege membership.
var SuperUsers = GroupRef(SuperUsersID)

// IsSentinel reports whether the principal is one of the reserved bootstrap
// principals.
func (p Principal) IsSentinel() bool {
	return p.ID <= 0
}
