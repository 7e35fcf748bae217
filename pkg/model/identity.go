package model

type Role string

const (
	RoleRegular Role = "regular_user"
	RoleAdmin   Role = "admin"
)

var roleRank = map[Role]int{
	RoleRegular: 1,
	RoleAdmin:   2,
}

func (r Role) Known() bool {
	_, ok := roleRank[r]
	return ok
}

// AtLeast reports whether r grants everything min grants. Unknown roles
// grant nothing.
func (r Role) AtLeast(min Role) bool {
	have, ok := roleRank[r]
	if !ok {
		return false
	}
	return have >= roleRank[min]
}

// Caller is the authenticated identity behind a request.
type Caller struct {
	Username string `json:"username"`
	Role     Role   `json:"role"`
}

func (c *Caller) IsAdmin() bool {
	return c != nil && c.Role.AtLeast(RoleAdmin)
}

// UserFacts is what the identity service reports about a user.
type UserFacts struct {
	Username string `json:"username"`
	Role     Role   `json:"role"`
	IsActive bool   `json:"is_active"`
}

// RoomFacts is what the rooms service reports about a room.
type RoomFacts struct {
	ID          int64 `json:"room_id"`
	IsAvailable bool  `json:"is_available"`
}
