package social

import "time"

// RequestStatus is the lifecycle state of a friend request.
type RequestStatus string

const (
	StatusPending  RequestStatus = "pending"
	StatusAccepted RequestStatus = "accepted"
	StatusDeclined RequestStatus = "declined"
)

// FriendRequest asks ToUserID to become friends with FromUserID.
type FriendRequest struct {
	ID          string        `gorm:"column:id;primaryKey;size:64" json:"id"`
	FromUserID  string        `gorm:"column:from_user_id;size:64;not null;index" json:"from_user_id"`
	ToUserID    string        `gorm:"column:to_user_id;size:64;not null;index" json:"to_user_id"`
	Status      RequestStatus `gorm:"column:status;size:16;not null;index" json:"status"`
	CreatedAt   time.Time     `gorm:"column:created_at" json:"created_at"`
	UpdatedAt   time.Time     `gorm:"column:updated_at" json:"updated_at"`
	RespondedAt *time.Time    `gorm:"column:responded_at" json:"responded_at,omitempty"`
}

// TableName exposes the table backing friend requests.
func (FriendRequest) TableName() string {
	return "friend_requests"
}

// Friendship is one direction of a friendship; every friendship is stored twice.
type Friendship struct {
	UserID    string    `gorm:"column:user_id;primaryKey;size:64"`
	FriendID  string    `gorm:"column:friend_id;primaryKey;size:64;index"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

// TableName exposes the table backing friendships.
func (Friendship) TableName() string {
	return "friendships"
}

// Friend is a friend's public profile and when the friendship started.
type Friend struct {
	UserID      string    `json:"user_id"`
	Username    string    `json:"username"`
	DisplayName string    `json:"display_name"`
	AvatarURL   string    `json:"avatar_url"`
	Since       time.Time `json:"since"`
}

// RequestView is a pending request together with the other party's public profile.
type RequestView struct {
	FriendRequest
	Counterpart Friend `json:"counterpart"`
}
