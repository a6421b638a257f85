package chat

import "time"

const (
	// MaxMessageLength is the longest accepted message body in characters.
	MaxMessageLength = 2000
	previewLength    = 80
)

// Chat is a conversation between two friends. UserAID sorts before UserBID.
type Chat struct {
	ID                 string     `gorm:"column:id;primaryKey;size:64" json:"id"`
	UserAID            string     `gorm:"column:user_a_id;size:64;not null;uniqueIndex:idx_chat_pair" json:"user_a_id"`
	UserBID            string     `gorm:"column:user_b_id;size:64;not null;uniqueIndex:idx_chat_pair;index" json:"user_b_id"`
	LastMessageAt      *time.Time `gorm:"column:last_message_at" json:"last_message_at,omitempty"`
	LastMessagePreview string     `gorm:"column:last_message_preview;size:320" json:"last_message_preview"`
	CreatedAt          time.Time  `gorm:"column:created_at" json:"created_at"`
	UpdatedAt          time.Time  `gorm:"column:updated_at;index" json:"updated_at"`
}

// TableName exposes the table backing chats.
func (Chat) TableName() string {
	return "chats"
}

// Has reports whether userID takes part in the chat.
func (c Chat) Has(userID string) bool {
	return userID != "" && (c.UserAID == userID || c.UserBID == userID)
}

// Other returns the participant that is not userID.
func (c Chat) Other(userID string) string {
	if c.UserAID == userID {
		return c.UserBID
	}
	return c.UserAID
}

// Message is one chat message.
type Message struct {
	ID        string     `gorm:"column:id;primaryKey;size:64" json:"id"`
	ChatID    string     `gorm:"column:chat_id;size:64;not null;index:idx_message_chat_created,priority:1" json:"chat_id"`
	SenderID  string     `gorm:"column:sender_id;size:64;not null" json:"sender_id"`
	Body      string     `gorm:"column:body;type:text;not null" json:"body"`
	CreatedAt time.Time  `gorm:"column:created_at;index:idx_message_chat_created,priority:2" json:"created_at"`
	ReadAt    *time.Time `gorm:"column:read_at" json:"read_at,omitempty"`
}

// TableName exposes the table backing messages.
func (Message) TableName() string {
	return "messages"
}

// Participant is the public profile of the other side of a chat.
type Participant struct {
	UserID      string `json:"user_id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url"`
}

// Summary is a chat as listed for one participant.
type Summary struct {
	Chat
	With        Participant `json:"with"`
	UnreadCount int64       `json:"unread_count"`
}

// MessagePage is one page of messages, newest first.
type MessagePage struct {
	Messages   []Message `json:"messages"`
	NextCursor string    `json:"next_cursor,omitempty"`
}
