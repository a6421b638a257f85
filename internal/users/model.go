package users

import (
	"time"

	"github.com/fitlog/backend/internal/nutrition"
)

// BirthDateLayout is the wire and storage format of User.BirthDate.
const BirthDateLayout = "2006-01-02"

// User is a FitLog account together with the profile used for nutrition targets.
type User struct {
	ID            string                  `gorm:"column:id;primaryKey;size:64" json:"id"`
	Email         string                  `gorm:"column:email;size:320;uniqueIndex;not null" json:"email"`
	Username      string                  `gorm:"column:username;size:32;uniqueIndex;not null" json:"username"`
	DisplayName   string                  `gorm:"column:display_name;size:120" json:"display_name"`
	AvatarURL     string                  `gorm:"column:avatar_url;size:512" json:"avatar_url"`
	Sex           nutrition.Sex           `gorm:"column:sex;size:16" json:"sex,omitempty"`
	BirthDate     string                  `gorm:"column:birth_date;size:10" json:"birth_date,omitempty"`
	HeightCm      float64                 `gorm:"column:height_cm" json:"height_cm"`
	WeightKg      float64                 `gorm:"column:weight_kg" json:"weight_kg"`
	Goal          nutrition.Goal          `gorm:"column:goal;size:16" json:"goal,omitempty"`
	ActivityLevel nutrition.ActivityLevel `gorm:"column:activity_level;size:16" json:"activity_level,omitempty"`
	PasswordHash  string                  `gorm:"column:password_hash;size:128" json:"-"`
	CreatedAt     time.Time               `gorm:"column:created_at" json:"created_at"`
	UpdatedAt     time.Time               `gorm:"column:updated_at" json:"updated_at"`
}

// TableName exposes the table backing users.
func (User) TableName() string {
	return "users"
}

// PublicProfile is what other users may see.
type PublicProfile struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url"`
}

// Public strips private fields from u.
func (u User) Public() PublicProfile {
	return PublicProfile{ID: u.ID, Username: u.Username, DisplayName: u.DisplayName, AvatarURL: u.AvatarURL}
}

// RegisterRequest carries email/password sign-up input.
type RegisterRequest struct {
	Email       string `json:"email"`
	Username    string `json:"username"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
}

// GoogleProfile is the verified identity returned by Google sign-in.
type GoogleProfile struct {
	Subject string
	Email   string
	Name    string
	Picture string
}

// ProfileUpdate is a partial profile change; nil fields are left untouched.
type ProfileUpdate struct {
	DisplayName   *string  `json:"display_name"`
	Username      *string  `json:"username"`
	Sex           *string  `json:"sex"`
	BirthDate     *string  `json:"birth_date"`
	HeightCm      *float64 `json:"height_cm"`
	WeightKg      *float64 `json:"weight_kg"`
	Goal          *string  `json:"goal"`
	ActivityLevel *string  `json:"activity_level"`
}
