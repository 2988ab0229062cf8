package domain

import (
	"strings"
	"time"
)

// Post представляет пост в ленте.
// AuthorName и AuthorPhotoURL - снимок профиля автора на момент создания.
type Post struct {
	ID             string    `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	AuthorID       string    `json:"uid" gorm:"type:varchar(255);not null;index"`
	AuthorName     string    `json:"authorName" gorm:"type:varchar(255);not null"`
	AuthorPhotoURL *string   `json:"authorPhotoURL" gorm:"type:text"`
	Text           string    `json:"text" gorm:"type:text;not null"`
	ImageURL       *string   `json:"imageURL" gorm:"type:text"`
	ImagePath      *string   `json:"imagePath" gorm:"type:text"`
	LikeCount      int64     `json:"likeCount" gorm:"not null;default:0"`
	CreatedAt      time.Time `json:"createdAt" gorm:"not null;default:now();index"`
	UpdatedAt      time.Time `json:"updatedAt" gorm:"not null;default:now()"`
}

// HasImage сообщает, привязано ли к посту загруженное изображение.
func (p *Post) HasImage() bool {
	return p.ImagePath != nil && *p.ImagePath != ""
}

// Clone возвращает независимую копию поста.
func (p *Post) Clone() *Post {
	c := *p
	c.AuthorPhotoURL = cloneString(p.AuthorPhotoURL)
	c.ImageURL = cloneString(p.ImageURL)
	c.ImagePath = cloneString(p.ImagePath)
	return &c
}

// Like - запись членства: само её существование означает "пользователь лайкнул пост".
type Like struct {
	PostID    string    `json:"postId" gorm:"type:uuid;primaryKey"`
	UserID    string    `json:"uid" gorm:"type:varchar(255);primaryKey"`
	CreatedAt time.Time `json:"createdAt" gorm:"not null;default:now()"`
}

// Follow - ребро графа подписок follower -> followee.
type Follow struct {
	FollowerID string    `json:"followerId" gorm:"type:varchar(255);primaryKey"`
	FolloweeID string    `json:"followeeId" gorm:"type:varchar(255);primaryKey"`
	CreatedAt  time.Time `json:"createdAt" gorm:"not null;default:now()"`
}

// Profile - отображаемый профиль пользователя. Email - зеркало учётной записи, только для чтения.
type Profile struct {
	UserID      string    `json:"uid" gorm:"type:varchar(255);primaryKey"`
	DisplayName string    `json:"displayName" gorm:"type:varchar(255);not null"`
	Bio         string    `json:"bio" gorm:"type:text;not null;default:''"`
	PhotoURL    *string   `json:"photoURL" gorm:"type:text"`
	Email       string    `json:"email" gorm:"type:varchar(255);not null"`
	UpdatedAt   time.Time `json:"updatedAt" gorm:"not null;default:now()"`
}

// Clone возвращает независимую копию профиля.
func (p *Profile) Clone() *Profile {
	c := *p
	c.PhotoURL = cloneString(p.PhotoURL)
	return &c
}

// Identity - аутентифицированный пользователь.
type Identity struct {
	UID   string `json:"uid"`
	Email string `json:"email"`
}

// DefaultDisplayName - имя по умолчанию: локальная часть email.
func (id Identity) DefaultDisplayName() string {
	if local, _, _ := strings.Cut(id.Email, "@"); local != "" {
		return local
	}
	return "user"
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
