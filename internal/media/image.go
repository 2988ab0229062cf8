package media

import (
	"errors"
	"fmt"
)

// MaxImageSize - предельный размер изображения, 5 МБ.
const MaxImageSize = 5 * 1024 * 1024

var (
	ErrImageType     = errors.New("only JPG, PNG and WEBP images can be uploaded")
	ErrImageTooLarge = fmt.Errorf("image must be %dMB or smaller", MaxImageSize/(1024*1024))
	ErrImageEmpty    = errors.New("image is empty")
)

var extensions = map[string]string{
	"image/jpeg": "jpg",
	"image/png":  "png",
	"image/webp": "webp",
}

// Image - загружаемое изображение.
type Image struct {
	ContentType string
	Data        []byte
}

// Validate проверяет MIME-тип и размер до любого сетевого вызова.
// nil-изображение допустимо.
func Validate(img *Image) error {
	if img == nil {
		return nil
	}
	if _, ok := extensions[img.ContentType]; !ok {
		return ErrImageType
	}
	if len(img.Data) == 0 {
		return ErrImageEmpty
	}
	if len(img.Data) > MaxImageSize {
		return ErrImageTooLarge
	}
	return nil
}

// Extension возвращает расширение файла для MIME-типа; неизвестные типы - "jpg".
func Extension(contentType string) string {
	if ext, ok := extensions[contentType]; ok {
		return ext
	}
	return "jpg"
}

// PostImagePath - детерминированный путь изображения поста.
func PostImagePath(authorID, postID, contentType string) string {
	return fmt.Sprintf("posts/%s/%s/image.%s", authorID, postID, Extension(contentType))
}

// AvatarPath - путь аватара пользователя.
func AvatarPath(userID, contentType string) string {
	return fmt.Sprintf("profiles/%s/avatar.%s", userID, Extension(contentType))
}
