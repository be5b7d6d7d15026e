package validation

import (
	"fmt"
	"regexp"
)

// CollectionPattern определяет допустимый формат имени коллекции
// Строчные латинские буквы, цифры, '_' и '-', первой идет буква
var CollectionPattern = regexp.MustCompile(`^[a-z][a-z0-9_-]*$`)

// MaxCollectionLen максимальная длина имени коллекции
const MaxCollectionLen = 64

// ValidateCollection проверяет имя коллекции. Имя попадает в URL и в ключи
// локального хранилища, поэтому набор символов ограничен
func ValidateCollection(name string) error {
	if name == "" {
		return fmt.Errorf("collection name cannot be empty")
	}

	if len(name) > MaxCollectionLen {
		return fmt.Errorf("collection name must not exceed %d characters", MaxCollectionLen)
	}

	if !CollectionPattern.MatchString(name) {
		return fmt.Errorf("invalid collection name %q: use lowercase letters, digits, '_' and '-', starting with a letter", name)
	}

	return nil
}
