package main

import (
	"html"
	"net/mail"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// Fields limits of the catalog and users records.
const (
	maxTitleLength       = 255
	maxDescriptionLength = 1000
	maxNameLength        = 100
	minPasswordLength    = 6
)

var textPolicy = bluemonday.StrictPolicy()

// SanitizeText strips any markup from user provided text and trims it.
// The strict policy escapes what it keeps so the entities are decoded back.
func SanitizeText(s string) string {
	return strings.TrimSpace(html.UnescapeString(textPolicy.Sanitize(s)))
}

// SanitizeBook cleans the free-text fields of a book in place.
func SanitizeBook(book *Book) {
	book.Title = SanitizeText(book.Title)
	book.Author = SanitizeText(book.Author)
	book.Description = SanitizeText(book.Description)
	book.ImageURL = strings.TrimSpace(book.ImageURL)
}

// ValidateBook checks a book creation or update payload.
func ValidateBook(book *Book) error {
	if len(book.Title) == 0 {
		return missingFieldError("title")
	}

	if len(book.Author) == 0 {
		return missingFieldError("author")
	}

	if len(book.Title) > maxTitleLength || len(book.Author) > maxTitleLength {
		return NewInvalidArgumentError("title and author must not exceed 255 characters")
	}

	if len(book.Description) > maxDescriptionLength {
		return NewInvalidArgumentError("description must not exceed 1000 characters")
	}

	if book.TotalCopies < 0 || book.AvailableCopies < 0 {
		return NewInvalidArgumentError("copies counts must not be negative")
	}

	if book.AvailableCopies > book.TotalCopies {
		return NewInvalidArgumentError("available copies must not exceed total copies")
	}

	return nil
}

// ValidateCategory checks a category creation or update payload.
func ValidateCategory(category *Category) error {
	category.Name = SanitizeText(category.Name)
	if len(category.Name) == 0 {
		return missingFieldError("name")
	}
	if len(category.Name) > maxNameLength {
		return NewInvalidArgumentError("name must not exceed 100 characters")
	}
	return nil
}

// ValidateUser checks the identity fields of a user. The password is
// only required when asked, as updates may keep the existing one.
func ValidateUser(user *User, passwordRequired bool) error {
	user.Username = strings.TrimSpace(user.Username)
	user.Email = strings.TrimSpace(user.Email)
	user.Name = SanitizeText(user.Name)
	user.Surname = SanitizeText(user.Surname)

	if len(user.Username) == 0 {
		return missingFieldError("username")
	}

	if len(user.Email) == 0 {
		return missingFieldError("email")
	}

	if _, err := mail.ParseAddress(user.Email); err != nil {
		return NewInvalidArgumentError("email is not valid")
	}

	if passwordRequired && len(user.Password) == 0 {
		return missingFieldError("password")
	}

	if len(user.Password) > 0 && len(user.Password) < minPasswordLength {
		return NewInvalidArgumentError("password must have at least 6 characters")
	}

	switch user.Role {
	case "":
		user.Role = RoleUser
	case RoleAdmin, RoleUser:
	default:
		return NewInvalidArgumentError("role must be ADMIN or USER")
	}

	return nil
}
