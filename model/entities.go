package model

import (
	"strings"
	"time"
)

// Entity types the pipeline projects. Unknown types surface as
// payload_invalid at projection time.
const (
	EntityLibrary   = "library"
	EntityBookshelf = "bookshelf"
	EntityBook      = "book"
	EntityBlock     = "block"
)

// Library is the top-level scope. Its own library_id is its scope key.
type Library struct {
	LibraryID   string    `json:"library_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	UpdatedBy   string    `json:"updated_by"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type Bookshelf struct {
	BookshelfID string    `json:"bookshelf_id"`
	LibraryID   string    `json:"library_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	UpdatedBy   string    `json:"updated_by"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type Book struct {
	BookID      string    `json:"book_id"`
	BookshelfID string    `json:"bookshelf_id"`
	LibraryID   string    `json:"library_id"`
	Title       string    `json:"title"`
	Summary     string    `json:"summary"`
	Tags        []string  `json:"tags"`
	UpdatedBy   string    `json:"updated_by"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type Block struct {
	BlockID   string    `json:"block_id"`
	BookID    string    `json:"book_id"`
	LibraryID string    `json:"library_id"`
	Kind      string    `json:"kind"`
	Content   string    `json:"content"`
	UpdatedBy string    `json:"updated_by"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// JoinSearchable collapses text fragments into a single searchable string,
// dropping empties so the stored text stays compact.
func JoinSearchable(parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, " ")
}
