package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/folioworks/folio/model"
)

// Entity reads return (nil, nil) when the row does not exist. The projector
// treats a missing source row on an upsert as entity_missing; callers that
// need a hard error wrap it themselves.

func (d Datasource) GetLibrary(ctx context.Context, id string) (*model.Library, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT library_id, name, description, updated_by, created_at, updated_at
		FROM folio.libraries
		WHERE library_id = $1`,
		id,
	)

	lib := &model.Library{}
	err := row.Scan(&lib.LibraryID, &lib.Name, &lib.Description, &lib.UpdatedBy, &lib.CreatedAt, &lib.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get library: %w", err)
	}
	return lib, nil
}

func (d Datasource) GetBookshelf(ctx context.Context, id string) (*model.Bookshelf, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT bookshelf_id, library_id, name, description, updated_by, created_at, updated_at
		FROM folio.bookshelves
		WHERE bookshelf_id = $1`,
		id,
	)

	shelf := &model.Bookshelf{}
	err := row.Scan(&shelf.BookshelfID, &shelf.LibraryID, &shelf.Name, &shelf.Description, &shelf.UpdatedBy, &shelf.CreatedAt, &shelf.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get bookshelf: %w", err)
	}
	return shelf, nil
}

func (d Datasource) GetBook(ctx context.Context, id string) (*model.Book, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT book_id, bookshelf_id, library_id, title, summary, tags, updated_by, created_at, updated_at
		FROM folio.books
		WHERE book_id = $1`,
		id,
	)

	book := &model.Book{}
	err := row.Scan(&book.BookID, &book.BookshelfID, &book.LibraryID, &book.Title, &book.Summary,
		pq.Array(&book.Tags), &book.UpdatedBy, &book.CreatedAt, &book.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get book: %w", err)
	}
	return book, nil
}

func (d Datasource) GetBlock(ctx context.Context, id string) (*model.Block, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT block_id, book_id, library_id, kind, content, updated_by, created_at, updated_at
		FROM folio.blocks
		WHERE block_id = $1`,
		id,
	)

	block := &model.Block{}
	err := row.Scan(&block.BlockID, &block.BookID, &block.LibraryID, &block.Kind, &block.Content,
		&block.UpdatedBy, &block.CreatedAt, &block.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get block: %w", err)
	}
	return block, nil
}

// Paginated listers back the rebuild stream. Pages are keyset-paginated on
// the primary key: each page resumes strictly after the last key seen, so
// rows deleted by live traffic between page reads cannot shift later rows
// out of a page. OFFSET would skip the row at the boundary whenever an
// earlier-ordered row disappears mid-stream.

func (d Datasource) GetLibrariesPaginated(ctx context.Context, afterID string, limit int) ([]*model.Library, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT library_id, name, description, updated_by, created_at, updated_at
		FROM folio.libraries
		WHERE library_id > $1
		ORDER BY library_id
		LIMIT $2`,
		afterID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list libraries: %w", err)
	}
	defer rows.Close()

	var libraries []*model.Library
	for rows.Next() {
		lib := &model.Library{}
		if err := rows.Scan(&lib.LibraryID, &lib.Name, &lib.Description, &lib.UpdatedBy, &lib.CreatedAt, &lib.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan library: %w", err)
		}
		libraries = append(libraries, lib)
	}
	return libraries, rows.Err()
}

func (d Datasource) GetBookshelvesPaginated(ctx context.Context, afterID string, limit int) ([]*model.Bookshelf, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT bookshelf_id, library_id, name, description, updated_by, created_at, updated_at
		FROM folio.bookshelves
		WHERE bookshelf_id > $1
		ORDER BY bookshelf_id
		LIMIT $2`,
		afterID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list bookshelves: %w", err)
	}
	defer rows.Close()

	var shelves []*model.Bookshelf
	for rows.Next() {
		shelf := &model.Bookshelf{}
		if err := rows.Scan(&shelf.BookshelfID, &shelf.LibraryID, &shelf.Name, &shelf.Description, &shelf.UpdatedBy, &shelf.CreatedAt, &shelf.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan bookshelf: %w", err)
		}
		shelves = append(shelves, shelf)
	}
	return shelves, rows.Err()
}

func (d Datasource) GetBooksPaginated(ctx context.Context, afterID string, limit int) ([]*model.Book, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT book_id, bookshelf_id, library_id, title, summary, tags, updated_by, created_at, updated_at
		FROM folio.books
		WHERE book_id > $1
		ORDER BY book_id
		LIMIT $2`,
		afterID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list books: %w", err)
	}
	defer rows.Close()

	var books []*model.Book
	for rows.Next() {
		book := &model.Book{}
		if err := rows.Scan(&book.BookID, &book.BookshelfID, &book.LibraryID, &book.Title, &book.Summary,
			pq.Array(&book.Tags), &book.UpdatedBy, &book.CreatedAt, &book.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan book: %w", err)
		}
		books = append(books, book)
	}
	return books, rows.Err()
}

func (d Datasource) GetBlocksPaginated(ctx context.Context, afterID string, limit int) ([]*model.Block, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT block_id, book_id, library_id, kind, content, updated_by, created_at, updated_at
		FROM folio.blocks
		WHERE block_id > $1
		ORDER BY block_id
		LIMIT $2`,
		afterID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list blocks: %w", err)
	}
	defer rows.Close()

	var blocks []*model.Block
	for rows.Next() {
		block := &model.Block{}
		if err := rows.Scan(&block.BlockID, &block.BookID, &block.LibraryID, &block.Kind, &block.Content,
			&block.UpdatedBy, &block.CreatedAt, &block.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan block: %w", err)
		}
		blocks = append(blocks, block)
	}
	return blocks, rows.Err()
}
