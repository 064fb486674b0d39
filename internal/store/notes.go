package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	sq "github.com/Masterminds/squirrel"

	"github.com/roach88/notestream/internal/domain"
	"github.com/roach88/notestream/internal/queryir"
	"github.com/roach88/notestream/internal/querysql"
)

// NotesTable is the table stream queries select from.
const NotesTable = "notes"

// noteColumns is the column order scanNote expects.
var noteColumns = []string{
	"id", "number", "type", "post", "data",
	"parent_type", "parent_id", "related_type", "related_id",
	"super_parent_type", "super_parent_id",
	"users_ids", "teams_ids", "portals_ids",
	"is_global", "is_internal", "created_at", "created_by_id",
}

// NoteColumns returns the note select list qualified with alias. Each
// column is aliased back to its bare name so union members line up and
// the outer query can order by "number".
func NoteColumns(alias string) []string {
	out := make([]string, len(noteColumns))
	for i, c := range noteColumns {
		if alias == "" {
			out[i] = c
			continue
		}
		out[i] = alias + "." + c + " AS " + c
	}
	return out
}

// NoteKey identifies a note for idempotent projection.
type NoteKey struct {
	Type        domain.NoteType
	ParentType  string
	ParentID    string
	RelatedType string
	RelatedID   string
}

// InsertNote persists a new note and sets n.Number. n.ID and n.CreatedAt
// are filled in when empty.
func (s *Store) InsertNote(ctx context.Context, n *domain.Note) error {
	if !n.Type.Valid() {
		return fmt.Errorf("insert note: %w: unknown type %q", domain.ErrValidation, n.Type)
	}
	if n.ID == "" {
		n.ID = s.NewID()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = s.clock.Now()
	}
	if n.Data == nil {
		n.Data = domain.Object{}
	}

	dataJSON, err := marshalData(n.Data)
	if err != nil {
		return fmt.Errorf("insert note: %w", err)
	}
	usersJSON, err := marshalIDs(n.UsersIDs)
	if err != nil {
		return fmt.Errorf("insert note: %w", err)
	}
	teamsJSON, err := marshalIDs(n.TeamsIDs)
	if err != nil {
		return fmt.Errorf("insert note: %w", err)
	}
	portalsJSON, err := marshalIDs(n.PortalsIDs)
	if err != nil {
		return fmt.Errorf("insert note: %w", err)
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := exec(ctx, tx, builder.Insert(NotesTable).
			Columns(
				"id", "type", "post", "data",
				"parent_type", "parent_id", "related_type", "related_id",
				"super_parent_type", "super_parent_id",
				"users_ids", "teams_ids", "portals_ids",
				"is_global", "is_internal", "created_at", "created_by_id",
			).
			Values(
				n.ID, string(n.Type), n.Post, dataJSON,
				nullable(n.ParentType), nullable(n.ParentID),
				nullable(n.RelatedType), nullable(n.RelatedID),
				nullable(n.SuperParentType), nullable(n.SuperParentID),
				usersJSON, teamsJSON, portalsJSON,
				boolInt(n.IsGlobal), boolInt(n.IsInternal),
				querysql.FormatTime(n.CreatedAt), n.CreatedByID,
			))
		if err != nil {
			return fmt.Errorf("insert note %s: %w", n.ID, mapError(err))
		}
		number, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("insert note %s: last insert id: %w", n.ID, err)
		}
		n.Number = number

		if err := replaceMembers(ctx, tx, "note_users", "user_id", n.ID, n.UsersIDs); err != nil {
			return err
		}
		if err := replaceMembers(ctx, tx, "note_teams", "team_id", n.ID, n.TeamsIDs); err != nil {
			return err
		}
		return replaceMembers(ctx, tx, "note_portals", "portal_id", n.ID, n.PortalsIDs)
	})
}

// UpdateNoteAccess rewrites a note's users and teams, both the JSON copies
// and the membership tables, in one transaction.
func (s *Store) UpdateNoteAccess(ctx context.Context, n *domain.Note, opts SaveOptions) (SaveResult, error) {
	usersJSON, err := marshalIDs(n.UsersIDs)
	if err != nil {
		return SaveResult{}, fmt.Errorf("update note access: %w", err)
	}
	teamsJSON, err := marshalIDs(n.TeamsIDs)
	if err != nil {
		return SaveResult{}, fmt.Errorf("update note access: %w", err)
	}

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := exec(ctx, tx, builder.Update(NotesTable).
			Set("users_ids", usersJSON).
			Set("teams_ids", teamsJSON).
			Where(sq.Eq{"id": n.ID}))
		if err != nil {
			return fmt.Errorf("update note %s: %w", n.ID, err)
		}
		if affected, _ := res.RowsAffected(); affected == 0 {
			return fmt.Errorf("update note %s: %w", n.ID, domain.ErrNotFound)
		}
		if err := replaceMembers(ctx, tx, "note_users", "user_id", n.ID, n.UsersIDs); err != nil {
			return err
		}
		return replaceMembers(ctx, tx, "note_teams", "team_id", n.ID, n.TeamsIDs)
	})
	if err != nil {
		return SaveResult{}, err
	}

	if opts.ForceProcessNotifications {
		slog.Debug("note access saved with notification processing", "note_id", n.ID, "number", n.Number)
	}
	return SaveResult{ForceProcessNotifications: opts.ForceProcessNotifications}, nil
}

func replaceMembers(ctx context.Context, tx *sql.Tx, table, column, noteID string, ids []string) error {
	if _, err := exec(ctx, tx, builder.Delete(table).Where(sq.Eq{"note_id": noteID})); err != nil {
		return fmt.Errorf("clear %s for note %s: %w", table, noteID, err)
	}
	if len(ids) == 0 {
		return nil
	}
	ins := builder.Insert(table).Columns("note_id", column).Suffix("ON CONFLICT DO NOTHING")
	for _, id := range ids {
		ins = ins.Values(noteID, id)
	}
	if _, err := exec(ctx, tx, ins); err != nil {
		return fmt.Errorf("write %s for note %s: %w", table, noteID, err)
	}
	return nil
}

// GetNote loads a note by ID.
func (s *Store) GetNote(ctx context.Context, id string) (*domain.Note, error) {
	notes, err := s.RunQuery(ctx, queryir.Select{
		From:    NotesTable,
		Columns: NoteColumns(""),
		Where:   queryir.Eq{Column: "id", Value: id},
	})
	if err != nil {
		return nil, fmt.Errorf("get note %s: %w", id, err)
	}
	if len(notes) == 0 {
		return nil, fmt.Errorf("get note %s: %w", id, domain.ErrNotFound)
	}
	return &notes[0], nil
}

// FindNoteID returns the ID of the earliest note matching key. Empty key
// fields match NULL columns.
func (s *Store) FindNoteID(ctx context.Context, key NoteKey) (string, error) {
	query, args, err := builder.Select("id").
		From(NotesTable).
		Where(sq.Eq{
			"type":         string(key.Type),
			"parent_type":  nullOr(key.ParentType),
			"parent_id":    nullOr(key.ParentID),
			"related_type": nullOr(key.RelatedType),
			"related_id":   nullOr(key.RelatedID),
		}).
		OrderBy("number ASC").
		Limit(1).
		ToSql()
	if err != nil {
		return "", err
	}
	var id string
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		return "", fmt.Errorf("find note: %w", mapError(err))
	}
	return id, nil
}

func nullOr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// ListNotesForAccess returns the notes whose visibility follows the
// entity: notes related to it, and notes parented by it that roll up to a
// super parent and have no related entity. Newest first, at most limit.
func (s *Store) ListNotesForAccess(ctx context.Context, entityType, id string, limit int) ([]domain.Note, error) {
	q := queryir.Select{
		From:    NotesTable,
		Alias:   "n",
		Columns: NoteColumns("n"),
		Where: queryir.OrOf(
			queryir.AndOf(
				queryir.Eq{Column: "n.related_id", Value: id},
				queryir.Eq{Column: "n.related_type", Value: entityType},
			),
			queryir.AndOf(
				queryir.Eq{Column: "n.parent_id", Value: id},
				queryir.Eq{Column: "n.parent_type", Value: entityType},
				queryir.NotNull{Column: "n.super_parent_id"},
				queryir.IsNull{Column: "n.related_id"},
			),
		),
		OrderBy: []queryir.Order{{Column: "n.number", Desc: true}},
		Limit:   limit,
	}
	return s.RunQuery(ctx, q)
}

// RunQuery compiles and executes a note query. The query must select the
// columns from NoteColumns, in order.
func (s *Store) RunQuery(ctx context.Context, q queryir.Query) ([]domain.Note, error) {
	query, args, err := s.compiler.Compile(q)
	if err != nil {
		return nil, fmt.Errorf("run query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("run query: %w", err)
	}
	defer rows.Close()

	notes := []domain.Note{}
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, err
		}
		notes = append(notes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notes: %w", err)
	}
	return notes, nil
}

// Count returns the number of rows q matches, ignoring its paging.
func (s *Store) Count(ctx context.Context, q queryir.Select) (int, error) {
	query, args, err := s.compiler.CompileCount(q)
	if err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return n, nil
}

func scanNote(rows *sql.Rows) (domain.Note, error) {
	var (
		n                                 domain.Note
		noteType, dataJSON                string
		parentType, parentID              sql.NullString
		relatedType, relatedID            sql.NullString
		superParentType, superParentID    sql.NullString
		usersJSON, teamsJSON, portalsJSON string
		isGlobal, isInternal              int
		createdAt                         string
	)
	err := rows.Scan(
		&n.ID, &n.Number, &noteType, &n.Post, &dataJSON,
		&parentType, &parentID, &relatedType, &relatedID,
		&superParentType, &superParentID,
		&usersJSON, &teamsJSON, &portalsJSON,
		&isGlobal, &isInternal, &createdAt, &n.CreatedByID,
	)
	if err != nil {
		return n, fmt.Errorf("scan note: %w", err)
	}

	n.Type = domain.NoteType(noteType)
	n.ParentType, n.ParentID = parentType.String, parentID.String
	n.RelatedType, n.RelatedID = relatedType.String, relatedID.String
	n.SuperParentType, n.SuperParentID = superParentType.String, superParentID.String
	n.IsGlobal = isGlobal != 0
	n.IsInternal = isInternal != 0

	if n.Data, err = unmarshalData(dataJSON); err != nil {
		return n, fmt.Errorf("scan note %s: %w", n.ID, err)
	}
	if n.UsersIDs, err = unmarshalIDs(usersJSON); err != nil {
		return n, fmt.Errorf("scan note %s: %w", n.ID, err)
	}
	if n.TeamsIDs, err = unmarshalIDs(teamsJSON); err != nil {
		return n, fmt.Errorf("scan note %s: %w", n.ID, err)
	}
	if n.PortalsIDs, err = unmarshalIDs(portalsJSON); err != nil {
		return n, fmt.Errorf("scan note %s: %w", n.ID, err)
	}
	if n.CreatedAt, err = querysql.ParseTime(createdAt); err != nil {
		return n, fmt.Errorf("scan note %s: created_at: %w", n.ID, err)
	}
	return n, nil
}
