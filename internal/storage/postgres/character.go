package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/mserrano/riftbound/internal/game/character"
	"github.com/mserrano/riftbound/internal/game/item"
	"github.com/mserrano/riftbound/internal/game/skilltree"
)

// ErrCharacterNotFound is returned when a character lookup yields no results.
var ErrCharacterNotFound = errors.New("character not found")

// ErrCharacterNameTaken is returned when creating a character with a name
// that already exists.
var ErrCharacterNameTaken = errors.New("character name already taken")

// CharacterRepository persists characters as scalar columns plus JSONB
// documents for the allocation, tree, and equipment maps. It works in
// character.Snapshot terms so the engine aggregate stays storage-free.
type CharacterRepository struct {
	db      *pgxpool.Pool
	classes *character.Classes
	trees   *skilltree.Catalogue
	items   *item.Registry
	logger  *zap.Logger
}

// NewCharacterRepository creates a CharacterRepository backed by the
// given pool. The catalogues are used to normalize loaded rows.
//
// Precondition: db must be a valid, open connection pool; the catalogues
// and logger must be non-nil.
func NewCharacterRepository(db *pgxpool.Pool, classes *character.Classes, trees *skilltree.Catalogue, items *item.Registry, logger *zap.Logger) *CharacterRepository {
	return &CharacterRepository{db: db, classes: classes, trees: trees, items: items, logger: logger}
}

const characterColumns = `id, name, class_id, level, experience, lifetime_xp, currency,
	       skill_points, allocated, trees, equipped, current_hp, current_energy,
	       created_at, updated_at`

// Create inserts a new character and returns its snapshot with ID and
// timestamps set.
//
// Precondition: s.Name must be non-empty.
// Postcondition: Returns the stored snapshot, or ErrCharacterNameTaken on
// a duplicate name.
func (r *CharacterRepository) Create(ctx context.Context, s character.Snapshot) (character.Snapshot, error) {
	allocated, trees, equipped, err := marshalDocs(s)
	if err != nil {
		return character.Snapshot{}, err
	}
	row := r.db.QueryRow(ctx, `
		INSERT INTO characters
			(name, class_id, level, experience, lifetime_xp, currency,
			 skill_points, allocated, trees, equipped, current_hp, current_energy)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		RETURNING `+characterColumns,
		s.Name, s.ClassID, s.Level, s.Experience, s.LifetimeXP, s.Currency,
		s.SkillPoints, allocated, trees, equipped, s.CurrentHP, s.CurrentEnergy,
	)
	out, err := scanSnapshot(row)
	if err != nil {
		if isDuplicateKeyError(err) {
			return character.Snapshot{}, ErrCharacterNameTaken
		}
		return character.Snapshot{}, fmt.Errorf("inserting character: %w", err)
	}
	return out, nil
}

// GetByID retrieves a character by its primary key.
//
// Precondition: id must be > 0.
// Postcondition: Returns the snapshot or ErrCharacterNotFound.
func (r *CharacterRepository) GetByID(ctx context.Context, id int64) (character.Snapshot, error) {
	row := r.db.QueryRow(ctx, `SELECT `+characterColumns+` FROM characters WHERE id = $1`, id)
	s, err := scanSnapshot(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return character.Snapshot{}, ErrCharacterNotFound
		}
		return character.Snapshot{}, fmt.Errorf("querying character: %w", err)
	}
	return s, nil
}

// GetByName retrieves a character by its unique name.
//
// Postcondition: Returns the snapshot or ErrCharacterNotFound.
func (r *CharacterRepository) GetByName(ctx context.Context, name string) (character.Snapshot, error) {
	row := r.db.QueryRow(ctx, `SELECT `+characterColumns+` FROM characters WHERE name = $1`, name)
	s, err := scanSnapshot(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return character.Snapshot{}, ErrCharacterNotFound
		}
		return character.Snapshot{}, fmt.Errorf("querying character: %w", err)
	}
	return s, nil
}

// List returns all characters ordered by creation time.
//
// Postcondition: Returns a slice (may be empty) or a non-nil error.
func (r *CharacterRepository) List(ctx context.Context) ([]character.Snapshot, error) {
	rows, err := r.db.Query(ctx, `SELECT `+characterColumns+` FROM characters ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("listing characters: %w", err)
	}
	defer rows.Close()

	out := make([]character.Snapshot, 0)
	for rows.Next() {
		s, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning character row: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Update persists the full character state.
//
// Precondition: s.ID must be > 0.
// Postcondition: Returns nil on success, ErrCharacterNotFound if no row
// was updated.
func (r *CharacterRepository) Update(ctx context.Context, s character.Snapshot) error {
	allocated, trees, equipped, err := marshalDocs(s)
	if err != nil {
		return err
	}
	tag, err := r.db.Exec(ctx, `
		UPDATE characters SET
			level = $2, experience = $3, lifetime_xp = $4, currency = $5,
			skill_points = $6, allocated = $7, trees = $8, equipped = $9,
			current_hp = $10, current_energy = $11, updated_at = NOW()
		WHERE id = $1`,
		s.ID, s.Level, s.Experience, s.LifetimeXP, s.Currency,
		s.SkillPoints, allocated, trees, equipped, s.CurrentHP, s.CurrentEnergy,
	)
	if err != nil {
		return fmt.Errorf("updating character: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrCharacterNotFound
	}
	return nil
}

// Delete removes a character permanently.
//
// Postcondition: Returns nil on success, ErrCharacterNotFound if the
// character does not exist.
func (r *CharacterRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM characters WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting character: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrCharacterNotFound
	}
	return nil
}

// Load retrieves a character by ID, reconstitutes the aggregate, and
// clamps any stored state that violates the engine invariants. Each
// correction is logged; loading never fails on bad-but-parseable data.
//
// Postcondition: Returns a Character whose vitals and ledger fields are
// within bounds, ErrCharacterNotFound, or character.ErrUnknownClass if
// the stored class_id is no longer in the catalogue.
func (r *CharacterRepository) Load(ctx context.Context, id int64) (*character.Character, error) {
	s, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	c := character.FromSnapshot(s)
	class, ok := r.classes.Get(c.ClassID)
	if !ok {
		return nil, fmt.Errorf("loading character %d with class %q: %w", c.ID, c.ClassID, character.ErrUnknownClass)
	}
	for _, correction := range c.Normalize(class, r.trees, r.items) {
		r.logger.Warn("character state corrected on load",
			zap.Int64("character_id", c.ID),
			zap.String("correction", correction))
	}
	return c, nil
}

// Save persists the aggregate through its snapshot.
func (r *CharacterRepository) Save(ctx context.Context, c *character.Character) error {
	return r.Update(ctx, c.Snapshot())
}

// rowScanner is satisfied by both pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(row rowScanner) (character.Snapshot, error) {
	var (
		s         character.Snapshot
		allocated []byte
		trees     []byte
		equipped  []byte
	)
	if err := row.Scan(
		&s.ID, &s.Name, &s.ClassID, &s.Level, &s.Experience, &s.LifetimeXP,
		&s.Currency, &s.SkillPoints, &allocated, &trees, &equipped,
		&s.CurrentHP, &s.CurrentEnergy, &s.CreatedAt, &s.UpdatedAt,
	); err != nil {
		return character.Snapshot{}, err
	}
	if err := json.Unmarshal(allocated, &s.Allocated); err != nil {
		return character.Snapshot{}, fmt.Errorf("decoding allocated stats: %w", err)
	}
	if err := json.Unmarshal(trees, &s.Trees); err != nil {
		return character.Snapshot{}, fmt.Errorf("decoding tree investment: %w", err)
	}
	if err := json.Unmarshal(equipped, &s.Equipped); err != nil {
		return character.Snapshot{}, fmt.Errorf("decoding equipment: %w", err)
	}
	return s, nil
}

func marshalDocs(s character.Snapshot) (allocated, trees, equipped []byte, err error) {
	if allocated, err = json.Marshal(s.Allocated); err != nil {
		return nil, nil, nil, fmt.Errorf("encoding allocated stats: %w", err)
	}
	if trees, err = json.Marshal(s.Trees); err != nil {
		return nil, nil, nil, fmt.Errorf("encoding tree investment: %w", err)
	}
	if equipped, err = json.Marshal(s.Equipped); err != nil {
		return nil, nil, nil, fmt.Errorf("encoding equipment: %w", err)
	}
	return allocated, trees, equipped, nil
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	// pgx wraps PostgreSQL errors; check for SQLSTATE 23505 (unique_violation)
	var pgErr interface{ SQLState() string }
	if errors.As(err, &pgErr) {
		return pgErr.SQLState() == "23505"
	}
	return false
}
