package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/PabloGalante/farum-gateway/internal/adapters/storage/codec"
	"github.com/PabloGalante/farum-gateway/internal/domain"
)

// ─── ContextStore ────────────────────────────────────────────────────────────

func (s *Store) GetUserContext(ctx context.Context, userID domain.UserID, d domain.Domain) (*domain.UserContext, error) {
	prefs, err := s.GetPreferences(ctx, userID)
	if err != nil {
		return nil, err
	}
	uc := &domain.UserContext{
		UserID:      userID,
		Domain:      d,
		Preferences: prefs,
		State:       domain.EmptyState(d),
	}

	var (
		raw       string
		updatedAt int64
	)
	err = s.db.QueryRowContext(ctx,
		`SELECT state, updated_at FROM user_contexts WHERE user_id = ? AND domain = ?`,
		string(userID), string(d),
	).Scan(&raw, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return uc, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: get user context: %w", err)
	}

	var rec codec.StateRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, fmt.Errorf("sqlite: decode user context: %w", err)
	}
	uc.State = codec.DecodeState(d, rec)
	uc.UpdatedAt = fromNanos(updatedAt)
	return uc, nil
}

func (s *Store) MergeDomainState(ctx context.Context, userID domain.UserID, state domain.DomainState) error {
	d := state.Domain()
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var (
			rec codec.StateRecord
			raw string
		)
		err := tx.QueryRowContext(ctx,
			`SELECT state FROM user_contexts WHERE user_id = ? AND domain = ?`,
			string(userID), string(d),
		).Scan(&raw)
		switch {
		case err == nil:
			if err := json.Unmarshal([]byte(raw), &rec); err != nil {
				return fmt.Errorf("sqlite: decode user context: %w", err)
			}
		case !errors.Is(err, sql.ErrNoRows):
			return fmt.Errorf("sqlite: read user context: %w", err)
		}

		merged, err := marshalJSON(codec.MergeState(d, rec, state))
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO user_contexts (user_id, domain, state, updated_at) VALUES (?, ?, ?, ?)
			ON CONFLICT (user_id, domain) DO UPDATE SET state = excluded.state, updated_at = excluded.updated_at`,
			string(userID), string(d), merged, toNanos(s.now()),
		)
		if err != nil {
			return fmt.Errorf("sqlite: merge %s state: %w", d, err)
		}
		return nil
	})
}

func (s *Store) GetPreferences(ctx context.Context, userID domain.UserID) (domain.Preferences, error) {
	var (
		prefs    domain.Preferences
		areas    string
		disabled int
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT communication_style, focus_areas, cross_context_disabled FROM user_preferences WHERE user_id = ?`,
		string(userID),
	).Scan(&prefs.CommunicationStyle, &areas, &disabled)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Preferences{}, nil
	}
	if err != nil {
		return domain.Preferences{}, fmt.Errorf("sqlite: get preferences: %w", err)
	}
	if err := json.Unmarshal([]byte(areas), &prefs.FocusAreas); err != nil {
		return domain.Preferences{}, fmt.Errorf("sqlite: decode focus areas: %w", err)
	}
	prefs.CrossContextDisabled = disabled != 0
	return prefs, nil
}

func (s *Store) SavePreferences(ctx context.Context, userID domain.UserID, prefs domain.Preferences) error {
	areas, err := marshalJSON(prefs.FocusAreas)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO user_preferences (user_id, communication_style, focus_areas, cross_context_disabled, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			communication_style    = excluded.communication_style,
			focus_areas            = excluded.focus_areas,
			cross_context_disabled = excluded.cross_context_disabled,
			updated_at             = excluded.updated_at`,
		string(userID), prefs.CommunicationStyle, areas, boolInt(prefs.CrossContextDisabled), toNanos(s.now()),
	)
	if err != nil {
		return fmt.Errorf("sqlite: save preferences: %w", err)
	}
	return nil
}
