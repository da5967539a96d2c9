package firestore

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"

	"github.com/PabloGalante/farum-gateway/internal/adapters/storage/codec"
	"github.com/PabloGalante/farum-gateway/internal/domain"
)

// ─────────────────────────────────────────
// ContextStore implementation
// ─────────────────────────────────────────

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

	snap, err := s.contextDoc(userID).Get(ctx)
	if err != nil {
		if isNotFound(err) {
			return uc, nil
		}
		return nil, fmt.Errorf("getting user context: %w", err)
	}

	var doc contextDocument
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("decoding user context: %w", err)
	}
	uc.State = codec.DecodeState(d, doc.state(d))
	uc.UpdatedAt = doc.UpdatedAt
	return uc, nil
}

// MergeDomainState reads the domain sub-object, merges the update into it and
// writes back only that sub-object.
func (s *Store) MergeDomainState(ctx context.Context, userID domain.UserID, state domain.DomainState) error {
	d := state.Domain()
	ref := s.contextDoc(userID)

	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		var doc contextDocument
		snap, err := tx.Get(ref)
		switch {
		case err == nil:
			if err := snap.DataTo(&doc); err != nil {
				return fmt.Errorf("decoding user context: %w", err)
			}
		case !isNotFound(err):
			return err
		}

		merged := codec.MergeState(d, doc.state(d), state)
		return tx.Set(ref, map[string]any{
			string(d):    merged,
			"updated_at": s.now(),
		}, firestore.MergeAll)
	})
	if err != nil {
		return fmt.Errorf("merging %s state: %w", d, err)
	}
	return nil
}

func (s *Store) GetPreferences(ctx context.Context, userID domain.UserID) (domain.Preferences, error) {
	snap, err := s.preferencesDoc(userID).Get(ctx)
	if err != nil {
		if isNotFound(err) {
			return domain.Preferences{}, nil
		}
		return domain.Preferences{}, fmt.Errorf("getting preferences: %w", err)
	}

	var doc preferencesDoc
	if err := snap.DataTo(&doc); err != nil {
		return domain.Preferences{}, fmt.Errorf("decoding preferences: %w", err)
	}
	return domain.Preferences{
		CommunicationStyle:   doc.CommunicationStyle,
		FocusAreas:           doc.FocusAreas,
		CrossContextDisabled: doc.CrossContextDisabled,
	}, nil
}

func (s *Store) SavePreferences(ctx context.Context, userID domain.UserID, prefs domain.Preferences) error {
	doc := preferencesDoc{
		CommunicationStyle:   prefs.CommunicationStyle,
		FocusAreas:           prefs.FocusAreas,
		CrossContextDisabled: prefs.CrossContextDisabled,
		UpdatedAt:            s.now(),
	}
	if _, err := s.preferencesDoc(userID).Set(ctx, doc); err != nil {
		return fmt.Errorf("saving preferences: %w", err)
	}
	return nil
}
