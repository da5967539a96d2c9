package firestore

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"

	"github.com/PabloGalante/farum-gateway/internal/domain"
)

// ─────────────────────────────────────────
// RateLimitStore implementation
// ─────────────────────────────────────────

func (s *Store) GetRateWindow(ctx context.Context, key domain.UserID) (domain.RateWindow, bool, error) {
	snap, err := s.rateDoc(key).Get(ctx)
	if err != nil {
		if isNotFound(err) {
			return domain.RateWindow{}, false, nil
		}
		return domain.RateWindow{}, false, fmt.Errorf("getting rate window: %w", err)
	}

	var doc rateWindowDoc
	if err := snap.DataTo(&doc); err != nil {
		return domain.RateWindow{}, false, fmt.Errorf("decoding rate window: %w", err)
	}
	return fromRateDoc(doc), true, nil
}

func (s *Store) ResetRateWindow(ctx context.Context, key domain.UserID, w domain.RateWindow) error {
	if _, err := s.rateDoc(key).Set(ctx, toRateDoc(w)); err != nil {
		return fmt.Errorf("resetting rate window: %w", err)
	}
	return nil
}

// IncrementRateWindow runs the read-modify-write in a transaction so
// concurrent increments never lose a count.
func (s *Store) IncrementRateWindow(ctx context.Context, key domain.UserID, tokens int, now time.Time, maxAge time.Duration) (domain.RateWindow, error) {
	ref := s.rateDoc(key)
	var out domain.RateWindow

	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		var current domain.RateWindow
		snap, err := tx.Get(ref)
		switch {
		case err == nil:
			var doc rateWindowDoc
			if err := snap.DataTo(&doc); err != nil {
				return err
			}
			current = fromRateDoc(doc)
		case !isNotFound(err):
			return err
		}

		out = current.Add(tokens, now, maxAge)
		return tx.Set(ref, toRateDoc(out))
	})
	if err != nil {
		return domain.RateWindow{}, fmt.Errorf("incrementing rate window: %w", err)
	}
	return out, nil
}

func toRateDoc(w domain.RateWindow) rateWindowDoc {
	return rateWindowDoc{
		Requests:    w.Requests,
		Tokens:      w.Tokens,
		WindowStart: w.WindowStart,
		LastRequest: w.LastRequest,
	}
}

func fromRateDoc(doc rateWindowDoc) domain.RateWindow {
	return domain.RateWindow{
		Requests:    doc.Requests,
		Tokens:      doc.Tokens,
		WindowStart: doc.WindowStart,
		LastRequest: doc.LastRequest,
	}
}
