package store

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
)

// TestUpdateRefreshSessionReadsMirror covers sessions that only exist in the
// mongo mirror, as after a process restart: the update pulls the record from
// the mirror, applies the mutation, and writes it back through memory.
func TestUpdateRefreshSessionReadsMirror(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("mirror-only session", func(mt *mtest.T) {
		s := newMemoryStore(mt.T)
		s.mirror = &mirror{db: mt.DB, log: zerolog.Nop()}

		userID := uuid.New()
		hash := "mirror-only-hash"
		ns := mt.DB.Name() + "." + collRefreshSessions
		mt.AddMockResponses(
			mtest.CreateCursorResponse(0, ns, mtest.FirstBatch, bson.D{
				{Key: "_id", Value: hash},
				{Key: "user_id", Value: userID.String()},
				{Key: "expires_at", Value: int64(4102444800)},
			}),
			mtest.CreateSuccessResponse(), // write-back delete
			mtest.CreateSuccessResponse(), // write-back insert
		)

		now := int64(1700000000)
		ok := s.UpdateRefreshSession(context.Background(), hash, func(rec *RefreshSession) {
			rec.RevokedAt = &now
		})
		if !ok {
			mt.Fatalf("update missed a session present in the mirror")
		}

		s.sessionsMu.RLock()
		rec, found := s.sessions[hash]
		s.sessionsMu.RUnlock()
		if !found {
			mt.Fatalf("mutated session not written back to memory")
		}
		if rec.UserID != userID || rec.RevokedAt == nil || *rec.RevokedAt != now {
			mt.Fatalf("unexpected session after update: %+v", rec)
		}
	})

	mt.Run("absent everywhere", func(mt *mtest.T) {
		s := newMemoryStore(mt.T)
		s.mirror = &mirror{db: mt.DB, log: zerolog.Nop()}

		ns := mt.DB.Name() + "." + collRefreshSessions
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch))

		if ok := s.UpdateRefreshSession(context.Background(), "missing", func(*RefreshSession) {}); ok {
			mt.Fatalf("update reported success for a session in neither store")
		}
	})
}
