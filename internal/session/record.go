package session

import (
	"context"
	"fmt"

	"github.com/samber/lo"

	"github.com/abhisek/skillprobe/internal/calibration"
	"github.com/abhisek/skillprobe/internal/diagnosis"
	"github.com/abhisek/skillprobe/internal/store"
)

// Stored is a session read back from the store.
type Stored struct {
	Task           Task
	RunID          string
	ConversationID string
	State          *calibration.State
	Transcript     []diagnosis.Message
	Error          string
}

// Load reads one session and rebuilds its calibration state. Snapshots that
// violate the session invariants are rejected.
func Load(ctx context.Context, repo store.SessionRepo, learnerID, topicID string, cfg calibration.Config) (*Stored, error) {
	rec, err := repo.Load(ctx, learnerID, topicID)
	if err != nil {
		return nil, err
	}
	return fromRecord(rec, cfg)
}

func toRecord(runID string, c *conversation) store.SessionRecord {
	snap := c.state.Snapshot()
	rec := store.SessionRecord{
		RunID:             runID,
		LearnerID:         snap.LearnerID,
		TopicID:           snap.TopicID,
		TopicName:         c.task.TopicName,
		ConversationID:    c.id,
		TurnCount:         snap.TurnCount,
		CurrentLevel:      snap.CurrentLevel,
		CurrentConfidence: snap.CurrentConfidence,
		PromotionStreak:   snap.PromotionStreak,
		Phase:             string(snap.Phase),
		Frozen:            snap.Frozen,
		FreezeReason:      string(snap.FreezeReason),
		FinalLevel:        snap.FinalLevel,
		Evidence:          lo.Map(snap.Trail, func(ev calibration.Evidence, _ int) store.EvidenceRecord { return store.EvidenceRecord(ev) }),
		Transcript: lo.Map(c.transcript, func(m diagnosis.Message, _ int) store.MessageRecord {
			return store.MessageRecord{Role: string(m.Role), Content: m.Content}
		}),
	}
	if c.err != nil {
		rec.Error = c.err.Error()
	}
	return rec
}

func fromRecord(rec *store.SessionRecord, cfg calibration.Config) (*Stored, error) {
	phase, err := calibration.ParsePhase(rec.Phase)
	if err != nil {
		return nil, fmt.Errorf("session %s/%s: %w", rec.LearnerID, rec.TopicID, err)
	}
	reason, err := calibration.ParseFreezeReason(rec.FreezeReason)
	if err != nil {
		return nil, fmt.Errorf("session %s/%s: %w", rec.LearnerID, rec.TopicID, err)
	}

	state, err := calibration.Restore(calibration.Snapshot{
		LearnerID:         rec.LearnerID,
		TopicID:           rec.TopicID,
		TurnCount:         rec.TurnCount,
		CurrentLevel:      rec.CurrentLevel,
		CurrentConfidence: rec.CurrentConfidence,
		PromotionStreak:   rec.PromotionStreak,
		Phase:             phase,
		Frozen:            rec.Frozen,
		FreezeReason:      reason,
		Trail:             lo.Map(rec.Evidence, func(ev store.EvidenceRecord, _ int) calibration.Evidence { return calibration.Evidence(ev) }),
		FinalLevel:        rec.FinalLevel,
	}, cfg)
	if err != nil {
		return nil, err
	}

	return &Stored{
		Task:           Task{LearnerID: rec.LearnerID, TopicID: rec.TopicID, TopicName: rec.TopicName},
		RunID:          rec.RunID,
		ConversationID: rec.ConversationID,
		State:          state,
		Transcript: lo.Map(rec.Transcript, func(m store.MessageRecord, _ int) diagnosis.Message {
			return diagnosis.Message{Role: diagnosis.Role(m.Role), Content: m.Content}
		}),
		Error: rec.Error,
	}, nil
}
