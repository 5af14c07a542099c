package session

import (
	"context"
	"fmt"

	"github.com/abhisek/skillprobe/internal/transport"
)

// Directory lists learners and their topics.
type Directory interface {
	ListStudents(ctx context.Context, setType string) ([]transport.Student, error)
	ListTopics(ctx context.Context, studentID string) ([]transport.Topic, error)
}

// PlanOptions narrows which sessions get planned.
type PlanOptions struct {
	SetType string

	// LearnerID limits the plan to one learner when set.
	LearnerID string

	// MaxConversations caps the plan size. Zero means no cap.
	MaxConversations int
}

// Plan lists one task per learner-topic pair in directory order, stopping
// once MaxConversations tasks are planned.
func Plan(ctx context.Context, dir Directory, opts PlanOptions) ([]Task, error) {
	students, err := dir.ListStudents(ctx, opts.SetType)
	if err != nil {
		return nil, err
	}

	var tasks []Task
	for _, st := range students {
		if opts.LearnerID != "" && st.ID != opts.LearnerID {
			continue
		}

		topics, err := dir.ListTopics(ctx, st.ID)
		if err != nil {
			return nil, fmt.Errorf("plan learner %s: %w", st.ID, err)
		}

		for _, tp := range topics {
			if opts.MaxConversations > 0 && len(tasks) >= opts.MaxConversations {
				return tasks, nil
			}
			tasks = append(tasks, Task{
				LearnerID:   st.ID,
				LearnerName: st.Name,
				TopicID:     tp.ID,
				TopicName:   tp.Name,
			})
		}
	}
	return tasks, nil
}
