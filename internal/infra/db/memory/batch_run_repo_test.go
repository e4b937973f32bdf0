package memory

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"order-bridge/internal/domain"
	"order-bridge/internal/domain/model"
)

func TestBatchRunRepo(t *testing.T) {
	ctx := context.Background()

	t.Run("should list newest first", func(t *testing.T) {
		repo := NewBatchRunRepo(10)
		for i := 0; i < 3; i++ {
			if err := repo.Save(ctx, &model.BatchRun{ID: fmt.Sprintf("r%d", i)}); err != nil {
				t.Fatal(err)
			}
		}

		runs, err := repo.ListRecent(ctx, 2)
		if err != nil {
			t.Fatal(err)
		}
		if len(runs) != 2 || runs[0].ID != "r2" || runs[1].ID != "r1" {
			t.Fatalf("unexpected order: %v", ids(runs))
		}
	})

	t.Run("should update in place", func(t *testing.T) {
		repo := NewBatchRunRepo(10)
		run := &model.BatchRun{ID: "a", Status: model.BatchRunExtractFailed}
		_ = repo.Save(ctx, run)
		_ = repo.Save(ctx, &model.BatchRun{ID: "b"})
		run.Status = model.BatchRunSucceeded
		_ = repo.Save(ctx, run)

		runs, _ := repo.ListRecent(ctx, 10)
		if len(runs) != 2 || runs[1].ID != "a" || runs[1].Status != model.BatchRunSucceeded {
			t.Fatalf("unexpected runs: %+v", runs)
		}
	})

	t.Run("should evict the oldest beyond capacity", func(t *testing.T) {
		repo := NewBatchRunRepo(2)
		for _, id := range []string{"a", "b", "c"} {
			_ = repo.Save(ctx, &model.BatchRun{ID: id})
		}
		// re-saving an evicted id appends it again
		_ = repo.Save(ctx, &model.BatchRun{ID: "a"})

		runs, _ := repo.ListRecent(ctx, 10)
		if got := ids(runs); fmt.Sprint(got) != "[a c]" {
			t.Fatalf("runs = %v; want [a c]", got)
		}
	})

	t.Run("should hand out copies", func(t *testing.T) {
		repo := NewBatchRunRepo(2)
		run := &model.BatchRun{ID: "a", Polls: 1}
		_ = repo.Save(ctx, run)
		run.Polls = 9

		runs, _ := repo.ListRecent(ctx, 1)
		runs[0].Polls = 7
		again, _ := repo.ListRecent(ctx, 1)
		if again[0].Polls != 1 {
			t.Fatalf("stored run mutated: polls=%d", again[0].Polls)
		}
	})

	t.Run("should reject bad arguments", func(t *testing.T) {
		repo := NewBatchRunRepo(2)
		if err := repo.Save(ctx, &model.BatchRun{}); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Errorf("Save = %v", err)
		}
		if _, err := repo.ListRecent(ctx, 0); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Errorf("ListRecent = %v", err)
		}
	})
}

func ids(runs []*model.BatchRun) []string {
	out := make([]string, 0, len(runs))
	for _, r := range runs {
		out = append(out, r.ID)
	}
	return out
}
