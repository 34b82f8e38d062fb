package builder

import (
	"context"
	"testing"

	"github.com/pieceflow/pieceflow/pkg/piece"
	"github.com/pieceflow/pieceflow/pkg/piece/polling"
)

func testRegistry(t *testing.T) *piece.Registry {
	t.Helper()

	r := piece.NewRegistry()
	err := r.Register(&piece.Piece{
		Name: "notion",
		Auth: piece.AuthSecret,
		Actions: []*piece.Action{
			{
				Name: "create_page",
				Props: piece.MustPropertyMap(
					piece.Property{Name: "title", Kind: piece.KindShortText, Required: true},
				),
				Run: func(ctx context.Context, rc piece.RunContext) (interface{}, error) { return nil, nil },
			},
			{
				Name: "create_comment",
				Props: piece.MustPropertyMap(
					piece.Property{Name: "page_id", Kind: piece.KindShortText, Required: true},
					piece.Property{Name: "text", Kind: piece.KindLongText, Required: true},
				),
				Run: func(ctx context.Context, rc piece.RunContext) (interface{}, error) { return nil, nil },
			},
		},
		Triggers: []*piece.Trigger{
			{
				Name:  "new_item",
				Type:  piece.TriggerPolling,
				Props: piece.MustPropertyMap(),
				Polling: &piece.PollingDescriptor{
					Strategy: polling.StrategyLastItem,
					Items: func(ctx context.Context, req piece.PollRequest) ([]polling.Item, error) {
						return nil, nil
					},
				},
			},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func TestAddStepSelectsAndOpensSettings(t *testing.T) {
	s := NewStore(testRegistry(t))

	step, err := s.AddStep(StepAction, "notion", "create_page")
	if err != nil {
		t.Fatal(err)
	}

	if got := s.SelectedStep(); got == nil || got.ID != step.ID {
		t.Error("new step should be selected")
	}
	if s.Sidebar() != SidebarStepSettings {
		t.Errorf("sidebar = %s, want step_settings", s.Sidebar())
	}
}

func TestAddStepUnknownPiece(t *testing.T) {
	s := NewStore(testRegistry(t))

	if _, err := s.AddStep(StepAction, "airtable", "create_record"); err == nil {
		t.Fatal("expected not-found error")
	}
}

func TestUpdateInputMarksDirty(t *testing.T) {
	s := NewStore(testRegistry(t))
	step, err := s.AddStep(StepAction, "notion", "create_page")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := s.UpdateInput(step.ID, "title", "Weekly report"); err != nil {
		t.Fatal(err)
	}

	if !s.SelectedStep().Dirty {
		t.Error("step should be dirty after input change")
	}
	if got := step.Session.Value("title"); got != "Weekly report" {
		t.Errorf("title = %v", got)
	}
}

func TestMarkSavedClearsDirty(t *testing.T) {
	s := NewStore(testRegistry(t))
	step, _ := s.AddStep(StepAction, "notion", "create_page")
	s.UpdateInput(step.ID, "title", "x")

	if err := s.MarkSaved(step.ID); err != nil {
		t.Fatal(err)
	}
	if s.SelectedStep().Dirty {
		t.Error("dirty flag should be cleared")
	}
}

func TestSwitchOperationDiscardsOldForm(t *testing.T) {
	s := NewStore(testRegistry(t))
	step, _ := s.AddStep(StepAction, "notion", "create_page")
	s.UpdateInput(step.ID, "title", "Old value")

	if err := s.SwitchOperation(step.ID, StepAction, "notion", "create_comment"); err != nil {
		t.Fatal(err)
	}

	cur := s.SelectedStep()
	if cur.Operation != "create_comment" {
		t.Errorf("operation = %s", cur.Operation)
	}
	// Values from the old operation must not survive the switch.
	if got := cur.Session.Value("title"); got != nil {
		t.Errorf("stale value survived operation switch: %v", got)
	}
	if got := cur.Session.Value("text"); got != "" {
		t.Errorf("text = %v, want fresh default", got)
	}
}

func TestStepsPreserveOrder(t *testing.T) {
	s := NewStore(testRegistry(t))
	s.AddStep(StepTrigger, "notion", "new_item")
	s.AddStep(StepAction, "notion", "create_page")

	steps := s.Steps()
	if len(steps) != 2 || steps[0].Kind != StepTrigger || steps[1].Kind != StepAction {
		t.Errorf("unexpected step order: %+v", steps)
	}
}
