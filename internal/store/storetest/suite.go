package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/areahq/area-engine/internal/model"
	"github.com/areahq/area-engine/internal/store"
)

// Run exercises a compliance suite against a store.Store implementation.
// Implementations should provide a clean, isolated store and return it from makeStore.
func Run(t *testing.T, makeStore func(t *testing.T) store.Store) {
	t.Helper()

	s := makeStore(t)
	ctx := context.Background()

	suffix := uuid.New().String()[:8]
	actionSvc := "Timer-" + suffix
	reactionSvc := "Webhook-" + suffix
	userID := "u-" + suffix

	// Catalog
	for _, svc := range []*model.Service{
		{Name: actionSvc, AuthType: "none", Description: "clock"},
		{Name: reactionSvc, AuthType: "none"},
	} {
		if err := s.Catalog().PutService(ctx, svc); err != nil {
			t.Fatalf("PutService %s: %v", svc.Name, err)
		}
	}
	action := &model.Capability{Service: actionSvc, Kind: model.KindAction, Identifier: "timer_every_x_minutes", Name: "Every X minutes",
		Fields: []model.Field{{Name: "minutes", Type: "number", Label: "Minutes"}}}
	reaction := &model.Capability{Service: reactionSvc, Kind: model.KindReaction, Identifier: "webhook_call", Name: "Call webhook"}
	for _, c := range []*model.Capability{action, reaction} {
		if err := s.Catalog().PutCapability(ctx, c); err != nil {
			t.Fatalf("PutCapability %s: %v", c.Identifier, err)
		}
	}
	// upsert is idempotent
	if err := s.Catalog().PutCapability(ctx, action); err != nil {
		t.Fatalf("PutCapability again: %v", err)
	}
	got, err := s.Catalog().GetCapability(ctx, action.ID)
	if err != nil || got.Identifier != "timer_every_x_minutes" || got.Kind != model.KindAction || len(got.Fields) != 1 {
		t.Fatalf("GetCapability: got=%+v err=%v", got, err)
	}
	if _, err := s.Catalog().GetCapability(ctx, "action:nope:nope"); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("GetCapability missing: expected ErrNotFound, got %v", err)
	}
	if err := s.Catalog().PutCapability(ctx, &model.Capability{Service: actionSvc, Kind: "other", Identifier: "x"}); !errors.Is(err, model.ErrValidation) {
		t.Fatalf("PutCapability bad kind: expected ErrValidation, got %v", err)
	}

	// Areas
	if _, err := s.Areas().Create(ctx, &model.Area{UserID: userID, Name: "swapped",
		Action: model.Binding{CapabilityID: reaction.ID}, Reaction: model.Binding{CapabilityID: action.ID}}); !errors.Is(err, model.ErrValidation) {
		t.Fatalf("Create swapped kinds: expected ErrValidation, got %v", err)
	}

	a, err := s.Areas().Create(ctx, &model.Area{
		UserID:         userID,
		Name:           "every half hour",
		Action:         model.Binding{CapabilityID: action.ID},
		Reaction:       model.Binding{CapabilityID: reaction.ID},
		ActionParams:   map[string]any{"minutes": float64(30)},
		ReactionParams: map[string]any{"url": "https://example.test/hook", "headers": map[string]any{"X-A": "1"}},
		Active:         true,
	})
	if err != nil {
		t.Fatalf("CreateArea: %v", err)
	}
	if a.AreaID == "" || a.Action.Service != actionSvc || a.Reaction.Identifier != "webhook_call" {
		t.Fatalf("CreateArea: unexpected %+v", a)
	}
	inactive, err := s.Areas().Create(ctx, &model.Area{UserID: userID, Name: "off",
		Action: model.Binding{CapabilityID: action.ID}, Reaction: model.Binding{CapabilityID: reaction.ID}})
	if err != nil {
		t.Fatalf("CreateArea inactive: %v", err)
	}

	active, err := s.Areas().ListActive(ctx)
	if err != nil {
		t.Fatalf("ListActive: %v", err)
	}
	var found *model.Area
	for _, x := range active {
		if x.AreaID == inactive.AreaID {
			t.Fatalf("ListActive returned inactive area")
		}
		if x.AreaID == a.AreaID {
			found = x
		}
	}
	if found == nil {
		t.Fatalf("ListActive: area %s missing", a.AreaID)
	}
	if found.Action.Identifier != "timer_every_x_minutes" || found.Reaction.Service != reactionSvc {
		t.Fatalf("ListActive: bindings not resolved: %+v", found)
	}
	if found.ActionParams["minutes"] != float64(30) || found.LastExecutedAt != nil {
		t.Fatalf("ListActive: params/watermark wrong: %+v", found)
	}
	if hdr, ok := found.ReactionParams["headers"].(map[string]any); !ok || hdr["X-A"] != "1" {
		t.Fatalf("ListActive: nested reaction params lost: %+v", found.ReactionParams)
	}

	// Watermark only moves forward
	t1 := time.Now().UTC().Truncate(time.Millisecond)
	if err := s.Areas().AdvanceWatermark(ctx, a.AreaID, t1); err != nil {
		t.Fatalf("AdvanceWatermark: %v", err)
	}
	if err := s.Areas().AdvanceWatermark(ctx, a.AreaID, t1.Add(-time.Hour)); err != nil {
		t.Fatalf("AdvanceWatermark backwards: %v", err)
	}
	reloaded, err := s.Areas().Get(ctx, a.AreaID)
	if err != nil || reloaded.LastExecutedAt == nil || !reloaded.LastExecutedAt.Equal(t1) {
		t.Fatalf("Get after advance: got=%+v err=%v", reloaded, err)
	}
	t2 := t1.Add(30 * time.Minute)
	if err := s.Areas().AdvanceWatermark(ctx, a.AreaID, t2); err != nil {
		t.Fatalf("AdvanceWatermark forward: %v", err)
	}
	if reloaded, _ = s.Areas().Get(ctx, a.AreaID); reloaded == nil || !reloaded.LastExecutedAt.Equal(t2) {
		t.Fatalf("watermark did not advance: %+v", reloaded)
	}
	if err := s.Areas().AdvanceWatermark(ctx, "missing-"+suffix, t2); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("AdvanceWatermark missing: expected ErrNotFound, got %v", err)
	}

	if lst, err := s.Areas().List(ctx, userID); err != nil || len(lst) != 2 {
		t.Fatalf("List: n=%d err=%v", len(lst), err)
	}

	// SetActive
	if err := s.Areas().SetActive(ctx, inactive.AreaID, true); err != nil {
		t.Fatalf("SetActive: %v", err)
	}
	if err := s.Areas().SetActive(ctx, "missing-"+suffix, true); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("SetActive missing: expected ErrNotFound, got %v", err)
	}

	// Credentials
	exp := time.Now().Add(time.Hour).UTC().Truncate(time.Millisecond)
	cred := &model.Credential{UserID: userID, Service: "GitHub", AccessToken: "tok-1", RefreshToken: "ref-1", ExpiresAt: &exp}
	if err := s.Credentials().Put(ctx, cred); err != nil {
		t.Fatalf("PutCredential: %v", err)
	}
	cred.AccessToken = "tok-2"
	if err := s.Credentials().Put(ctx, cred); err != nil {
		t.Fatalf("PutCredential upsert: %v", err)
	}
	gc, err := s.Credentials().Get(ctx, userID, "GitHub")
	if err != nil || gc.AccessToken != "tok-2" || gc.RefreshToken != "ref-1" || gc.ExpiresAt == nil || !gc.ExpiresAt.Equal(exp) {
		t.Fatalf("GetCredential: got=%+v err=%v", gc, err)
	}
	if _, err := s.Credentials().Get(ctx, userID, "Spotify"); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("GetCredential missing: expected ErrNotFound, got %v", err)
	}
	if err := s.Credentials().Delete(ctx, userID, "GitHub"); err != nil {
		t.Fatalf("DeleteCredential: %v", err)
	}

	// Executions
	for i, o := range []model.Outcome{model.OutcomeTriggered, model.OutcomeTriggered} {
		rec := &model.Execution{AreaID: a.AreaID, Outcome: o, Success: i == 0, Message: "fired",
			Snapshot: map[string]any{"message": "tick"}, ExecutedAt: t1.Add(time.Duration(i) * time.Minute)}
		if err := s.Executions().Append(ctx, rec); err != nil {
			t.Fatalf("AppendExecution: %v", err)
		}
	}
	recs, err := s.Executions().List(ctx, a.AreaID, 10)
	if err != nil || len(recs) != 2 {
		t.Fatalf("ListExecutions: n=%d err=%v", len(recs), err)
	}
	if !recs[0].ExecutedAt.After(recs[1].ExecutedAt) || recs[1].Snapshot["message"] != "tick" {
		t.Fatalf("ListExecutions: unexpected order/content: %+v %+v", recs[0], recs[1])
	}

	// Delete cascades executions
	if err := s.Areas().Delete(ctx, a.AreaID); err != nil {
		t.Fatalf("DeleteArea: %v", err)
	}
	if _, err := s.Areas().Get(ctx, a.AreaID); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("Get after delete: expected ErrNotFound, got %v", err)
	}
	if recs, err := s.Executions().List(ctx, a.AreaID, 10); err != nil || len(recs) != 0 {
		t.Fatalf("executions not cascaded: n=%d err=%v", len(recs), err)
	}
	if err := s.Areas().Delete(ctx, a.AreaID); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("Delete twice: expected ErrNotFound, got %v", err)
	}
}
