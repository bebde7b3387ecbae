package task

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/lattice-dev/lattice/internal/model"
)

// RecordCustomEvent appends an extension event. eventType must start
// with "x_"; built-in types are rejected with ErrReservedType since
// they carry reducer-specific invariants a caller cannot safely
// replicate by hand.
func (s *Service) RecordCustomEvent(ctx context.Context, id, eventType string, data map[string]interface{}, actor, eventID string, prov *model.Provenance) (snap *model.Task, err error) {
	defer s.observeVerb("record_custom_event", time.Now(), &err)
	if !strings.HasPrefix(eventType, "x_") || model.BuiltinEventTypes[eventType] {
		return nil, fmt.Errorf("%w: %q", ErrReservedType, eventType)
	}
	h, err := s.locks.Acquire(ctx, taskResource(id))
	if err != nil {
		return nil, err
	}
	defer h.Release()

	prior, err := s.loadLive(id)
	if err != nil {
		return nil, err
	}
	cfg := s.cfgSvc.Current()

	ev := model.Event{ID: eventID, Type: eventType, TaskID: id, Actor: actor, Data: data, Provenance: prov}
	snap, appended, isNew, err := s.appendAndApply(id, ev, cfg, prior, s.st.TaskPath(id))
	if err != nil {
		return nil, err
	}
	s.fireHooks(cfg, appended, isNew)
	return snap, nil
}
