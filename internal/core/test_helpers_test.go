package core

import (
	"testing"

	"spacenet/internal/infra/persistence/memory"
	"spacenet/pkg/domain"
)

func newModel(t *testing.T) Model {
	t.Helper()
	model, err := NewModel()
	if err != nil {
		t.Fatalf("new model: %v", err)
	}
	return model
}

func newInMemoryService(t *testing.T, engine *domain.RulesEngine, opts ...ServiceOption) *Service {
	t.Helper()
	return NewService(memory.NewStore(engine), newModel(t), opts...)
}

func ksc() map[string]any {
	return map[string]any{
		"type": "Surface", "name": "KSC", "description": "Kennedy Space Center",
		"body_1": "Earth", "latitude": 28.57, "longitude": -80.65,
	}
}

func water() map[string]any {
	return map[string]any{
		"type": "Continuous", "name": "Water", "description": "potable water",
		"class_of_supply": 2, "units": "kg", "unit_mass": 1.0, "unit_volume": 0.001,
	}
}

func sameFields(t *testing.T, label string, got, want map[string]any) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("%s: expected %d fields, got %d: %v", label, len(want), len(got), got)
	}
	for k, v := range want {
		if got[k] != v {
			t.Fatalf("%s: field %s expected %v (%T), got %v (%T)", label, k, v, v, got[k], got[k])
		}
	}
}
