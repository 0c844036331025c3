// Package fixtures ships reference datasets used by tests and the seed command.
package fixtures

import (
	_ "embed"

	"spacenet/internal/dataset"
)

//go:embed lunar_sortie.yaml
var lunarSortie []byte

// LunarSortie returns the lunar sortie campaign: resources, the Earth to
// lunar south pole network and the vehicles and crew flying it.
func LunarSortie() (dataset.Document, error) {
	return dataset.Decode(lunarSortie, dataset.FormatYAML)
}

// LunarSortieYAML returns the raw fixture document.
func LunarSortieYAML() []byte {
	out := make([]byte, len(lunarSortie))
	copy(out, lunarSortie)
	return out
}
