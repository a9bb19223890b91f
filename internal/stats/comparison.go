package stats

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

const comparisonsDir = "comparisons"

// VariantComparison records several inference runs over the same data and
// model, one per variant.
type VariantComparison struct {
	ID             string          `json:"id"`
	Notes          string          `json:"notes,omitempty"`
	ModelID        string          `json:"model_id"`
	DataPath       string          `json:"data_path,omitempty"`
	StartedAtUTC   string          `json:"started_at_utc,omitempty"`
	CompletedAtUTC string          `json:"completed_at_utc,omitempty"`
	RunIDs         []string        `json:"run_ids,omitempty"`
	Summaries      []RunIndexEntry `json:"summaries,omitempty"`
	// BestVariant has the lowest final loss.
	BestVariant string `json:"best_variant,omitempty"`
}

// Rank orders summaries by final loss and records the best variant.
func (c *VariantComparison) Rank() {
	sort.SliceStable(c.Summaries, func(i, j int) bool {
		return c.Summaries[i].FinalLoss < c.Summaries[j].FinalLoss
	})
	if len(c.Summaries) > 0 {
		c.BestVariant = c.Summaries[0].Variant
	}
}

func WriteVariantComparison(baseDir string, cmp VariantComparison) error {
	if cmp.ID == "" {
		return fmt.Errorf("comparison id is required")
	}
	path := comparisonPath(baseDir, cmp.ID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return writeJSON(path, cmp)
}

func ReadVariantComparison(baseDir, id string) (VariantComparison, bool, error) {
	if id == "" {
		return VariantComparison{}, false, fmt.Errorf("comparison id is required")
	}
	var cmp VariantComparison
	ok, err := readJSON(comparisonPath(baseDir, id), &cmp)
	return cmp, ok, err
}

func ListVariantComparisons(baseDir string) ([]VariantComparison, error) {
	root := filepath.Join(baseDir, comparisonsDir)
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return []VariantComparison{}, nil
		}
		return nil, err
	}

	out := make([]VariantComparison, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		cmp, ok, err := ReadVariantComparison(baseDir, entry.Name())
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		out = append(out, cmp)
	}
	sort.Slice(out, func(i, j int) bool {
		switch {
		case out[i].StartedAtUTC == out[j].StartedAtUTC:
			return out[i].ID < out[j].ID
		case out[i].StartedAtUTC == "":
			return false
		case out[j].StartedAtUTC == "":
			return true
		default:
			return out[i].StartedAtUTC > out[j].StartedAtUTC
		}
	})
	return out, nil
}

func comparisonPath(baseDir, id string) string {
	return filepath.Join(baseDir, comparisonsDir, id, "comparison.json")
}
