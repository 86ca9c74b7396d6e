package discovery

import (
	"reflect"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/ElektryonUK/storjcloud-client/internal/models"
)

// genNodeRecord draws node IDs from a small pool so duplicate IDs are
// common, which is the case deduplication exists for.
func genNodeRecord() gopter.Gen {
	return gopter.CombineGens(
		gen.OneConstOf("", "node-1", "node-2", "node-3", "node-4"),
		gen.Identifier(),
		gen.OneConstOf(models.OriginContainer, models.OriginPortScan),
		gen.IntRange(14000, 15000),
	).Map(func(vals []interface{}) models.NodeRecord {
		return models.NodeRecord{
			NodeID:     vals[0].(string),
			Name:       vals[1].(string),
			Origin:     vals[2].(models.Origin),
			StatusPort: vals[3].(int),
			Address:    "127.0.0.1",
		}
	})
}

func TestDedupProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("every surviving record has a unique, non-empty ID", prop.ForAll(
		func(records []models.NodeRecord) bool {
			seen := map[string]bool{}
			for _, rec := range Dedup(records, nil) {
				if rec.NodeID == "" || seen[rec.NodeID] {
					return false
				}
				seen[rec.NodeID] = true
			}
			return true
		},
		gen.SliceOf(genNodeRecord()),
	))

	properties.Property("the last record for an ID wins", prop.ForAll(
		func(records []models.NodeRecord) bool {
			want := map[string]models.NodeRecord{}
			for _, rec := range records {
				if rec.NodeID != "" {
					want[rec.NodeID] = rec
				}
			}

			out := Dedup(records, nil)
			if len(out) != len(want) {
				return false
			}
			for _, rec := range out {
				if !reflect.DeepEqual(rec, want[rec.NodeID]) {
					return false
				}
			}
			return true
		},
		gen.SliceOf(genNodeRecord()),
	))

	properties.Property("output follows first-seen input order", prop.ForAll(
		func(records []models.NodeRecord) bool {
			var order []string
			seen := map[string]bool{}
			for _, rec := range records {
				if rec.NodeID == "" || seen[rec.NodeID] {
					continue
				}
				seen[rec.NodeID] = true
				order = append(order, rec.NodeID)
			}

			out := Dedup(records, nil)
			if len(out) != len(order) {
				return false
			}
			for i, rec := range out {
				if rec.NodeID != order[i] {
					return false
				}
			}
			return true
		},
		gen.SliceOf(genNodeRecord()),
	))

	properties.Property("deduplication is idempotent", prop.ForAll(
		func(records []models.NodeRecord) bool {
			once := Dedup(records, nil)
			twice := Dedup(once, nil)
			return reflect.DeepEqual(once, twice)
		},
		gen.SliceOf(genNodeRecord()),
	))

	properties.TestingRun(t)
}
