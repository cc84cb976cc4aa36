package evaluation

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/trialmatch/trialrag/internal/pkg/errors"
)

const trainCSV = `topic_id,NCT_id,label,statement_medical
3,NCT001,1,Adult with severe asthma
3,NCT002,0,Adult with severe asthma
3,NCT003,Entailment,Second statement ignored
7,NCT004,1,Type 2 diabetes on metformin
3,NCT001,1,Adult with severe asthma
9,NCT005,1,Excluded topic
`

const testCSV = `topic_id,NCT_id,label,statement_medical
7.0,NCT006,Entailment,Later statement
12,NCT007,Contradiction,Only negatives
`

func TestLoadGroups(t *testing.T) {
	filter := DefaultGroupFilter()
	filter.Topics = []string{"3", "7", "12"}

	groups, err := LoadGroups(filter, strings.NewReader(trainCSV), strings.NewReader(testCSV))
	if err != nil {
		t.Fatalf("LoadGroups() error = %v", err)
	}

	want := []Group{
		{Key: "3", Query: "Adult with severe asthma", GroundTruth: []string{"NCT001", "NCT003"}},
		{Key: "7", Query: "Type 2 diabetes on metformin", GroundTruth: []string{"NCT004", "NCT006"}},
	}
	if !reflect.DeepEqual(groups, want) {
		t.Errorf("LoadGroups() =\n%+v\nwant\n%+v", groups, want)
	}
}

func TestLoadGroups_AllTopics(t *testing.T) {
	groups, err := LoadGroups(GroupFilter{}, strings.NewReader(trainCSV))
	if err != nil {
		t.Fatal(err)
	}
	var keys []string
	for _, g := range groups {
		keys = append(keys, g.Key)
	}
	if !reflect.DeepEqual(keys, []string{"3", "7", "9"}) {
		t.Errorf("keys = %v", keys)
	}
}

func TestLoadGroups_MissingColumn(t *testing.T) {
	_, err := LoadGroups(DefaultGroupFilter(), strings.NewReader("topic_id,NCT_id\n3,NCT001\n"))
	if !errors.IsValidation(err) {
		t.Errorf("LoadGroups() error = %v, want validation error", err)
	}
}

func TestLoadGroupFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "train.csv")
	if err := os.WriteFile(path, []byte(trainCSV), 0644); err != nil {
		t.Fatal(err)
	}

	groups, err := LoadGroupFiles(GroupFilter{Topics: []string{"7"}}, path)
	if err != nil {
		t.Fatalf("LoadGroupFiles() error = %v", err)
	}
	if len(groups) != 1 || groups[0].Key != "7" {
		t.Errorf("groups = %+v", groups)
	}

	if _, err := LoadGroupFiles(GroupFilter{}, filepath.Join(dir, "missing.csv")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestAllowSet(t *testing.T) {
	allow := AllowSet([]Group{
		{Key: "1", GroundTruth: []string{"A", "B"}},
		{Key: "2", GroundTruth: []string{"B", "C"}},
	})
	if len(allow) != 3 {
		t.Errorf("AllowSet() has %d ids, want 3", len(allow))
	}
	for _, id := range []string{"A", "B", "C"} {
		if _, ok := allow[id]; !ok {
			t.Errorf("AllowSet() missing %s", id)
		}
	}
}
