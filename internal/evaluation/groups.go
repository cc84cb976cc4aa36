package evaluation

import (
	"io"
	"strings"

	"github.com/trialmatch/trialrag/internal/pkg/errors"
	"github.com/trialmatch/trialrag/internal/table"
)

// Ground-truth CSV columns.
const (
	ColumnTopic     = "topic_id"
	ColumnTrial     = "NCT_id"
	ColumnLabel     = "label"
	ColumnStatement = "statement_medical"
)

// Group is one evaluation query and its expected identifiers.
type Group struct {
	Key         string   `json:"key"`
	Query       string   `json:"query"`
	GroundTruth []string `json:"ground_truth"`
}

// GroupFilter selects the rows that contribute to groups.
type GroupFilter struct {
	// Topics restricts groups to these topic keys. Empty keeps every topic.
	Topics []string

	// Labels are the label values that mark a positive pair.
	Labels []string
}

// DefaultGroupFilter keeps entailed pairs of every topic.
func DefaultGroupFilter() GroupFilter {
	return GroupFilter{Labels: []string{"1", "Entailment"}}
}

// LoadGroups reads ground-truth tables and builds one group per topic, in
// first-seen topic order. A topic's query is its first statement and its
// ground truth the distinct trial identifiers in first-seen order.
func LoadGroups(filter GroupFilter, readers ...io.Reader) ([]Group, error) {
	tables := make([]*table.Table, 0, len(readers))
	for _, r := range readers {
		t, err := table.ReadCSV(r)
		if err != nil {
			return nil, err
		}
		tables = append(tables, t)
	}
	return GroupsFromTables(filter, tables...)
}

// LoadGroupFiles is LoadGroups over CSV files.
func LoadGroupFiles(filter GroupFilter, paths ...string) ([]Group, error) {
	tables := make([]*table.Table, 0, len(paths))
	for _, p := range paths {
		t, err := table.ReadCSVFile(p)
		if err != nil {
			return nil, err
		}
		tables = append(tables, t)
	}
	return GroupsFromTables(filter, tables...)
}

// GroupsFromTables builds groups from already parsed tables.
func GroupsFromTables(filter GroupFilter, tables ...*table.Table) ([]Group, error) {
	topics := keySet(filter.Topics)
	if len(filter.Labels) == 0 {
		filter.Labels = DefaultGroupFilter().Labels
	}
	labels := keySet(filter.Labels)

	var groups []Group
	index := make(map[string]int)
	seen := make(map[string]map[string]struct{})

	for _, t := range tables {
		for _, col := range []string{ColumnTopic, ColumnTrial, ColumnLabel, ColumnStatement} {
			if !t.HasColumn(col) {
				return nil, errors.ValidationError("ground truth table is missing a column").
					WithDetail("column", col)
			}
		}

		for _, r := range t.Rows {
			topic := r.Key(ColumnTopic)
			if topic == "" {
				continue
			}
			if len(topics) > 0 {
				if _, ok := topics[topic]; !ok {
					continue
				}
			}
			if _, ok := labels[r.Key(ColumnLabel)]; !ok {
				continue
			}

			i, ok := index[topic]
			if !ok {
				i = len(groups)
				index[topic] = i
				seen[topic] = make(map[string]struct{})
				groups = append(groups, Group{
					Key:         topic,
					Query:       statement(r),
					GroundTruth: []string{},
				})
			}

			id := r.Key(ColumnTrial)
			if id == "" {
				continue
			}
			if _, dup := seen[topic][id]; dup {
				continue
			}
			seen[topic][id] = struct{}{}
			groups[i].GroundTruth = append(groups[i].GroundTruth, id)
		}
	}

	return groups, nil
}

// AllowSet returns the union of every group's ground truth.
func AllowSet(groups []Group) map[string]struct{} {
	allow := make(map[string]struct{})
	for _, g := range groups {
		for _, id := range g.GroundTruth {
			allow[id] = struct{}{}
		}
	}
	return allow
}

func statement(r table.Row) string {
	v := r.Get(ColumnStatement)
	if v.IsNull() {
		return ""
	}
	return strings.TrimSpace(v.Text())
}

func keySet(keys []string) map[string]struct{} {
	set := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if k = table.NormalizeKey(k); k != "" {
			set[k] = struct{}{}
		}
	}
	return set
}
