package types

import (
	"encoding/json"
	"reflect"
	"testing"
	"time"
)

func TestSortIDs(t *testing.T) {
	tests := []struct {
		name string
		in   []IssueID
		want []IssueID
	}{
		{"numeric", []IssueID{"103", "11", "2"}, []IssueID{"2", "11", "103"}},
		{"keys", []IssueID{"PROJ-2", "ABC-10", "PROJ-1"}, []IssueID{"ABC-10", "PROJ-1", "PROJ-2"}},
		{"mixed", []IssueID{"PROJ-1", "7", "buglist"}, []IssueID{"7", "PROJ-1", "buglist"}},
		{"empty", nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			SortIDs(tt.in)
			if !reflect.DeepEqual(tt.in, tt.want) {
				t.Errorf("SortIDs = %v, want %v", tt.in, tt.want)
			}
		})
	}
}

func TestIssueIDFromInt(t *testing.T) {
	if got := IssueIDFromInt(840976); got != "840976" {
		t.Errorf("IssueIDFromInt = %q", got)
	}
}

func TestRawIssueJSONFieldNames(t *testing.T) {
	dupe := IssueID("7")
	issue := RawIssue{
		ID:           "8",
		CreationTime: time.Date(2013, 1, 2, 3, 4, 5, 0, time.UTC),
		DependsOn:    []IssueID{"1"},
		DupeOf:       &dupe,
	}
	data, err := json.Marshal(issue)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var fields map[string]interface{}
	if err := json.Unmarshal(data, &fields); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	for _, key := range []string{"id", "creation_time", "creator_detail", "assigned_to_detail", "depends_on", "dupe_of"} {
		if _, ok := fields[key]; !ok {
			t.Errorf("encoded issue lacks %q: %s", key, data)
		}
	}
	if _, ok := fields["history"]; ok {
		t.Errorf("empty history should be omitted: %s", data)
	}
}
