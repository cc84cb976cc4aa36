package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append(args, "--env-file", filepath.Join(t.TempDir(), "missing.env")))
	err := cmd.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out, "trialrag dev\n") {
		t.Errorf("output = %q", out)
	}
}

func TestRequiredInputs(t *testing.T) {
	tests := []struct {
		args []string
		want string
	}{
		{[]string{"fetch"}, "--trials and --out are required"},
		{[]string{"ingest"}, "--table is required"},
		{[]string{"evaluate"}, "--gt is required"},
	}

	for _, tt := range tests {
		t.Run(tt.args[0], func(t *testing.T) {
			_, err := run(t, tt.args...)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %v, want %q", err, tt.want)
			}
		})
	}
}

func TestIngestDryRun(t *testing.T) {
	dir := t.TempDir()
	tablePath := filepath.Join(dir, "trials.csv")
	gtPath := filepath.Join(dir, "train.csv")

	trials := "Unnamed: 0,nct_id,condition,eligibility_criteria\n" +
		"0,NCT001,\"[\"\"Asthma\"\"]\",Adults\n" +
		"1,NCT002,\"[\"\"Diabetes\"\"]\",Children\n" +
		"2,NCT003,,\n"
	gt := "topic_id,NCT_id,label,statement_medical\n" +
		"3,NCT001,1,asthma in adults\n" +
		"3,NCT003,1,asthma in adults\n" +
		"7,NCT002,0,diabetes\n"
	if err := os.WriteFile(tablePath, []byte(trials), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(gtPath, []byte(gt), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := run(t, "ingest", "--dry-run", "--table", tablePath, "--gt", gtPath)
	if err != nil {
		t.Fatalf("ingest error = %v", err)
	}
	if !strings.HasPrefix(out, "Inserted 2 of 2 documents (1 header only, 0 rows without id)") {
		t.Errorf("output = %q", out)
	}
}
