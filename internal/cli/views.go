package cli

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/UCKETX/mcsm-templates/internal/coordinator"
	"github.com/UCKETX/mcsm-templates/internal/record"
	"github.com/UCKETX/mcsm-templates/internal/store"
)

// listView is a named list of strings, e.g. {"versions": [...]}.
type listView struct {
	key   string
	items []string
}

func (v listView) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string][]string{v.key: v.items})
}

func (v listView) MarshalYAML() (any, error) {
	return map[string][]string{v.key: v.items}, nil
}

func (v listView) String() string {
	return strings.Join(v.items, "\n")
}

func (v listView) TableHeader() table.Row {
	return table.Row{"#", v.key}
}

func (v listView) TableRows() []table.Row {
	rows := make([]table.Row, len(v.items))
	for i, item := range v.items {
		rows[i] = table.Row{i + 1, item}
	}
	return rows
}

// buildView is a single build record.
type buildView struct {
	Build record.BuildRecord `json:"build" yaml:"build"`
}

func (v buildView) String() string {
	b := v.Build
	return fmt.Sprintf("%s %s %s\n  url:  %s\n  sync: %s",
		b.CoreType, b.MCVersion, b.CoreVersion, b.DownloadURL, record.FormatSyncTime(b.SyncTime))
}

func (v buildView) TableHeader() table.Row {
	return table.Row{"core_type", "mc_version", "core_version", "download_url", "sync_time"}
}

func (v buildView) TableRows() []table.Row {
	b := v.Build
	return []table.Row{{b.CoreType, b.MCVersion, b.CoreVersion, b.DownloadURL, record.FormatSyncTime(b.SyncTime)}}
}

// syncView summarizes a sync run.
type syncView struct {
	Report coordinator.RunReport `json:"report" yaml:"report"`
	Errors []string              `json:"errors,omitempty" yaml:"errors,omitempty"`
}

func newSyncView(r coordinator.RunReport) syncView {
	v := syncView{Report: r}
	for _, f := range r.Failures {
		v.Errors = append(v.Errors, f.Error())
	}
	for _, f := range r.Merges {
		v.Errors = append(v.Errors, f.Error())
	}
	for _, ct := range slices.Sorted(maps.Keys(r.RetentionErrors)) {
		v.Errors = append(v.Errors, fmt.Sprintf("retention %s: %v", ct, r.RetentionErrors[ct]))
	}
	return v
}

func (v syncView) String() string {
	var sb strings.Builder
	r := v.Report
	fmt.Fprintf(&sb, "Run %s finished in %s\n", r.RunID, r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))
	for _, a := range r.Adapters {
		switch {
		case a.Failure != nil:
			fmt.Fprintf(&sb, "  %-18s FAILED  %v\n", a.Adapter, a.Failure.Err)
		case a.Skipped:
			fmt.Fprintf(&sb, "  %-18s skipped\n", a.Adapter)
		default:
			ins, upd := mergeTotals(a)
			fmt.Fprintf(&sb, "  %-18s %d records, %d inserted, %d updated\n", a.Adapter, a.Records, ins, upd)
		}
	}
	for _, res := range r.Retention {
		fmt.Fprintf(&sb, "  retention %-8s cap %d, removed %d\n", res.CoreType, res.Cap, res.Removed)
	}
	for _, e := range v.Errors {
		fmt.Fprintf(&sb, "  error: %s\n", e)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (v syncView) TableHeader() table.Row {
	return table.Row{"adapter", "records", "inserted", "updated", "status"}
}

func (v syncView) TableRows() []table.Row {
	rows := make([]table.Row, 0, len(v.Report.Adapters))
	for _, a := range v.Report.Adapters {
		ins, upd := mergeTotals(a)
		status := "ok"
		switch {
		case a.Failure != nil:
			status = "failed"
		case a.Skipped:
			status = "skipped"
		}
		rows = append(rows, table.Row{a.Adapter, a.Records, ins, upd, status})
	}
	return rows
}

func mergeTotals(a coordinator.AdapterReport) (inserted, updated int) {
	for _, sub := range a.Submits {
		for _, res := range sub.Results {
			inserted += res.Inserted
			updated += res.Updated
		}
	}
	return inserted, updated
}

// retentionView lists the result of a retention pass per core type.
type retentionView struct {
	Results []store.RetentionResult `json:"results" yaml:"results"`
}

func (v retentionView) String() string {
	var sb strings.Builder
	for _, r := range v.Results {
		fmt.Fprintf(&sb, "%s: cap %d, %d tables, removed %d", r.CoreType, r.Cap, r.Tables, r.Removed)
		if len(r.DroppedVersions) > 0 {
			fmt.Fprintf(&sb, ", dropped %s", strings.Join(r.DroppedVersions, ", "))
		}
		sb.WriteByte('\n')
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (v retentionView) TableHeader() table.Row {
	return table.Row{"core_type", "cap", "tables", "removed", "dropped"}
}

func (v retentionView) TableRows() []table.Row {
	rows := make([]table.Row, len(v.Results))
	for i, r := range v.Results {
		rows[i] = table.Row{r.CoreType, r.Cap, r.Tables, r.Removed, strings.Join(r.DroppedVersions, ",")}
	}
	return rows
}
