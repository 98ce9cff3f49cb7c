package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/lugondev/go-ctoken/internal/storage"
	"github.com/lugondev/go-ctoken/pkg/types"
)

const (
	formatTable = "table"
	formatJSON  = "json"
	formatYAML  = "yaml"
)

func checkFormat(format string) error {
	switch format {
	case formatTable, formatJSON, formatYAML:
		return nil
	default:
		return fmt.Errorf("unsupported output format %q (table, json or yaml)", format)
	}
}

// formatAmount renders base units as a decimal token amount. A negative
// decimals value leaves the amount in base units.
func formatAmount(amount uint64, decimals int) string {
	d := decimal.NewFromUint64(amount)
	if decimals <= 0 {
		return d.String()
	}
	return d.Shift(-int32(decimals)).StringFixed(int32(decimals))
}

type sourceRow struct {
	Kind     string `json:"kind" yaml:"kind"`
	Address  string `json:"address" yaml:"address"`
	Amount   string `json:"amount" yaml:"amount"`
	State    string `json:"state" yaml:"state"`
	Delegate string `json:"delegate,omitempty" yaml:"delegate,omitempty"`
	Tree     string `json:"tree,omitempty" yaml:"tree,omitempty"`
}

type balanceReport struct {
	Owner              string      `json:"owner" yaml:"owner"`
	Mint               string      `json:"mint" yaml:"mint"`
	Address            string      `json:"address" yaml:"address"`
	Total              string      `json:"total" yaml:"total"`
	Primary            string      `json:"primary" yaml:"primary"`
	IsCold             bool        `json:"is_cold" yaml:"is_cold"`
	NeedsConsolidation bool        `json:"needs_consolidation" yaml:"needs_consolidation"`
	AnyFrozen          bool        `json:"any_frozen" yaml:"any_frozen"`
	Sources            []sourceRow `json:"sources" yaml:"sources"`
}

func newBalanceReport(v *types.UnifiedAccountView, decimals int) balanceReport {
	r := balanceReport{
		Owner:              v.Owner.String(),
		Mint:               v.Mint.String(),
		Address:            v.Address.String(),
		Total:              formatAmount(v.TotalAmount, decimals),
		Primary:            v.PrimarySource.Kind.String(),
		IsCold:             v.IsCold,
		NeedsConsolidation: v.NeedsConsolidation,
		AnyFrozen:          v.AnyFrozen,
	}
	for _, s := range v.Sources {
		row := sourceRow{
			Kind:    s.Kind.String(),
			Address: s.Address.String(),
			Amount:  formatAmount(s.Amount, decimals),
			State:   s.State.String(),
		}
		if s.Delegate != nil {
			row.Delegate = s.Delegate.String()
		}
		if s.LoadContext != nil {
			row.Tree = fmt.Sprintf("%s (%s)", s.LoadContext.TreeInfo.Tree, s.LoadContext.TreeInfo.TreeType)
		}
		r.Sources = append(r.Sources, row)
	}
	return r
}

func renderBalance(w io.Writer, v *types.UnifiedAccountView, decimals int, format string) error {
	report := newBalanceReport(v, decimals)
	if format != formatTable {
		return encode(w, report, format)
	}

	fmt.Fprintf(w, "Owner:   %s\n", report.Owner)
	fmt.Fprintf(w, "Mint:    %s\n", report.Mint)
	fmt.Fprintf(w, "Account: %s\n", report.Address)

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Kind", "Address", "Amount", "State", "Delegate", "Tree"})
	for _, s := range report.Sources {
		t.AppendRow(table.Row{s.Kind, s.Address, s.Amount, s.State, s.Delegate, s.Tree})
	}
	var flags []string
	if report.IsCold {
		flags = append(flags, "cold")
	}
	if report.NeedsConsolidation {
		flags = append(flags, "needs load")
	}
	if report.AnyFrozen {
		flags = append(flags, "frozen")
	}
	t.AppendFooter(table.Row{"Total", report.Primary, report.Total, strings.Join(flags, ", "), "", ""})
	t.Render()
	return nil
}

type historyRow struct {
	Operation string `json:"operation" yaml:"operation"`
	Kind      string `json:"kind" yaml:"kind"`
	Mint      string `json:"mint" yaml:"mint"`
	Batch     string `json:"batch" yaml:"batch"`
	Amount    string `json:"amount" yaml:"amount"`
	Units     uint32 `json:"compute_units" yaml:"compute_units"`
	Status    string `json:"status" yaml:"status"`
	Signature string `json:"signature,omitempty" yaml:"signature,omitempty"`
	Error     string `json:"error,omitempty" yaml:"error,omitempty"`
	Time      string `json:"time" yaml:"time"`
}

func renderHistory(w io.Writer, entries []*storage.JournalModel, format string) error {
	rows := make([]historyRow, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, historyRow{
			Operation: e.OperationID,
			Kind:      string(e.Kind),
			Mint:      e.Mint,
			Batch:     fmt.Sprintf("%d/%d", e.BatchIndex+1, e.BatchCount),
			Amount:    formatAmount(e.Amount, 0),
			Units:     e.ComputeUnits,
			Status:    string(e.Status),
			Signature: e.Signature,
			Error:     e.ErrorMessage,
			Time:      e.CreatedAt.Format("2006-01-02 15:04:05"),
		})
	}
	if format != formatTable {
		return encode(w, rows, format)
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Time", "Kind", "Batch", "Amount", "Units", "Status", "Signature"})
	for _, r := range rows {
		status := r.Status
		if r.Error != "" {
			status += ": " + r.Error
		}
		t.AppendRow(table.Row{r.Time, r.Kind, r.Batch, r.Amount, r.Units, status, r.Signature})
	}
	t.Render()
	return nil
}

func encode(w io.Writer, v any, format string) error {
	switch format {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return checkFormat(format)
	}
}
