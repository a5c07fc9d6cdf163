package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"gopkg.in/yaml.v3"

	"github.com/justyntemme/gainlink/pkg/gainstage"
)

// Output formats accepted by --output.
const (
	formatTable = "table"
	formatJSON  = "json"
	formatYAML  = "yaml"
)

func validFormat(f string) error {
	switch f {
	case formatTable, formatJSON, formatYAML:
		return nil
	default:
		return fmt.Errorf("unknown output format %q (want %s, %s or %s)", f, formatTable, formatJSON, formatYAML)
	}
}

// renderContext writes ctx to w in format.
func renderContext(w io.Writer, ctx gainstage.Context, format string) error {
	switch format {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(ctx)
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(ctx); err != nil {
			return err
		}
		return enc.Close()
	default:
		_, err := io.WriteString(w, renderTable(ctx))
		return err
	}
}

func renderTable(ctx gainstage.Context) string {
	var b strings.Builder
	b.WriteString(renderCoordinator(ctx.Coordinator))
	b.WriteString("\n\n")

	if len(ctx.Participants) == 0 {
		b.WriteString(keyStyle.Render(gainstage.Summarize(nil)))
		b.WriteByte('\n')
		return b.String()
	}

	rows := make([][]string, 0, len(ctx.Participants))
	for _, p := range ctx.Participants {
		rows = append(rows, participantRow(p))
	}
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(keyStyle).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		Headers("Slot", "Track", "Source", "RMS", "Peak", "Crest", "Phase", "Gain", "Out RMS", "Out Peak", "Target", "Max Peak", "Auto", "Rider", "Control", "Age").
		Rows(rows...)

	b.WriteString(t.Render())
	fmt.Fprintf(&b, "\n%s\n", keyStyle.Render(fmt.Sprintf("%d active participant tracks", len(ctx.Participants))))
	return b.String()
}

func renderCoordinator(c gainstage.CoordinatorReport) string {
	if c.LastBroadcastMs < 0 {
		return titleStyle.Render("Coordinator") + "  " + warnStyle.Render("not running")
	}

	pair := func(k, v string) string {
		return keyStyle.Render(k+":") + " " + valueStyle.Render(v)
	}
	rider := "off"
	if c.RiderEnabled {
		rider = fmt.Sprintf("%.0f%%", c.RiderAmount)
	}
	loudness := "off"
	if c.LoudnessEnabled {
		loudness = fmt.Sprintf("%.1f LUFS", c.LoudnessTargetLUFS)
	}

	lines := []string{
		titleStyle.Render("Coordinator") + "  " + okStyle.Render(fmt.Sprintf("last broadcast %dms ago", c.LastBroadcastMs)),
		strings.Join([]string{
			pair("Target", dB(c.TargetDB)),
			pair("Gain", dB(c.GainDB)),
			pair("Max Peak", dB(c.CeilingDB)),
			pair("Auto", onOff(c.AutoEnabled)),
			pair("Rider", rider),
			pair("Loudness", loudness),
		}, "  "),
		strings.Join([]string{
			pair("Genre", c.Genre),
			pair("Source", c.Source),
			pair("Situation", c.Situation),
			pair("Short-term", fmt.Sprintf("%.1f LUFS", c.ShortTermLUFS)),
			pair("Width", fmt.Sprintf("%.0f%%", c.Width)),
		}, "  "),
	}
	return strings.Join(lines, "\n")
}

func participantRow(p gainstage.ParticipantReport) []string {
	phase := fmt.Sprintf("%.2f", p.Correlation)
	if p.PhaseWarning {
		phase = warnStyle.Render(phase)
	}
	control := "local"
	switch {
	case p.Override:
		control = "pinned"
	case p.ControlledByCoordinator:
		control = "coordinator"
	}
	return []string{
		strconv.Itoa(p.Index),
		p.Name,
		p.Source,
		dB(p.RMSDB),
		dB(p.PeakDB),
		dB(p.CrestDB),
		phase,
		fmt.Sprintf("%+.1f dB", p.CurrentGainDB()),
		dB(p.OutputRMSDB),
		dB(p.OutputPeakDB),
		dB(p.TargetDB),
		dB(p.CeilingDB),
		onOff(p.AutoEnabled),
		fmt.Sprintf("%.0f%%", p.RiderAmount),
		control,
		fmt.Sprintf("%dms", p.AgeMs),
	}
}

func dB(v float32) string {
	return fmt.Sprintf("%.1f dB", v)
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}
