package stats

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func sampleReport() Report {
	return Report{
		Document:  "chinese.ts",
		SizeBytes: 2048,
		Total:     5,
		Finished:  3,
		Draft:     1,
		Missing:   1,
		Coverage:  60.0,
		Contexts: []ContextStats{
			{Name: "MainWindow", Total: 4, Finished: 2, Draft: 1, Missing: 1, Coverage: 50.0},
			{Name: "Dialog", Total: 1, Finished: 1, Coverage: 100.0},
		},
	}
}

func TestParseFormat(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input   string
		want    Format
		wantErr bool
	}{
		{input: "table", want: FormatTable},
		{input: "json", want: FormatJSON},
		{input: "yaml", want: FormatYAML},
		{input: "xml", wantErr: true},
		{input: "", wantErr: true},
		{input: "JSON", wantErr: true},
	}

	for _, tt := range tests {
		t.Run("input "+tt.input, func(t *testing.T) {
			t.Parallel()

			got, err := ParseFormat(tt.input)

			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrUnknownFormat)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRender_JSONRoundTrips(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	require.NoError(t, Render(&buf, sampleReport(), FormatJSON))

	var got Report

	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, sampleReport(), got)
}

func TestRender_YAML(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	require.NoError(t, Render(&buf, sampleReport(), FormatYAML))

	var got Report

	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, 5, got.Total)
	assert.Len(t, got.Contexts, 2)
}

func TestRender_Table(t *testing.T) {
	color.NoColor = true

	var buf bytes.Buffer

	require.NoError(t, Render(&buf, sampleReport(), FormatTable))

	out := buf.String()

	assert.Contains(t, out, "Document: chinese.ts")
	assert.Contains(t, out, "2.0 kB")
	assert.Contains(t, out, "MainWindow")
	assert.Contains(t, out, "Dialog")
	assert.Contains(t, out, "50.0%")
	assert.Contains(t, out, "100.0%")
	assert.Contains(t, out, "60.0%")
	assert.Contains(t, out, "TOTAL")
}

func TestRender_Table_UnnamedContext(t *testing.T) {
	color.NoColor = true

	rep := sampleReport()
	rep.Contexts = append(rep.Contexts, ContextStats{Name: "", Total: 1, Missing: 1})

	var buf bytes.Buffer

	require.NoError(t, Render(&buf, rep, FormatTable))
	assert.Contains(t, buf.String(), "(unnamed)")
}

func TestRender_UnknownFormat(t *testing.T) {
	t.Parallel()

	err := Render(&bytes.Buffer{}, sampleReport(), Format("csv"))

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownFormat)
}

func TestWriteHTML(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "coverage.html")

	require.NoError(t, WriteHTML(sampleReport(), path))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	out := string(raw)

	assert.Contains(t, out, "gauge")
	assert.Contains(t, out, "Overall coverage")
	assert.Contains(t, out, "Lowest-covered contexts")
	assert.Contains(t, out, "MainWindow")
}

func TestLowestCovered_SortsAndCaps(t *testing.T) {
	t.Parallel()

	contexts := []ContextStats{
		{Name: "A", Coverage: 80},
		{Name: "B", Coverage: 10},
		{Name: "C", Coverage: 40},
	}

	got := lowestCovered(contexts, 2)

	require.Len(t, got, 2)
	assert.Equal(t, "B", got[0].Name)
	assert.Equal(t, "C", got[1].Name)
}
