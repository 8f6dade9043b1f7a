package tsdoc_test

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Torimasen-tech/lingfang/pkg/tsdoc"
)

const sampleTS = `<?xml version="1.0" encoding="utf-8"?>
<!DOCTYPE TS>
<TS version="2.1" language="zh_CN" sourcelanguage="en">
  <context>
    <name> MainWindow </name>
    <message>
      <location filename="mainwindow.cpp" line="42"/>
      <location filename="mainwindow.cpp" line="77"/>
      <source>Hello</source>
      <comment>greeting shown at startup</comment>
      <translation type="unfinished"></translation>
    </message>
    <message>
      <source>Goodbye</source>
      <translation>再见</translation>
    </message>
    <message>
      <source>   </source>
      <translation type="unfinished"></translation>
    </message>
  </context>
  <context>
    <name>Dialog</name>
    <message>
      <extracomment>keep placeholders</extracomment>
      <translatorcomment>checked by reviewer</translatorcomment>
      <source>Cancel</source>
    </message>
    <message>
      <translation>orphan</translation>
    </message>
  </context>
</TS>
`

func TestParse_BuildsContextsAndUnits(t *testing.T) {
	t.Parallel()

	doc, err := tsdoc.Parse(strings.NewReader(sampleTS))
	require.NoError(t, err)

	contexts := doc.Contexts()
	require.Len(t, contexts, 2)

	assert.Equal(t, "MainWindow", contexts[0].Name)
	assert.Equal(t, "Dialog", contexts[1].Name)

	units := contexts[0].Units()
	require.Len(t, units, 3)

	hello := units[0]
	assert.Equal(t, "Hello", hello.Source)
	assert.Equal(t, "MainWindow", hello.ContextName)
	assert.Equal(t, "greeting shown at startup", hello.Comment)
	require.Len(t, hello.Locations, 2)
	assert.Equal(t, "mainwindow.cpp:42", hello.Locations[0].String())

	cancel := contexts[1].Units()[0]
	assert.Equal(t, "keep placeholders", cancel.ExtraComment)
	assert.Equal(t, "checked by reviewer", cancel.TranslatorComment)

	// The message without a source element is not modeled.
	assert.Len(t, contexts[1].Units(), 1)
	assert.Equal(t, 4, doc.UnitCount())
}

func TestParse_MalformedXML(t *testing.T) {
	t.Parallel()

	_, err := tsdoc.Parse(strings.NewReader("<TS><context></TS>"))
	require.Error(t, err)
	assert.ErrorIs(t, err, tsdoc.ErrMalformedDocument)
}

func TestParse_MissingRoot(t *testing.T) {
	t.Parallel()

	_, err := tsdoc.Parse(strings.NewReader(`<?xml version="1.0"?><other/>`))
	require.Error(t, err)
	assert.ErrorIs(t, err, tsdoc.ErrMissingRoot)
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()

	_, err := tsdoc.Load(filepath.Join(t.TempDir(), "absent.ts"))
	require.Error(t, err)
}

func TestUnit_State_Derivation(t *testing.T) {
	t.Parallel()

	doc, err := tsdoc.Parse(strings.NewReader(sampleTS))
	require.NoError(t, err)

	units := doc.Contexts()[0].Units()

	assert.Equal(t, tsdoc.StateDraft, units[0].State())
	assert.Equal(t, tsdoc.StateFinal, units[1].State())
	assert.Equal(t, "再见", units[1].TranslationText())

	// No translation element at all.
	cancel := doc.Contexts()[1].Units()[0]
	assert.Equal(t, tsdoc.StateMissing, cancel.State())
	assert.Equal(t, "", cancel.TranslationText())
}

func TestUnit_State_BlankTextWithoutMarker(t *testing.T) {
	t.Parallel()

	const ts = `<TS version="2.1"><context><name>C</name>
	  <message><source>a</source><translation>   </translation></message>
	</context></TS>`

	doc, err := tsdoc.Parse(strings.NewReader(ts))
	require.NoError(t, err)

	unit := doc.Contexts()[0].Units()[0]
	assert.Equal(t, tsdoc.StateMissing, unit.State())
}

func TestUnit_State_VanishedWithTextIsFinal(t *testing.T) {
	t.Parallel()

	const ts = `<TS version="2.1"><context><name>C</name>
	  <message><source>a</source><translation type="vanished">旧</translation></message>
	</context></TS>`

	doc, err := tsdoc.Parse(strings.NewReader(ts))
	require.NoError(t, err)

	unit := doc.Contexts()[0].Units()[0]
	assert.Equal(t, tsdoc.StateFinal, unit.State())
}

func TestUnit_TranslationSlot_Idempotent(t *testing.T) {
	t.Parallel()

	doc, err := tsdoc.Parse(strings.NewReader(sampleTS))
	require.NoError(t, err)

	cancel := doc.Contexts()[1].Units()[0]
	require.Equal(t, tsdoc.StateMissing, cancel.State())

	first := cancel.TranslationSlot()
	assert.True(t, first.Unfinished())
	assert.Equal(t, tsdoc.StateDraft, cancel.State())

	first.SetText("取消")

	// A second slot over the same unit sees the first write.
	second := cancel.TranslationSlot()
	assert.Equal(t, "取消", second.Text())
	assert.False(t, second.Unfinished())
	assert.Equal(t, tsdoc.StateFinal, cancel.State())
}

func TestUnit_SetTranslation_ClearsDraftMarker(t *testing.T) {
	t.Parallel()

	doc, err := tsdoc.Parse(strings.NewReader(sampleTS))
	require.NoError(t, err)

	hello := doc.Contexts()[0].Units()[0]
	require.Equal(t, tsdoc.StateDraft, hello.State())

	hello.SetTranslation("你好")

	assert.Equal(t, "你好", hello.TranslationText())
	assert.Equal(t, tsdoc.StateFinal, hello.State())
}

func TestDocument_WriteTo_PreservesUntouchedStructure(t *testing.T) {
	t.Parallel()

	doc, err := tsdoc.Parse(strings.NewReader(sampleTS))
	require.NoError(t, err)

	doc.Contexts()[0].Units()[0].SetTranslation("你好")

	var buf bytes.Buffer
	require.NoError(t, doc.WriteTo(&buf))

	out := buf.String()
	assert.Contains(t, out, "<?xml")
	assert.Contains(t, out, "<!DOCTYPE TS>")
	assert.Contains(t, out, `version="2.1"`)
	assert.Contains(t, out, `language="zh_CN"`)

	// Reparse and verify both mutated and untouched units.
	reparsed, err := tsdoc.Parse(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)

	units := reparsed.Contexts()[0].Units()
	assert.Equal(t, "你好", units[0].TranslationText())
	assert.Equal(t, tsdoc.StateFinal, units[0].State())
	assert.Equal(t, "再见", units[1].TranslationText())
	require.Len(t, units[0].Locations, 2)
}

func TestDocument_WriteTo_AddsDeclarationWhenAbsent(t *testing.T) {
	t.Parallel()

	const bare = `<TS version="2.1"><context><name>C</name>
	  <message><source>a</source></message>
	</context></TS>`

	doc, err := tsdoc.Parse(strings.NewReader(bare))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, doc.WriteTo(&buf))

	assert.True(t, strings.HasPrefix(buf.String(), "<?xml"))
}

func TestDocument_WriteFile_RoundTrip(t *testing.T) {
	t.Parallel()

	doc, err := tsdoc.Parse(strings.NewReader(sampleTS))
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "out.ts")
	require.NoError(t, doc.WriteFile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	reparsed, err := tsdoc.Parse(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 4, reparsed.UnitCount())
}

func TestLocation_String(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		loc  tsdoc.Location
		want string
	}{
		{name: "filename and line", loc: tsdoc.Location{Filename: "a.cpp", Line: "7"}, want: "a.cpp:7"},
		{name: "filename only", loc: tsdoc.Location{Filename: "a.cpp"}, want: "a.cpp"},
		{name: "line only", loc: tsdoc.Location{Line: "7"}, want: "line 7"},
		{name: "empty", loc: tsdoc.Location{}, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.loc.String())
		})
	}
}
