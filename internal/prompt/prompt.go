// Package prompt assembles the system and user prompts sent with each
// translation request. The rendered text is part of the pipeline contract:
// the result reader locates translations by the literal "Text:" marker these
// prompts end with.
package prompt

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Torimasen-tech/lingfang/pkg/tsdoc"
)

// Mode controls how much contextual information the user prompt embeds.
type Mode string

// Context modes, from richest to leanest.
const (
	ModeFull    Mode = "full"
	ModeCompact Mode = "compact"
	ModeMinimal Mode = "minimal"
)

// ErrInvalidMode reports an unrecognized context mode string.
var ErrInvalidMode = errors.New("invalid context mode")

// ParseMode validates and converts a mode string.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeFull, ModeCompact, ModeMinimal:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidMode, s)
	}
}

// DefaultMaxLocations caps embedded location references unless configured
// otherwise.
const DefaultMaxLocations = 3

// DefaultSystemPrompt is the Packet Tracer localization system prompt used
// when none is configured.
const DefaultSystemPrompt = "你是思科 Packet Tracer 及网络工程领域的本地化专家，请将输入文本精准翻译为简体中文。" +
	"保持 HTML/XML 标签、富文本格式、占位符（例如 %1、%2、{0}、{name}、&lt;br&gt;、\\n 等）以及前后空白完全一致。" +
	"务必沿用业界常用的网络工程术语（如 VLAN、ACL、OSPF、Interface 等），CLI 命令、设备型号和寄存器名称不要翻译或改写，注意大小写和标点符号保持原样。"

// Prompt headers and the minimal-mode prefix.
const (
	compactHeader = "请翻译成简体中文，保持占位符、标签和前后空白。"
	fullHeader    = "请将下面的文本从英文准确翻译为简体中文，注意保持占位符、HTML/XML 标签、换行符及前后空白不变。"

	minimalPrefix = "Translate to Simplified Chinese, keep formatting.\nText: "
)

// Builder assembles user prompts for translation units. The zero value
// renders compact mode with locations omitted.
type Builder struct {
	// Mode selects the context richness level.
	Mode Mode

	// MaxLocations caps embedded location references. Zero omits them
	// entirely; negative keeps all of them.
	MaxLocations int
}

// UserPrompt renders the prompt for one unit. In full and compact modes the
// prompt ends with a bare "Text:" line followed by the raw source; minimal
// mode inlines the source after "Text: " on a single trailing line.
func (b Builder) UserPrompt(u *tsdoc.Unit) string {
	if b.Mode == ModeMinimal {
		return minimalPrefix + u.Source
	}

	header := compactHeader
	if b.Mode == ModeFull {
		header = fullHeader
	}

	sections := []string{header}

	if u.ContextName != "" {
		sections = append(sections, "Context: "+u.ContextName)
	}

	if u.Comment != "" {
		sections = append(sections, "Dev: "+u.Comment)
	}

	if u.ExtraComment != "" {
		sections = append(sections, "Extra: "+u.ExtraComment)
	}

	if u.TranslatorComment != "" {
		sections = append(sections, "Note: "+u.TranslatorComment)
	}

	blob := FormatLocations(u.Locations, b.MaxLocations)
	if blob != "" {
		label := "Loc"
		if b.Mode == ModeFull {
			label = "Locations"
		}

		sections = append(sections, label+": "+blob)
	}

	sections = append(sections, "Text:", u.Source)

	return strings.Join(sections, "\n")
}

// FormatLocations joins location references with " | ", truncating to limit
// entries plus a "(+N more)" trailer. Zero limit returns nothing; a negative
// limit keeps every reference.
func FormatLocations(locations []tsdoc.Location, limit int) string {
	if limit == 0 || len(locations) == 0 {
		return ""
	}

	refs := make([]string, len(locations))
	for i, loc := range locations {
		refs[i] = loc.String()
	}

	if limit > 0 && len(refs) > limit {
		more := len(refs) - limit
		refs = append(refs[:limit], fmt.Sprintf("(+%d more)", more))
	}

	return strings.Join(refs, " | ")
}
