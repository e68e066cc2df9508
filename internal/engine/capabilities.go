package engine

import (
	"os/exec"
	"sort"

	"github.com/ah-its-andy/docconv/internal/format"
)

// Tool names probed on the host.
const (
	ToolSoffice = "soffice"
	ToolPandoc  = "pandoc"
	ToolDocling = "docling"
	ToolRsvg    = "rsvg-convert"
	ToolHeifEnc = "heif-enc"
	ToolHeifDec = "heif-dec"
)

// ToolCandidates lists where each tool is looked for, in order. Bare names go
// through PATH lookup.
var ToolCandidates = map[string][]string{
	ToolSoffice: {
		"soffice",
		"libreoffice",
		"/usr/bin/soffice",
		"/usr/lib/libreoffice/program/soffice",
		"/opt/libreoffice/program/soffice",
		"/Applications/LibreOffice.app/Contents/MacOS/soffice",
		`C:\Program Files\LibreOffice\program\soffice.exe`,
	},
	ToolPandoc:  {"pandoc", "/usr/local/bin/pandoc", "/opt/homebrew/bin/pandoc"},
	ToolDocling: {"docling"},
	ToolRsvg:    {"rsvg-convert"},
	ToolHeifEnc: {"heif-enc"},
	ToolHeifDec: {"heif-dec", "heif-convert"},
}

// Capabilities is the outcome of one availability probe. The selector
// consults it instead of discovering missing engines by failing.
type Capabilities struct {
	Available map[Choice]bool   `json:"available"`
	Tools     map[string]string `json:"tools"`
	// PDFRaster is true when the in-process PDF renderer is usable.
	PDFRaster bool `json:"pdf_raster"`
}

// ProbeOptions feeds Probe.
type ProbeOptions struct {
	// ToolPaths overrides candidate lookup for a tool.
	ToolPaths map[string]string
	Disabled  []Choice
	PDFRaster bool
	// LookPath defaults to exec.LookPath.
	LookPath func(string) (string, error)
}

// Probe resolves every tool once and derives the capability set.
func Probe(opts ProbeOptions) Capabilities {
	look := opts.LookPath
	if look == nil {
		look = exec.LookPath
	}
	tools := make(map[string]string)
	for tool, cands := range ToolCandidates {
		if p, ok := opts.ToolPaths[tool]; ok && p != "" {
			cands = []string{p}
		}
		for _, c := range cands {
			if p, err := look(c); err == nil {
				tools[tool] = p
				break
			}
		}
	}
	caps := Capabilities{Tools: tools, PDFRaster: opts.PDFRaster}
	caps.Available = map[Choice]bool{
		AILayout:        tools[ToolDocling] != "",
		OfficeSuite:     tools[ToolSoffice] != "",
		MarkupProcessor: true,
		ImageLibrary:    true,
		VectorFallback:  tools[ToolRsvg] != "",
		DirectMarkdown:  true,
	}
	for _, d := range opts.Disabled {
		caps.Available[d] = false
	}
	return caps
}

// AllCapabilities is a capability set with every engine and tool present.
func AllCapabilities() Capabilities {
	caps := Capabilities{Available: map[Choice]bool{}, Tools: map[string]string{}, PDFRaster: true}
	for _, c := range Choices {
		caps.Available[c] = true
	}
	for tool := range ToolCandidates {
		caps.Tools[tool] = tool
	}
	return caps
}

// Has reports whether tool was resolved.
func (c Capabilities) Has(tool string) bool { return c.Tools[tool] != "" }

// Without returns a copy with the given engines marked unavailable.
func (c Capabilities) Without(choices ...Choice) Capabilities {
	out := c.clone()
	for _, ch := range choices {
		out.Available[ch] = false
	}
	return out
}

// WithoutTools returns a copy with the given tools removed.
func (c Capabilities) WithoutTools(tools ...string) Capabilities {
	out := c.clone()
	for _, t := range tools {
		delete(out.Tools, t)
	}
	return out
}

func (c Capabilities) clone() Capabilities {
	out := Capabilities{Available: map[Choice]bool{}, Tools: map[string]string{}, PDFRaster: c.PDFRaster}
	for k, v := range c.Available {
		out.Available[k] = v
	}
	for k, v := range c.Tools {
		out.Tools[k] = v
	}
	return out
}

// Serves reports whether engine ch is available and has what it needs for
// this particular pair.
func (c Capabilities) Serves(ch Choice, src, dst format.Format) bool {
	if !c.Available[ch] || !Handles(ch, src, dst) {
		return false
	}
	switch ch {
	case MarkupProcessor:
		return NativeMarkup(src, dst) || c.Has(ToolPandoc)
	case AILayout:
		if dst == format.DOCX {
			return c.Has(ToolPandoc)
		}
	case ImageLibrary:
		if src == format.PDF {
			return c.PDFRaster
		}
		if src == format.HEIC {
			return c.Has(ToolHeifDec)
		}
		if dst == format.HEIC {
			return c.Has(ToolHeifEnc)
		}
	}
	return true
}

// AvailableList returns the available engines, sorted.
func (c Capabilities) AvailableList() []Choice {
	var out []Choice
	for ch, ok := range c.Available {
		if ok {
			out = append(out, ch)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
