package converter

import "github.com/ah-its-andy/docconv/internal/engine"

func init() {
	RegisterBuiltinEngines()
}

// RegisterBuiltinEngines registers every engine shipped with docconv.
func RegisterBuiltinEngines() {
	Register(engine.OfficeSuite, func(tb *Toolbox) Engine { return &OfficeEngine{tb: tb} })
	Register(engine.MarkupProcessor, func(tb *Toolbox) Engine { return &MarkupEngine{tb: tb} })
	Register(engine.AILayout, func(tb *Toolbox) Engine { return &LayoutEngine{tb: tb} })
	Register(engine.ImageLibrary, func(tb *Toolbox) Engine { return &ImageEngine{tb: tb} })
	Register(engine.VectorFallback, func(tb *Toolbox) Engine { return &VectorEngine{tb: tb} })
	Register(engine.DirectMarkdown, func(tb *Toolbox) Engine { return &MarkdownPDFEngine{Font: tb.opts.Font} })
}
