package api

import (
	"context"
	"fmt"

	"github.com/resumeforge/tailorcore/agents/polisher"
	"github.com/resumeforge/tailorcore/coreerrors"
)

// Renderer turns a polisher.ExportArtifact into an opaque document for a
// given format, per spec.md's DOCX Renderer external collaborator. It is
// sandboxed and versioned outside this module; the core only depends on this
// interface, and the export path treats any returned error as a PERMANENT
// failure that does not affect the run's own completed status.
type Renderer interface {
	Render(ctx context.Context, format string, artifact polisher.ExportArtifact) ([]byte, string, error)
}

// UnavailableRenderer is the default Renderer: the DOCX rendering engine
// itself is out of scope for this module, so every call fails with a
// RENDERER_SYNTAX error until a real implementation is wired in by the
// deployment.
type UnavailableRenderer struct{}

func (UnavailableRenderer) Render(ctx context.Context, format string, artifact polisher.ExportArtifact) ([]byte, string, error) {
	return nil, "", coreerrors.New(coreerrors.Permanent, coreerrors.TypeRendererSyntax, "",
		fmt.Sprintf("no renderer configured for format %q", format), nil)
}
