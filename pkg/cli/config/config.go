package config

import (
	"os"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/pelletier/go-toml/v2"
	"github.com/urfave/cli/v3"

	"github.com/betwatch/casekeeper/pkg/domain/model"
	"github.com/betwatch/casekeeper/pkg/domain/types"
	"github.com/betwatch/casekeeper/pkg/usecase"
)

// WorkflowFile is the TOML representation of the case workflow
type WorkflowFile struct {
	Initial        string       `toml:"initial"`
	States         []StateEntry `toml:"state"`
	Edges          []EdgeEntry  `toml:"edge"`
	ArchiveOnClose *bool        `toml:"archive_on_close"`
	Notes          NoteEntry    `toml:"notes"`
}

// StateEntry declares one case state
type StateEntry struct {
	ID              string `toml:"id"`
	Name            string `toml:"name"`
	RequiresClosure bool   `toml:"requires_closure"`
}

// EdgeEntry declares an allowed transition
type EdgeEntry struct {
	From string `toml:"from"`
	To   string `toml:"to"`
}

// NoteEntry is the note edit policy
type NoteEntry struct {
	GracePeriod string `toml:"grace_period"`
	OnExpired   string `toml:"on_expired"`
}

// Workflow is the validated result of a WorkflowFile
type Workflow struct {
	Graph          *model.StateGraph
	NotePolicy     model.NotePolicy
	ArchiveOnClose bool
}

// Build validates the file and converts it to domain types. Sections left out fall back to defaults.
func (f *WorkflowFile) Build() (*Workflow, error) {
	wf := &Workflow{
		Graph:          model.DefaultStateGraph(),
		NotePolicy:     model.DefaultNotePolicy(),
		ArchiveOnClose: true,
	}

	if len(f.States) > 0 {
		states := make([]model.StateDefinition, len(f.States))
		for i, s := range f.States {
			states[i] = model.StateDefinition{
				ID:              types.CaseState(s.ID),
				Name:            s.Name,
				RequiresClosure: s.RequiresClosure,
			}
		}
		edges := make([]model.StateEdge, len(f.Edges))
		for i, e := range f.Edges {
			edges[i] = model.StateEdge{From: types.CaseState(e.From), To: types.CaseState(e.To)}
		}

		initial := types.CaseState(f.Initial)
		if initial == "" {
			initial = states[0].ID
		}
		graph, err := model.NewStateGraph(initial, states, edges)
		if err != nil {
			return nil, goerr.Wrap(ErrInvalidConfig, "invalid state graph", goerr.V("error", err.Error()))
		}
		wf.Graph = graph
	} else if len(f.Edges) > 0 {
		return nil, goerr.Wrap(ErrInvalidConfig, "edges require explicit states")
	}

	if f.Notes.GracePeriod != "" {
		d, err := time.ParseDuration(f.Notes.GracePeriod)
		if err != nil || d < 0 {
			return nil, goerr.Wrap(ErrInvalidConfig, "invalid note grace period", goerr.V("grace_period", f.Notes.GracePeriod))
		}
		wf.NotePolicy.GracePeriod = d
	}
	if f.Notes.OnExpired != "" {
		p := model.NoteEditPolicy(f.Notes.OnExpired)
		if err := p.Validate(); err != nil {
			return nil, goerr.Wrap(ErrInvalidConfig, "invalid note edit policy", goerr.V("on_expired", f.Notes.OnExpired))
		}
		wf.NotePolicy.OnExpired = p
	}

	if f.ArchiveOnClose != nil {
		wf.ArchiveOnClose = *f.ArchiveOnClose
	}

	return wf, nil
}

// Options converts the workflow to usecase options
func (w *Workflow) Options() []usecase.Option {
	return []usecase.Option{
		usecase.WithStateGraph(w.Graph),
		usecase.WithNotePolicy(w.NotePolicy),
		usecase.WithArchiveOnClose(w.ArchiveOnClose),
	}
}

// ParseWorkflow decodes and validates TOML workflow data
func ParseWorkflow(data []byte) (*Workflow, error) {
	var f WorkflowFile
	if err := toml.Unmarshal(data, &f); err != nil {
		return nil, goerr.Wrap(ErrInvalidConfig, "failed to parse TOML workflow", goerr.V("error", err.Error()))
	}
	return f.Build()
}

// LoadWorkflow loads the workflow configuration from a TOML file
func LoadWorkflow(path string) (*Workflow, error) {
	// #nosec G304 - path is expected to be provided by CLI argument
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, goerr.Wrap(ErrConfigNotFound, "workflow file not found", goerr.V(ConfigPathKey, path))
		}
		return nil, goerr.Wrap(err, "failed to read workflow file", goerr.V(ConfigPathKey, path))
	}

	wf, err := ParseWorkflow(data)
	if err != nil {
		return nil, goerr.Wrap(err, "workflow validation failed", goerr.V(ConfigPathKey, path))
	}
	return wf, nil
}

// WorkflowConfig holds the CLI flag pointing at the workflow file
type WorkflowConfig struct {
	path string
}

func (x *WorkflowConfig) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "workflow",
			Usage:       "Path to the workflow TOML file (states, edges, note policy). Built-in workflow when empty",
			Category:    "Workflow",
			Sources:     cli.EnvVars("CASEKEEPER_WORKFLOW"),
			Destination: &x.path,
		},
	}
}

// Configure loads the workflow file, or returns the built-in workflow when no path is set
func (x *WorkflowConfig) Configure() (*Workflow, error) {
	if x.path == "" {
		var f WorkflowFile
		return f.Build()
	}
	return LoadWorkflow(x.path)
}
