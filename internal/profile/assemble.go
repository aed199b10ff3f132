package profile

import (
	"context"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-hclog"

	errs "github.com/GabrielLegend/tca-plugin-sonarqube/pkg/shared/errors"
	"github.com/GabrielLegend/tca-plugin-sonarqube/pkg/shared/files"
)

// DefaultSuffix marks the default profile documents.
const DefaultSuffix = "_sonarqube_profile.xml"

// Languages the analysis server supports out of the box.
var CommonLanguages = []string{
	"cs", "java", "jsp", "vbnet", "css", "flex", "go", "js", "kotlin",
	"php", "py", "ruby", "scala", "ts", "web", "xml",
}

// Rules is the allow-list and override source the assembler filters with.
type Rules interface {
	IsAllowed(rule string) bool
	RuleParameters(rule string) map[string]string
}

// Publisher is the server capability profiles are published through.
type Publisher interface {
	RestoreProfile(ctx context.Context, path string) error
	AddProjectToProfile(ctx context.Context, project, language, profile string) error
}

// Options locate the candidate documents of a run.
type Options struct {
	// DefaultsDir holds the default and named-variant documents.
	DefaultsDir string
	// OutputDir receives every published document.
	OutputDir string
	// SourceDir anchors the user supplied document paths.
	SourceDir string
	// Variant selects the *_<Variant>.xml documents.
	Variant string
	// UserProfiles are document paths relative to SourceDir.
	UserProfiles []string
}

// Assembler merges candidate documents per language.
type Assembler struct {
	logger hclog.Logger
	opts   Options
	rules  Rules
}

func NewAssembler(logger hclog.Logger, opts Options, rules Rules) *Assembler {
	return &Assembler{logger: logger, opts: opts, rules: rules}
}

// Assemble returns one profile per requested language, chosen by precedence
// default < variant < user, filtered against the allow-list and written to
// OutputDir.
func (a *Assembler) Assemble(languages []string) ([]*Profile, error) {
	requested := map[string]bool{}
	for _, l := range languages {
		requested[strings.ToLower(l)] = true
	}
	supported := map[string]bool{}
	for _, l := range CommonLanguages {
		supported[l] = true
	}

	chosen := map[string]string{}
	var order []string
	pick := func(lang, path string) {
		if _, ok := chosen[lang]; !ok {
			order = append(order, lang)
		}
		chosen[lang] = path
	}

	defaults, err := findDocuments(a.opts.DefaultsDir, DefaultSuffix)
	if err != nil {
		return nil, errs.NewConfigError(errs.PhaseProfiles, err, "failed to list default profiles in %s", a.opts.DefaultsDir)
	}
	for _, path := range defaults {
		lang := strings.ToLower(strings.SplitN(filepath.Base(path), "_", 2)[0])
		if !supported[lang] || !requested[lang] {
			continue
		}
		pick(lang, path)
	}

	if a.opts.Variant != "" {
		a.logger.Warn("using named profile variant", "variant", a.opts.Variant)
		variants, err := findDocuments(a.opts.DefaultsDir, "_"+strings.ToLower(a.opts.Variant)+".xml")
		if err != nil {
			return nil, errs.NewConfigError(errs.PhaseProfiles, err, "failed to list %s profiles", a.opts.Variant)
		}
		for _, path := range variants {
			p, err := Load(path)
			if err != nil {
				return nil, errs.NewConfigError(errs.PhaseProfiles, err, "invalid profile %s", path)
			}
			if lang := strings.ToLower(p.Language); requested[lang] {
				pick(lang, path)
			}
		}
	}

	for _, rel := range a.opts.UserProfiles {
		path, err := files.EnsureWithinRoot(a.opts.SourceDir, filepath.Join(a.opts.SourceDir, rel))
		if err != nil {
			return nil, errs.NewConfigError(errs.PhaseProfiles, err, "quality profile %s is outside the source directory", rel)
		}
		if err := files.ValidatePath(path); err != nil {
			return nil, errs.NewConfigError(errs.PhaseProfiles, err, "quality profile %s does not exist, check the configured path", rel)
		}
		p, err := Load(path)
		if err != nil {
			return nil, errs.NewConfigError(errs.PhaseProfiles, err, "invalid profile %s", rel)
		}
		if lang := strings.ToLower(p.Language); requested[lang] {
			a.logger.Warn("using project quality profile", "path", rel, "language", lang)
			pick(lang, path)
		}
	}

	// documents left by an earlier run must not be published again
	if filepath.Clean(a.opts.OutputDir) == filepath.Clean(a.opts.DefaultsDir) {
		return nil, errs.NewConfigError(errs.PhaseProfiles, nil, "profile output directory %s must differ from the defaults directory", a.opts.OutputDir)
	}
	if err := files.RemoveAndRecreate(a.opts.OutputDir); err != nil {
		return nil, errs.NewConfigError(errs.PhaseProfiles, err, "failed to reset %s", a.opts.OutputDir)
	}

	profiles := make([]*Profile, 0, len(order))
	for _, lang := range order {
		p, err := a.materialize(chosen[lang])
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}
	return profiles, nil
}

// materialize filters the document at path and writes it into OutputDir.
func (a *Assembler) materialize(path string) (*Profile, error) {
	p, err := Load(path)
	if err != nil {
		return nil, errs.NewConfigError(errs.PhaseProfiles, err, "invalid profile %s", path)
	}
	dest := filepath.Join(a.opts.OutputDir, filepath.Base(path))

	filtered := p.Filter(a.rules.IsAllowed, a.rules.RuleParameters)
	if err := filtered.Save(dest); err != nil {
		return nil, errs.NewConfigError(errs.PhaseProfiles, err, "failed to write profile %s", dest)
	}
	a.logger.Info("profile filtered", "name", filtered.Name, "language", filtered.Language,
		"rules", len(filtered.Rules), "dropped", len(p.Rules)-len(filtered.Rules))
	return filtered, nil
}

// Publish restores each profile on the server and associates it with project.
func Publish(ctx context.Context, logger hclog.Logger, api Publisher, project string, profiles []*Profile) error {
	for _, p := range profiles {
		if err := api.RestoreProfile(ctx, p.Path); err != nil {
			return errs.NewAnalyzeTaskError(errs.PhaseProfiles, errs.KindGeneric, err, "failed to restore profile %s", p.Name)
		}
		if err := api.AddProjectToProfile(ctx, project, p.Language, p.Name); err != nil {
			return errs.NewAnalyzeTaskError(errs.PhaseProfiles, errs.KindGeneric, err, "failed to associate profile %s with %s", p.Name, project)
		}
		logger.Info("profile published", "name", p.Name, "language", p.Language, "project", project)
	}
	return nil
}

// findDocuments walks dir for files whose lowercased name ends with suffix.
func findDocuments(dir, suffix string) ([]string, error) {
	if dir == "" || !files.Exists(dir) {
		return nil, nil
	}
	var found []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(strings.ToLower(d.Name()), suffix) {
			found = append(found, path)
		}
		return nil
	})
	return found, err
}
