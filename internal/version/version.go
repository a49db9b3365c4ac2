package version

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	"github.com/bfbechlin/appwrite-ctl/internal/snapshot"
	"github.com/bfbechlin/appwrite-ctl/pkg/validator"
	"github.com/yusufsyaifudin/ylog"
)

var regxLabel = regexp.MustCompile(`^v([0-9]+)$`)

// ScriptIndex tells whether a migration script is registered under a version label.
type ScriptIndex interface {
	Has(label string) bool
}

type Version struct {
	Ordinal int
	Label   string
	Dir     string

	// ScriptRef is the key the script is registered under.
	ScriptRef string

	// SnapshotPath is empty when the version carries no schema snapshot.
	SnapshotPath string
}

type Config struct {
	Dir          string      `validate:"required"`
	SnapshotFile string      `validate:"-"`
	Scripts      ScriptIndex `validate:"required"`
}

// Store discovers versions from the sub-directories of Dir. It never writes except through Create.
type Store struct {
	dir          string
	snapshotFile string
	scripts      ScriptIndex
}

func New(cfg Config) (*Store, error) {
	if err := validator.Validate(cfg); err != nil {
		return nil, fmt.Errorf("version store config: %w", err)
	}

	snapshotFile := cfg.SnapshotFile
	if snapshotFile == "" {
		snapshotFile = snapshot.FileName
	}

	return &Store{
		dir:          cfg.Dir,
		snapshotFile: snapshotFile,
		scripts:      cfg.Scripts,
	}, nil
}

func (s *Store) Dir() string {
	return s.dir
}

// List returns every version ascending by ordinal. Every version must have a registered script.
func (s *Store) List(ctx context.Context) ([]Version, error) {
	versions, err := s.scan(ctx)
	if err != nil {
		return nil, err
	}

	for _, v := range versions {
		if !s.scripts.Has(v.ScriptRef) {
			return nil, &MalformedVersionError{Label: v.Label, Reason: "no migration script registered under this label"}
		}
	}

	return versions, nil
}

// Next returns the label following the highest existing ordinal, v1 when there is none yet.
func (s *Store) Next(ctx context.Context) (string, error) {
	versions, err := s.scan(ctx)
	var discoveryErr *DiscoveryError
	if errors.As(err, &discoveryErr) && errors.Is(discoveryErr.Err, fs.ErrNotExist) {
		return "v1", nil
	}

	if err != nil {
		return "", err
	}

	if len(versions) == 0 {
		return "v1", nil
	}

	return fmt.Sprintf("v%d", versions[len(versions)-1].Ordinal+1), nil
}

// Create makes the directory of the next version and returns it.
func (s *Store) Create(ctx context.Context) (Version, error) {
	label, err := s.Next(ctx)
	if err != nil {
		return Version{}, err
	}

	dir := filepath.Join(s.dir, label)
	if err = os.MkdirAll(dir, 0o755); err != nil {
		return Version{}, fmt.Errorf("create version directory %s: %w", dir, err)
	}

	ordinal, _ := strconv.Atoi(label[1:])
	return Version{
		Ordinal:   ordinal,
		Label:     label,
		Dir:       dir,
		ScriptRef: label,
	}, nil
}

func (s *Store) scan(ctx context.Context) ([]Version, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, &DiscoveryError{Dir: s.dir, Err: err}
	}

	seen := map[int]string{}
	versions := make([]Version, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		match := regxLabel.FindStringSubmatch(entry.Name())
		if match == nil {
			ylog.Debug(ctx, "ignoring non version directory", ylog.KV("name", entry.Name()))
			continue
		}

		ordinal, err := strconv.Atoi(match[1])
		if err != nil {
			return nil, &MalformedVersionError{Label: entry.Name(), Reason: err.Error()}
		}

		if other, exist := seen[ordinal]; exist {
			return nil, &MalformedVersionError{
				Label:  entry.Name(),
				Reason: fmt.Sprintf("ordinal %d already used by %s", ordinal, other),
			}
		}
		seen[ordinal] = entry.Name()

		dir := filepath.Join(s.dir, entry.Name())
		v := Version{
			Ordinal:   ordinal,
			Label:     entry.Name(),
			Dir:       dir,
			ScriptRef: entry.Name(),
		}

		snapshotPath := filepath.Join(dir, s.snapshotFile)
		if info, err := os.Stat(snapshotPath); err == nil && !info.IsDir() {
			v.SnapshotPath = snapshotPath
		}

		versions = append(versions, v)
	}

	sort.Slice(versions, func(i, j int) bool {
		return versions[i].Ordinal < versions[j].Ordinal
	})

	return versions, nil
}
