package snapshot

import (
	"errors"
	"fmt"
	"os"

	"github.com/segmentio/encoding/json"
)

// FileName is the snapshot file the schema tool reads and writes in its working directory.
const FileName = "appwrite.config.json"

var ErrInvalid = errors.New("invalid snapshot")

// Snapshot is the declarative schema of a project. Only the database and table identity
// plus the declared column keys are consumed, everything else is passed through untouched.
type Snapshot struct {
	ProjectID string     `json:"projectId,omitempty"`
	TablesDB  []Database `json:"tablesDB,omitempty"`
	Tables    []Table    `json:"tables,omitempty"`

	// Databases and Collections is the shape written by older versions of the schema tool.
	Databases   []Database `json:"databases,omitempty"`
	Collections []Table    `json:"collections,omitempty"`

	Buckets []json.RawMessage `json:"buckets,omitempty"`
}

type Database struct {
	ID      string `json:"$id"`
	Name    string `json:"name"`
	Enabled bool   `json:"enabled"`
}

type Table struct {
	ID         string            `json:"$id"`
	DatabaseID string            `json:"databaseId"`
	Name       string            `json:"name"`
	Enabled    bool              `json:"enabled"`
	Columns    []Column          `json:"columns,omitempty"`
	Attributes []Column          `json:"attributes,omitempty"`
	Indexes    []json.RawMessage `json:"indexes,omitempty"`
}

type Column struct {
	Key      string `json:"key"`
	Type     string `json:"type"`
	Required bool   `json:"required"`
}

// Pair is one (database, table) combination whose columns must settle after a push.
type Pair struct {
	DatabaseID string
	TableID    string
	Name       string
	ColumnKeys []string
}

func (p Pair) String() string {
	return fmt.Sprintf("%s/%s", p.DatabaseID, p.TableID)
}

func Load(path string) (*Snapshot, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot %s: %w", path, err)
	}

	s, err := Parse(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return s, nil
}

func Parse(b []byte) (*Snapshot, error) {
	s := &Snapshot{}
	if err := json.Unmarshal(b, s); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalid, err)
	}

	return s, nil
}

// Pairs returns every table of the snapshot in file order, current shape first then legacy collections.
func (s *Snapshot) Pairs() []Pair {
	if s == nil {
		return nil
	}

	pairs := make([]Pair, 0, len(s.Tables)+len(s.Collections))
	for _, tables := range [][]Table{s.Tables, s.Collections} {
		for _, t := range tables {
			cols := t.Columns
			if len(cols) == 0 {
				cols = t.Attributes
			}

			keys := make([]string, 0, len(cols))
			for _, c := range cols {
				if c.Key == "" {
					continue
				}

				keys = append(keys, c.Key)
			}

			pairs = append(pairs, Pair{
				DatabaseID: t.DatabaseID,
				TableID:    t.ID,
				Name:       t.Name,
				ColumnKeys: keys,
			})
		}
	}

	return pairs
}
