package detector

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"gameboost/internal/primitive"
)

//go:embed games.yaml
var builtinCatalog []byte

// Game is one catalog entry.
type Game struct {
	Name        string   `yaml:"name"`
	Executables []string `yaml:"executables"`
}

type catalogFile struct {
	Games []Game `yaml:"games"`
}

// Catalog maps executable names to the game they belong to.
type Catalog struct {
	games []Game
	byExe map[string]string
}

// ParseCatalog decodes a YAML catalog. An executable listed under two games
// is an error.
func ParseCatalog(data []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse game catalog: %w", err)
	}

	c := &Catalog{byExe: make(map[string]string)}
	for i, g := range f.Games {
		if strings.TrimSpace(g.Name) == "" {
			return nil, fmt.Errorf("game catalog: entry %d has no name", i)
		}
		if len(g.Executables) == 0 {
			return nil, fmt.Errorf("game catalog: %q has no executables", g.Name)
		}
		for _, exe := range g.Executables {
			key := strings.ToLower(exe)
			if other, dup := c.byExe[key]; dup && other != g.Name {
				return nil, fmt.Errorf("game catalog: %s listed under %q and %q", exe, other, g.Name)
			}
			c.byExe[key] = g.Name
		}
		c.games = append(c.games, g)
	}
	return c, nil
}

// LoadCatalog reads a catalog file.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read game catalog: %w", err)
	}
	return ParseCatalog(data)
}

// DefaultCatalog returns the built-in catalog.
func DefaultCatalog() *Catalog {
	c, err := ParseCatalog(builtinCatalog)
	if err != nil {
		panic(err)
	}
	return c
}

// Games returns the catalog entries in file order.
func (c *Catalog) Games() []Game { return c.games }

// Running returns the sorted names of catalog games present in snapshot.
func (c *Catalog) Running(snapshot []primitive.ProcessInfo) []string {
	seen := make(map[string]bool)
	for _, p := range snapshot {
		if name, ok := c.byExe[strings.ToLower(p.Name)]; ok {
			seen[name] = true
		}
	}
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
