// Package examples serves the catalog of sample questions shown to users.
package examples

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/sqlsight/sqlsight/internal/chart"
)

//go:embed examples.yaml
var defaultCatalog []byte

type Example struct {
	Question    string `yaml:"question" json:"question"`
	ChartType   string `yaml:"chart_type" json:"chart_type"`
	Description string `yaml:"description" json:"description"`
}

type Catalog struct {
	Examples   []Example `yaml:"examples" json:"examples"`
	ChartTypes []string  `yaml:"-" json:"chart_types"`
	DataFocus  string    `yaml:"data_focus" json:"data_focus"`
}

// Default returns the built-in catalog.
func Default() Catalog {
	catalog, err := Parse(defaultCatalog)
	if err != nil {
		panic(fmt.Sprintf("embedded examples catalog is invalid: %v", err))
	}
	return catalog
}

// Load reads a catalog file, or returns Default when path is empty.
func Load(path string) (Catalog, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return Default(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Catalog{}, fmt.Errorf("read examples %s: %w", path, err)
	}
	catalog, err := Parse(raw)
	if err != nil {
		return Catalog{}, fmt.Errorf("parse examples %s: %w", path, err)
	}
	return catalog, nil
}

func Parse(raw []byte) (Catalog, error) {
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)

	var catalog Catalog
	if err := dec.Decode(&catalog); err != nil {
		return Catalog{}, err
	}
	if len(catalog.Examples) == 0 {
		return Catalog{}, errors.New("catalog has no examples")
	}
	for i, ex := range catalog.Examples {
		if strings.TrimSpace(ex.Question) == "" {
			return Catalog{}, fmt.Errorf("example %d has no question", i)
		}
		chartType, err := chart.ParseType(ex.ChartType)
		if err != nil {
			return Catalog{}, fmt.Errorf("example %d: %w", i, err)
		}
		catalog.Examples[i].ChartType = string(chartType)
	}
	catalog.ChartTypes = make([]string, 0, len(chart.Types()))
	for _, t := range chart.Types() {
		catalog.ChartTypes = append(catalog.ChartTypes, string(t))
	}
	return catalog, nil
}
