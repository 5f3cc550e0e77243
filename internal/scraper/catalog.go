package scraper

import (
	_ "embed"
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"
)

//go:embed sources.yaml
var defaultCatalog []byte

// PipelineSpec is one named pipeline of the catalog.
type PipelineSpec struct {
	Name string `yaml:"name"`
	// Incremental pipelines pass their last watermark to the adapters.
	Incremental bool       `yaml:"incremental"`
	Exclude     []string   `yaml:"exclude"` // red-flag terms dropped before loading
	Endpoints   []Endpoint `yaml:"endpoints"`
}

// Catalog lists every configured pipeline in run order.
type Catalog struct {
	Pipelines []PipelineSpec `yaml:"pipelines"`
}

// LoadCatalog reads path, or the embedded default when path is empty.
func LoadCatalog(path string) (*Catalog, error) {
	data := defaultCatalog
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "read catalog %s", path)
		}
		data = b
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes and validates a YAML catalog.
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, errors.Wrap(err, "decode catalog")
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Catalog) validate() error {
	if len(c.Pipelines) == 0 {
		return errors.New("catalog has no pipelines")
	}
	seen := make(map[string]struct{}, len(c.Pipelines))
	for i, p := range c.Pipelines {
		if strings.TrimSpace(p.Name) == "" {
			return errors.Newf("pipeline #%d has no name", i+1)
		}
		if _, dup := seen[p.Name]; dup {
			return errors.Newf("pipeline %q defined twice", p.Name)
		}
		seen[p.Name] = struct{}{}
		if len(p.Endpoints) == 0 {
			return errors.Newf("pipeline %q has no endpoints", p.Name)
		}
		for j, ep := range p.Endpoints {
			if _, ok := htmlLayouts[ep.Kind]; ok && ep.URL == "" {
				return errors.Newf("pipeline %q endpoint #%d (%s) needs a url", p.Name, j+1, ep.Kind)
			}
			switch ep.Kind {
			case KindGreenhouse, KindLever, KindAshby, KindSmartRecruiters:
				if ep.Board == "" && ep.URL == "" {
					return errors.Newf("pipeline %q endpoint #%d (%s) needs a board or url", p.Name, j+1, ep.Kind)
				}
			case "":
				return errors.Newf("pipeline %q endpoint #%d has no kind", p.Name, j+1)
			}
		}
	}
	return nil
}

// Select returns the named pipelines in catalog order. No names selects all.
func (c *Catalog) Select(names []string) ([]PipelineSpec, error) {
	if len(names) == 0 {
		return c.Pipelines, nil
	}
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = false
	}
	var out []PipelineSpec
	for _, p := range c.Pipelines {
		if _, ok := want[p.Name]; ok {
			want[p.Name] = true
			out = append(out, p)
		}
	}
	for n, found := range want {
		if !found {
			return nil, errors.Newf("unknown pipeline %q", n)
		}
	}
	return out, nil
}

// Names lists pipeline names in catalog order.
func (c *Catalog) Names() []string {
	out := make([]string, 0, len(c.Pipelines))
	for _, p := range c.Pipelines {
		out = append(out, p.Name)
	}
	return out
}
