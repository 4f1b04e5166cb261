package workitem

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// seedFile is the document accepted by LoadSeedFile:
//
//	items:
//	  - id: j1
//	    category: labour
//	    base_price: 500
//	    requester_id: farmer-1
//	    fulfiller_id: lab-1
type seedFile struct {
	Items []WorkItem `yaml:"items"`
}

// ParseSeedYAML decodes and validates a list of work items.
func ParseSeedYAML(data []byte) ([]WorkItem, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	var doc seedFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("seed: decode: %w", err)
	}
	seen := make(map[string]bool, len(doc.Items))
	for i, w := range doc.Items {
		category, err := ParseCategory(string(w.Category))
		if err != nil {
			return nil, fmt.Errorf("seed: item %d: %w", i, err)
		}
		switch {
		case w.ID == "":
			return nil, fmt.Errorf("seed: item %d: missing id", i)
		case w.RequesterID == "" || w.FulfillerID == "":
			return nil, fmt.Errorf("seed: item %s: both parties are required", w.ID)
		case w.RequesterID == w.FulfillerID:
			return nil, fmt.Errorf("seed: item %s: requester and fulfiller must differ", w.ID)
		case w.BasePrice <= 0:
			return nil, fmt.Errorf("seed: item %s: base_price must be positive", w.ID)
		}
		key := memoryKey(category, w.ID)
		if seen[key] {
			return nil, fmt.Errorf("seed: duplicate item %s", key)
		}
		seen[key] = true
		doc.Items[i].Category = category
	}
	return doc.Items, nil
}

// LoadSeedFile reads work items from a YAML file on disk.
func LoadSeedFile(path string) ([]WorkItem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("seed: read %s: %w", path, err)
	}
	items, err := ParseSeedYAML(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return items, nil
}
