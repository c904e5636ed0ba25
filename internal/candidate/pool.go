package candidate

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"

	"github.com/mitchellh/mapstructure"
)

type Pool struct {
	Items []*Record
}

// Load reads candidates from a JSON file or from every *.json file of a
// directory. A file may hold a single record, an array of records or an
// object with a "candidates" array.
func Load(path string) (*Pool, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	if !info.IsDir() {
		return loadFile(path)
	}

	files, err := filepath.Glob(filepath.Join(path, "*.json"))
	if err != nil {
		return nil, err
	}
	sort.Strings(files)

	pool := &Pool{}
	for _, file := range files {
		loaded, err := loadFile(file)
		if err != nil {
			return nil, err
		}
		pool.Items = append(pool.Items, loaded.Items...)
	}

	return pool, nil
}

func loadFile(path string) (*Pool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse candidates file %q: %w", path, err)
	}

	pool, err := Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("decode candidates file %q: %w", path, err)
	}

	return pool, nil
}

// Decode converts loosely typed JSON into records. Numeric ids become
// strings and skill tags given as one comma separated string or as a JSON
// encoded array are split into a list.
func Decode(raw any) (*Pool, error) {
	var items []any
	switch v := raw.(type) {
	case []any:
		items = v
	case map[string]any:
		if nested, ok := v["candidates"].([]any); ok {
			items = nested
		} else {
			items = []any{v}
		}
	case nil:
		return &Pool{}, nil
	default:
		return nil, fmt.Errorf("unexpected candidates payload of type %T", raw)
	}

	var records []*Record
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &records,
		WeaklyTypedInput: true,
		DecodeHook:       stringListHook,
	})
	if err != nil {
		return nil, err
	}

	if err := decoder.Decode(items); err != nil {
		return nil, err
	}

	for _, r := range records {
		if strings.TrimSpace(r.ID) == "" {
			r.ID = strings.TrimSpace(r.SourceCode)
		}
	}

	return &Pool{Items: records}, nil
}

func stringListHook(from, to reflect.Type, data any) (any, error) {
	if from.Kind() != reflect.String || to.Kind() != reflect.Slice || to.Elem().Kind() != reflect.String {
		return data, nil
	}

	s := strings.TrimSpace(data.(string))
	if s == "" {
		return []string{}, nil
	}

	if strings.HasPrefix(s, "[") {
		var list []string
		if err := json.Unmarshal([]byte(s), &list); err == nil {
			return list, nil
		}
	}

	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out, nil
}

func (p *Pool) Len() int {
	return len(p.Items)
}

func (p *Pool) IDs() []string {
	ids := make([]string, 0, len(p.Items))
	for _, r := range p.Items {
		ids = append(ids, r.ID)
	}
	return ids
}

func (p *Pool) FindByID(id string) *Record {
	for _, r := range p.Items {
		if r.ID == id {
			return r
		}
	}
	return nil
}

// Exclude removes records whose id is in targets and returns the removed ids.
// Order of the remaining records is preserved.
func (p *Pool) Exclude(targets []string) []string {
	return p.RemoveWhere(func(r *Record) bool {
		for _, t := range targets {
			if r.ID == t {
				return true
			}
		}
		return false
	})
}

// RemoveWhere drops every record matching drop and returns the dropped ids.
func (p *Pool) RemoveWhere(drop func(*Record) bool) []string {
	var removed []string
	kept := p.Items[:0]
	for _, r := range p.Items {
		if drop(r) {
			removed = append(removed, r.ID)
			continue
		}
		kept = append(kept, r)
	}
	p.Items = kept
	return removed
}

func (p *Pool) DumpToTmpFile() (string, error) {
	file, err := os.CreateTemp("", "candidates_*.json")
	if err != nil {
		return "", err
	}
	defer file.Close()

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	if err := enc.Encode(p); err != nil {
		return "", err
	}
	return file.Name(), nil
}
