package kubectl

import (
	"strings"

	"github.com/pkg/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime/schema"
)

type column struct {
	name  string
	start int
	end   int
}

// tableColumns locates the columns of a kubectl table by the offsets of its header words.
func tableColumns(header string) []column {
	var columns []column
	fields := strings.Fields(header)
	offset := 0
	for _, field := range fields {
		start := offset + strings.Index(header[offset:], field)
		columns = append(columns, column{name: field, start: start})
		offset = start + len(field)
	}
	for i := range columns {
		if i+1 < len(columns) {
			columns[i].end = columns[i+1].start
		} else {
			columns[i].end = -1
		}
	}
	return columns
}

func (c column) value(row string) string {
	if c.start >= len(row) {
		return ""
	}
	if c.end < 0 || c.end > len(row) {
		return strings.TrimSpace(row[c.start:])
	}
	return strings.TrimSpace(row[c.start:c.end])
}

// ParseAPIResources parses the output of `kubectl api-resources -o wide`.
func ParseAPIResources(table string) ([]metav1.APIResource, error) {
	lines := strings.Split(strings.TrimSpace(table), "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[0]) == "" {
		return nil, nil
	}
	columns := tableColumns(lines[0])
	index := map[string]column{}
	for _, c := range columns {
		index[c.name] = c
	}
	if _, ok := index["NAME"]; !ok {
		return nil, errors.Errorf("unexpected api-resources header %q", lines[0])
	}

	var resources []metav1.APIResource
	for _, line := range lines[1:] {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		r := metav1.APIResource{
			Name:       index["NAME"].value(line),
			Namespaced: index["NAMESPACED"].value(line) == "true",
			Kind:       index["KIND"].value(line),
		}
		if c, ok := index["SHORTNAMES"]; ok {
			if v := c.value(line); v != "" {
				r.ShortNames = strings.Split(v, ",")
			}
		}
		if c, ok := index["APIVERSION"]; ok {
			gv, err := schema.ParseGroupVersion(c.value(line))
			if err != nil {
				return nil, errors.Wrapf(err, "parse api version of %s", r.Name)
			}
			r.Group, r.Version = gv.Group, gv.Version
		} else if c, ok := index["APIGROUP"]; ok {
			r.Group = c.value(line)
		}
		if c, ok := index["VERBS"]; ok {
			r.Verbs = strings.Fields(strings.Trim(c.value(line), "[]"))
		}
		resources = append(resources, r)
	}
	return resources, nil
}

// IsListable reports whether the resource supports the list verb. Resources without verb
// information are assumed listable.
func IsListable(r metav1.APIResource) bool {
	if r.Verbs == nil {
		return true
	}
	for _, verb := range r.Verbs {
		if verb == "list" {
			return true
		}
	}
	return false
}
