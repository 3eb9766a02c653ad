package dberror

import (
	"strconv"
	"strings"
	"sync"
)

// Message namespaces.
const (
	// NamespaceObject holds messages for one schema object, keyed by
	// "schema.table.constraint" or "schema.table.column#notnull".
	NamespaceObject = "dbWarn"

	// NamespaceCommon holds the generic message of each violation kind.
	NamespaceCommon = "dbWarnCommon"
)

// Catalog looks up a message template by code and namespace and fills its
// {0}, {1}, ... placeholders from replaces.
type Catalog interface {
	Message(code, namespace string, replaces []string) (string, bool)
}

// StaticCatalog is an in-memory Catalog.
type StaticCatalog struct {
	mu        sync.RWMutex
	templates map[string]map[string]string
}

// NewStaticCatalog returns a catalog preloaded with the generic templates.
func NewStaticCatalog() *StaticCatalog {
	c := &StaticCatalog{templates: make(map[string]map[string]string)}
	for code, tpl := range commonTemplates {
		c.Add(NamespaceCommon, code, tpl)
	}
	return c
}

var commonTemplates = map[string]string{
	"unique_violation":         "Record in {0} with {1} = {2} already exists",
	"not_null_violation":       "Field {1} of {0} must be filled in",
	"foreign_key_violation#ud": "Record of {0} with key {2} is still referenced from {1}",
	"foreign_key_violation#iu": "Value {3} of {1} in {0} is not present in {2}",
	"foreign_key_violation":    "Foreign key violation: {0}",
	"check_violation":          "Check constraint {0} is violated",
	"exclusion_violation":      "Exclusion constraint {0} is violated",
}

// Add registers or replaces a template.
func (c *StaticCatalog) Add(namespace, code, template string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ns, ok := c.templates[namespace]
	if !ok {
		ns = make(map[string]string)
		c.templates[namespace] = ns
	}
	ns[code] = template
}

func (c *StaticCatalog) Message(code, namespace string, replaces []string) (string, bool) {
	c.mu.RLock()
	tpl, ok := c.templates[namespace][code]
	c.mu.RUnlock()
	if !ok {
		return "", false
	}
	return Format(tpl, replaces), true
}

// Format substitutes {i} with replaces[i]. Placeholders without a value are
// left as they are.
func Format(template string, replaces []string) string {
	if len(replaces) == 0 {
		return template
	}
	pairs := make([]string, 0, len(replaces)*2)
	for i, r := range replaces {
		pairs = append(pairs, "{"+strconv.Itoa(i)+"}", r)
	}
	return strings.NewReplacer(pairs...).Replace(template)
}
