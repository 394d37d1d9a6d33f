package hostapi

import (
	"fmt"
	"net/http"
	"sort"

	"github.com/egoavara/modmgr/internal/errs"
)

// ErrUnknownMethod is returned for a namespace/method pair the host does not have.
var ErrUnknownMethod = fmt.Errorf("%w: host api method", errs.ErrNotFound)

// Method is one host API endpoint.
type Method struct {
	Namespace string
	Name      string
	HTTP      string // GET or POST
	// Returns marks methods whose result is the point of calling them. The
	// script bridge never dispatches these.
	Returns bool
}

// Key returns "namespace.name".
func (m Method) Key() string {
	return m.Namespace + "." + m.Name
}

// Path returns the endpoint path.
func (m Method) Path() string {
	return "/api/" + m.Namespace + "/" + m.Name
}

func get(ns, name string) Method {
	return Method{Namespace: ns, Name: name, HTTP: http.MethodGet, Returns: true}
}
func post(ns, name string) Method { return Method{Namespace: ns, Name: name, HTTP: http.MethodPost} }

var methods = index(
	post("folder", "create"),
	post("folder", "rename"),
	post("folder", "update"),
	get("folder", "list"),
	get("folder", "listRecent"),
	get("folder", "getSelected"),

	post("item", "addFromURL"),
	post("item", "addFromURLs"),
	post("item", "addFromPath"),
	post("item", "addFromPaths"),
	post("item", "addBookmark"),
	get("item", "info"),
	get("item", "thumbnail"),
	get("item", "list"),
	post("item", "moveToTrash"),
	post("item", "refreshPalette"),
	post("item", "refreshThumbnail"),
	post("item", "update"),
	get("item", "getSelected"),

	get("library", "info"),
	get("library", "history"),
	post("library", "switch"),
	get("library", "icon"),

	get("application", "info"),
)

func index(list ...Method) map[string]Method {
	m := make(map[string]Method, len(list))
	for _, method := range list {
		m[method.Key()] = method
	}
	return m
}

// Lookup finds a method by namespace and name.
func Lookup(namespace, name string) (Method, error) {
	m, ok := methods[namespace+"."+name]
	if !ok {
		return Method{}, fmt.Errorf("%w: %s.%s", ErrUnknownMethod, namespace, name)
	}
	return m, nil
}

// Methods returns every method sorted by key.
func Methods() []Method {
	list := make([]Method, 0, len(methods))
	for _, m := range methods {
		list = append(list, m)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Key() < list[j].Key() })
	return list
}
