// Package migrate brings the store schema up to date by applying versioned
// install and update scripts exactly once each.
package migrate

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Kind distinguishes the install script from updates.
type Kind string

const (
	KindInstall Kind = "install"
	KindUpdate  Kind = "update"
)

// InstallVersion is the version of the distinguished install script, the
// first script applied to an empty store.
const InstallVersion = 0.01

// InstallScriptNames are the accepted names of the install script, in
// order of preference.
var InstallScriptNames = []string{"install-0.01.sql", "install-0.01.sql.gz"}

var scriptPattern = regexp.MustCompile(`(?i)^(install|update)-([0-9]+\.[0-9]+)\.sql(\.gz)?$`)

// Script is a named migration script.
type Script struct {
	Name    string
	Kind    Kind
	Version float64
	Gzip    bool
}

// ParseScript reads the kind and version embedded in a script name. Names
// that do not follow <install|update>-<major>.<minor>.sql[.gz] return false.
func ParseScript(name string) (Script, bool) {
	m := scriptPattern.FindStringSubmatch(name)
	if m == nil {
		return Script{}, false
	}
	v, err := strconv.ParseFloat(m[2], 64)
	if err != nil {
		return Script{}, false
	}
	return Script{
		Name:    name,
		Kind:    Kind(strings.ToLower(m[1])),
		Version: v,
		Gzip:    m[3] != "",
	}, true
}

// FormatVersion renders a version the way it appears in script names.
func FormatVersion(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// sortScripts orders scripts by numeric version, then by name, so a plain
// script sorts before its gzipped twin.
func sortScripts(scripts []Script) {
	sort.SliceStable(scripts, func(i, j int) bool {
		if scripts[i].Version != scripts[j].Version {
			return scripts[i].Version < scripts[j].Version
		}
		return scripts[i].Name < scripts[j].Name
	})
}
