package flags

import (
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const (
	FormatYAML = "yaml"
	FormatJSON = "json"
)

// Warner receives the advisory messages produced while validating flags.
type Warner interface {
	Warning(format string, args ...interface{})
}

type OutputFlags struct {
	Dir          string
	Format       string
	KeepOriginal bool
	Sensitive    bool
	SkipOwned    bool
}

func (o *OutputFlags) AddFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.Dir, "dir", ".", "directory the exported tree is written to")
	cmd.Flags().StringVarP(&o.Format, "output", "o", FormatYAML, "output format, one of: yaml, json")
	cmd.Flags().BoolVarP(&o.KeepOriginal, "keep-original", "k", false, "keep (don't clean) existing directories before export")
	cmd.Flags().BoolVarP(&o.Sensitive, "sensitive", "s", false, "include sensitive resources (secrets) in preset resource lists")
	cmd.Flags().BoolVar(&o.SkipOwned, "skip-owned", false, "skip objects that have owner references")
}

// ValidateFormat falls back to yaml for anything but yaml or json.
func (o *OutputFlags) ValidateFormat(w Warner) {
	switch o.Format {
	case FormatYAML, FormatJSON:
	default:
		w.Warning("Wrong output format %q, use default 'yaml' instead.", o.Format)
		o.Format = FormatYAML
	}
}

// ValidateDir fails when the output directory exists as something other than a directory.
func (o *OutputFlags) ValidateDir(fs afero.Fs) error {
	fileInfo, err := fs.Stat(o.Dir)
	if err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "get dir stat failed")
	}
	if fileInfo != nil && !fileInfo.IsDir() {
		return errors.Errorf("%s is not a dir", o.Dir)
	}
	return nil
}

type SelectionFlags struct {
	Namespaces          string
	AllNamespaces       bool
	Resources           string
	Recommended         bool
	ClusterRecommended  bool
	AllResources        bool
	AllClusterResources bool
	Exclude             []string
}

// DefaultExclude lists resource types left out of the "all" presets. Listing componentstatuses prints
// a deprecation warning on stderr from v1.19 on.
var DefaultExclude = []string{
	"endpoints",
	"endpointslices.discovery.k8s.io",
	"events",
	"events.events.k8s.io",
	"componentstatuses",
}

func (s *SelectionFlags) AddFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVarP(&s.Namespaces, "namespaces", "n", "", "comma separated list of namespaces to export")
	f.BoolVar(&s.AllNamespaces, "all-namespaces", false, "export the requested resources across all namespaces")
	f.StringVarP(&s.Resources, "resources", "r", "", "comma separated list of resources to export, e.g. deployment,secret")
	f.BoolVar(&s.Recommended, "recommended-resources", false, "export recommended namespaced resources (default)")
	f.BoolVarP(&s.ClusterRecommended, "cluster-recommended-resources", "c", false, "export recommended resources from all namespaces and the cluster level")
	f.BoolVarP(&s.AllResources, "all-resources", "a", false, "export all namespaced resources")
	f.BoolVar(&s.AllClusterResources, "all-cluster-resources", false, "export all namespaced and cluster level resources")
	f.StringSliceVar(&s.Exclude, "exclude", DefaultExclude, "resource types excluded from preset resource lists")
}

// NamespaceList returns the explicit namespaces, nil when none were given.
func (s *SelectionFlags) NamespaceList() []string {
	return SplitList(s.Namespaces)
}

// ResourceList returns the explicit resources, nil when none were given.
func (s *SelectionFlags) ResourceList() []string {
	return SplitList(s.Resources)
}

// ClusterWide reports whether a preset asks for every namespace.
func (s *SelectionFlags) ClusterWide() bool {
	return s.ClusterRecommended || s.AllClusterResources
}

// SplitList splits a comma separated flag value after dropping a leading "=".
func SplitList(value string) []string {
	value = strings.TrimPrefix(strings.TrimSpace(value), "=")
	if value == "" {
		return nil
	}
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

type LogFlags struct {
	Verbose bool
	Quiet   bool
}

func (l *LogFlags) AddFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().BoolVarP(&l.Verbose, "verbose", "v", false, "print more information")
	cmd.PersistentFlags().BoolVarP(&l.Quiet, "quiet", "q", false, "print errors only")
}

// Level is 0 by default, raised by --verbose and lowered by --quiet.
func (l *LogFlags) Level() int {
	level := 0
	if l.Verbose {
		level++
	}
	if l.Quiet {
		level--
	}
	return level
}

var aliases = map[string]string{
	"namespace":                    "namespaces",
	"all-namespace":                "all-namespaces",
	"resource":                     "resources",
	"recommended-resource":         "recommended-resources",
	"cluster-recommended-resource": "cluster-recommended-resources",
	"all-resource":                 "all-resources",
	"all-cluster-resource":         "all-cluster-resources",
}

// Normalize accepts the singular spelling of every plural flag.
func Normalize(_ *pflag.FlagSet, name string) pflag.NormalizedName {
	if plural, ok := aliases[name]; ok {
		name = plural
	}
	return pflag.NormalizedName(name)
}
