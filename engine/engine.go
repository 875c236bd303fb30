package engine

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/earlzo/kubexport"
	"github.com/earlzo/kubexport/console"
	"github.com/earlzo/kubexport/flags"
	"github.com/earlzo/kubexport/kubectl"
	"github.com/earlzo/kubexport/processor"
)

// RecommendedResources are exported when no resource list or other preset is given.
var RecommendedResources = []string{
	"deployments",
	"statefulsets",
	"daemonsets",
	"cronjobs",
	"jobs",
	"services",
	"ingresses",
	"configmaps",
	"persistentvolumeclaims",
	"serviceaccounts",
	"roles",
	"rolebindings",
	"horizontalpodautoscalers",
	"networkpolicies",
	"poddisruptionbudgets",
}

// ClusterRecommendedResources are added to RecommendedResources by --cluster-recommended-resources.
var ClusterRecommendedResources = []string{
	"clusterroles",
	"clusterrolebindings",
	"namespaces",
	"persistentvolumes",
	"nodes",
	"storageclasses",
}

// SensitiveResources only appear in presets with --sensitive.
var SensitiveResources = []string{"secrets"}

type Engine struct {
	OutputFlags    *flags.OutputFlags
	SelectionFlags *flags.SelectionFlags
	LogFlags       *flags.LogFlags

	Runner  kubectl.Runner
	Fs      afero.Fs
	Out     io.Writer
	Console *console.Reporter

	client           *kubectl.Client
	paths            *kubexport.PathManager
	pipeline         *processor.Pipeline
	resources        []scopeResources
	currentNamespace string
}

// scopeResources holds the resource kinds of one scope. aliases has one entry per API resource.
type scopeResources struct {
	scope   kubexport.Scope
	kinds   kubexport.Kinds
	names   []string
	aliases []kubexport.Kinds
}

func NewEngine() *Engine {
	return &Engine{
		OutputFlags:    &flags.OutputFlags{},
		SelectionFlags: &flags.SelectionFlags{},
		LogFlags:       &flags.LogFlags{},
		Runner:         kubectl.NewExecRunner(kubectl.DefaultBinary),
		Fs:             afero.NewOsFs(),
		Out:            os.Stdout,
	}
}

func (e *Engine) AddFlags(cmd *cobra.Command) {
	e.OutputFlags.AddFlags(cmd)
	e.SelectionFlags.AddFlags(cmd)
	e.LogFlags.AddFlags(cmd)
}

// Reporter returns the console reporter, creating one from the log flags when none was set.
func (e *Engine) Reporter() *console.Reporter {
	if e.Console == nil {
		e.Console = console.NewReporter(e.LogFlags.Level())
	}
	return e.Console
}

// Setup builds the collaborators from the parsed flags. It must run before Preflight.
func (e *Engine) Setup() {
	reporter := e.Reporter()
	e.client = kubectl.NewClient(e.Runner)
	e.paths = kubexport.NewPathManager(e.Fs, e.OutputFlags.Dir, e.OutputFlags.KeepOriginal, reporter.Logger())

	processors := processor.Default()
	if e.OutputFlags.SkipOwned {
		processors = append([]processor.Processor{&processor.SkipOwnedProcessor{Logger: reporter.Logger()}}, processors...)
	}
	e.pipeline = processor.NewPipeline(processors...)
}

// Preflight makes sure kubectl is reachable and recent enough.
func (e *Engine) Preflight(ctx context.Context) error {
	v, err := e.client.ClientVersion(ctx, kubectl.MinimumClientVersion)
	if err != nil {
		return err
	}
	e.Console.Debug("Kubernetes client version %s", v)
	return nil
}

// Run exports the selected resources.
func (e *Engine) Run(ctx context.Context) error {
	e.OutputFlags.ValidateFormat(e.Console)
	if err := e.OutputFlags.ValidateDir(e.Fs); err != nil {
		return err
	}

	namespaces, err := e.ResolveNamespaces(ctx)
	if err != nil {
		return err
	}
	clusterKinds, namespaceKinds, err := e.LoadKinds(ctx)
	if err != nil {
		return err
	}
	resources := e.ResolveResources()

	e.Console.Logger().WithFields(logrus.Fields{
		"Dir":        e.OutputFlags.Dir,
		"Format":     e.OutputFlags.Format,
		"Namespaces": namespaces,
		"Resources":  resources,
	}).Infoln("start export resources")

	for _, resource := range resources {
		switch kubexport.Classify(resource, clusterKinds, namespaceKinds) {
		case kubexport.ScopeCluster:
			err = e.DispatchCluster(ctx, resource)
		case kubexport.ScopeNamespace:
			err = e.DispatchNamespace(ctx, resource, namespaces)
		default:
			e.Console.Warning("Not found resource: %s", resource)
			continue
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// ResolveNamespaces returns the explicit namespaces, every namespace for --all-namespaces and the
// cluster-wide presets, or nothing to use the namespace of the current context.
func (e *Engine) ResolveNamespaces(ctx context.Context) ([]string, error) {
	if namespaces := e.SelectionFlags.NamespaceList(); len(namespaces) > 0 {
		return namespaces, nil
	}
	if e.SelectionFlags.AllNamespaces || e.SelectionFlags.ClusterWide() {
		return e.client.Namespaces(ctx)
	}
	return []string{}, nil
}

// LoadKinds asks kubectl for the cluster-level and namespaced API resources.
func (e *Engine) LoadKinds(ctx context.Context) (kubexport.Kinds, kubexport.Kinds, error) {
	e.resources = e.resources[:0]
	for _, namespaced := range []bool{false, true} {
		apiResources, err := e.client.APIResources(ctx, namespaced)
		if err != nil {
			return kubexport.Kinds{}, kubexport.Kinds{}, err
		}
		r := scopeResources{
			scope: kubexport.ScopeCluster,
			kinds: kubexport.KindsFromAPIResources(apiResources),
		}
		if namespaced {
			r.scope = kubexport.ScopeNamespace
		}
		for _, apiResource := range apiResources {
			r.aliases = append(r.aliases, kubexport.KindsFromAPIResources([]metav1.APIResource{apiResource}))
			if kubectl.IsListable(apiResource) {
				name := apiResource.Name
				if apiResource.Group != "" {
					name += "." + apiResource.Group
				}
				r.names = append(r.names, name)
			}
		}
		e.resources = append(e.resources, r)
	}
	return e.resources[0].kinds, e.resources[1].kinds, nil
}

// aliasesOf returns every name the API resource known as resource answers to.
func (e *Engine) aliasesOf(resource string) kubexport.Kinds {
	name := strings.ToLower(strings.TrimSpace(resource))
	for _, r := range e.resources {
		for _, aliases := range r.aliases {
			if aliases.Has(name) {
				return aliases
			}
		}
	}
	return kubexport.NewKinds(name)
}

func (e *Engine) listable(scope kubexport.Scope) []string {
	for _, r := range e.resources {
		if r.scope == scope {
			return r.names
		}
	}
	return nil
}

// ResolveResources applies the precedence: explicit list, all cluster resources, all resources,
// cluster recommended, recommended. Excluded types, and sensitive ones unless requested, are removed
// from presets by any of their names. An explicit list is used verbatim.
func (e *Engine) ResolveResources() []string {
	if resources := e.SelectionFlags.ResourceList(); len(resources) > 0 {
		return resources
	}

	var preset []string
	switch {
	case e.SelectionFlags.AllClusterResources:
		preset = append(append(preset, e.listable(kubexport.ScopeCluster)...), e.listable(kubexport.ScopeNamespace)...)
	case e.SelectionFlags.AllResources:
		preset = append(preset, e.listable(kubexport.ScopeNamespace)...)
	case e.SelectionFlags.ClusterRecommended:
		preset = append(append(preset, ClusterRecommendedResources...), RecommendedResources...)
		preset = append(preset, SensitiveResources...)
	default:
		preset = append(append(preset, RecommendedResources...), SensitiveResources...)
	}

	excluded := sets.New[string]()
	for _, resource := range e.SelectionFlags.Exclude {
		excluded.Insert(strings.ToLower(strings.TrimSpace(resource)))
	}
	if !e.OutputFlags.Sensitive {
		excluded.Insert(SensitiveResources...)
	}
	resources := make([]string, 0, len(preset))
	for _, resource := range preset {
		if !e.aliasesOf(resource).HasAny(excluded.UnsortedList()...) {
			resources = append(resources, resource)
		}
	}
	return resources
}

// DispatchCluster exports every object of a cluster-level resource.
func (e *Engine) DispatchCluster(ctx context.Context, resource string) error {
	e.Console.Info("CLUSTER %s", resource)
	names, err := e.client.Names(ctx, resource, "")
	if err != nil {
		return err
	}
	for _, name := range names {
		if err := e.export(ctx, name, name, ""); err != nil {
			return err
		}
	}
	return nil
}

// DispatchNamespace exports every object of a namespaced resource, one namespace at a time. With no
// namespaces the namespace of the current context is used.
func (e *Engine) DispatchNamespace(ctx context.Context, resource string, namespaces []string) error {
	e.Console.Info("NAMESPACE %s", resource)
	if len(namespaces) == 0 {
		current, err := e.defaultNamespace(ctx)
		if err != nil {
			return err
		}
		namespaces = []string{current}
	}
	for _, namespace := range namespaces {
		names, err := e.client.Names(ctx, resource, namespace)
		if err != nil {
			return err
		}
		for _, name := range names {
			if err := e.export(ctx, namespace+"/"+name, name, namespace); err != nil {
				return err
			}
		}
	}
	return nil
}

// defaultNamespace asks kubectl for the namespace of the current context once per engine.
func (e *Engine) defaultNamespace(ctx context.Context) (string, error) {
	if e.currentNamespace == "" {
		current, err := e.client.CurrentNamespace(ctx)
		if err != nil {
			return "", err
		}
		e.currentNamespace = current
	}
	return e.currentNamespace, nil
}

// export fetches one object, strips it and writes it below its resource name.
func (e *Engine) export(ctx context.Context, resourceName, objectName, namespace string) error {
	raw, err := e.client.Get(ctx, objectName, namespace)
	if err != nil {
		return err
	}
	data, err := e.pipeline.Transform(raw, e.OutputFlags.Format)
	if err != nil {
		return errors.Wrapf(err, "process %s", resourceName)
	}
	if data == nil {
		e.Console.Debug("skip %s", resourceName)
		return nil
	}
	path, err := e.paths.WriteResource(resourceName, e.OutputFlags.Format, data)
	if err != nil {
		return err
	}
	e.Console.Logger().WithField("file", path).Debugln("exported")
	return nil
}

// ShowAPIResources prints the cluster-level and namespaced API resources.
func (e *Engine) ShowAPIResources(ctx context.Context) error {
	heading := color.New(color.FgBlue, color.Bold)
	for _, section := range []struct {
		title      string
		namespaced bool
	}{
		{title: "Cluster level resources:", namespaced: false},
		{title: "Namespaced resources:", namespaced: true},
	} {
		table, err := e.client.APIResourcesTable(ctx, section.namespaced)
		if err != nil {
			return err
		}
		if _, err := heading.Fprintln(e.Out, section.title); err != nil {
			return errors.WithStack(err)
		}
		if _, err := fmt.Fprintln(e.Out, table); err != nil {
			return errors.WithStack(err)
		}
	}
	return nil
}
