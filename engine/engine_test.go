package engine

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/earlzo/kubexport"
	"github.com/earlzo/kubexport/console"
	"github.com/earlzo/kubexport/flags"
	"github.com/earlzo/kubexport/kubectl"
)

const listVerbs = "[create delete get list patch update watch]"

func apiTable(rows ...[5]string) string {
	format := "%-24s%-12s%-24s%-12s%-24s%s\n"
	table := fmt.Sprintf(format, "NAME", "SHORTNAMES", "APIVERSION", "NAMESPACED", "KIND", "VERBS")
	for _, r := range rows {
		namespaced := "false"
		if r[3] == "true" {
			namespaced = "true"
		}
		table += fmt.Sprintf(format, r[0], r[1], r[2], namespaced, r[4], listVerbs)
	}
	return table
}

func versionJSON(gitVersion string) string {
	return fmt.Sprintf(`{"clientVersion": {"major": "1", "gitVersion": %q}, "kustomizeVersion": "v5.0.4"}`, gitVersion)
}

func object(apiVersion, kind, namespace, name string) string {
	ns := ""
	if namespace != "" {
		ns = fmt.Sprintf(`"namespace": %q,`, namespace)
	}
	return fmt.Sprintf(`{
  "apiVersion": %q,
  "kind": %q,
  "metadata": {%s "name": %q, "uid": "0b6c", "resourceVersion": "42", "creationTimestamp": "2024-03-01T10:00:00Z"},
  "status": {"phase": "Active"}
}`, apiVersion, kind, ns, name)
}

type fixture struct {
	engine   *Engine
	runner   *kubectl.FakeRunner
	fs       afero.Fs
	log      *bytes.Buffer
	out      *bytes.Buffer
	exitCode []int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		runner: kubectl.NewFakeRunner(),
		fs:     afero.NewMemMapFs(),
		log:    &bytes.Buffer{},
		out:    &bytes.Buffer{},
	}
	f.runner.
		On("version --client -o=json", versionJSON("v1.28.2")).
		On("api-resources -o wide --namespaced=false", apiTable(
			[5]string{"nodes", "no", "v1", "false", "Node"},
			[5]string{"persistentvolumes", "pv", "v1", "false", "PersistentVolume"},
		)).
		On("api-resources -o wide --namespaced=true", apiTable(
			[5]string{"deployments", "deploy", "apps/v1", "true", "Deployment"},
			[5]string{"configmaps", "cm", "v1", "true", "ConfigMap"},
			[5]string{"secrets", "", "v1", "true", "Secret"},
		)).
		On("get -o=name namespaces", "namespace/ns1\nnamespace/ns2").
		On("config view --minify -o jsonpath={..namespace}", "team-a").
		On("get -o=name --ignore-not-found nodes", "node/worker-1\nnode/worker-2").
		On("get -o=json node/worker-1", object("v1", "Node", "", "worker-1")).
		On("get -o=json node/worker-2", object("v1", "Node", "", "worker-2")).
		On("get -o=name --ignore-not-found pv", "persistentvolume/data").
		On("get -o=json persistentvolume/data", object("v1", "PersistentVolume", "", "data"))
	for _, ns := range []string{"ns1", "ns2", "team-a"} {
		for _, alias := range []string{"deployments", "deployment", "deploy"} {
			f.runner.On("get -o=name --ignore-not-found -n "+ns+" "+alias, "deployment.apps/web")
		}
		f.runner.
			On("get -o=json -n "+ns+" deployment.apps/web", object("apps/v1", "Deployment", ns, "web")).
			On("get -o=name --ignore-not-found -n "+ns+" secrets", "secret/token").
			On("get -o=json -n "+ns+" secret/token", object("v1", "Secret", ns, "token"))
	}

	e := NewEngine()
	e.Runner = f.runner
	e.Fs = f.fs
	e.Out = f.out
	e.OutputFlags.Dir = "out"
	e.OutputFlags.Format = "yaml"
	f.engine = e
	return f
}

func (f *fixture) setup() {
	f.engine.Console = console.NewReporter(f.engine.LogFlags.Level(),
		console.WithOutput(f.log),
		console.WithExit(func(code int) { f.exitCode = append(f.exitCode, code) }),
	)
	f.engine.Setup()
}

func (f *fixture) read(t *testing.T, path string) string {
	t.Helper()
	content, err := afero.ReadFile(f.fs, path)
	require.NoError(t, err)
	return string(content)
}

func (f *fixture) exists(t *testing.T, path string) bool {
	t.Helper()
	exists, err := afero.Exists(f.fs, path)
	require.NoError(t, err)
	return exists
}

func TestRunExplicitResources(t *testing.T) {
	f := newFixture(t)
	f.engine.SelectionFlags.Resources = "nodes,deployment,widget"
	f.engine.SelectionFlags.Namespaces = "ns1,ns2"
	f.setup()

	require.NoError(t, f.engine.Run(context.Background()))

	node := f.read(t, "out/node/worker-1.yaml")
	assert.Contains(t, node, "kind: Node")
	assert.Contains(t, node, "name: worker-1")
	assert.NotContains(t, node, "resourceVersion")
	assert.NotContains(t, node, "creationTimestamp")
	assert.NotContains(t, node, "status")
	assert.True(t, f.exists(t, "out/node/worker-2.yaml"))

	for _, ns := range []string{"ns1", "ns2"} {
		deployment := f.read(t, "out/"+ns+"/deployment.apps/web.yaml")
		assert.Contains(t, deployment, "namespace: "+ns)
	}
	assert.Contains(t, f.log.String(), "Not found resource: widget")
	assert.Empty(t, f.exitCode)
}

func TestRunJSONOutput(t *testing.T) {
	f := newFixture(t)
	f.engine.SelectionFlags.Resources = "pv"
	f.engine.OutputFlags.Format = "json"
	f.setup()

	require.NoError(t, f.engine.Run(context.Background()))
	assert.Contains(t, f.read(t, "out/persistentvolume/data.json"), `"kind": "PersistentVolume"`)
}

func TestRunInvalidOutputFallsBackToYAML(t *testing.T) {
	f := newFixture(t)
	f.engine.SelectionFlags.Resources = "pv"
	f.engine.OutputFlags.Format = "xml"
	f.setup()

	require.NoError(t, f.engine.Run(context.Background()))
	assert.Equal(t, "yaml", f.engine.OutputFlags.Format)
	assert.Contains(t, f.log.String(), "Wrong output format")
	assert.True(t, f.exists(t, "out/persistentvolume/data.yaml"))
}

func TestRunCurrentNamespace(t *testing.T) {
	f := newFixture(t)
	f.engine.SelectionFlags.Resources = "deploy"
	f.setup()

	require.NoError(t, f.engine.Run(context.Background()))
	assert.True(t, f.exists(t, "out/team-a/deployment.apps/web.yaml"))
	assert.False(t, f.exists(t, "out/ns1"))
}

func TestRunResolvesCurrentNamespaceOnce(t *testing.T) {
	f := newFixture(t)
	f.engine.SelectionFlags.Resources = "deployments,secrets"
	f.setup()

	require.NoError(t, f.engine.Run(context.Background()))
	assert.True(t, f.exists(t, "out/team-a/deployment.apps/web.yaml"))
	assert.True(t, f.exists(t, "out/team-a/secret/token.yaml"))

	lookups := 0
	for _, call := range f.runner.Calls {
		if strings.HasPrefix(call, "config view") {
			lookups++
		}
	}
	assert.Equal(t, 1, lookups)
}

func TestRunRemovesStaleFiles(t *testing.T) {
	f := newFixture(t)
	f.engine.SelectionFlags.Resources = "nodes"
	require.NoError(t, afero.WriteFile(f.fs, "out/node/deleted.yaml", []byte("stale"), 0o644))
	f.setup()

	require.NoError(t, f.engine.Run(context.Background()))
	assert.False(t, f.exists(t, "out/node/deleted.yaml"))
	assert.True(t, f.exists(t, "out/node/worker-1.yaml"))
	assert.True(t, f.exists(t, "out/node/worker-2.yaml"))
}

func TestRunKeepOriginal(t *testing.T) {
	f := newFixture(t)
	f.engine.SelectionFlags.Resources = "nodes"
	f.engine.OutputFlags.KeepOriginal = true
	require.NoError(t, afero.WriteFile(f.fs, "out/node/deleted.yaml", []byte("stale"), 0o644))
	f.setup()

	require.NoError(t, f.engine.Run(context.Background()))
	assert.True(t, f.exists(t, "out/node/deleted.yaml"))
	assert.True(t, f.exists(t, "out/node/worker-1.yaml"))
}

func TestRunPathConflict(t *testing.T) {
	f := newFixture(t)
	f.engine.SelectionFlags.Resources = "nodes"
	require.NoError(t, afero.WriteFile(f.fs, "out/node", []byte("a file"), 0o644))
	f.setup()

	err := f.engine.Run(context.Background())

	var conflict *kubexport.PathConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, "a file", f.read(t, "out/node"))
}

func TestRunStopsOnCommandError(t *testing.T) {
	f := newFixture(t)
	f.engine.SelectionFlags.Resources = "nodes,pv"
	f.runner.Fail("get -o=json node/worker-1", "Error from server (Forbidden)")
	f.setup()

	err := f.engine.Run(context.Background())

	var cmdErr *kubectl.CommandError
	require.True(t, errors.As(err, &cmdErr))
	for _, call := range f.runner.Calls {
		assert.NotEqual(t, "get -o=name --ignore-not-found pv", call)
	}
}

func TestPreflight(t *testing.T) {
	tests := []struct {
		name    string
		version string
		wantErr error
	}{
		{name: "too old", version: versionJSON("v1.10.0"), wantErr: kubectl.ErrClientTooOld},
		{name: "minimum", version: versionJSON("v1.11.0")},
		{name: "missing", version: `{"serverVersion": {"gitVersion": "v1.28.0"}}`, wantErr: kubectl.ErrNoClientVersion},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.runner.On("version --client -o=json", tt.version)
			f.setup()

			err := f.engine.Preflight(context.Background())
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.True(t, errors.Is(err, tt.wantErr))
			}
			assert.Equal(t, []string{"version --client -o=json"}, f.runner.Calls)
		})
	}
}

func TestResolveNamespaces(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(e *Engine)
		want   []string
		called bool
	}{
		{
			name:  "explicit list",
			setup: func(e *Engine) { e.SelectionFlags.Namespaces = "=ns1,ns2" },
			want:  []string{"ns1", "ns2"},
		},
		{
			name:   "all namespaces",
			setup:  func(e *Engine) { e.SelectionFlags.AllNamespaces = true },
			want:   []string{"ns1", "ns2"},
			called: true,
		},
		{
			name:   "cluster recommended implies all namespaces",
			setup:  func(e *Engine) { e.SelectionFlags.ClusterRecommended = true },
			want:   []string{"ns1", "ns2"},
			called: true,
		},
		{
			name: "explicit list wins",
			setup: func(e *Engine) {
				e.SelectionFlags.Namespaces = "ns3"
				e.SelectionFlags.AllNamespaces = true
			},
			want: []string{"ns3"},
		},
		{
			name:  "nothing",
			setup: func(e *Engine) {},
			want:  []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			tt.setup(f.engine)
			f.setup()

			namespaces, err := f.engine.ResolveNamespaces(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.want, namespaces)
			assert.Equal(t, tt.called, len(f.runner.Calls) == 1)
		})
	}
}

func TestResolveResources(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(e *Engine)
		want    []string
		without []string
	}{
		{
			name: "explicit list overrides presets",
			setup: func(e *Engine) {
				e.SelectionFlags.Resources = "=secret,pv"
				e.SelectionFlags.AllResources = true
			},
			want: []string{"secret", "pv"},
		},
		{
			name:    "recommended by default",
			setup:   func(e *Engine) {},
			want:    RecommendedResources,
			without: []string{"secrets", "nodes"},
		},
		{
			name:  "recommended with sensitive",
			setup: func(e *Engine) { e.OutputFlags.Sensitive = true },
			want:  append(append([]string{}, RecommendedResources...), "secrets"),
		},
		{
			name:  "cluster recommended",
			setup: func(e *Engine) { e.SelectionFlags.ClusterRecommended = true },
			want:  append(append([]string{}, ClusterRecommendedResources...), RecommendedResources...),
		},
		{
			name:  "all resources",
			setup: func(e *Engine) { e.SelectionFlags.AllResources = true },
			want:  []string{"deployments.apps", "configmaps"},
		},
		{
			name: "excluded types",
			setup: func(e *Engine) {
				e.SelectionFlags.AllResources = true
				e.SelectionFlags.Exclude = []string{"configmaps"}
			},
			want: []string{"deployments.apps"},
		},
		{
			name: "excluded by plural name",
			setup: func(e *Engine) {
				e.SelectionFlags.AllResources = true
				e.SelectionFlags.Exclude = []string{"deployments"}
			},
			want: []string{"configmaps"},
		},
		{
			name: "excluded by short name",
			setup: func(e *Engine) {
				e.SelectionFlags.AllResources = true
				e.SelectionFlags.Exclude = []string{"deploy"}
			},
			want: []string{"configmaps"},
		},
		{
			name: "excluded by kind",
			setup: func(e *Engine) {
				e.SelectionFlags.AllResources = true
				e.SelectionFlags.Exclude = []string{" Deployment"}
			},
			want: []string{"configmaps"},
		},
		{
			name:    "recommended excluded by short name",
			setup:   func(e *Engine) { e.SelectionFlags.Exclude = []string{"cm"} },
			want:    []string{"deployments", "statefulsets", "daemonsets", "cronjobs", "jobs", "services", "ingresses", "persistentvolumeclaims", "serviceaccounts", "roles", "rolebindings", "horizontalpodautoscalers", "networkpolicies", "poddisruptionbudgets"},
			without: []string{"configmaps"},
		},
		{
			name: "all cluster resources with sensitive",
			setup: func(e *Engine) {
				e.SelectionFlags.AllClusterResources = true
				e.OutputFlags.Sensitive = true
			},
			want: []string{"nodes", "persistentvolumes", "deployments.apps", "configmaps", "secrets"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			tt.setup(f.engine)
			f.setup()
			_, _, err := f.engine.LoadKinds(context.Background())
			require.NoError(t, err)

			resources := f.engine.ResolveResources()
			assert.Equal(t, tt.want, resources)
			for _, r := range tt.without {
				assert.NotContains(t, resources, r)
			}
		})
	}
}

func TestResolveResourcesDefaultExclude(t *testing.T) {
	f := newFixture(t)
	f.runner.On("api-resources -o wide --namespaced=false", apiTable(
		[5]string{"componentstatuses", "cs", "v1", "false", "ComponentStatus"},
		[5]string{"nodes", "no", "v1", "false", "Node"},
	))
	f.engine.SelectionFlags.AllClusterResources = true
	f.engine.SelectionFlags.Exclude = flags.DefaultExclude
	f.setup()
	_, _, err := f.engine.LoadKinds(context.Background())
	require.NoError(t, err)

	resources := f.engine.ResolveResources()
	assert.Equal(t, []string{"nodes", "deployments.apps", "configmaps"}, resources)
	assert.NotContains(t, resources, "componentstatuses")
}

func TestRunSensitivePreset(t *testing.T) {
	f := newFixture(t)
	f.engine.SelectionFlags.AllResources = true
	f.engine.SelectionFlags.Namespaces = "ns1"
	f.runner.On("get -o=name --ignore-not-found -n ns1 deployments.apps", "deployment.apps/web")
	f.runner.On("get -o=name --ignore-not-found -n ns1 configmaps", "")
	f.runner.On("get -o=name --ignore-not-found -n ns1 secrets", "secret/token")
	f.setup()

	require.NoError(t, f.engine.Run(context.Background()))
	assert.True(t, f.exists(t, "out/ns1/deployment.apps/web.yaml"))
	assert.False(t, f.exists(t, "out/ns1/secret"))
}

func TestShowAPIResources(t *testing.T) {
	f := newFixture(t)
	f.setup()

	require.NoError(t, f.engine.ShowAPIResources(context.Background()))
	out := f.out.String()
	assert.Contains(t, out, "Cluster level resources:")
	assert.Contains(t, out, "Namespaced resources:")
	assert.Contains(t, out, "persistentvolumes")
	assert.Contains(t, out, "deployments")
	assert.Less(t, strings.Index(out, "Cluster level resources:"), strings.Index(out, "Namespaced resources:"))
}
